// Package render 把笔画栅格化为图片，用于导出画布 PNG。
package render

import (
	"fmt"
	"image"
	"io"

	"github.com/fogleman/gg"

	"collaborative-canvas/internal/domain"
)

// DefaultBackground 画布背景色，橡皮擦用它覆盖
const DefaultBackground = "#FFFFFF"

// RasterRenderer 实现 replay.Renderer，在内存位图上绘制
type RasterRenderer struct {
	dc         *gg.Context
	background string
}

// NewRasterRenderer 创建指定尺寸的渲染器
func NewRasterRenderer(width, height int, background string) (*RasterRenderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	if background == "" {
		background = DefaultBackground
	}
	r := &RasterRenderer{dc: gg.NewContext(width, height), background: background}
	if err := r.Clear(); err != nil {
		return nil, err
	}
	return r, nil
}

// Clear 用背景色填满画布
func (r *RasterRenderer) Clear() error {
	r.dc.SetHexColor(r.background)
	r.dc.Clear()
	return nil
}

// Draw 绘制一条折线笔画，圆头圆角
func (r *RasterRenderer) Draw(s domain.Stroke) error {
	if len(s.Points) < 2 {
		return domain.ErrStrokeTooShort
	}
	color := s.Color
	if s.Tool == domain.ToolEraser || color == "" {
		color = r.background
	}
	r.dc.SetHexColor(color)
	r.dc.SetLineWidth(s.Width)
	r.dc.SetLineCapRound()
	r.dc.SetLineJoinRound()

	r.dc.MoveTo(s.Points[0].X, s.Points[0].Y)
	for _, p := range s.Points[1:] {
		r.dc.LineTo(p.X, p.Y)
	}
	r.dc.Stroke()
	return nil
}

// Image 返回当前位图
func (r *RasterRenderer) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG 把当前位图编码为 PNG
func (r *RasterRenderer) EncodePNG(w io.Writer) error {
	if err := r.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode canvas png: %w", err)
	}
	return nil
}
