// Package replay 根据存储中的全序重建画布。
package replay

import (
	"context"
	"fmt"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/metrics"
)

// Renderer 是重放的绘制目标
type Renderer interface {
	Clear() error
	Draw(stroke domain.Stroke) error
}

// StrokeLister 按 order_index 升序列出存活笔画
type StrokeLister interface {
	List(ctx context.Context, sessionID string) ([]domain.Stroke, error)
}

// Engine 重放引擎
type Engine struct {
	strokes StrokeLister
}

// NewEngine 创建重放引擎
func NewEngine(strokes StrokeLister) *Engine {
	if strokes == nil {
		panic("stroke lister cannot be nil for replay Engine")
	}
	return &Engine{strokes: strokes}
}

// Replay 读取会话全部笔画并绘制到 renderer，返回绘制的笔画数。
// 每次都从清空开始，可以重复执行或中途重启。
func (e *Engine) Replay(ctx context.Context, sessionID string, r Renderer) (int, error) {
	strokes, err := e.strokes.List(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("replay session %s: %w", sessionID, err)
	}
	return Apply(ctx, strokes, r)
}

// Apply 清空 renderer 后按顺序绘制，跳过重复 ID 的笔画
func Apply(ctx context.Context, strokes []domain.Stroke, r Renderer) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordReplay(time.Since(start)) }()

	if err := r.Clear(); err != nil {
		return 0, fmt.Errorf("clear renderer: %w", err)
	}
	seen := make(map[uint]struct{}, len(strokes))
	drawn := 0
	for _, s := range strokes {
		if err := ctx.Err(); err != nil {
			return drawn, err
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if err := r.Draw(s); err != nil {
			return drawn, fmt.Errorf("draw stroke %d: %w", s.ID, err)
		}
		drawn++
	}
	return drawn, nil
}
