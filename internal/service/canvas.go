package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/render"
	"collaborative-canvas/internal/replay"
	"collaborative-canvas/internal/repository"
)

// CanvasOptions 画布导出参数
type CanvasOptions struct {
	Width      int
	Height     int
	Background string
	CacheTTL   time.Duration
}

// CanvasService 把会话重放为 PNG，并在 Redis 中缓存结果
type CanvasService struct {
	replayer *replay.Engine
	cache    repository.CanvasCache
	opts     CanvasOptions
}

// NewCanvasService 创建 CanvasService 实例
func NewCanvasService(strokes replay.StrokeLister, cache repository.CanvasCache, opts CanvasOptions) *CanvasService {
	if strokes == nil || cache == nil {
		panic("stroke lister and canvas cache must be non-nil for CanvasService")
	}
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	if opts.Background == "" {
		opts.Background = render.DefaultBackground
	}
	return &CanvasService{replayer: replay.NewEngine(strokes), cache: cache, opts: opts}
}

// PNG 返回会话画布，优先使用缓存
func (c *CanvasService) PNG(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.cache.GetCanvasImage(ctx, sessionID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, repository.ErrCanvasNotCached) {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Canvas cache read failed, rendering directly")
	}
	return c.Refresh(ctx, sessionID)
}

// Refresh 重新渲染并写入缓存。
// 渲染期间会话发生变化时只返回图片，不写缓存。
func (c *CanvasService) Refresh(ctx context.Context, sessionID string) ([]byte, error) {
	logCtx := logrus.WithField("session_id", sessionID)
	generation, genErr := c.cache.CanvasGeneration(ctx, sessionID)
	if genErr != nil {
		logCtx.WithError(genErr).Warn("Failed to read canvas generation, result will not be cached")
	}

	r, err := render.NewRasterRenderer(c.opts.Width, c.opts.Height, c.opts.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanvasUnavailable, err)
	}
	if _, err := c.replayer.Replay(ctx, sessionID, r); err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, mapRepoError(err)
		}
		return nil, fmt.Errorf("%w: %w", ErrCanvasUnavailable, err)
	}
	var buf bytes.Buffer
	if err := r.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanvasUnavailable, err)
	}
	if genErr != nil {
		return buf.Bytes(), nil
	}
	stored, err := c.cache.SetCanvasImage(ctx, sessionID, buf.Bytes(), c.opts.CacheTTL, generation)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to cache canvas image")
	} else if !stored {
		logCtx.Debug("Canvas changed during render, image not cached")
	}
	return buf.Bytes(), nil
}
