package repository

import (
	"context"
	"time"
)

// CanvasCache 缓存渲染好的画布 PNG。
type CanvasCache interface {
	// GetCanvasImage 未命中时返回 ErrCanvasNotCached。
	GetCanvasImage(ctx context.Context, sessionID string) ([]byte, error)
	// CanvasGeneration 返回会话画布的代数，每次失效递增。
	CanvasGeneration(ctx context.Context, sessionID string) (int64, error)
	// SetCanvasImage 仅当代数仍等于 generation 时写入，返回是否写入。
	SetCanvasImage(ctx context.Context, sessionID string, png []byte, ttl time.Duration, generation int64) (bool, error)
	InvalidateCanvasImage(ctx context.Context, sessionID string) error
}
