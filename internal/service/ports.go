package service

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// PresenceTracker 是服务依赖的在线状态跟踪能力，由 presence.Tracker 实现
type PresenceTracker interface {
	Track(ctx context.Context, sessionID string, rec domain.PresenceRecord) error
	UpdateCursor(sessionID string, rec domain.PresenceRecord, x, y float64)
	Leave(ctx context.Context, sessionID, participantID string) error
	Sync(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error)
	Participants(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error)
}

// CanvasRenderEnqueuer 在画布变化后安排一次后台渲染
type CanvasRenderEnqueuer interface {
	EnqueueCanvasRender(ctx context.Context, sessionID string) error
}
