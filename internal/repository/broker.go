package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// Broker 是每个会话的同步频道 (strokes 与 presence 两个逻辑频道)。
type Broker interface {
	PublishStroke(ctx context.Context, sessionID string, event domain.StrokeEvent) error
	PublishPresence(ctx context.Context, sessionID string, event domain.PresenceEvent) error

	// Subscribe 同时订阅两个频道，并等待订阅确认。
	// 确认失败时返回包装了 ErrSubscriptionFailed 的错误。
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

// Subscription 是一次活动的订阅。Close 之后两个通道都会被关闭。
type Subscription interface {
	Strokes() <-chan domain.StrokeEvent
	Presence() <-chan domain.PresenceEvent
	Close() error
}
