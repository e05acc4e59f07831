package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// StrokeRepository 定义了笔画的持久化存储，是 order_index 的唯一仲裁者。
type StrokeRepository interface {
	// Append 在同一事务内分配下一个 order_index 并写入笔画。
	// 后端失败时返回包装了 ErrUnavailable 的错误，不做任何重试。
	Append(ctx context.Context, sessionID, authorID string, draft domain.StrokeDraft) (*domain.Stroke, error)

	// List 按 order_index 升序返回会话中所有存活的笔画。
	List(ctx context.Context, sessionID string) ([]domain.Stroke, error)

	// DeleteLatest 删除 order_index 最大的笔画并返回它。
	// 删除以观察到的最大笔画为条件：会话为空或该笔画已被其他撤销删除、不再是最大时返回 ErrNotFound。
	DeleteLatest(ctx context.Context, sessionID string) (*domain.Stroke, error)

	// DeleteAll 删除会话的全部笔画，确认没有残留后将计数器归零，返回删除数量。
	DeleteAll(ctx context.Context, sessionID string) (int64, error)

	// Count 返回会话中存活笔画的数量。
	Count(ctx context.Context, sessionID string) (int64, error)
}
