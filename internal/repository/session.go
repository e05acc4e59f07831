package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// SessionRepository 定义了会话的存储和检索操作。
type SessionRepository interface {
	// Create 创建会话，ID 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, session *domain.Session) error

	// FindByID 根据 ID 查找会话，不存在时返回 ErrSessionNotFound。
	FindByID(ctx context.Context, id string) (*domain.Session, error)
}
