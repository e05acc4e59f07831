package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// GormSessionRepository 是 SessionRepository 接口的 GORM 实现
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository 创建 GormSessionRepository 实例
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSessionRepository")
	}
	return &GormSessionRepository{db: db}
}

// Create 创建会话
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create session %s: %w", session.ID, err)
	}
	return nil
}

// FindByID 根据 ID 查找会话
func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, wrapStoreError(fmt.Sprintf("find session %s", id), err)
	}
	return &session, nil
}
