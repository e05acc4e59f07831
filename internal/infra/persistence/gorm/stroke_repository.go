package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// GormStrokeRepository 是 StrokeRepository 接口的 GORM 实现
type GormStrokeRepository struct {
	db       *gorm.DB
	assigner *OrderAssigner
}

// NewGormStrokeRepository 创建 GormStrokeRepository 实例
func NewGormStrokeRepository(db *gorm.DB, assigner *OrderAssigner) *GormStrokeRepository {
	if db == nil {
		panic("database connection cannot be nil for GormStrokeRepository")
	}
	if assigner == nil {
		assigner = NewOrderAssigner()
	}
	return &GormStrokeRepository{db: db, assigner: assigner}
}

// Append 在一个事务里分配 order_index 并插入笔画
func (r *GormStrokeRepository) Append(ctx context.Context, sessionID, authorID string, draft domain.StrokeDraft) (*domain.Stroke, error) {
	stroke := draft.ToStroke(sessionID, authorID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		idx, err := r.assigner.Next(tx, sessionID)
		if err != nil {
			return err
		}
		stroke.OrderIndex = idx
		return tx.Create(&stroke).Error
	})
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("append stroke to session %s", sessionID), err)
	}
	return &stroke, nil
}

// List 按 order_index 升序列出存活笔画
func (r *GormStrokeRepository) List(ctx context.Context, sessionID string) ([]domain.Stroke, error) {
	var strokes []domain.Stroke
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("order_index ASC").
		Find(&strokes).Error
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("list strokes of session %s", sessionID), err)
	}
	return strokes, nil
}

// DeleteLatest 删除 order_index 最大的笔画。
// 先在事务外观察当前最大笔画，再以它为条件删除；与其他撤销竞争失败时返回 ErrNotFound。
func (r *GormStrokeRepository) DeleteLatest(ctx context.Context, sessionID string) (*domain.Stroke, error) {
	observed, err := r.latest(r.db.WithContext(ctx), sessionID)
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("observe latest stroke of session %s", sessionID), err)
	}
	return r.DeleteIfLatest(ctx, sessionID, *observed)
}

// DeleteIfLatest 仅当 observed 仍是会话中 order_index 最大的笔画时删除它。
// 计数器行锁使检查与删除对 Append、DeleteAll 和其他撤销串行化。
func (r *GormStrokeRepository) DeleteIfLatest(ctx context.Context, sessionID string, observed domain.Stroke) (*domain.Stroke, error) {
	var removed domain.Stroke
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.assigner.Lock(tx, sessionID); err != nil {
			return err
		}
		current, err := r.latest(tx, sessionID)
		if err != nil {
			return err
		}
		if current.ID != observed.ID || current.OrderIndex != observed.OrderIndex {
			return repository.ErrStrokeNotFound
		}

		res := tx.Where("id = ? AND session_id = ? AND order_index = ?", current.ID, sessionID, current.OrderIndex).
			Delete(&domain.Stroke{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrStrokeNotFound
		}
		removed = *current
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("delete latest stroke of session %s", sessionID), err)
	}
	return &removed, nil
}

// latest 读取会话中 order_index 最大的笔画，空会话返回 ErrStrokeNotFound
func (r *GormStrokeRepository) latest(db *gorm.DB, sessionID string) (*domain.Stroke, error) {
	var s domain.Stroke
	err := db.Where("session_id = ?", sessionID).
		Order("order_index DESC").
		Limit(1).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrStrokeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteAll 清空会话。
// 计数器行先被锁住，并发的 Append 会等到本事务提交后再从 0 开始分配。
// 删除后重新计数，只有零残留才归零计数器，否则整个事务回滚。
func (r *GormStrokeRepository) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.assigner.Lock(tx, sessionID); err != nil {
			return err
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&domain.Stroke{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		var remaining int64
		if err := tx.Model(&domain.Stroke{}).Where("session_id = ?", sessionID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining != 0 {
			return fmt.Errorf("%d strokes survived bulk delete", remaining)
		}
		return r.assigner.Reset(tx, sessionID)
	})
	if err != nil {
		return 0, wrapStoreError(fmt.Sprintf("clear session %s", sessionID), err)
	}
	return deleted, nil
}

// Count 统计存活笔画数量
func (r *GormStrokeRepository) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Stroke{}).Where("session_id = ?", sessionID).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(fmt.Sprintf("count strokes of session %s", sessionID), err)
	}
	return count, nil
}
