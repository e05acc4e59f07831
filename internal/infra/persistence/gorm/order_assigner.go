package gormpersistence

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-canvas/internal/domain"
)

// OrderAssigner 在存储端为会话分配单调递增的 order_index。
// 所有方法都必须在调用方的事务 (tx) 内执行，计数器行锁一直持有到事务提交。
type OrderAssigner struct{}

// NewOrderAssigner 创建 OrderAssigner。
func NewOrderAssigner() *OrderAssigner {
	return &OrderAssigner{}
}

// ensure 保证计数器行存在。
func (a *OrderAssigner) ensure(tx *gorm.DB, sessionID string) error {
	counter := domain.SessionCounter{SessionID: sessionID}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error
	if err != nil {
		return fmt.Errorf("ensure counter for session %s: %w", sessionID, err)
	}
	return nil
}

// Next 原子地取得下一个 order_index。
// UPDATE 会锁住计数器行，并发的 Append 在此串行化，因此不会出现重复的索引。
func (a *OrderAssigner) Next(tx *gorm.DB, sessionID string) (int64, error) {
	if err := a.ensure(tx, sessionID); err != nil {
		return 0, err
	}
	res := tx.Model(&domain.SessionCounter{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("next_index", gorm.Expr("next_index + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("increment counter for session %s: %w", sessionID, res.Error)
	}
	if res.RowsAffected != 1 {
		return 0, fmt.Errorf("increment counter for session %s: %d rows affected", sessionID, res.RowsAffected)
	}

	var next int64
	err := tx.Model(&domain.SessionCounter{}).
		Where("session_id = ?", sessionID).
		Select("next_index").
		Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("read counter for session %s: %w", sessionID, err)
	}
	return next - 1, nil
}

// Lock 对计数器行加排他锁，阻塞同一会话上并发的 Next 直到事务结束。
func (a *OrderAssigner) Lock(tx *gorm.DB, sessionID string) error {
	if err := a.ensure(tx, sessionID); err != nil {
		return err
	}
	var counter domain.SessionCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", sessionID).
		Take(&counter).Error
	if err != nil {
		return fmt.Errorf("lock counter for session %s: %w", sessionID, err)
	}
	return nil
}

// Reset 将计数器归零。只能在确认会话已无存活笔画之后、同一事务内调用。
func (a *OrderAssigner) Reset(tx *gorm.DB, sessionID string) error {
	err := tx.Model(&domain.SessionCounter{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("next_index", 0).Error
	if err != nil {
		return fmt.Errorf("reset counter for session %s: %w", sessionID, err)
	}
	return nil
}
