package domain

import "time"

// Session 是一个共享画布会话。由提供方创建，核心从不修改或删除它。
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:191;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名。
func (Session) TableName() string { return "sessions" }

// SessionCounter 保存会话下一个可分配的 order_index，是顺序的唯一权威来源。
type SessionCounter struct {
	SessionID string `gorm:"primaryKey;size:64"`
	NextIndex int64  `gorm:"not null"`
}

// TableName 指定表名。
func (SessionCounter) TableName() string { return "session_counters" }
