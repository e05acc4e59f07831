package repository

import (
	"context"
	"time"

	"collaborative-canvas/internal/domain"
)

// PresenceRepository 保存临时的在线状态 (Redis)。
type PresenceRepository interface {
	// Upsert 写入或刷新参与者记录，返回该参与者此前是否不存在。
	Upsert(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (created bool, err error)

	// Update 仅当参与者记录仍存在时覆盖它，返回是否写入；不会让已离开的参与者重新出现。
	Update(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (bool, error)

	// Remove 删除参与者记录，返回记录此前是否存在。
	Remove(ctx context.Context, sessionID, participantID string) (bool, error)

	// List 返回会话当前所有在线记录，按参与者 ID 排序。
	List(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error)

	// RemoveStale 删除 last_seen 早于 cutoff 的记录，返回被删除的记录。
	// 删除是条件性的：读取之后被刷新过的记录会保留。
	RemoveStale(ctx context.Context, sessionID string, cutoff time.Time) ([]domain.PresenceRecord, error)

	// ActiveSessions 返回当前存在在线记录的会话 ID。
	ActiveSessions(ctx context.Context) ([]string, error)
}
