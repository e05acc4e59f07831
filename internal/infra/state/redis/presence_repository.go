package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-canvas/internal/domain"
)

// removeIfUnchanged 只有当字段值仍等于读取时的值才删除，避免误删刚刷新过的记录
var removeIfUnchanged = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

// updateIfPresent 只刷新仍在 Hash 中的字段，已离开的参与者不会被写回
var updateIfPresent = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisPresenceRepository 用 Hash 保存每个会话的在线记录 (participant_id -> JSON)
type RedisPresenceRepository struct {
	client redis.UniversalClient
	keys   keyspace
}

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client redis.UniversalClient, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	return &RedisPresenceRepository{client: client, keys: newKeyspace(keyPrefix)}
}

// Upsert 写入记录并刷新整个 Hash 的过期时间
func (r *RedisPresenceRepository) Upsert(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("redis: marshal presence record: %w", err)
	}
	key := r.keys.presenceKey(sessionID)

	var hset *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hset = pipe.HSet(ctx, key, record.ParticipantID, payload)
		pipe.SAdd(ctx, r.keys.activeSessionsKey(), sessionID)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: upsert presence %s in session %s: %w", record.ParticipantID, sessionID, err)
	}
	return hset.Val() > 0, nil
}

// Update 仅在记录存在时覆盖它，返回是否写入
func (r *RedisPresenceRepository) Update(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("redis: marshal presence record: %w", err)
	}
	key := r.keys.presenceKey(sessionID)
	n, err := updateIfPresent.Run(ctx, r.client, []string{key}, record.ParticipantID, payload, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis: update presence %s in session %s: %w", record.ParticipantID, sessionID, err)
	}
	return n == 1, nil
}

// Remove 删除参与者记录
func (r *RedisPresenceRepository) Remove(ctx context.Context, sessionID, participantID string) (bool, error) {
	key := r.keys.presenceKey(sessionID)
	n, err := r.client.HDel(ctx, key, participantID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: remove presence %s in session %s: %w", participantID, sessionID, err)
	}
	return n > 0, nil
}

// List 返回会话中所有记录
func (r *RedisPresenceRepository) List(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error) {
	raw, err := r.client.HGetAll(ctx, r.keys.presenceKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list presence of session %s: %w", sessionID, err)
	}
	records := make([]domain.PresenceRecord, 0, len(raw))
	for _, v := range raw {
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ParticipantID < records[j].ParticipantID })
	return records, nil
}

// RemoveStale 删除过期记录。会话清空后同时从活跃集合中移除
func (r *RedisPresenceRepository) RemoveStale(ctx context.Context, sessionID string, cutoff time.Time) ([]domain.PresenceRecord, error) {
	key := r.keys.presenceKey(sessionID)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read presence of session %s: %w", sessionID, err)
	}

	var removed []domain.PresenceRecord
	for field, v := range raw {
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil || rec.LastSeen.Before(cutoff) {
			n, err := removeIfUnchanged.Run(ctx, r.client, []string{key}, field, v).Int()
			if err != nil {
				return removed, fmt.Errorf("redis: remove stale presence %s in session %s: %w", field, sessionID, err)
			}
			if n > 0 {
				if rec.ParticipantID == "" {
					rec.ParticipantID = field
				}
				removed = append(removed, rec)
			}
		}
	}

	if len(raw) == len(removed) {
		if err := r.client.SRem(ctx, r.keys.activeSessionsKey(), sessionID).Err(); err != nil {
			return removed, fmt.Errorf("redis: drop inactive session %s: %w", sessionID, err)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ParticipantID < removed[j].ParticipantID })
	return removed, nil
}

// ActiveSessions 返回存在在线记录的会话
func (r *RedisPresenceRepository) ActiveSessions(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.keys.activeSessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list active presence sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
