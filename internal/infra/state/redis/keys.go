package redisstate

import "fmt"

// DefaultKeyPrefix 默认 key 前缀 (cc: collaborative canvas)
const DefaultKeyPrefix = "cc:"

// keyspace 统一生成本包使用的 Redis key 与频道名
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) strokeChannel(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:strokes", k.prefix, sessionID)
}

func (k keyspace) presenceChannel(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:presence", k.prefix, sessionID)
}

func (k keyspace) presenceKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:presence_records", k.prefix, sessionID)
}

func (k keyspace) activeSessionsKey() string {
	return k.prefix + "presence:sessions"
}

func (k keyspace) canvasImageKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:canvas_png", k.prefix, sessionID)
}

func (k keyspace) canvasGenerationKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:canvas_gen", k.prefix, sessionID)
}
