package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-canvas/internal/repository"
)

// setIfGeneration 只有代数未变化时才写入图片
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[3] then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisCanvasCache 缓存渲染好的画布 PNG。
// 每次失效都会递增会话的代数，渲染开始前读取的代数过期后写入会被拒绝。
type RedisCanvasCache struct {
	client redis.UniversalClient
	keys   keyspace
}

// NewRedisCanvasCache 创建 RedisCanvasCache 实例
func NewRedisCanvasCache(client redis.UniversalClient, keyPrefix string) *RedisCanvasCache {
	if client == nil {
		panic("redis client cannot be nil for RedisCanvasCache")
	}
	return &RedisCanvasCache{client: client, keys: newKeyspace(keyPrefix)}
}

// GetCanvasImage 读取缓存，未命中返回 repository.ErrCanvasNotCached
func (c *RedisCanvasCache) GetCanvasImage(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.keys.canvasImageKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrCanvasNotCached
		}
		return nil, fmt.Errorf("redis: get canvas image of session %s: %w", sessionID, err)
	}
	return data, nil
}

// CanvasGeneration 返回会话画布当前的代数，从未失效过时为 0
func (c *RedisCanvasCache) CanvasGeneration(ctx context.Context, sessionID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.keys.canvasGenerationKey(sessionID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: get canvas generation of session %s: %w", sessionID, err)
	}
	return gen, nil
}

// SetCanvasImage 在代数仍为 generation 时写入缓存，ttl 为 0 表示不过期
func (c *RedisCanvasCache) SetCanvasImage(ctx context.Context, sessionID string, png []byte, ttl time.Duration, generation int64) (bool, error) {
	keys := []string{c.keys.canvasImageKey(sessionID), c.keys.canvasGenerationKey(sessionID)}
	n, err := setIfGeneration.Run(ctx, c.client, keys, png, ttl.Milliseconds(), generation).Int()
	if err != nil {
		return false, fmt.Errorf("redis: set canvas image of session %s: %w", sessionID, err)
	}
	return n == 1, nil
}

// InvalidateCanvasImage 删除缓存并递增代数
func (c *RedisCanvasCache) InvalidateCanvasImage(ctx context.Context, sessionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.keys.canvasGenerationKey(sessionID))
		pipe.Del(ctx, c.keys.canvasImageKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: invalidate canvas image of session %s: %w", sessionID, err)
	}
	return nil
}
