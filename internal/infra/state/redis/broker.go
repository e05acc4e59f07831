package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

const (
	strokeBufferSize   = 256
	presenceBufferSize = 64
)

// RedisBroker 基于 Redis Pub/Sub 的同步频道实现
type RedisBroker struct {
	client redis.UniversalClient
	keys   keyspace
}

// NewRedisBroker 创建 RedisBroker 实例
func NewRedisBroker(client redis.UniversalClient, keyPrefix string) *RedisBroker {
	if client == nil {
		panic("redis client cannot be nil for RedisBroker")
	}
	return &RedisBroker{client: client, keys: newKeyspace(keyPrefix)}
}

// PublishStroke 发布笔画事件
func (b *RedisBroker) PublishStroke(ctx context.Context, sessionID string, event domain.StrokeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal stroke event for session %s: %w", sessionID, err)
	}
	channel := b.keys.strokeChannel(sessionID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w: %w", channel, repository.ErrUnavailable, err)
	}
	return nil
}

// PublishPresence 发布在线状态事件
func (b *RedisBroker) PublishPresence(ctx context.Context, sessionID string, event domain.PresenceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal presence event for session %s: %w", sessionID, err)
	}
	channel := b.keys.presenceChannel(sessionID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w: %w", channel, repository.ErrUnavailable, err)
	}
	return nil
}

// Subscribe 订阅会话的两个频道，两个订阅都得到确认后才返回
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (repository.Subscription, error) {
	strokeCh := b.keys.strokeChannel(sessionID)
	presenceCh := b.keys.presenceChannel(sessionID)
	pubsub := b.client.Subscribe(ctx, strokeCh, presenceCh)

	confirmed := 0
	for confirmed < 2 {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("redis: subscribe session %s: %w: %w", sessionID, repository.ErrSubscriptionFailed, err)
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				confirmed++
			}
		case *redis.Message, *redis.Pong:
			// 确认之前不应收到消息，忽略
		default:
			_ = pubsub.Close()
			return nil, fmt.Errorf("redis: subscribe session %s: %w: unexpected reply %T", sessionID, repository.ErrSubscriptionFailed, msg)
		}
	}

	sub := &redisSubscription{
		pubsub:     pubsub,
		sessionID:  sessionID,
		strokeCh:   strokeCh,
		presenceCh: presenceCh,
		strokes:    make(chan domain.StrokeEvent, strokeBufferSize),
		presence:   make(chan domain.PresenceEvent, presenceBufferSize),
		done:       make(chan struct{}),
	}
	go sub.pump(pubsub.Channel())
	return sub, nil
}

// redisSubscription 把 Redis 消息解码后分发到两个类型化通道
type redisSubscription struct {
	pubsub     *redis.PubSub
	sessionID  string
	strokeCh   string
	presenceCh string

	strokes  chan domain.StrokeEvent
	presence chan domain.PresenceEvent
	done     chan struct{}
	once     sync.Once
}

func (s *redisSubscription) Strokes() <-chan domain.StrokeEvent    { return s.strokes }
func (s *redisSubscription) Presence() <-chan domain.PresenceEvent { return s.presence }

// Close 关闭订阅，可重复调用
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(messages <-chan *redis.Message) {
	defer close(s.strokes)
	defer close(s.presence)
	logCtx := logrus.WithFields(logrus.Fields{"component": "broker", "session_id": s.sessionID})

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			switch msg.Channel {
			case s.strokeCh:
				var ev domain.StrokeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logCtx.WithError(err).Warn("Dropping malformed stroke event")
					continue
				}
				// 笔画事件不丢弃，消费者过慢时在这里施加背压
				select {
				case s.strokes <- ev:
				case <-s.done:
					return
				}
			case s.presenceCh:
				var ev domain.PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logCtx.WithError(err).Warn("Dropping malformed presence event")
					continue
				}
				// 在线事件是有损的，下一次 sync 会自愈
				select {
				case s.presence <- ev:
				default:
					logCtx.Warn("Presence buffer full, dropping event")
				}
			}
		}
	}
}
