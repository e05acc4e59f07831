package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// Broker 是 repository.Broker 的 Mock 实现
type Broker struct {
	mock.Mock
}

func (m *Broker) PublishStroke(ctx context.Context, sessionID string, event domain.StrokeEvent) error {
	args := m.Called(ctx, sessionID, event)
	return args.Error(0)
}

func (m *Broker) PublishPresence(ctx context.Context, sessionID string, event domain.PresenceEvent) error {
	args := m.Called(ctx, sessionID, event)
	return args.Error(0)
}

func (m *Broker) Subscribe(ctx context.Context, sessionID string) (repository.Subscription, error) {
	args := m.Called(ctx, sessionID)
	var sub repository.Subscription
	if v := args.Get(0); v != nil {
		sub = v.(repository.Subscription)
	}
	return sub, args.Error(1)
}

// Subscription 是一个可由测试直接推送事件的内存订阅
type Subscription struct {
	StrokeEvents   chan domain.StrokeEvent
	PresenceEvents chan domain.PresenceEvent
	closed         chan struct{}
}

// NewSubscription 创建带缓冲的内存订阅
func NewSubscription() *Subscription {
	return &Subscription{
		StrokeEvents:   make(chan domain.StrokeEvent, 16),
		PresenceEvents: make(chan domain.PresenceEvent, 16),
		closed:         make(chan struct{}),
	}
}

func (s *Subscription) Strokes() <-chan domain.StrokeEvent    { return s.StrokeEvents }
func (s *Subscription) Presence() <-chan domain.PresenceEvent { return s.PresenceEvents }

func (s *Subscription) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// Closed 报告 Close 是否已被调用
func (s *Subscription) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
