package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// CanvasCache 是 repository.CanvasCache 的 Mock 实现
type CanvasCache struct {
	mock.Mock
}

func (m *CanvasCache) GetCanvasImage(ctx context.Context, sessionID string) ([]byte, error) {
	args := m.Called(ctx, sessionID)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

func (m *CanvasCache) CanvasGeneration(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CanvasCache) SetCanvasImage(ctx context.Context, sessionID string, png []byte, ttl time.Duration, generation int64) (bool, error) {
	args := m.Called(ctx, sessionID, png, ttl, generation)
	return args.Bool(0), args.Error(1)
}

func (m *CanvasCache) InvalidateCanvasImage(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}
