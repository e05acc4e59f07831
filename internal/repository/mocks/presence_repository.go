package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/domain"
)

// PresenceRepository 是 repository.PresenceRepository 的 Mock 实现
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) Upsert(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, sessionID, record, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceRepository) Update(ctx context.Context, sessionID string, record domain.PresenceRecord, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, sessionID, record, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceRepository) Remove(ctx context.Context, sessionID, participantID string) (bool, error) {
	args := m.Called(ctx, sessionID, participantID)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceRepository) List(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error) {
	args := m.Called(ctx, sessionID)
	var out []domain.PresenceRecord
	if v := args.Get(0); v != nil {
		out = v.([]domain.PresenceRecord)
	}
	return out, args.Error(1)
}

func (m *PresenceRepository) RemoveStale(ctx context.Context, sessionID string, cutoff time.Time) ([]domain.PresenceRecord, error) {
	args := m.Called(ctx, sessionID, cutoff)
	var out []domain.PresenceRecord
	if v := args.Get(0); v != nil {
		out = v.([]domain.PresenceRecord)
	}
	return out, args.Error(1)
}

func (m *PresenceRepository) ActiveSessions(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}
