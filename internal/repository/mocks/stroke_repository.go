package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/domain"
)

// StrokeRepository 是 repository.StrokeRepository 的 Mock 实现
type StrokeRepository struct {
	mock.Mock
}

func (m *StrokeRepository) Append(ctx context.Context, sessionID, authorID string, draft domain.StrokeDraft) (*domain.Stroke, error) {
	args := m.Called(ctx, sessionID, authorID, draft)
	var s *domain.Stroke
	if v := args.Get(0); v != nil {
		s = v.(*domain.Stroke)
	}
	return s, args.Error(1)
}

func (m *StrokeRepository) List(ctx context.Context, sessionID string) ([]domain.Stroke, error) {
	args := m.Called(ctx, sessionID)
	var out []domain.Stroke
	if v := args.Get(0); v != nil {
		out = v.([]domain.Stroke)
	}
	return out, args.Error(1)
}

func (m *StrokeRepository) DeleteLatest(ctx context.Context, sessionID string) (*domain.Stroke, error) {
	args := m.Called(ctx, sessionID)
	var s *domain.Stroke
	if v := args.Get(0); v != nil {
		s = v.(*domain.Stroke)
	}
	return s, args.Error(1)
}

func (m *StrokeRepository) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StrokeRepository) Count(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}
