package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/domain"
)

// SessionRepository 是 repository.SessionRepository 的 Mock 实现
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	var s *domain.Session
	if v := args.Get(0); v != nil {
		s = v.(*domain.Session)
	}
	return s, args.Error(1)
}
