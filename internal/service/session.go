package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

const (
	maxSessionNameLength = 191
	defaultSessionName   = "Untitled canvas"
)

// SessionService 负责会话的创建与查询
type SessionService struct {
	sessions repository.SessionRepository
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(sessions repository.SessionRepository) *SessionService {
	if sessions == nil {
		panic("SessionRepository cannot be nil for SessionService")
	}
	return &SessionService{sessions: sessions}
}

// CreateSession 创建新会话，ID 为空时自动生成
func (s *SessionService) CreateSession(ctx context.Context, id, name string) (*domain.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultSessionName
	}
	if utf8.RuneCountInString(name) > maxSessionNameLength {
		return nil, fmt.Errorf("%w: name longer than %d characters", ErrInvalidSession, maxSessionNameLength)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	} else if len(id) > 64 || strings.ContainsAny(id, " /:") {
		return nil, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}

	session := &domain.Session{ID: id, Name: name}
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrSessionExists
		}
		logrus.WithError(err).WithField("session_id", id).Error("Failed to create session")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	logrus.WithFields(logrus.Fields{"session_id": id, "name": name}).Info("Session created")
	return session, nil
}

// GetSession 查询会话
func (s *SessionService) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return session, nil
}
