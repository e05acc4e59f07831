package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/metrics"
	"collaborative-canvas/internal/replay"
	"collaborative-canvas/internal/repository"
)

// CollaborationService 是协作核心：提交、撤销、清空笔画，并管理参与者的会话成员关系。
// 顺序完全由存储分配，服务本身不持有任何计数器。
type CollaborationService struct {
	strokes  repository.StrokeRepository
	sessions repository.SessionRepository
	broker   repository.Broker
	tracker  PresenceTracker
	replayer *replay.Engine

	canvasCache repository.CanvasCache
	renderQueue CanvasRenderEnqueuer

	tracer trace.Tracer
	now    func() time.Time
}

// Option 配置 CollaborationService
type Option func(*CollaborationService)

// WithCanvasRefresh 在笔画变化后使画布缓存失效并安排后台重绘
func WithCanvasRefresh(cache repository.CanvasCache, queue CanvasRenderEnqueuer) Option {
	return func(s *CollaborationService) {
		s.canvasCache = cache
		s.renderQueue = queue
	}
}

// NewCollaborationService 创建 CollaborationService 实例
func NewCollaborationService(
	strokes repository.StrokeRepository,
	sessions repository.SessionRepository,
	broker repository.Broker,
	tracker PresenceTracker,
	opts ...Option,
) *CollaborationService {
	if strokes == nil || sessions == nil || broker == nil || tracker == nil {
		panic("All dependencies must be non-nil for CollaborationService")
	}
	s := &CollaborationService{
		strokes:  strokes,
		sessions: sessions,
		broker:   broker,
		tracker:  tracker,
		replayer: replay.NewEngine(strokes),
		tracer:   otel.Tracer("collaborative-canvas/service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSession 确认会话存在
func (s *CollaborationService) EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to load session")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return session, nil
}

// SubmitStroke 校验、持久化并广播一条笔画。
// 校验失败或会话不存在时不会写入或广播；写入失败的笔画也不会广播。
func (s *CollaborationService) SubmitStroke(ctx context.Context, sessionID, authorID string, draft domain.StrokeDraft) (*domain.Stroke, error) {
	ctx, span := s.startSpan(ctx, "collaboration.submit_stroke", sessionID)
	defer span.End()
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "participant_id": authorID, "operation": "submit_stroke"})

	if err := draft.Validate(); err != nil {
		metrics.RecordStrokeRejected(rejectReason(err))
		logCtx.WithError(err).Debug("Rejected stroke draft")
		return nil, fmt.Errorf("%w: %w", ErrInvalidStroke, err)
	}
	if _, err := s.EnsureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	stroke, err := s.strokes.Append(ctx, sessionID, authorID, draft)
	if err != nil {
		metrics.RecordStoreError("append")
		recordSpanError(span, err)
		logCtx.WithError(err).Error("Failed to append stroke")
		return nil, mapRepoError(err)
	}
	metrics.RecordStrokeAppended()
	logCtx.WithFields(logrus.Fields{"stroke_id": stroke.ID, "order_index": stroke.OrderIndex}).Debug("Stroke appended")

	s.publishStroke(ctx, domain.StrokeEvent{Type: domain.StrokeAppended, SessionID: sessionID, Stroke: stroke, At: s.now()})
	s.canvasChanged(ctx, sessionID)
	return stroke, nil
}

// UndoLast 删除会话中 order_index 最大的笔画，与作者无关。
// 会话为空或在并发撤销中落败时返回 ErrNotFound。
func (s *CollaborationService) UndoLast(ctx context.Context, sessionID string) (*domain.Stroke, error) {
	ctx, span := s.startSpan(ctx, "collaboration.undo_last", sessionID)
	defer span.End()
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "operation": "undo_last"})
	if _, err := s.EnsureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	removed, err := s.strokes.DeleteLatest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordOperation("undo", "empty")
			logCtx.Debug("Nothing to undo")
			return nil, mapRepoError(err)
		}
		metrics.RecordOperation("undo", "error")
		metrics.RecordStoreError("delete_latest")
		recordSpanError(span, err)
		logCtx.WithError(err).Error("Failed to undo last stroke")
		return nil, mapRepoError(err)
	}
	metrics.RecordOperation("undo", "success")
	logCtx.WithFields(logrus.Fields{"stroke_id": removed.ID, "order_index": removed.OrderIndex}).Info("Stroke undone")

	s.publishStroke(ctx, domain.StrokeEvent{Type: domain.StrokeUndone, SessionID: sessionID, Stroke: removed, At: s.now()})
	s.canvasChanged(ctx, sessionID)
	return removed, nil
}

// ClearSession 删除会话全部笔画并将计数器归零，返回删除数量
func (s *CollaborationService) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	ctx, span := s.startSpan(ctx, "collaboration.clear_session", sessionID)
	defer span.End()
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "operation": "clear_session"})
	if _, err := s.EnsureSession(ctx, sessionID); err != nil {
		return 0, err
	}

	removed, err := s.strokes.DeleteAll(ctx, sessionID)
	if err != nil {
		metrics.RecordOperation("clear", "error")
		metrics.RecordStoreError("delete_all")
		recordSpanError(span, err)
		logCtx.WithError(err).Error("Failed to clear session")
		return 0, mapRepoError(err)
	}
	metrics.RecordOperation("clear", "success")
	logCtx.WithField("removed", removed).Info("Session cleared")

	s.publishStroke(ctx, domain.StrokeEvent{Type: domain.StrokeCleared, SessionID: sessionID, Removed: removed, At: s.now()})
	s.canvasChanged(ctx, sessionID)
	return removed, nil
}

// ListStrokes 按顺序返回会话的全部笔画
func (s *CollaborationService) ListStrokes(ctx context.Context, sessionID string) ([]domain.Stroke, error) {
	strokes, err := s.strokes.List(ctx, sessionID)
	if err != nil {
		metrics.RecordStoreError("list")
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to list strokes")
		return nil, mapRepoError(err)
	}
	return strokes, nil
}

// Replay 把会话当前状态完整绘制到 renderer
func (s *CollaborationService) Replay(ctx context.Context, sessionID string, r replay.Renderer) (int, error) {
	ctx, span := s.startSpan(ctx, "collaboration.replay", sessionID)
	defer span.End()
	n, err := s.replayer.Replay(ctx, sessionID, r)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, repository.ErrUnavailable) {
			return n, mapRepoError(err)
		}
		return n, err
	}
	return n, nil
}

// Participants 返回会话当前在线的参与者
func (s *CollaborationService) Participants(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error) {
	records, err := s.tracker.Participants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return records, nil
}

// JoinSession 加入会话：先订阅同步频道，再读取笔画，最后登记在线状态。
// 先订阅后读取保证两者之间写入的笔画至少通过其中一条路径到达，重复的由成员按 ID 去重。
func (s *CollaborationService) JoinSession(ctx context.Context, sessionID string, participant domain.Participant, opts ...JoinOption) (*Membership, error) {
	ctx, span := s.startSpan(ctx, "collaboration.join_session", sessionID)
	defer span.End()
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "participant_id": participant.ID, "operation": "join_session"})

	if _, err := s.EnsureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	sub, err := s.broker.Subscribe(ctx, sessionID)
	if err != nil {
		recordSpanError(span, err)
		logCtx.WithError(err).Error("Failed to subscribe to sync channel")
		return nil, fmt.Errorf("%w: %w", ErrChannelSubscriptionFailed, err)
	}

	strokes, err := s.strokes.List(ctx, sessionID)
	if err != nil {
		_ = sub.Close()
		metrics.RecordStoreError("list")
		recordSpanError(span, err)
		logCtx.WithError(err).Error("Failed to load strokes on join")
		return nil, mapRepoError(err)
	}

	m := newMembership(s, sessionID, participant, sub, strokes, opts)
	if err := s.tracker.Track(ctx, sessionID, participant.PresenceRecord()); err != nil {
		// 在线状态是尽力而为的，下一次心跳会重新登记
		logCtx.WithError(err).Warn("Failed to track presence on join")
	}
	logCtx.WithField("strokes", len(strokes)).Info("Participant joined session")
	return m, nil
}

func (s *CollaborationService) publishStroke(ctx context.Context, ev domain.StrokeEvent) {
	if err := s.broker.PublishStroke(ctx, ev.SessionID, ev); err != nil {
		// 笔画已持久化，其他参与者会在下一次重放时看到它
		metrics.RecordPublishError("strokes")
		logrus.WithError(err).WithFields(logrus.Fields{"session_id": ev.SessionID, "event": ev.Type}).
			Error("Failed to publish stroke event")
	}
}

func (s *CollaborationService) canvasChanged(ctx context.Context, sessionID string) {
	logCtx := logrus.WithField("session_id", sessionID)
	if s.canvasCache != nil {
		if err := s.canvasCache.InvalidateCanvasImage(ctx, sessionID); err != nil {
			logCtx.WithError(err).Warn("Failed to invalidate canvas cache")
		}
	}
	if s.renderQueue != nil {
		if err := s.renderQueue.EnqueueCanvasRender(ctx, sessionID); err != nil {
			logCtx.WithError(err).Warn("Failed to enqueue canvas render")
		}
	}
}

func (s *CollaborationService) startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session_id", sessionID)))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrStrokeTooShort):
		return "too_short"
	case errors.Is(err, domain.ErrInvalidWidth):
		return "width"
	case errors.Is(err, domain.ErrInvalidTool):
		return "tool"
	default:
		return "points"
	}
}
