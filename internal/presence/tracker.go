// Package presence 维护会话的在线成员，并通过同步频道广播加入、离开与全量对账事件。
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/metrics"
	"collaborative-canvas/internal/repository"
)

// 默认参数
const (
	DefaultTimeout      = 2 * time.Minute
	DefaultCursorFlush  = 50 * time.Millisecond
	sweepConcurrency    = 8
	recordTTLMultiplier = 3
)

// Tracker 在线状态跟踪器。状态机: Absent -> Present (join)，Present 自环 (心跳、光标)，
// Present -> Absent (离开或心跳超时)。
type Tracker struct {
	repo        repository.PresenceRepository
	broker      repository.Broker
	timeout     time.Duration
	cursorFlush time.Duration
	cursors     *cursorCoalescer
	now         func() time.Time
}

// Option 配置 Tracker
type Option func(*Tracker)

// WithClock 替换时间源，测试使用
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCursorFlushInterval 设置光标合并发送的间隔
func WithCursorFlushInterval(d time.Duration) Option {
	return func(t *Tracker) { t.cursorFlush = d }
}

// NewTracker 创建 Tracker。timeout 为心跳超时时间
func NewTracker(repo repository.PresenceRepository, broker repository.Broker, timeout time.Duration, opts ...Option) *Tracker {
	if repo == nil || broker == nil {
		panic("presence repository and broker must be non-nil for Tracker")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Tracker{
		repo:        repo,
		broker:      broker,
		timeout:     timeout,
		cursorFlush: DefaultCursorFlush,
		cursors:     newCursorCoalescer(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track 登记或刷新参与者。首次出现时发布 join 并立即对账一次。
func (t *Tracker) Track(ctx context.Context, sessionID string, rec domain.PresenceRecord) error {
	rec.LastSeen = t.now()
	created, err := t.repo.Upsert(ctx, sessionID, rec, t.timeout*recordTTLMultiplier)
	if err != nil {
		return fmt.Errorf("track participant %s: %w", rec.ParticipantID, err)
	}
	if !created {
		return nil
	}

	logrus.WithFields(logrus.Fields{"component": "presence", "session_id": sessionID, "participant_id": rec.ParticipantID}).
		Info("Participant joined")
	t.publish(ctx, sessionID, domain.PresenceEvent{Type: domain.PresenceJoin, SessionID: sessionID, Participant: &rec, At: rec.LastSeen})
	_, err = t.Sync(ctx, sessionID)
	return err
}

// UpdateCursor 记录最新光标，尽力而为，中间位置可能被合并丢弃
func (t *Tracker) UpdateCursor(sessionID string, rec domain.PresenceRecord, x, y float64) {
	rec.Cursor = &domain.Cursor{X: x, Y: y}
	t.cursors.offer(sessionID, rec)
}

// FlushCursors 立即写入并广播所有待发送的光标，只更新仍在线的参与者
func (t *Tracker) FlushCursors(ctx context.Context) {
	t.cursors.flushEach(ctx, func(ctx context.Context, p pendingCursor) {
		rec := p.record
		rec.LastSeen = t.now()
		updated, err := t.repo.Update(ctx, p.sessionID, rec, t.timeout*recordTTLMultiplier)
		if err != nil {
			logrus.WithError(err).WithField("session_id", p.sessionID).Debug("Failed to store cursor")
			return
		}
		if !updated {
			// 参与者已离开，丢弃光标
			return
		}
		t.publish(ctx, p.sessionID, domain.PresenceEvent{Type: domain.PresenceCursor, SessionID: p.sessionID, Participant: &rec, At: rec.LastSeen})
	})
}

// Run 周期性发送合并后的光标，直到 ctx 取消
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cursorFlush)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.FlushCursors(ctx)
		}
	}
}

// Leave 移除参与者并发布 leave，随后对账
func (t *Tracker) Leave(ctx context.Context, sessionID, participantID string) error {
	t.cursors.drop(sessionID, participantID)
	removed, err := t.repo.Remove(ctx, sessionID, participantID)
	if err != nil {
		return fmt.Errorf("remove participant %s: %w", participantID, err)
	}
	if removed {
		logrus.WithFields(logrus.Fields{"component": "presence", "session_id": sessionID, "participant_id": participantID}).
			Info("Participant left")
		t.publish(ctx, sessionID, domain.PresenceEvent{
			Type:        domain.PresenceLeave,
			SessionID:   sessionID,
			Participant: &domain.PresenceRecord{ParticipantID: participantID},
			At:          t.now(),
		})
	}
	_, err = t.Sync(ctx, sessionID)
	return err
}

// Participants 返回当前在线记录，不做对账
func (t *Tracker) Participants(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error) {
	return t.repo.List(ctx, sessionID)
}

// Sync 全量对账：移除心跳超时的记录，读取完整成员并发布 sync 事件。
// 丢失的 join/leave 事件会在下一次对账中自愈。
func (t *Tracker) Sync(ctx context.Context, sessionID string) ([]domain.PresenceRecord, error) {
	logCtx := logrus.WithFields(logrus.Fields{"component": "presence", "session_id": sessionID, "operation": "sync"})
	now := t.now()

	stale, err := t.repo.RemoveStale(ctx, sessionID, now.Add(-t.timeout))
	if err != nil {
		return nil, fmt.Errorf("evict stale participants: %w", err)
	}
	for i := range stale {
		rec := stale[i]
		logCtx.WithField("participant_id", rec.ParticipantID).Info("Participant timed out")
		t.publish(ctx, sessionID, domain.PresenceEvent{Type: domain.PresenceLeave, SessionID: sessionID, Participant: &rec, At: now})
	}

	live, err := t.repo.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if live == nil {
		live = []domain.PresenceRecord{}
	}
	t.publish(ctx, sessionID, domain.PresenceEvent{Type: domain.PresenceSync, SessionID: sessionID, Participants: live, At: now})
	metrics.RecordPresenceSync(sessionID, len(live), len(stale))
	return live, nil
}

// SweepAll 对所有存在在线记录的会话执行 Sync
func (t *Tracker) SweepAll(ctx context.Context) (int, error) {
	sessions, err := t.repo.ActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range sessions {
		id := id
		g.Go(func() error {
			_, err := t.Sync(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return len(sessions), err
	}
	return len(sessions), nil
}

// publish 发布失败只记录日志，下一次对账会修正
func (t *Tracker) publish(ctx context.Context, sessionID string, ev domain.PresenceEvent) {
	if err := t.broker.PublishPresence(ctx, sessionID, ev); err != nil {
		metrics.RecordPublishError("presence")
		logrus.WithError(err).WithFields(logrus.Fields{"session_id": sessionID, "event": ev.Type}).
			Warn("Failed to publish presence event")
	}
}
