package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/metrics"
	"collaborative-canvas/internal/replay"
	"collaborative-canvas/internal/repository"
)

// 回调类型
type (
	// StrokeHandler 收到其他参与者的新笔画
	StrokeHandler func(stroke domain.Stroke)
	// PresenceHandler 收到对账后的完整在线列表
	PresenceHandler func(participants []domain.PresenceRecord)
	// ResetHandler 收到撤销或清空，持有者应重放画布
	ResetHandler func(event domain.StrokeEvent)
	// CursorHandler 收到其他参与者的光标移动
	CursorHandler func(record domain.PresenceRecord)
)

const leaveTimeout = 5 * time.Second

// Handlers 在分发开始之前注册的回调，保证加入后的第一条事件不会丢失
type Handlers struct {
	RemoteStroke   StrokeHandler
	PresenceChange PresenceHandler
	Reset          ResetHandler
	CursorMove     CursorHandler
}

// JoinOption 配置新建的 Membership
type JoinOption func(*Membership)

// WithHandlers 在分发开始前注册回调，nil 字段被忽略
func WithHandlers(h Handlers) JoinOption {
	return func(m *Membership) {
		if h.RemoteStroke != nil {
			m.onStroke = append(m.onStroke, h.RemoteStroke)
		}
		if h.PresenceChange != nil {
			m.onPresence = append(m.onPresence, h.PresenceChange)
		}
		if h.Reset != nil {
			m.onReset = append(m.onReset, h.Reset)
		}
		if h.CursorMove != nil {
			m.onCursor = append(m.onCursor, h.CursorMove)
		}
	}
}

// Membership 是一个参与者在会话中的成员关系。
// 所有回调都在同一个分发 goroutine 中依次执行，回调内不能同步调用 Unsubscribe。
type Membership struct {
	svc         *CollaborationService
	sessionID   string
	participant domain.Participant
	sub         repository.Subscription
	initial     []domain.Stroke

	mu          sync.Mutex
	seen        map[uint]struct{}
	highestSeen int64
	cursor      *domain.Cursor

	onStroke   []StrokeHandler
	onPresence []PresenceHandler
	onReset    []ResetHandler
	onCursor   []CursorHandler

	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	leaveErr error
}

func newMembership(svc *CollaborationService, sessionID string, p domain.Participant, sub repository.Subscription, initial []domain.Stroke, opts []JoinOption) *Membership {
	m := &Membership{
		svc:         svc,
		sessionID:   sessionID,
		participant: p,
		sub:         sub,
		initial:     initial,
		seen:        make(map[uint]struct{}, len(initial)),
		highestSeen: -1,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, s := range initial {
		m.markSeen(s)
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.dispatch()
	return m
}

// SessionID 会话 ID
func (m *Membership) SessionID() string { return m.sessionID }

// Participant 本成员的参与者身份
func (m *Membership) Participant() domain.Participant { return m.participant }

// Strokes 返回加入时读取到的有序笔画
func (m *Membership) Strokes() []domain.Stroke {
	out := make([]domain.Stroke, len(m.initial))
	copy(out, m.initial)
	return out
}

// HighestSeen 返回本地见过的最大 order_index，仅用于展示，-1 表示尚无笔画
func (m *Membership) HighestSeen() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highestSeen
}

// SubmitStroke 以本成员为作者提交笔画，确认后的结果覆盖本地的顺序估计
func (m *Membership) SubmitStroke(ctx context.Context, draft domain.StrokeDraft) (*domain.Stroke, error) {
	stroke, err := m.svc.SubmitStroke(ctx, m.sessionID, m.participant.ID, draft)
	if err != nil {
		return nil, err
	}
	m.markSeen(*stroke)
	return stroke, nil
}

// UndoLast 撤销会话中最新的笔画
func (m *Membership) UndoLast(ctx context.Context) (*domain.Stroke, error) {
	return m.svc.UndoLast(ctx, m.sessionID)
}

// ClearSession 清空会话
func (m *Membership) ClearSession(ctx context.Context) (int64, error) {
	return m.svc.ClearSession(ctx, m.sessionID)
}

// Replay 重放当前会话到 renderer
func (m *Membership) Replay(ctx context.Context, r replay.Renderer) (int, error) {
	return m.svc.Replay(ctx, m.sessionID, r)
}

// Heartbeat 刷新在线状态的 last_seen
func (m *Membership) Heartbeat(ctx context.Context) error {
	return m.svc.tracker.Track(ctx, m.sessionID, m.record())
}

// MoveCursor 更新光标位置，发送会被合并
func (m *Membership) MoveCursor(x, y float64) {
	m.mu.Lock()
	m.cursor = &domain.Cursor{X: x, Y: y}
	m.mu.Unlock()
	m.svc.tracker.UpdateCursor(m.sessionID, m.participant.PresenceRecord(), x, y)
}

// OnRemoteStroke 注册远端笔画回调。每条笔画最多回调一次，本成员自己的笔画不会回调
func (m *Membership) OnRemoteStroke(h StrokeHandler) {
	m.mu.Lock()
	m.onStroke = append(m.onStroke, h)
	m.mu.Unlock()
}

// OnPresenceChange 注册在线列表回调，每次对账都会调用
func (m *Membership) OnPresenceChange(h PresenceHandler) {
	m.mu.Lock()
	m.onPresence = append(m.onPresence, h)
	m.mu.Unlock()
}

// OnReset 注册撤销/清空回调
func (m *Membership) OnReset(h ResetHandler) {
	m.mu.Lock()
	m.onReset = append(m.onReset, h)
	m.mu.Unlock()
}

// OnCursorMove 注册其他参与者的光标回调
func (m *Membership) OnCursorMove(h CursorHandler) {
	m.mu.Lock()
	m.onCursor = append(m.onCursor, h)
	m.mu.Unlock()
}

// Unsubscribe 关闭订阅、停止分发并离开在线列表。可重复调用
func (m *Membership) Unsubscribe() error {
	m.once.Do(func() {
		close(m.done)
		if err := m.sub.Close(); err != nil {
			logrus.WithError(err).WithField("session_id", m.sessionID).Warn("Failed to close subscription")
		}
		<-m.stopped

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		m.leaveErr = m.svc.tracker.Leave(ctx, m.sessionID, m.participant.ID)
	})
	return m.leaveErr
}

func (m *Membership) record() domain.PresenceRecord {
	rec := m.participant.PresenceRecord()
	m.mu.Lock()
	if m.cursor != nil {
		c := *m.cursor
		rec.Cursor = &c
	}
	m.mu.Unlock()
	return rec
}

// markSeen 记录笔画 ID，已见过时返回 false
func (m *Membership) markSeen(s domain.Stroke) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[s.ID]; ok {
		return false
	}
	m.seen[s.ID] = struct{}{}
	if s.OrderIndex > m.highestSeen {
		m.highestSeen = s.OrderIndex
	}
	return true
}

func (m *Membership) dispatch() {
	defer close(m.stopped)
	strokes := m.sub.Strokes()
	presence := m.sub.Presence()
	for strokes != nil || presence != nil {
		select {
		case <-m.done:
			return
		case ev, ok := <-strokes:
			if !ok {
				strokes = nil
				continue
			}
			m.handleStroke(ev)
		case ev, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			m.handlePresence(ev)
		}
	}
}

func (m *Membership) handleStroke(ev domain.StrokeEvent) {
	switch {
	case ev.Type == domain.StrokeAppended:
		if ev.Stroke == nil {
			return
		}
		if !m.markSeen(*ev.Stroke) {
			metrics.RecordDuplicateDelivery()
			return
		}
		if ev.Stroke.AuthorID == m.participant.ID {
			return
		}
		m.mu.Lock()
		handlers := append([]StrokeHandler(nil), m.onStroke...)
		m.mu.Unlock()
		for _, h := range handlers {
			h(*ev.Stroke)
		}
	case ev.IsReset():
		if ev.Type == domain.StrokeCleared {
			m.mu.Lock()
			m.highestSeen = -1
			m.mu.Unlock()
		}
		m.mu.Lock()
		handlers := append([]ResetHandler(nil), m.onReset...)
		m.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (m *Membership) handlePresence(ev domain.PresenceEvent) {
	switch ev.Type {
	case domain.PresenceSync:
		live := ev.Participants
		if live == nil {
			live = []domain.PresenceRecord{}
		}
		m.mu.Lock()
		handlers := append([]PresenceHandler(nil), m.onPresence...)
		m.mu.Unlock()
		for _, h := range handlers {
			h(live)
		}
	case domain.PresenceCursor:
		if ev.Participant == nil || ev.Participant.ParticipantID == m.participant.ID {
			return
		}
		m.mu.Lock()
		handlers := append([]CursorHandler(nil), m.onCursor...)
		m.mu.Unlock()
		for _, h := range handlers {
			h(*ev.Participant)
		}
	}
}
