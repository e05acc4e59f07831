package presence

import (
	"context"
	"sync"

	"collaborative-canvas/internal/domain"
)

type slotKey struct {
	sessionID     string
	participantID string
}

type pendingCursor struct {
	sessionID string
	record    domain.PresenceRecord
}

// cursorCoalescer 为每个参与者保留最新的一次光标更新，新值直接覆盖旧值
type cursorCoalescer struct {
	mu      sync.Mutex
	pending map[slotKey]pendingCursor
}

func newCursorCoalescer() *cursorCoalescer {
	return &cursorCoalescer{pending: make(map[slotKey]pendingCursor)}
}

func (c *cursorCoalescer) offer(sessionID string, rec domain.PresenceRecord) {
	c.mu.Lock()
	c.pending[slotKey{sessionID, rec.ParticipantID}] = pendingCursor{sessionID: sessionID, record: rec}
	c.mu.Unlock()
}

func (c *cursorCoalescer) drop(sessionID, participantID string) {
	c.mu.Lock()
	delete(c.pending, slotKey{sessionID, participantID})
	c.mu.Unlock()
}

// drain 取出并清空所有待发送的光标
func (c *cursorCoalescer) drain() []pendingCursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]pendingCursor, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	c.pending = make(map[slotKey]pendingCursor)
	return out
}

func (c *cursorCoalescer) flushEach(ctx context.Context, fn func(ctx context.Context, p pendingCursor)) {
	for _, p := range c.drain() {
		fn(ctx, p)
	}
}
