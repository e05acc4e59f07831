package presence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/presence"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	tracker *presence.Tracker
	broker  *redisstate.RedisBroker
	repo    *redisstate.RedisPresenceRepository
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	repo := redisstate.NewRedisPresenceRepository(client, "")
	broker := redisstate.NewRedisBroker(client, "")
	return &fixture{
		tracker: presence.NewTracker(repo, broker, time.Minute, presence.WithClock(clock.Now)),
		broker:  broker,
		repo:    repo,
		clock:   clock,
	}
}

// nextPresence 读取下一个满足条件的在线事件
func nextPresence(t *testing.T, sub repository.Subscription, match func(domain.PresenceEvent) bool) domain.PresenceEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Presence():
			require.True(t, ok, "订阅已关闭")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("等待在线事件超时")
		}
	}
}

func ofType(tp domain.PresenceEventType) func(domain.PresenceEvent) bool {
	return func(ev domain.PresenceEvent) bool { return ev.Type == tp }
}

func TestTracker_JoinLeaveLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.broker.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer sub.Close()

	alice := domain.PresenceRecord{ParticipantID: "user-alice", Color: "#FF6B6B"}
	require.NoError(t, f.tracker.Track(ctx, "s1", alice))

	join := nextPresence(t, sub, ofType(domain.PresenceJoin))
	assert.Equal(t, "user-alice", join.Participant.ParticipantID)
	sync := nextPresence(t, sub, ofType(domain.PresenceSync))
	require.Len(t, sync.Participants, 1)

	// 心跳是自环，不再发布 join
	require.NoError(t, f.tracker.Track(ctx, "s1", alice))
	bob := domain.PresenceRecord{ParticipantID: "user-bob", Color: "#4ECDC4"}
	require.NoError(t, f.tracker.Track(ctx, "s1", bob))
	join = nextPresence(t, sub, ofType(domain.PresenceJoin))
	assert.Equal(t, "user-bob", join.Participant.ParticipantID, "alice 的心跳不应产生第二个 join")

	require.NoError(t, f.tracker.Leave(ctx, "s1", "user-alice"))
	leave := nextPresence(t, sub, ofType(domain.PresenceLeave))
	assert.Equal(t, "user-alice", leave.Participant.ParticipantID)
	sync = nextPresence(t, sub, func(ev domain.PresenceEvent) bool {
		return ev.Type == domain.PresenceSync && len(ev.Participants) == 1
	})
	assert.Equal(t, "user-bob", sync.Participants[0].ParticipantID)
}

func TestTracker_SyncEvictsTimedOutParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.Track(ctx, "s1", domain.PresenceRecord{ParticipantID: "user-quiet"}))
	f.clock.Advance(45 * time.Second)
	require.NoError(t, f.tracker.Track(ctx, "s1", domain.PresenceRecord{ParticipantID: "user-active"}))
	f.clock.Advance(30 * time.Second)

	sub, err := f.broker.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer sub.Close()

	live, err := f.tracker.Sync(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "user-active", live[0].ParticipantID)

	leave := nextPresence(t, sub, ofType(domain.PresenceLeave))
	assert.Equal(t, "user-quiet", leave.Participant.ParticipantID)
	sync := nextPresence(t, sub, ofType(domain.PresenceSync))
	assert.Len(t, sync.Participants, 1)
}

func TestTracker_SweepAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []string{"s1", "s2", "s3"} {
		require.NoError(t, f.tracker.Track(ctx, s, domain.PresenceRecord{ParticipantID: "user-" + s}))
	}
	f.clock.Advance(2 * time.Minute)

	swept, err := f.tracker.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, swept)

	sessions, err := f.repo.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions, "全部超时后不再有活跃会话")
}

func TestTracker_CursorUpdatesAreCoalesced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := domain.PresenceRecord{ParticipantID: "user-alice", Color: "#FF6B6B"}
	require.NoError(t, f.tracker.Track(ctx, "s1", rec))

	sub, err := f.broker.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer sub.Close()

	f.tracker.UpdateCursor("s1", rec, 1, 1)
	f.tracker.UpdateCursor("s1", rec, 2, 2)
	f.tracker.UpdateCursor("s1", rec, 3, 4)
	f.tracker.FlushCursors(ctx)

	ev := nextPresence(t, sub, ofType(domain.PresenceCursor))
	require.NotNil(t, ev.Participant.Cursor)
	assert.Equal(t, domain.Cursor{X: 3, Y: 4}, *ev.Participant.Cursor, "只发送最新位置")

	records, err := f.tracker.Participants(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Cursor)
	assert.Equal(t, 3.0, records[0].Cursor.X)

	// 离开后未发送的光标被丢弃
	f.tracker.UpdateCursor("s1", rec, 9, 9)
	require.NoError(t, f.tracker.Leave(ctx, "s1", "user-alice"))
	f.tracker.FlushCursors(ctx)
	records, err = f.tracker.Participants(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTracker_CursorFlushDoesNotResurrectRemovedParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := domain.PresenceRecord{ParticipantID: "user-bob", Color: "#4ECDC4"}
	require.NoError(t, f.tracker.Track(ctx, "s1", rec))

	// 光标已进入待发送队列，记录随后被移除
	f.tracker.UpdateCursor("s1", rec, 7, 7)
	removed, err := f.repo.Remove(ctx, "s1", "user-bob")
	require.NoError(t, err)
	require.True(t, removed)

	sub, err := f.broker.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer sub.Close()

	f.tracker.FlushCursors(ctx)

	records, err := f.tracker.Participants(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, records, "离开的参与者不能因光标写入重新出现")
	select {
	case ev := <-sub.Presence():
		t.Fatalf("unexpected presence event %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTracker_CursorFlushUsesUpdateOnlyWrite(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	broker := new(mocks.Broker)
	tracker := presence.NewTracker(repo, broker, time.Minute)
	ctx := context.Background()

	gone := domain.PresenceRecord{ParticipantID: "user-gone"}
	here := domain.PresenceRecord{ParticipantID: "user-here"}
	repo.On("Update", mock.Anything, "s1", mock.MatchedBy(func(r domain.PresenceRecord) bool {
		return r.ParticipantID == "user-gone"
	}), mock.Anything).Return(false, nil).Once()
	repo.On("Update", mock.Anything, "s1", mock.MatchedBy(func(r domain.PresenceRecord) bool {
		return r.ParticipantID == "user-here"
	}), mock.Anything).Return(true, nil).Once()
	broker.On("PublishPresence", mock.Anything, "s1", mock.MatchedBy(func(ev domain.PresenceEvent) bool {
		return ev.Type == domain.PresenceCursor && ev.Participant.ParticipantID == "user-here"
	})).Return(nil).Once()

	tracker.UpdateCursor("s1", gone, 1, 1)
	tracker.UpdateCursor("s1", here, 2, 2)
	tracker.FlushCursors(ctx)

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	broker.AssertNumberOfCalls(t, "PublishPresence", 1)
}
