package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
)

type stubSweeper struct {
	calls   int
	evicted int
	err     error
}

func (s *stubSweeper) SweepAll(context.Context) (int, error) {
	s.calls++
	return s.evicted, s.err
}

type stubRefresher struct {
	sessions []string
	err      error
}

func (s *stubRefresher) Refresh(_ context.Context, sessionID string) ([]byte, error) {
	s.sessions = append(s.sessions, sessionID)
	if s.err != nil {
		return nil, s.err
	}
	return []byte("png"), nil
}

func TestPresenceSweepHandler_SwallowsPartialFailure(t *testing.T) {
	sweeper := &stubSweeper{evicted: 2, err: errors.New("one session failed")}
	h := NewPresenceSweepHandler(sweeper, 0)

	err := h.ProcessTask(context.Background(), tasks.NewPresenceSweepTask())
	assert.NoError(t, err)
	assert.Equal(t, 1, sweeper.calls)
}

func TestCanvasRenderHandler(t *testing.T) {
	task, err := tasks.NewCanvasRenderTask("s1")
	require.NoError(t, err)

	t.Run("renders session", func(t *testing.T) {
		r := &stubRefresher{}
		require.NoError(t, NewCanvasRenderHandler(r).ProcessTask(context.Background(), task))
		assert.Equal(t, []string{"s1"}, r.sessions)
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		r := &stubRefresher{}
		err := NewCanvasRenderHandler(r).ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCanvasRender, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, r.sessions)
	})

	t.Run("store outage is retried", func(t *testing.T) {
		r := &stubRefresher{err: fmt.Errorf("%w: db down", service.ErrStoreUnavailable)}
		err := NewCanvasRenderHandler(r).ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("render failure is permanent", func(t *testing.T) {
		r := &stubRefresher{err: fmt.Errorf("%w: encode", service.ErrCanvasUnavailable)}
		err := NewCanvasRenderHandler(r).ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNewWorkerServer_RoutesTasks(t *testing.T) {
	sweeper := &stubSweeper{}
	r := &stubRefresher{}
	ws := NewWorkerServer(asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		NewPresenceSweepHandler(sweeper, 0), NewCanvasRenderHandler(r),
		Options{SweepSchedule: "@every 30s"}, logrus.New())
	require.NotNil(t, ws.scheduler)

	ctx := context.Background()
	require.NoError(t, ws.mux.ProcessTask(ctx, tasks.NewPresenceSweepTask()))
	task, err := tasks.NewCanvasRenderTask("s9")
	require.NoError(t, err)
	require.NoError(t, ws.mux.ProcessTask(ctx, task))

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, []string{"s9"}, r.sessions)
}
