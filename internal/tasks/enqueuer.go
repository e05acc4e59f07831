package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer 把后台任务投递到 asynq
type Enqueuer struct {
	client   *asynq.Client
	debounce time.Duration
}

// NewEnqueuer 创建 Enqueuer。debounce 内同一会话的重绘任务只保留一个
func NewEnqueuer(client *asynq.Client, debounce time.Duration) *Enqueuer {
	if client == nil {
		panic("asynq client cannot be nil for Enqueuer")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Enqueuer{client: client, debounce: debounce}
}

// EnqueueCanvasRender 延迟投递画布重绘任务，已有相同任务排队时视为成功
func (e *Enqueuer) EnqueueCanvasRender(ctx context.Context, sessionID string) error {
	task, err := NewCanvasRenderTask(sessionID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueLow),
		asynq.ProcessIn(e.debounce),
		asynq.Unique(e.debounce*2),
		asynq.MaxRetry(3),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue canvas render for session %s: %w", sessionID, err)
	}
	return nil
}
