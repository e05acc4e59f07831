package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/infra/metrics"
)

// PresenceSweeper 清理所有会话中超时的参与者
type PresenceSweeper interface {
	SweepAll(ctx context.Context) (int, error)
}

// PresenceSweepHandler 处理周期性的在线状态清理任务
type PresenceSweepHandler struct {
	sweeper PresenceSweeper
	timeout time.Duration
}

// NewPresenceSweepHandler 创建 Handler 实例
func NewPresenceSweepHandler(sweeper PresenceSweeper, timeout time.Duration) *PresenceSweepHandler {
	if sweeper == nil {
		panic("PresenceSweeper cannot be nil for PresenceSweepHandler")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PresenceSweepHandler{sweeper: sweeper, timeout: timeout}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	logCtx := logrus.WithFields(logrus.Fields{"task_id": taskID, "task_type": t.Type()})

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	evicted, err := h.sweeper.SweepAll(ctx)
	metrics.RecordTask(t.Type(), err)
	if err != nil {
		// 部分会话失败时下一个周期会再次清理
		logCtx.WithError(err).WithField("evicted", evicted).Warn("Presence sweep finished with errors")
		return nil
	}
	if evicted > 0 {
		logCtx.WithField("evicted", evicted).Info("Presence sweep evicted stale participants")
	} else {
		logCtx.Debug("Presence sweep found nothing to evict")
	}
	return nil
}
