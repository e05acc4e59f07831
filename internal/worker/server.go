package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 与周期任务调度器的启动和关闭
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *logrus.Entry
	mux       *asynq.ServeMux

	sweepSchedule string
}

// Options worker 配置
type Options struct {
	Concurrency   int
	SweepSchedule string // 例如 "@every 30s"，为空时不注册清理任务
}

// NewWorkerServer 创建一个新的 WorkerServer 实例并注册任务处理器
func NewWorkerServer(redisOpt asynq.RedisClientOpt, presence *PresenceSweepHandler, canvas *CanvasRenderHandler, opts Options, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				queue, _ := asynq.GetQueueName(ctx)
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"queue":     queue,
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
			Logger: logEntry,
		},
	)

	mux := asynq.NewServeMux()
	if presence != nil {
		mux.HandleFunc(tasks.TypePresenceSweep, presence.ProcessTask)
	}
	if canvas != nil {
		mux.HandleFunc(tasks.TypeCanvasRender, canvas.ProcessTask)
	}

	ws := &WorkerServer{server: server, log: logEntry, mux: mux, sweepSchedule: opts.SweepSchedule}
	if opts.SweepSchedule != "" {
		ws.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logEntry})
	}
	return ws
}

// Start 启动 Worker Server 与调度器，不阻塞。信号处理由调用方负责
func (ws *WorkerServer) Start() error {
	if ws.scheduler != nil {
		entryID, err := ws.scheduler.Register(ws.sweepSchedule, tasks.NewPresenceSweepTask(), asynq.Queue(tasks.QueueDefault))
		if err != nil {
			return fmt.Errorf("register presence sweep %q: %w", ws.sweepSchedule, err)
		}
		ws.log.Infof("Presence sweep registered with schedule '%s' (EntryID: %s)", ws.sweepSchedule, entryID)
		if err := ws.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	ws.log.Info("Worker server starting...")
	if err := ws.server.Start(ws.mux); err != nil {
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Info("Worker server already stopped.")
			return nil
		}
		return fmt.Errorf("start worker server: %w", err)
	}
	return nil
}

// Shutdown 优雅地关闭调度器与 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	if ws.scheduler != nil {
		ws.scheduler.Shutdown()
	}
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
