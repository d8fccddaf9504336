package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"leadflow_backend/internal/config"
	"leadflow_backend/platform/logger"
)

// SLAFireHandler is the watchdog's fire entry point.
type SLAFireHandler interface {
	OnDue(ctx context.Context, jobID uuid.UUID) error
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	watchdog SLAFireHandler
	log      *logger.Logger
}

func NewWorker(cfg *config.Config, watchdog SLAFireHandler, log *logger.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queue := cfg.AsynqQueue
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.AsynqConcurrency
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		watchdog: watchdog,
		log:      log,
	}

	mux.HandleFunc(TaskSLACheck, w.handleSLACheck)

	return w, nil
}

func (w *Worker) handleSLACheck(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSLACheckPayload(task)
	if err != nil {
		return err
	}

	jobID, err := uuid.Parse(payload.SlaJobID)
	if err != nil {
		return err
	}

	return w.watchdog.OnDue(ctx, jobID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
