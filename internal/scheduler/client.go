// Package scheduler owns the durable delayed-job plumbing: the asynq client
// that enqueues response-window checks, the worker that fires them, and the
// periodic maintenance loops.
package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/config"
)

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewClient(cfg *config.Config) (*Client, error) {
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

	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleCheck enqueues the durable delayed check for an SLA job. The task
// id is derived from the job id, so a retried enqueue for the same job is a
// no-op rather than a duplicate fire.
func (c *Client) ScheduleCheck(ctx context.Context, jobID, leadID, advisorID uuid.UUID, dueAt time.Time) error {
	task, err := NewSLACheckTask(SLACheckPayload{
		SlaJobID:  jobID.String(),
		LeadID:    leadID.String(),
		AdvisorID: advisorID.String(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(dueAt),
		asynq.TaskID(slaCheckTaskID(jobID.String())),
		asynq.Queue(c.queue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// CancelCheck deletes the queued check for a completed job. Best effort: the
// fire handler no-ops on completed jobs, so a missed deletion is harmless.
func (c *Client) CancelCheck(_ context.Context, jobID uuid.UUID) error {
	err := c.inspector.DeleteTask(c.queue, slaCheckTaskID(jobID.String()))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
