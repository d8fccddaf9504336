package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"leadflow_backend/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(&config.Config{
		RedisURL:   "redis://" + mr.Addr(),
		AsynqQueue: "test",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestScheduleCheckEnqueuesOnce(t *testing.T) {
	client := newTestClient(t)
	jobID := uuid.New()
	dueAt := time.Now().Add(15 * time.Minute)

	if err := client.ScheduleCheck(context.Background(), jobID, uuid.New(), uuid.New(), dueAt); err != nil {
		t.Fatalf("ScheduleCheck returned error: %v", err)
	}
	// A retried enqueue for the same job must dedup, not double-fire.
	if err := client.ScheduleCheck(context.Background(), jobID, uuid.New(), uuid.New(), dueAt); err != nil {
		t.Fatalf("repeat ScheduleCheck returned error: %v", err)
	}

	tasks, err := client.inspector.ListScheduledTasks("test")
	if err != nil {
		t.Fatalf("ListScheduledTasks returned error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one scheduled task, got %d", len(tasks))
	}
	if tasks[0].ID != slaCheckTaskID(jobID.String()) {
		t.Fatalf("unexpected task id %s", tasks[0].ID)
	}
	if tasks[0].Type != TaskSLACheck {
		t.Fatalf("unexpected task type %s", tasks[0].Type)
	}

	payload, err := ParseSLACheckPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("ParseSLACheckPayload returned error: %v", err)
	}
	if payload.SlaJobID != jobID.String() {
		t.Fatalf("payload job id mismatch: %s", payload.SlaJobID)
	}
}

func TestCancelCheckRemovesTask(t *testing.T) {
	client := newTestClient(t)
	jobID := uuid.New()

	if err := client.ScheduleCheck(context.Background(), jobID, uuid.New(), uuid.New(), time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("ScheduleCheck returned error: %v", err)
	}
	if err := client.CancelCheck(context.Background(), jobID); err != nil {
		t.Fatalf("CancelCheck returned error: %v", err)
	}

	tasks, err := client.inspector.ListScheduledTasks("test")
	if err != nil {
		t.Fatalf("ListScheduledTasks returned error: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no scheduled tasks, got %d", len(tasks))
	}

	// Cancelling a check that already fired or was never scheduled is fine.
	if err := client.CancelCheck(context.Background(), uuid.New()); err != nil {
		t.Fatalf("cancel of unknown job must be swallowed, got %v", err)
	}
}
