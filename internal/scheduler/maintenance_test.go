package scheduler

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/platform/logger"
)

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) SweepExpiredAvailability(context.Context) (int64, error) {
	f.calls++
	return 1, f.err
}

type fakeDistributor struct {
	calls int
}

func (f *fakeDistributor) DistributePending(_ context.Context, limit int) (int, error) {
	f.calls++
	if limit <= 0 {
		return 0, errors.New("invalid batch")
	}
	return 0, nil
}

type fakeRescheduler struct {
	calls  int
	limits []int
}

func (f *fakeRescheduler) RescheduleOverdue(_ context.Context, limit int) (int, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	return 0, nil
}

func TestPassRunsAllReconciliations(t *testing.T) {
	sweeper := &fakeSweeper{}
	distributor := &fakeDistributor{}
	rescheduler := &fakeRescheduler{}
	m := NewMaintenance(sweeper, distributor, rescheduler, 0, logger.New("development"))

	m.pass(context.Background())

	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
	if distributor.calls != 1 {
		t.Fatalf("expected one distribution pass, got %d", distributor.calls)
	}
	if rescheduler.calls != 1 {
		t.Fatalf("expected one reschedule pass, got %d", rescheduler.calls)
	}
	if len(rescheduler.limits) != 1 || rescheduler.limits[0] <= 0 {
		t.Fatalf("reschedule pass needs a positive batch, got %v", rescheduler.limits)
	}
}

// One reconciliation failing must not stop the others.
func TestPassTolerateSweepFailure(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db gone")}
	distributor := &fakeDistributor{}
	rescheduler := &fakeRescheduler{}
	m := NewMaintenance(sweeper, distributor, rescheduler, 0, logger.New("development"))

	m.pass(context.Background())

	if distributor.calls != 1 || rescheduler.calls != 1 {
		t.Fatal("remaining reconciliations must still run")
	}
}
