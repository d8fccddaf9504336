package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"leadflow_backend/platform/logger"
)

const (
	defaultMaintenanceInterval = time.Minute
	defaultDistributionBatch   = 20
	defaultRescheduleBatch     = 50
)

// AdvisorSweeper reconciles lapsed availability windows.
type AdvisorSweeper interface {
	SweepExpiredAvailability(ctx context.Context) (int64, error)
}

// LeadDistributor retries assignment for parked leads.
type LeadDistributor interface {
	DistributePending(ctx context.Context, limit int) (int, error)
}

// CheckRescheduler re-enqueues response-window checks that were lost to a
// failed enqueue.
type CheckRescheduler interface {
	RescheduleOverdue(ctx context.Context, limit int) (int, error)
}

// Maintenance runs the periodic reconciliation passes: flipping advisors
// whose availability window lapsed, redistributing leads parked because no
// advisor was available, and re-enqueueing overdue checks that never reached
// the queue.
type Maintenance struct {
	sweeper     AdvisorSweeper
	distributor LeadDistributor
	rescheduler CheckRescheduler
	log         *logger.Logger
	interval    time.Duration
	batch       int
}

func NewMaintenance(sweeper AdvisorSweeper, distributor LeadDistributor, rescheduler CheckRescheduler, interval time.Duration, log *logger.Logger) *Maintenance {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}

	return &Maintenance{
		sweeper:     sweeper,
		distributor: distributor,
		rescheduler: rescheduler,
		log:         log,
		interval:    interval,
		batch:       defaultDistributionBatch,
	}
}

func (m *Maintenance) Run(ctx context.Context) {
	if m == nil || m.sweeper == nil {
		return
	}

	m.pass(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pass(ctx)
		}
	}
}

// pass runs the reconciliations concurrently; they touch disjoint rows.
func (m *Maintenance) pass(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		flipped, err := m.sweeper.SweepExpiredAvailability(gctx)
		if err != nil {
			m.log.Warn("availability sweep failed", "error", err)
			return nil
		}
		if flipped > 0 {
			m.log.Info("availability sweep flipped expired advisors", "flipped", flipped)
		}
		return nil
	})

	g.Go(func() error {
		assigned, err := m.distributor.DistributePending(gctx, m.batch)
		if err != nil {
			m.log.Warn("pending distribution pass failed", "error", err)
			return nil
		}
		if assigned > 0 {
			m.log.Info("distributed parked leads", "assigned", assigned)
		}
		return nil
	})

	g.Go(func() error {
		rescheduled, err := m.rescheduler.RescheduleOverdue(gctx, defaultRescheduleBatch)
		if err != nil {
			m.log.Warn("overdue check reschedule pass failed", "error", err)
			return nil
		}
		if rescheduled > 0 {
			m.log.Info("re-enqueued overdue checks", "rescheduled", rescheduled)
		}
		return nil
	})

	_ = g.Wait()
}
