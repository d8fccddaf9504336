// Package sla enforces the response-time window on assigned leads: a
// durable, delayed check per assignment that penalizes the advisor and
// reassigns or freezes the lead when the window is missed.
package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scoring"
	scorerepo "leadflow_backend/internal/scoring/repository"
	"leadflow_backend/internal/sla/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/platform/keymutex"
	"leadflow_backend/platform/logger"
)

// Repository is the job persistence the watchdog depends on.
type Repository interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Job, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	CompletePending(ctx context.Context, leadID uuid.UUID) (*repository.Job, error)
	LatestForLead(ctx context.Context, leadID uuid.UUID) (*repository.Job, error)
	ListOverduePending(ctx context.Context, limit int) ([]repository.Job, error)
}

// LeadReader loads leads for the race-safety check.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadrepo.Lead, error)
}

// LeadFreezer escalates a lead to manual review.
type LeadFreezer interface {
	FreezeForReview(ctx context.Context, id uuid.UUID) error
}

// ScoreRecorder applies advisor penalties.
type ScoreRecorder interface {
	AddScore(ctx context.Context, advisorID uuid.UUID, leadID *uuid.UUID, points int, reason string) (scorerepo.Entry, error)
}

// Reassigner hands the lead to a different advisor after a failure.
type Reassigner interface {
	Reassign(ctx context.Context, leadID, oldAdvisorID uuid.UUID) (*assignmentrepo.Assignment, error)
}

// AttemptLog answers whether the advisor tried to reach the lead.
type AttemptLog interface {
	HasContactAttemptSince(ctx context.Context, leadID, advisorID uuid.UUID, since time.Time) (bool, error)
	Record(ctx context.Context, params timelinerepo.RecordParams) error
}

// AdvisorNotifier delivers the failure notice. Delivery failures are logged
// and swallowed; they never abort the penalty or reassignment sequence.
type AdvisorNotifier interface {
	NotifyAdvisor(ctx context.Context, advisorID uuid.UUID, message string) error
}

// CheckScheduler owns the durable delayed check. Scheduling is deduplicated
// by job id; cancellation is best-effort because the fire handler tolerates
// stale checks.
type CheckScheduler interface {
	ScheduleCheck(ctx context.Context, jobID, leadID, advisorID uuid.UUID, dueAt time.Time) error
	CancelCheck(ctx context.Context, jobID uuid.UUID) error
}

type Service struct {
	repo      Repository
	leads     LeadReader
	freezer   LeadFreezer
	scores    ScoreRecorder
	assigner  Reassigner
	attempts  AttemptLog
	notifier  AdvisorNotifier
	scheduler CheckScheduler
	locks     *keymutex.KeyMutex
	bus       events.Bus
	window    time.Duration
	maxRetry  int
	log       *logger.Logger
}

type Config struct {
	Window           time.Duration
	MaxReassignments int
}

func NewService(
	repo Repository,
	leads LeadReader,
	freezer LeadFreezer,
	scores ScoreRecorder,
	assigner Reassigner,
	attempts AttemptLog,
	notifier AdvisorNotifier,
	scheduler CheckScheduler,
	locks *keymutex.KeyMutex,
	bus events.Bus,
	cfg Config,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		leads:     leads,
		freezer:   freezer,
		scores:    scores,
		assigner:  assigner,
		attempts:  attempts,
		notifier:  notifier,
		scheduler: scheduler,
		locks:     locks,
		bus:       bus,
		window:    cfg.Window,
		maxRetry:  cfg.MaxReassignments,
		log:       log,
	}
}

// Create persists a PENDING job due one response window from now and
// schedules its durable delayed check.
func (s *Service) Create(ctx context.Context, leadID, advisorID uuid.UUID, reassignmentCount int) (repository.Job, error) {
	job, err := s.repo.Create(ctx, repository.CreateParams{
		LeadID:            leadID,
		AdvisorID:         advisorID,
		DueAt:             time.Now().Add(s.window),
		ReassignmentCount: reassignmentCount,
	})
	if err != nil {
		return repository.Job{}, err
	}

	if err := s.scheduler.ScheduleCheck(ctx, job.ID, leadID, advisorID, job.DueAt); err != nil {
		return repository.Job{}, fmt.Errorf("schedule sla check: %w", err)
	}

	return job, nil
}

// RescheduleOverdue re-enqueues the check for every PENDING job already past
// due. A job ends up in that state when the original enqueue failed after the
// row was written. Task ids are derived from job ids, so re-enqueueing a
// check that is merely slow to fire is a no-op.
func (s *Service) RescheduleOverdue(ctx context.Context, limit int) (int, error) {
	jobs, err := s.repo.ListOverduePending(ctx, limit)
	if err != nil {
		return 0, err
	}

	rescheduled := 0
	for _, job := range jobs {
		if err := s.scheduler.ScheduleCheck(ctx, job.ID, job.LeadID, job.AdvisorID, job.DueAt); err != nil {
			s.log.Error("failed to reschedule overdue sla check",
				"error", err, "sla_job_id", job.ID, "lead_id", job.LeadID)
			continue
		}
		rescheduled++
	}
	return rescheduled, nil
}

// Complete marks the lead's pending job COMPLETED and cancels its check.
// It reports whether the contact was on time: false only when the lead's
// latest job had already FAILED, so a late-but-self-corrected contact can
// be scored differently.
func (s *Service) Complete(ctx context.Context, leadID uuid.UUID) (bool, error) {
	job, err := s.repo.CompletePending(ctx, leadID)
	if err != nil {
		return false, err
	}
	if job != nil {
		if err := s.scheduler.CancelCheck(ctx, job.ID); err != nil {
			s.log.Warn("failed to cancel sla check, fire handler will no-op",
				"error", err, "sla_job_id", job.ID)
		}
		return true, nil
	}

	latest, err := s.repo.LatestForLead(ctx, leadID)
	if err != nil {
		return false, err
	}
	if latest != nil && latest.Status == repository.StatusFailed {
		return false, nil
	}
	return true, nil
}

// OnDue is the watchdog fire handler. It is safe to invoke any number of
// times per job: only the invocation that flips the job to FAILED runs the
// failure sequence.
func (s *Service) OnDue(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status != repository.StatusPending {
		return nil
	}

	key := job.LeadID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Completion may have raced the timer before the lock was taken.
	lead, err := s.leads.GetByID(ctx, job.LeadID)
	if errors.Is(err, leadrepo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lead.Status != domain.StatusAsignado {
		return nil
	}

	failed, err := s.repo.MarkFailed(ctx, job.ID)
	if err != nil {
		return err
	}
	if !failed {
		return nil
	}

	// From here on every step is best-effort sequential: notification
	// delivery must never block the penalty and reassignment path.
	if err := s.notifier.NotifyAdvisor(ctx, job.AdvisorID,
		"No contactaste al lead dentro de la ventana de 15 minutos. El lead será reasignado."); err != nil {
		s.log.Error("sla failure notification not delivered",
			"error", err, "advisor_id", job.AdvisorID, "lead_id", job.LeadID)
	}

	attempted, err := s.attempts.HasContactAttemptSince(ctx, job.LeadID, job.AdvisorID, job.CreatedAt)
	if err != nil {
		s.log.Error("failed to query contact attempts, assuming none",
			"error", err, "lead_id", job.LeadID)
		attempted = false
	}

	penalty, reason := scoring.PenaltySLANoResponse, scoring.ReasonSLANoResponse
	if attempted {
		penalty, reason = scoring.PenaltySLAWithAttempt, scoring.ReasonSLAWithAttempt
	}
	if _, err := s.scores.AddScore(ctx, job.AdvisorID, &job.LeadID, penalty, reason); err != nil {
		s.log.Error("failed to apply sla penalty", "error", err, "advisor_id", job.AdvisorID)
	}

	if job.ReassignmentCount < s.maxRetry {
		next, err := s.assigner.Reassign(ctx, job.LeadID, job.AdvisorID)
		if err != nil {
			s.log.Error("sla reassignment failed", "error", err, "lead_id", job.LeadID)
		} else if next != nil {
			if _, err := s.Create(ctx, job.LeadID, next.AdvisorID, job.ReassignmentCount+1); err != nil {
				s.log.Error("failed to start sla watch for reassignment",
					"error", err, "lead_id", job.LeadID, "advisor_id", next.AdvisorID)
			}
		}
	} else {
		if err := s.freezer.FreezeForReview(ctx, job.LeadID); err != nil {
			s.log.Error("failed to freeze lead for review", "error", err, "lead_id", job.LeadID)
		}
		if err := s.attempts.Record(ctx, timelinerepo.RecordParams{
			LeadID:    job.LeadID,
			AdvisorID: &job.AdvisorID,
			Type:      timelinerepo.EventLeadFrozen,
			Payload:   map[string]any{"reassignmentCount": job.ReassignmentCount},
		}); err != nil {
			s.log.Error("failed to record freeze event", "error", err, "lead_id", job.LeadID)
		}
		s.bus.Publish(ctx, events.LeadFrozen{
			BaseEvent:         events.NewBaseEvent(),
			LeadID:            job.LeadID,
			AdvisorID:         job.AdvisorID,
			ReassignmentCount: job.ReassignmentCount,
		})
	}

	if err := s.attempts.Record(ctx, timelinerepo.RecordParams{
		LeadID:    job.LeadID,
		AdvisorID: &job.AdvisorID,
		Type:      timelinerepo.EventSLAFailed,
		Payload: map[string]any{
			"hadContactAttempt": attempted,
			"reassignmentCount": job.ReassignmentCount,
		},
	}); err != nil {
		s.log.Error("failed to record sla failure event", "error", err, "lead_id", job.LeadID)
	}

	s.bus.Publish(ctx, events.SLAFailed{
		BaseEvent:         events.NewBaseEvent(),
		LeadID:            job.LeadID,
		AdvisorID:         job.AdvisorID,
		HadContactAttempt: attempted,
		ReassignmentCount: job.ReassignmentCount,
	})

	return nil
}
