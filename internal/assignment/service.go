package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/events"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

// Assignment sources. Used only for notification routing.
const (
	SourceSystem       = "SYSTEM"
	SourceManual       = "MANUAL"
	SourceReassignment = "REASSIGNMENT"
	SourcePull         = "PULL"
)

// Repository is the assignment persistence the ledger depends on.
type Repository interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.Assignment, error)
	FindActive(ctx context.Context, leadID uuid.UUID) (*repository.Assignment, error)
	CloseActive(ctx context.Context, leadID uuid.UUID) (*repository.Assignment, error)
}

// LeadParker queues a lead for later distribution when no advisor is
// available.
type LeadParker interface {
	SetPendingDistribution(ctx context.Context, leadID uuid.UUID, pending bool) error
}

// AuditRecorder appends to the lead timeline.
type AuditRecorder interface {
	Record(ctx context.Context, params timelinerepo.RecordParams) error
}

// Service is the assignment ledger: it creates and closes advisor-lead
// assignment records and guarantees the at-most-one-open invariant.
type Service struct {
	repo     Repository
	selector *Selector
	parker   LeadParker
	audit    AuditRecorder
	bus      events.Bus
	log      *logger.Logger
}

func NewService(repo Repository, selector *Selector, parker LeadParker, audit AuditRecorder, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		selector: selector,
		parker:   parker,
		audit:    audit,
		bus:      bus,
		log:      log,
	}
}

// FindActive returns the lead's unique open assignment, or nil.
func (s *Service) FindActive(ctx context.Context, leadID uuid.UUID) (*repository.Assignment, error) {
	return s.repo.FindActive(ctx, leadID)
}

// Create opens a new assignment for the lead. It fails with a conflict when
// an open assignment already exists; enforcing the invariant is the ledger's
// job, not the caller's.
func (s *Service) Create(ctx context.Context, leadID, advisorID uuid.UUID, source string) (repository.Assignment, error) {
	created, err := s.repo.Create(ctx, repository.CreateParams{
		LeadID:    leadID,
		AdvisorID: advisorID,
		Source:    source,
	})
	if errors.Is(err, repository.ErrOpenAssignmentExists) {
		return repository.Assignment{}, apperr.Conflict("lead already has an open assignment")
	}
	if err != nil {
		return repository.Assignment{}, err
	}

	if err := s.audit.Record(ctx, timelinerepo.RecordParams{
		LeadID:    leadID,
		AdvisorID: &advisorID,
		Type:      timelinerepo.EventAssignmentCreated,
		Payload:   map[string]any{"assignmentId": created.ID, "source": source},
	}); err != nil {
		s.log.Error("failed to record assignment audit event", "error", err, "lead_id", leadID)
	}

	s.bus.Publish(ctx, events.AssignmentCreated{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: created.ID,
		LeadID:       leadID,
		AdvisorID:    advisorID,
		Source:       source,
	})

	return created, nil
}

// Close ends the lead's open assignment, if any.
func (s *Service) Close(ctx context.Context, leadID uuid.UUID) (*repository.Assignment, error) {
	return s.repo.CloseActive(ctx, leadID)
}

// Reassign closes the lead's active assignment and hands the lead to a new
// advisor, excluding the one who just failed. When no candidate exists the
// lead is parked for later distribution; this is a recoverable condition,
// not an error.
func (s *Service) Reassign(ctx context.Context, leadID, oldAdvisorID uuid.UUID) (*repository.Assignment, error) {
	if _, err := s.repo.CloseActive(ctx, leadID); err != nil {
		return nil, err
	}

	// The old assignment is closed from here on. Any failure before a new
	// one exists must park the lead, or it stays ASIGNADO with no open
	// assignment and no watch, out of reach of the distribution pass.
	candidate, err := s.selector.Pick(ctx, DefaultStrategy(time.Now()), oldAdvisorID)
	if err != nil {
		s.park(ctx, leadID, oldAdvisorID)
		return nil, err
	}
	if candidate == nil {
		s.log.Warn("no advisor available for reassignment, parking lead",
			"lead_id", leadID, "old_advisor_id", oldAdvisorID)
		s.park(ctx, leadID, oldAdvisorID)
		return nil, nil
	}

	created, err := s.repo.Create(ctx, repository.CreateParams{
		LeadID:    leadID,
		AdvisorID: candidate.ID,
		Source:    SourceReassignment,
	})
	if err != nil {
		s.park(ctx, leadID, oldAdvisorID)
		return nil, err
	}

	if err := s.audit.Record(ctx, timelinerepo.RecordParams{
		LeadID:    leadID,
		AdvisorID: &candidate.ID,
		Type:      timelinerepo.EventAssignmentReassigned,
		Payload:   map[string]any{"oldAdvisorId": oldAdvisorID, "newAdvisorId": candidate.ID},
	}); err != nil {
		s.log.Error("failed to record reassignment audit event", "error", err, "lead_id", leadID)
	}

	s.bus.Publish(ctx, events.AssignmentReassigned{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		NewAdvisorID: candidate.ID,
		OldAdvisorID: oldAdvisorID,
	})

	return &created, nil
}

// park flags the lead for the distribution pass and records the event. Both
// writes are best effort; the caller already decided the reassignment cannot
// complete.
func (s *Service) park(ctx context.Context, leadID, oldAdvisorID uuid.UUID) {
	if err := s.parker.SetPendingDistribution(ctx, leadID, true); err != nil {
		s.log.Error("failed to park lead for distribution", "error", err, "lead_id", leadID)
	}
	if err := s.audit.Record(ctx, timelinerepo.RecordParams{
		LeadID:  leadID,
		Type:    timelinerepo.EventPendingDistribution,
		Payload: map[string]any{"oldAdvisorId": oldAdvisorID},
	}); err != nil {
		s.log.Error("failed to record pending distribution event", "error", err, "lead_id", leadID)
	}
}
