// Package leads is the command surface of the lead pipeline. Every
// lifecycle command loads the lead under its per-lead lock, validates the
// status transition, persists it, and runs the command's side effects
// (scoring, SLA start/stop, audit, fan-out).
package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	advisorrepo "leadflow_backend/internal/advisors/repository"
	"leadflow_backend/internal/assignment"
	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scoring"
	scorerepo "leadflow_backend/internal/scoring/repository"
	slarepo "leadflow_backend/internal/sla/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/keymutex"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
)

// Repository is the lead persistence the pipeline depends on.
type Repository interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (repository.Lead, error)
	SetPendingDistribution(ctx context.Context, id uuid.UUID, pending bool) error
	ListPendingDistribution(ctx context.Context, limit int) ([]repository.Lead, error)
}

// Ledger is the assignment ledger the pipeline drives.
type Ledger interface {
	FindActive(ctx context.Context, leadID uuid.UUID) (*assignmentrepo.Assignment, error)
	Create(ctx context.Context, leadID, advisorID uuid.UUID, source string) (assignmentrepo.Assignment, error)
	Close(ctx context.Context, leadID uuid.UUID) (*assignmentrepo.Assignment, error)
}

// Picker selects an advisor for a lead, nil when none is available.
type Picker interface {
	Pick(ctx context.Context, strategy assignment.Strategy, exclude ...uuid.UUID) (*advisorrepo.Advisor, error)
}

// Watchdog starts and stops the response-window watch.
type Watchdog interface {
	Create(ctx context.Context, leadID, advisorID uuid.UUID, reassignmentCount int) (slarepo.Job, error)
	Complete(ctx context.Context, leadID uuid.UUID) (bool, error)
}

// ScoreRecorder awards pipeline points.
type ScoreRecorder interface {
	AddScore(ctx context.Context, advisorID uuid.UUID, leadID *uuid.UUID, points int, reason string) (scorerepo.Entry, error)
}

// Timeline is the append-only audit trail and note store.
type Timeline interface {
	Record(ctx context.Context, params timelinerepo.RecordParams) error
	ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Event, error)
	AddNote(ctx context.Context, leadID uuid.UUID, author, body string) (timelinerepo.Note, error)
	ListNotes(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Note, error)
}

// Summarizer produces an opaque free-text summary of the lead's history.
type Summarizer interface {
	SummarizeLead(ctx context.Context, lead repository.Lead, history []timelinerepo.Event) (string, error)
}

type Service struct {
	repo       Repository
	ledger     Ledger
	picker     Picker
	watchdog   Watchdog
	scores     ScoreRecorder
	timeline   Timeline
	summarizer Summarizer
	locks      *keymutex.KeyMutex
	bus        events.Bus
	log        *logger.Logger
}

func NewService(
	repo Repository,
	ledger Ledger,
	picker Picker,
	watchdog Watchdog,
	scores ScoreRecorder,
	timeline Timeline,
	summarizer Summarizer,
	locks *keymutex.KeyMutex,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		ledger:     ledger,
		picker:     picker,
		watchdog:   watchdog,
		scores:     scores,
		timeline:   timeline,
		summarizer: summarizer,
		locks:      locks,
		bus:        bus,
		log:        log,
	}
}

// Create registers a new lead in NUEVO. Intake is idempotent per phone:
// a repeat message from a phone with a live lead returns that lead instead
// of opening a duplicate funnel.
func (s *Service) Create(ctx context.Context, phoneNumber, name string) (repository.Lead, error) {
	normalized := phone.NormalizeE164(phoneNumber)
	if normalized == "" {
		return repository.Lead{}, apperr.Validation("phone is required")
	}

	existing, err := s.repo.GetByPhone(ctx, normalized)
	if err == nil && !domain.IsTerminal(existing.Status) {
		return existing, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, err
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		Phone: normalized,
		Name:  name,
	})
	if err != nil {
		return repository.Lead{}, err
	}

	s.log.Info("lead created", "lead_id", lead.ID, "phone", lead.Phone)
	return lead, nil
}

func (s *Service) Get(ctx context.Context, leadID uuid.UUID) (repository.Lead, error) {
	return s.get(ctx, leadID)
}

// Qualify moves a fresh lead into PRECALIFICADO once the chat flow has
// gathered enough to hand it to a human.
func (s *Service) Qualify(ctx context.Context, leadID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	return s.applyTransition(ctx, lead, nil, domain.StatusPrecalificado)
}

// Assign hands the lead to an advisor and starts the response-window watch.
// With a nil advisorID the selector chooses; an explicit id (MANUAL, PULL)
// bypasses the selector but not the ledger invariant. When no advisor is
// available the lead is parked and (nil, nil) is returned.
func (s *Service) Assign(ctx context.Context, leadID uuid.UUID, advisorID *uuid.UUID, source string) (*assignmentrepo.Assignment, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.assignLocked(ctx, lead, advisorID, source)
}

func (s *Service) assignLocked(ctx context.Context, lead repository.Lead, advisorID *uuid.UUID, source string) (*assignmentrepo.Assignment, error) {
	if lead.FrozenForReview {
		return nil, apperr.Conflict("lead is frozen for manual review")
	}

	// Leads re-entering distribution after a failed reassignment are already
	// ASIGNADO; everything else must make a legal hop first.
	needsTransition := lead.Status != domain.StatusAsignado
	if needsTransition {
		if err := domain.ValidateTransition(lead.Status, domain.StatusAsignado); err != nil {
			s.log.Warn("rejected status transition",
				"lead_id", lead.ID, "from", lead.Status, "to", domain.StatusAsignado)
			return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
		}
	} else {
		active, err := s.ledger.FindActive(ctx, lead.ID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, apperr.Conflict("lead already has an open assignment")
		}
	}

	var target uuid.UUID
	if advisorID != nil {
		target = *advisorID
	} else {
		candidate, err := s.picker.Pick(ctx, assignment.DefaultStrategy(time.Now()))
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			s.log.Warn("no advisor available, parking lead", "lead_id", lead.ID)
			if err := s.repo.SetPendingDistribution(ctx, lead.ID, true); err != nil {
				return nil, err
			}
			if err := s.timeline.Record(ctx, timelinerepo.RecordParams{
				LeadID: lead.ID,
				Type:   timelinerepo.EventPendingDistribution,
			}); err != nil {
				s.log.Error("failed to record pending distribution event", "error", err, "lead_id", lead.ID)
			}
			return nil, nil
		}
		target = candidate.ID
	}

	created, err := s.ledger.Create(ctx, lead.ID, target, source)
	if err != nil {
		return nil, err
	}

	if needsTransition {
		if _, err := s.applyTransition(ctx, lead, &target, domain.StatusAsignado); err != nil {
			// The assignment must not outlive a failed transition.
			if _, cerr := s.ledger.Close(ctx, lead.ID); cerr != nil {
				s.log.Error("failed to roll back assignment after transition failure",
					"error", cerr, "lead_id", lead.ID)
			}
			return nil, err
		}
	}

	if lead.PendingDistribution {
		if err := s.repo.SetPendingDistribution(ctx, lead.ID, false); err != nil {
			s.log.Error("failed to unpark lead", "error", err, "lead_id", lead.ID)
		}
	}

	if _, err := s.watchdog.Create(ctx, lead.ID, target, 0); err != nil {
		s.log.Error("failed to start sla watch", "error", err, "lead_id", lead.ID, "advisor_id", target)
		return &created, err
	}

	return &created, nil
}

// Contacted records the advisor's first response. Completing the response
// window on time is worth 2 points; a late but self-corrected contact after
// a failed window is worth 1.
func (s *Service) Contacted(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	updated, err := s.applyTransition(ctx, lead, &advisorID, domain.StatusContactado)
	if err != nil {
		return repository.Lead{}, err
	}

	// When the watch cannot be resolved, score the conservative late bonus
	// rather than the on-time one.
	onTime, err := s.watchdog.Complete(ctx, leadID)
	if err != nil {
		s.log.Error("failed to complete sla watch", "error", err, "lead_id", leadID)
		onTime = false
	}

	points, reason := scoring.PointsContactOnTime, scoring.ReasonContactOnTime
	if !onTime {
		points, reason = scoring.PointsContactLate, scoring.ReasonContactLate
	}
	s.award(ctx, advisorID, leadID, points, reason)

	return updated, nil
}

// Appointment records a scheduled meeting with the lead.
func (s *Service) Appointment(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	updated, err := s.applyTransition(ctx, lead, &advisorID, domain.StatusCita)
	if err != nil {
		return repository.Lead{}, err
	}

	s.award(ctx, advisorID, leadID, scoring.PointsAppointment, scoring.ReasonAppointment)
	return updated, nil
}

// FollowUp parks the lead in SEGUIMIENTO. No points.
func (s *Service) FollowUp(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	return s.applyTransition(ctx, lead, &advisorID, domain.StatusSeguimiento)
}

// Closed records a won deal and ends the advisor's assignment.
func (s *Service) Closed(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	updated, err := s.applyTransition(ctx, lead, &advisorID, domain.StatusCierre)
	if err != nil {
		return repository.Lead{}, err
	}

	s.award(ctx, advisorID, leadID, scoring.PointsClosed, scoring.ReasonClosed)
	if _, err := s.ledger.Close(ctx, leadID); err != nil {
		s.log.Error("failed to close assignment on won lead", "error", err, "lead_id", leadID)
	}
	return updated, nil
}

// Lost records a lost deal and ends the advisor's assignment. No points.
func (s *Service) Lost(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	updated, err := s.applyTransition(ctx, lead, &advisorID, domain.StatusPerdido)
	if err != nil {
		return repository.Lead{}, err
	}

	if _, err := s.ledger.Close(ctx, leadID); err != nil {
		s.log.Error("failed to close assignment on lost lead", "error", err, "lead_id", leadID)
	}
	return updated, nil
}

// ContactAttempt logs that the advisor tried to reach the lead. No
// transition; the watchdog reads this when grading a missed window.
func (s *Service) ContactAttempt(ctx context.Context, leadID, advisorID uuid.UUID, channel string) error {
	if _, err := s.get(ctx, leadID); err != nil {
		return err
	}
	return s.timeline.Record(ctx, timelinerepo.RecordParams{
		LeadID:    leadID,
		AdvisorID: &advisorID,
		Type:      timelinerepo.EventContactAttempt,
		Payload:   map[string]any{"channel": channel},
	})
}

// DistributePending retries assignment for parked leads, oldest first.
// Returns how many were handed to an advisor.
func (s *Service) DistributePending(ctx context.Context, limit int) (int, error) {
	parked, err := s.repo.ListPendingDistribution(ctx, limit)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, lead := range parked {
		created, err := s.distributeOne(ctx, lead.ID)
		if err != nil {
			s.log.Error("failed to distribute parked lead", "error", err, "lead_id", lead.ID)
			continue
		}
		if created != nil {
			assigned++
		}
	}
	return assigned, nil
}

func (s *Service) distributeOne(ctx context.Context, leadID uuid.UUID) (*assignmentrepo.Assignment, error) {
	s.locks.Lock(leadID.String())
	defer s.locks.Unlock(leadID.String())

	lead, err := s.get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !lead.PendingDistribution || lead.FrozenForReview {
		return nil, nil
	}
	return s.assignLocked(ctx, lead, nil, assignment.SourceSystem)
}

// AddNote appends a human annotation to the lead.
func (s *Service) AddNote(ctx context.Context, leadID uuid.UUID, author, body string) (timelinerepo.Note, error) {
	if _, err := s.get(ctx, leadID); err != nil {
		return timelinerepo.Note{}, err
	}
	return s.timeline.AddNote(ctx, leadID, author, body)
}

// Notes returns the lead's annotations, newest first.
func (s *Service) Notes(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Note, error) {
	if _, err := s.get(ctx, leadID); err != nil {
		return nil, err
	}
	return s.timeline.ListNotes(ctx, leadID, limit)
}

// Timeline returns the lead's audit trail, newest first.
func (s *Service) Timeline(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Event, error) {
	if _, err := s.get(ctx, leadID); err != nil {
		return nil, err
	}
	return s.timeline.ListForLead(ctx, leadID, limit)
}

// Summarize generates a free-text summary of the lead's history and attaches
// it as a note. The summary is an opaque string from the pipeline's
// perspective.
func (s *Service) Summarize(ctx context.Context, leadID uuid.UUID) (timelinerepo.Note, error) {
	lead, err := s.get(ctx, leadID)
	if err != nil {
		return timelinerepo.Note{}, err
	}

	if s.summarizer == nil {
		return timelinerepo.Note{}, apperr.Validation("summaries are not enabled")
	}

	history, err := s.timeline.ListForLead(ctx, leadID, 50)
	if err != nil {
		return timelinerepo.Note{}, err
	}

	summary, err := s.summarizer.SummarizeLead(ctx, lead, history)
	if err != nil {
		return timelinerepo.Note{}, apperr.Wrap(apperr.KindInternal, "summary generation failed", err)
	}

	return s.timeline.AddNote(ctx, leadID, "ai", summary)
}

func (s *Service) get(ctx context.Context, leadID uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

// applyTransition is the template every command shares: validate, persist,
// audit, fan out. Invalid transitions are logged and re-thrown; the pipeline
// never swallows them.
func (s *Service) applyTransition(ctx context.Context, lead repository.Lead, advisorID *uuid.UUID, next domain.Status) (repository.Lead, error) {
	if err := domain.ValidateTransition(lead.Status, next); err != nil {
		s.log.Warn("rejected status transition",
			"lead_id", lead.ID, "from", lead.Status, "to", next)
		return repository.Lead{}, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	updated, err := s.repo.UpdateStatus(ctx, lead.ID, next)
	if err != nil {
		return repository.Lead{}, err
	}

	if err := s.timeline.Record(ctx, timelinerepo.RecordParams{
		LeadID:    lead.ID,
		AdvisorID: advisorID,
		Type:      timelinerepo.EventStatusChanged,
		Payload:   map[string]any{"from": lead.Status, "to": next},
	}); err != nil {
		s.log.Error("failed to record status change", "error", err, "lead_id", lead.ID)
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		From:      string(lead.Status),
		To:        string(next),
	})

	return updated, nil
}

func (s *Service) award(ctx context.Context, advisorID, leadID uuid.UUID, points int, reason string) {
	if _, err := s.scores.AddScore(ctx, advisorID, &leadID, points, reason); err != nil {
		s.log.Error("failed to award points", "error", err,
			"advisor_id", advisorID, "reason", reason)
	}
}
