// Package scoring maintains the append-only advisor score ledger and the
// cached per-advisor totals derived from it.
package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/scoring/repository"
	"leadflow_backend/platform/keymutex"
	"leadflow_backend/platform/logger"
)

// Score reasons recorded by the pipeline and the SLA watchdog.
const (
	ReasonContactOnTime  = "CONTACTO_OPORTUNO"
	ReasonContactLate    = "CONTACTO_TARDIO"
	ReasonAppointment    = "CITA_AGENDADA"
	ReasonClosed         = "CIERRE_GANADO"
	ReasonSLAWithAttempt = "SLA_VENCIDO_CON_INTENTO"
	ReasonSLANoResponse  = "SLA_VENCIDO_SIN_RESPUESTA"

	// QualityNotePrefix marks quality-note bonus reasons, which are subject
	// to the monthly ceiling.
	QualityNotePrefix = "NOTA_CALIDAD"

	// cappedReasonSuffix annotates entries recorded after the ceiling was hit.
	cappedReasonSuffix = ":TOPE_MENSUAL"
)

// Points awarded per pipeline command.
const (
	PointsContactOnTime = 2
	PointsContactLate   = 1
	PointsAppointment   = 5
	PointsClosed        = 10

	PenaltySLAWithAttempt = -2
	PenaltySLANoResponse  = -5
)

// Repository is the ledger persistence the service depends on.
type Repository interface {
	InsertWithIncrement(ctx context.Context, params repository.InsertParams) (repository.Entry, error)
	TotalInRange(ctx context.Context, advisorID uuid.UUID, from, to time.Time) (int, error)
	TotalByReasonPrefixInRange(ctx context.Context, advisorID uuid.UUID, prefix string, from, to time.Time) (int, error)
}

type Service struct {
	repo       Repository
	monthlyCap int
	locks      *keymutex.KeyMutex
	log        *logger.Logger
}

func New(repo Repository, qualityNoteMonthlyCap int, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		monthlyCap: qualityNoteMonthlyCap,
		locks:      keymutex.New(),
		log:        log,
	}
}

// AddScore appends a ledger entry for the advisor and atomically updates the
// cached total. Quality-note bonuses past the monthly ceiling are recorded
// with zero points and an annotated reason so the audit trail stays complete.
func (s *Service) AddScore(ctx context.Context, advisorID uuid.UUID, leadID *uuid.UUID, points int, reason string) (repository.Entry, error) {
	if points > 0 && strings.HasPrefix(reason, QualityNotePrefix) {
		// The ceiling read and the insert must not interleave for the same
		// advisor, or concurrent bonuses can overshoot the cap.
		key := advisorID.String()
		s.locks.Lock(key)
		defer s.locks.Unlock(key)

		from, to := monthBounds(time.Now())
		earned, err := s.repo.TotalByReasonPrefixInRange(ctx, advisorID, QualityNotePrefix, from, to)
		if err != nil {
			return repository.Entry{}, err
		}
		if earned >= s.monthlyCap {
			s.log.Info("quality note ceiling reached, recording zero points",
				"advisor_id", advisorID, "reason", reason, "earned", earned)
			points = 0
			reason += cappedReasonSuffix
		}
	}

	return s.repo.InsertWithIncrement(ctx, repository.InsertParams{
		AdvisorID: advisorID,
		LeadID:    leadID,
		Points:    points,
		Reason:    reason,
	})
}

// MonthlyScore sums the advisor's ledger entries in the calendar month
// containing referenceDate. Advisors without entries score 0.
func (s *Service) MonthlyScore(ctx context.Context, advisorID uuid.UUID, referenceDate time.Time) (int, error) {
	from, to := monthBounds(referenceDate)
	return s.repo.TotalInRange(ctx, advisorID, from, to)
}

func monthBounds(ref time.Time) (time.Time, time.Time) {
	from := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return from, from.AddDate(0, 1, 0)
}
