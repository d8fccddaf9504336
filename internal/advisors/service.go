// Package advisors manages the advisor roster and availability windows.
// Selection fairness lives in the assignment package; this package only
// owns who exists and who is currently reachable.
package advisors

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/advisors/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
)

// Repository is the advisor persistence the service depends on.
type Repository interface {
	Create(ctx context.Context, params repository.CreateAdvisorParams) (repository.Advisor, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Advisor, error)
	ListAvailable(ctx context.Context) ([]repository.Advisor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, status string, expiresAt *time.Time) error
}

// ScoreView reads the advisor's monthly ledger total.
type ScoreView interface {
	MonthlyScore(ctx context.Context, advisorID uuid.UUID, referenceDate time.Time) (int, error)
}

type Service struct {
	repo   Repository
	scores ScoreView
	log    *logger.Logger
}

func NewService(repo Repository, scores ScoreView, log *logger.Logger) *Service {
	return &Service{repo: repo, scores: scores, log: log}
}

func (s *Service) Create(ctx context.Context, name, phoneNumber string) (repository.Advisor, error) {
	normalized := phone.NormalizeE164(phoneNumber)
	if normalized == "" {
		return repository.Advisor{}, apperr.Validation("phone is required")
	}

	advisor, err := s.repo.Create(ctx, repository.CreateAdvisorParams{
		Name:  name,
		Phone: normalized,
	})
	if err != nil {
		return repository.Advisor{}, err
	}

	s.log.Info("advisor created", "advisor_id", advisor.ID)
	return advisor, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Advisor, error) {
	advisor, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Advisor{}, apperr.NotFound("advisor not found")
	}
	return advisor, err
}

func (s *Service) ListAvailable(ctx context.Context) ([]repository.Advisor, error) {
	return s.repo.ListAvailable(ctx)
}

// SetAvailability opens or closes the advisor's availability window. An open
// window may carry an expiry after which the advisor no longer receives
// leads even if they forget to sign off.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool, window *time.Duration) error {
	status := repository.StatusUnavailable
	var expiresAt *time.Time
	if available {
		status = repository.StatusAvailable
		if window != nil {
			if *window <= 0 {
				return apperr.Validation("availability window must be positive")
			}
			t := time.Now().Add(*window)
			expiresAt = &t
		}
	}

	err := s.repo.SetAvailability(ctx, id, status, expiresAt)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("advisor not found")
	}
	return err
}

// MonthlyScore sums the advisor's ledger entries for the current calendar
// month.
func (s *Service) MonthlyScore(ctx context.Context, id uuid.UUID) (int, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}
	return s.scores.MonthlyScore(ctx, id, time.Now())
}
