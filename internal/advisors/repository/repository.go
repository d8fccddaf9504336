package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("advisor not found")

// Availability statuses. An expired availability window counts as unavailable
// regardless of the stored status; queries apply the expiry lazily and the
// periodic sweep reconciles the column.
const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Advisor struct {
	ID                    uuid.UUID
	Name                  string
	Phone                 string
	Score                 int
	Status                string
	AvailabilityExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

const advisorColumns = `id, name, phone, score, status, availability_expires_at, created_at, updated_at`

func scanAdvisor(row pgx.Row) (Advisor, error) {
	var a Advisor
	err := row.Scan(
		&a.ID, &a.Name, &a.Phone, &a.Score, &a.Status,
		&a.AvailabilityExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Advisor{}, ErrNotFound
	}
	return a, err
}

type CreateAdvisorParams struct {
	Name  string
	Phone string
}

func (r *Repository) Create(ctx context.Context, params CreateAdvisorParams) (Advisor, error) {
	return scanAdvisor(r.pool.QueryRow(ctx, `
		INSERT INTO advisors (name, phone)
		VALUES ($1, $2)
		RETURNING `+advisorColumns,
		params.Name, params.Phone,
	))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Advisor, error) {
	return scanAdvisor(r.pool.QueryRow(ctx, `
		SELECT `+advisorColumns+`
		FROM advisors WHERE id = $1
	`, id))
}

// ListAvailable returns advisors whose availability window has not lapsed.
func (r *Repository) ListAvailable(ctx context.Context) ([]Advisor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+advisorColumns+`
		FROM advisors
		WHERE status = $1
		  AND (availability_expires_at IS NULL OR availability_expires_at > now())
		ORDER BY created_at ASC
	`, StatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	advisors := make([]Advisor, 0)
	for rows.Next() {
		var a Advisor
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Phone, &a.Score, &a.Status,
			&a.AvailabilityExpiresAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		advisors = append(advisors, a)
	}

	return advisors, rows.Err()
}

// SetAvailability opens or closes an advisor's availability window.
func (r *Repository) SetAvailability(ctx context.Context, id uuid.UUID, status string, expiresAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE advisors SET status = $2, availability_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, id, status, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepExpiredAvailability reconciles the stored status with lapsed
// availability windows. Returns the number of advisors flipped.
func (r *Repository) SweepExpiredAvailability(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE advisors SET status = $1, availability_expires_at = NULL, updated_at = now()
		WHERE status = $2 AND availability_expires_at IS NOT NULL AND availability_expires_at <= now()
	`, StatusUnavailable, StatusAvailable)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
