package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/leads/domain"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                  uuid.UUID
	Phone               string
	Name                string
	Status              domain.Status
	FrozenForReview     bool
	PendingDistribution bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type CreateLeadParams struct {
	Phone string
	Name  string
}

const leadColumns = `id, phone, name, status, frozen_for_review, pending_distribution, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.Status,
		&lead.FrozenForReview, &lead.PendingDistribution,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (phone, name)
		VALUES ($1, $2)
		RETURNING `+leadColumns,
		params.Phone, params.Name,
	))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1
	`, id))
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, phone))
}

// UpdateStatus persists a new lifecycle status. Legality must have been
// validated by the caller through domain.ValidateTransition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, status,
	))
}

// FreezeForReview flags the lead for manual human review after automatic
// reassignment attempts are exhausted.
func (r *Repository) FreezeForReview(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET frozen_for_review = true, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPendingDistribution parks or unparks a lead in the distribution queue.
func (r *Repository) SetPendingDistribution(ctx context.Context, id uuid.UUID, pending bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET pending_distribution = $2, updated_at = now()
		WHERE id = $1
	`, id, pending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingDistribution returns leads waiting for an advisor, oldest first.
func (r *Repository) ListPendingDistribution(ctx context.Context, limit int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE pending_distribution = true AND frozen_for_review = false
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID, &lead.Phone, &lead.Name, &lead.Status,
			&lead.FrozenForReview, &lead.PendingDistribution,
			&lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}
