package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOpenAssignmentExists is returned when creating an assignment for a lead
// that already has one open. The partial unique index on (lead_id) WHERE
// ended_at IS NULL enforces this transactionally; callers must close the
// active assignment first.
var ErrOpenAssignmentExists = errors.New("lead already has an open assignment")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Assignment links one lead to one advisor for a time interval.
type Assignment struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	AdvisorID  uuid.UUID
	Source     string
	AssignedAt time.Time
	EndedAt    *time.Time
}

type CreateParams struct {
	LeadID    uuid.UUID
	AdvisorID uuid.UUID
	Source    string
}

const assignmentColumns = `id, lead_id, advisor_id, source, assigned_at, ended_at`

func (r *Repository) Create(ctx context.Context, params CreateParams) (Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (lead_id, advisor_id, source)
		VALUES ($1, $2, $3)
		RETURNING `+assignmentColumns,
		params.LeadID, params.AdvisorID, params.Source,
	).Scan(&a.ID, &a.LeadID, &a.AdvisorID, &a.Source, &a.AssignedAt, &a.EndedAt)
	if isUniqueViolation(err) {
		return Assignment{}, ErrOpenAssignmentExists
	}
	return a, err
}

// FindActive returns the lead's unique open assignment, or nil.
func (r *Repository) FindActive(ctx context.Context, leadID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE lead_id = $1 AND ended_at IS NULL
	`, leadID).Scan(&a.ID, &a.LeadID, &a.AdvisorID, &a.Source, &a.AssignedAt, &a.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CloseActive ends the lead's open assignment, returning it, or nil when the
// lead had none.
func (r *Repository) CloseActive(ctx context.Context, leadID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx, `
		UPDATE assignments SET ended_at = now()
		WHERE lead_id = $1 AND ended_at IS NULL
		RETURNING `+assignmentColumns,
		leadID,
	).Scan(&a.ID, &a.LeadID, &a.AdvisorID, &a.Source, &a.AssignedAt, &a.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountsCreatedToday returns per-advisor counts of assignments created today
// plus the overall total.
func (r *Repository) CountsCreatedToday(ctx context.Context) (map[uuid.UUID]int, int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT advisor_id, COUNT(*)
		FROM assignments
		WHERE assigned_at >= date_trunc('day', now())
		GROUP BY advisor_id
	`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	total := 0
	for rows.Next() {
		var advisorID uuid.UUID
		var count int
		if err := rows.Scan(&advisorID, &count); err != nil {
			return nil, 0, err
		}
		counts[advisorID] = count
		total += count
	}

	return counts, total, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
