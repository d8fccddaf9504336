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

var ErrNotFound = errors.New("sla job not found")

// ErrPendingJobExists is returned when creating a job for a lead that
// already has one pending. The partial unique index on (lead_id) WHERE
// status = 'PENDING' enforces this transactionally.
var ErrPendingJobExists = errors.New("lead already has a pending sla job")

// Job statuses. PENDING jobs are under watch; COMPLETED and FAILED are
// terminal.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Job is one response-window watch per assignment attempt. A lead
// accumulates one job per attempt over its life, at most one PENDING at a
// time.
type Job struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	AdvisorID         uuid.UUID
	DueAt             time.Time
	ReassignmentCount int
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CreateParams struct {
	LeadID            uuid.UUID
	AdvisorID         uuid.UUID
	DueAt             time.Time
	ReassignmentCount int
}

const jobColumns = `id, lead_id, advisor_id, due_at, reassignment_count, status, created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.LeadID, &j.AdvisorID, &j.DueAt,
		&j.ReassignmentCount, &j.Status, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		INSERT INTO sla_jobs (lead_id, advisor_id, due_at, reassignment_count)
		VALUES ($1, $2, $3, $4)
		RETURNING `+jobColumns,
		params.LeadID, params.AdvisorID, params.DueAt, params.ReassignmentCount,
	))
	if isUniqueViolation(err) {
		return Job{}, ErrPendingJobExists
	}
	return job, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM sla_jobs WHERE id = $1
	`, id))
}

// MarkFailed flips a PENDING job to FAILED. Returns false when the job was
// no longer pending; callers use this as the at-most-once guard for the
// failure side effects.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sla_jobs SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, StatusFailed, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompletePending completes the lead's pending job if one exists, returning
// it, or nil when there was nothing to complete.
func (r *Repository) CompletePending(ctx context.Context, leadID uuid.UUID) (*Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE sla_jobs SET status = $2, updated_at = now()
		WHERE lead_id = $1 AND status = $3
		RETURNING `+jobColumns,
		leadID, StatusCompleted, StatusPending,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// LatestForLead returns the lead's most recent job, or nil.
func (r *Repository) LatestForLead(ctx context.Context, leadID uuid.UUID) (*Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM sla_jobs
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListOverduePending returns PENDING jobs whose due time has already passed,
// oldest first. These are watches whose check never made it into the queue.
func (r *Repository) ListOverduePending(ctx context.Context, limit int) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM sla_jobs
		WHERE status = $1 AND due_at <= now()
		ORDER BY due_at
		LIMIT $2
	`, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(
			&j.ID, &j.LeadID, &j.AdvisorID, &j.DueAt,
			&j.ReassignmentCount, &j.Status, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
