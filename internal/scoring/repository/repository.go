package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Entry is an immutable, append-only score ledger record.
type Entry struct {
	ID        uuid.UUID
	AdvisorID uuid.UUID
	LeadID    *uuid.UUID
	Points    int
	Reason    string
	CreatedAt time.Time
}

type InsertParams struct {
	AdvisorID uuid.UUID
	LeadID    *uuid.UUID
	Points    int
	Reason    string
}

// InsertWithIncrement appends a ledger entry and bumps the advisor's cached
// total in the same transaction. The two writes are never visible separately.
func (r *Repository) InsertWithIncrement(ctx context.Context, params InsertParams) (Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var entry Entry
	err = tx.QueryRow(ctx, `
		INSERT INTO scores (advisor_id, lead_id, points, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, advisor_id, lead_id, points, reason, created_at
	`, params.AdvisorID, params.LeadID, params.Points, params.Reason).Scan(
		&entry.ID, &entry.AdvisorID, &entry.LeadID, &entry.Points, &entry.Reason, &entry.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE advisors SET score = score + $2, updated_at = now()
		WHERE id = $1
	`, params.AdvisorID, params.Points); err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// TotalInRange sums an advisor's ledger entries in [from, to).
func (r *Repository) TotalInRange(ctx context.Context, advisorID uuid.UUID, from, to time.Time) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM scores
		WHERE advisor_id = $1 AND created_at >= $2 AND created_at < $3
	`, advisorID, from, to).Scan(&total)
	return total, err
}

// TotalByReasonPrefixInRange sums entries whose reason starts with prefix in [from, to).
func (r *Repository) TotalByReasonPrefixInRange(ctx context.Context, advisorID uuid.UUID, prefix string, from, to time.Time) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM scores
		WHERE advisor_id = $1 AND reason LIKE $2 || '%' AND created_at >= $3 AND created_at < $4
	`, advisorID, prefix, from, to).Scan(&total)
	return total, err
}
