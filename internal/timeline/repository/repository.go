package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit event types written to the lead timeline.
const (
	EventStatusChanged        = "STATUS_CHANGED"
	EventContactAttempt       = "INTENTO_CONTACTO"
	EventSLAFailed            = "SLA_VENCIDO"
	EventLeadFrozen           = "LEAD_CONGELADO"
	EventAssignmentCreated    = "ASIGNACION_CREADA"
	EventAssignmentReassigned = "ASIGNACION_REASIGNADA"
	EventPendingDistribution  = "PENDIENTE_DISTRIBUCION"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Event struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	AdvisorID *uuid.UUID
	Type      string
	Payload   map[string]any
	CreatedAt time.Time
}

type RecordParams struct {
	LeadID    uuid.UUID
	AdvisorID *uuid.UUID
	Type      string
	Payload   map[string]any
}

// Record appends an audit event. The timeline is write-only from the core's
// perspective; the admin UI reads it.
func (r *Repository) Record(ctx context.Context, params RecordParams) error {
	payload := params.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO lead_events (lead_id, advisor_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`, params.LeadID, params.AdvisorID, params.Type, data)
	return err
}

// HasContactAttemptSince reports whether the advisor logged a contact attempt
// for the lead at or after the given instant. The SLA watchdog uses this to
// distinguish "tried but failed" from "ignored entirely".
func (r *Repository) HasContactAttemptSince(ctx context.Context, leadID, advisorID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lead_events
			WHERE lead_id = $1 AND advisor_id = $2 AND type = $3 AND created_at >= $4
		)
	`, leadID, advisorID, EventContactAttempt, since).Scan(&exists)
	return exists, err
}

// ListForLead returns the lead's audit trail, newest first.
func (r *Repository) ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, advisor_id, type, payload, created_at
		FROM lead_events
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.LeadID, &e.AdvisorID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

type Note struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Author    string
	Body      string
	CreatedAt time.Time
}

// AddNote appends a free-text annotation to the lead. Bodies are opaque
// strings; AI-generated summaries land here too.
func (r *Repository) AddNote(ctx context.Context, leadID uuid.UUID, author, body string) (Note, error) {
	var note Note
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_notes (lead_id, author, body)
		VALUES ($1, $2, $3)
		RETURNING id, lead_id, author, body, created_at
	`, leadID, author, body).Scan(&note.ID, &note.LeadID, &note.Author, &note.Body, &note.CreatedAt)
	return note, err
}

// ListNotes returns the lead's notes, newest first.
func (r *Repository) ListNotes(ctx context.Context, leadID uuid.UUID, limit int) ([]Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, author, body, created_at
		FROM lead_notes
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.LeadID, &n.Author, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}

	return notes, rows.Err()
}
