package transport

import (
	"time"

	"github.com/google/uuid"

	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/leads/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
)

// Request DTOs
type CreateLeadRequest struct {
	Phone string `json:"phone" validate:"required,min=5,max=20"`
	Name  string `json:"name" validate:"required,min=1,max=100"`
}

type AssignLeadRequest struct {
	// AdvisorID forces a manual assignment; nil lets the selector pick.
	AdvisorID *uuid.UUID `json:"advisorId" validate:"omitempty"`
}

type AdvisorActionRequest struct {
	AdvisorID uuid.UUID `json:"advisorId" validate:"required"`
}

type ContactAttemptRequest struct {
	AdvisorID uuid.UUID `json:"advisorId" validate:"required"`
	Channel   string    `json:"channel" validate:"required,oneof=WHATSAPP LLAMADA EMAIL"`
}

type AddNoteRequest struct {
	Author string `json:"author" validate:"required,min=1,max=100"`
	Body   string `json:"body" validate:"required,min=1,max=2000"`
}

// Response DTOs
type LeadResponse struct {
	ID                  uuid.UUID `json:"id"`
	Phone               string    `json:"phone"`
	Name                string    `json:"name"`
	Status              string    `json:"status"`
	FrozenForReview     bool      `json:"frozenForReview"`
	PendingDistribution bool      `json:"pendingDistribution"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func FromLead(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:                  lead.ID,
		Phone:               lead.Phone,
		Name:                lead.Name,
		Status:              string(lead.Status),
		FrozenForReview:     lead.FrozenForReview,
		PendingDistribution: lead.PendingDistribution,
		CreatedAt:           lead.CreatedAt,
		UpdatedAt:           lead.UpdatedAt,
	}
}

type AssignmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     uuid.UUID  `json:"leadId"`
	AdvisorID  uuid.UUID  `json:"advisorId"`
	Source     string     `json:"source"`
	AssignedAt time.Time  `json:"assignedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

func FromAssignment(a assignmentrepo.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		LeadID:     a.LeadID,
		AdvisorID:  a.AdvisorID,
		Source:     a.Source,
		AssignedAt: a.AssignedAt,
		EndedAt:    a.EndedAt,
	}
}

type NoteResponse struct {
	ID        uuid.UUID `json:"id"`
	LeadID    uuid.UUID `json:"leadId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func FromNote(n timelinerepo.Note) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		LeadID:    n.LeadID,
		Author:    n.Author,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}
}

func FromNotes(notes []timelinerepo.Note) []NoteResponse {
	out := make([]NoteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, FromNote(n))
	}
	return out
}

type TimelineEventResponse struct {
	ID        uuid.UUID      `json:"id"`
	LeadID    uuid.UUID      `json:"leadId"`
	AdvisorID *uuid.UUID     `json:"advisorId,omitempty"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func FromTimeline(events []timelinerepo.Event) []TimelineEventResponse {
	out := make([]TimelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEventResponse{
			ID:        e.ID,
			LeadID:    e.LeadID,
			AdvisorID: e.AdvisorID,
			Type:      e.Type,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
