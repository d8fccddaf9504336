// Package events provides domain event definitions for fire-and-forget
// fan-out to notification and audit consumers.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"leadflow_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// LeadStatusChanged is published after a validated status transition is
// persisted.
type LeadStatusChanged struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	From   string    `json:"from"`
	To     string    `json:"to"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// AssignmentCreated is published when a lead is assigned to an advisor.
// Source tags (SYSTEM, MANUAL, REASSIGNMENT, PULL) drive notification
// routing only, never business logic.
type AssignmentCreated struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	AdvisorID    uuid.UUID `json:"advisorId"`
	Source       string    `json:"source"`
}

func (e AssignmentCreated) EventName() string { return "assignments.created" }

// AssignmentReassigned is published when a failed assignment is closed and
// the lead handed to a different advisor.
type AssignmentReassigned struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	NewAdvisorID uuid.UUID `json:"newAdvisorId"`
	OldAdvisorID uuid.UUID `json:"oldAdvisorId"`
}

func (e AssignmentReassigned) EventName() string { return "assignments.reassigned" }

// SLAFailed is published when the watchdog fires on an unanswered lead.
type SLAFailed struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	AdvisorID         uuid.UUID `json:"advisorId"`
	HadContactAttempt bool      `json:"hadContactAttempt"`
	ReassignmentCount int       `json:"reassignmentCount"`
}

func (e SLAFailed) EventName() string { return "sla.failed" }

// LeadFrozen is published when automatic reassignment attempts are exhausted
// and the lead is escalated to manual review.
type LeadFrozen struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	AdvisorID         uuid.UUID `json:"advisorId"`
	ReassignmentCount int       `json:"reassignmentCount"`
}

func (e LeadFrozen) EventName() string { return "leads.frozen" }
