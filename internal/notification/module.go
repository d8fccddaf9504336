// Package notification fans domain events out to advisors and supervisors.
// It subscribes to the event bus and inverts the dependency: the pipeline
// and watchdog never talk to WhatsApp or SMTP directly.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	advisorrepo "leadflow_backend/internal/advisors/repository"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
)

// MessageSender sends WhatsApp messages.
type MessageSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// AdvisorReader resolves advisor contact details.
type AdvisorReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (advisorrepo.Advisor, error)
}

// LeadReader resolves lead details for message bodies.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadrepo.Lead, error)
}

// Module handles notification event subscriptions.
type Module struct {
	whatsapp        MessageSender
	advisors        AdvisorReader
	leads           LeadReader
	email           email.Sender
	supervisorEmail string
	log             *logger.Logger
}

func New(advisors AdvisorReader, leads LeadReader, sender email.Sender, supervisorEmail string, log *logger.Logger) *Module {
	return &Module{
		advisors:        advisors,
		leads:           leads,
		email:           sender,
		supervisorEmail: supervisorEmail,
		log:             log,
	}
}

// SetWhatsAppSender wires the messaging gateway. A nil sender leaves
// WhatsApp notices disabled.
func (m *Module) SetWhatsAppSender(sender MessageSender) {
	m.whatsapp = sender
}

func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.AssignmentCreated{}.EventName(), m)
	bus.Subscribe(events.AssignmentReassigned{}.EventName(), m)
	bus.Subscribe(events.LeadFrozen{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.AssignmentCreated:
		return m.handleAssignmentCreated(ctx, e)
	case events.AssignmentReassigned:
		return m.handleAssignmentReassigned(ctx, e)
	case events.LeadFrozen:
		return m.handleLeadFrozen(ctx, e)
	default:
		return nil
	}
}

// NotifyAdvisor delivers a direct message to an advisor. The watchdog uses
// this for SLA failure notices.
func (m *Module) NotifyAdvisor(ctx context.Context, advisorID uuid.UUID, message string) error {
	if m.whatsapp == nil {
		return nil
	}

	advisor, err := m.advisors.GetByID(ctx, advisorID)
	if err != nil {
		return fmt.Errorf("resolve advisor %s: %w", advisorID, err)
	}
	return m.whatsapp.SendMessage(ctx, advisor.Phone, message)
}

func (m *Module) handleAssignmentCreated(ctx context.Context, e events.AssignmentCreated) error {
	lead, err := m.leads.GetByID(ctx, e.LeadID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Nuevo lead asignado: %s (%s). Tienes 15 minutos para contactarlo.",
		lead.Name, lead.Phone,
	)
	return m.NotifyAdvisor(ctx, e.AdvisorID, message)
}

func (m *Module) handleAssignmentReassigned(ctx context.Context, e events.AssignmentReassigned) error {
	lead, err := m.leads.GetByID(ctx, e.LeadID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Lead reasignado a ti: %s (%s). Contacta de inmediato, el lead ya esperó una ventana completa.",
		lead.Name, lead.Phone,
	)
	return m.NotifyAdvisor(ctx, e.NewAdvisorID, message)
}

func (m *Module) handleLeadFrozen(ctx context.Context, e events.LeadFrozen) error {
	if m.supervisorEmail == "" {
		m.log.Warn("lead frozen but no supervisor email configured", "lead_id", e.LeadID)
		return nil
	}

	lead, err := m.leads.GetByID(ctx, e.LeadID)
	if err != nil {
		return err
	}

	if err := m.email.SendLeadFrozenEmail(ctx, m.supervisorEmail, lead.Name, lead.Phone, e.ReassignmentCount); err != nil {
		m.log.Error("failed to send frozen lead escalation",
			"error", err, "lead_id", e.LeadID, "to", m.supervisorEmail)
		return err
	}

	m.log.Info("frozen lead escalated to supervisor", "lead_id", e.LeadID)
	return nil
}
