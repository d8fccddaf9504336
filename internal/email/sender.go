// Package email delivers supervisor escalation mail over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"leadflow_backend/internal/config"
)

// Sender delivers escalation mail. Implementations must be safe to call
// from event handlers; delivery failures are the caller's to log and
// swallow.
type Sender interface {
	SendLeadFrozenEmail(ctx context.Context, toEmail, leadName, leadPhone string, reassignments int) error
}

// NewSender returns the configured sender, or a no-op one when email is
// disabled.
func NewSender(cfg *config.Config) (Sender, error) {
	if !cfg.EmailEnabled {
		return NopSender{}, nil
	}
	return NewSMTPSender(
		cfg.SMTPHost, cfg.SMTPPort,
		cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.EmailFromAddress, cfg.EmailFromName,
	), nil
}

// NopSender drops all mail. Used when email delivery is disabled.
type NopSender struct{}

func (NopSender) SendLeadFrozenEmail(context.Context, string, string, string, int) error {
	return nil
}

// SMTPSender delivers mail over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) SendLeadFrozenEmail(ctx context.Context, toEmail, leadName, leadPhone string, reassignments int) error {
	content, err := renderEmailTemplate("frozen_lead.html", frozenLeadEmailData{
		baseEmailData: baseEmailData{
			Title:   "Lead congelado para revisión",
			Heading: "Lead congelado para revisión",
		},
		LeadName:      leadName,
		LeadPhone:     leadPhone,
		Reassignments: reassignments,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectLeadFrozen, content)
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
