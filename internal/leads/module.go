// Package leads module wiring: exposes the pipeline over HTTP.
package leads

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	svc     *Service
}

// NewModule wraps an already wired pipeline service. Construction of the
// service itself happens in the composition root because it spans the
// assignment, scoring, and SLA collaborators.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		svc:     svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the pipeline service for non-HTTP callers (scheduler).
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts lead routes on the provided router context. Intake
// is the only unauthenticated write surface, so it carries the stricter
// rate limit.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/leads"), ctx.IntakeRateLimiter.RateLimit())
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
