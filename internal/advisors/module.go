package advisors

import (
	"leadflow_backend/internal/advisors/handler"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

// Module is the advisors bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	svc     *Service
}

func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		svc:     svc,
	}
}

func (m *Module) Name() string {
	return "advisors"
}

func (m *Module) Service() *Service {
	return m.svc
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/advisors"))
}

var _ apphttp.Module = (*Module)(nil)
