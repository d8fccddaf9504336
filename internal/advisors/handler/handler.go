package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/advisors/repository"
	"leadflow_backend/internal/advisors/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Roster is the advisor management surface the handler exposes.
type Roster interface {
	Create(ctx context.Context, name, phoneNumber string) (repository.Advisor, error)
	Get(ctx context.Context, id uuid.UUID) (repository.Advisor, error)
	ListAvailable(ctx context.Context) ([]repository.Advisor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool, window *time.Duration) error
	MonthlyScore(ctx context.Context, id uuid.UUID) (int, error)
}

type Handler struct {
	svc Roster
	val *validator.Validator
}

func New(svc Roster, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/available", h.ListAvailable)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id/availability", h.SetAvailability)
	rg.GET("/:id/score", h.MonthlyScore)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAdvisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	advisor, err := h.svc.Create(c.Request.Context(), req.Name, req.Phone)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromAdvisor(advisor))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.advisorID(c)
	if !ok {
		return
	}

	advisor, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromAdvisor(advisor))
}

func (h *Handler) ListAvailable(c *gin.Context) {
	advisors, err := h.svc.ListAvailable(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromAdvisors(advisors))
}

func (h *Handler) SetAvailability(c *gin.Context) {
	id, ok := h.advisorID(c)
	if !ok {
		return
	}

	var req transport.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	var window *time.Duration
	if req.WindowMinutes != nil {
		d := time.Duration(*req.WindowMinutes) * time.Minute
		window = &d
	}

	if err := h.svc.SetAvailability(c.Request.Context(), id, req.Available, window); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusNoContent, nil)
}

func (h *Handler) MonthlyScore(c *gin.Context) {
	id, ok := h.advisorID(c)
	if !ok {
		return
	}

	total, err := h.svc.MonthlyScore(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.MonthlyScoreResponse{AdvisorID: id, MonthlyScore: total})
}

func (h *Handler) advisorID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
