package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/assignment"
	assignmentrepo "leadflow_backend/internal/assignment/repository"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/transport"
	timelinerepo "leadflow_backend/internal/timeline/repository"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"

	defaultListLimit = 50
)

// Pipeline is the lead lifecycle command surface the handler exposes.
type Pipeline interface {
	Create(ctx context.Context, phoneNumber, name string) (repository.Lead, error)
	Get(ctx context.Context, leadID uuid.UUID) (repository.Lead, error)
	Qualify(ctx context.Context, leadID uuid.UUID) (repository.Lead, error)
	Assign(ctx context.Context, leadID uuid.UUID, advisorID *uuid.UUID, source string) (*assignmentrepo.Assignment, error)
	Contacted(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)
	Appointment(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)
	FollowUp(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)
	Closed(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)
	Lost(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)
	ContactAttempt(ctx context.Context, leadID, advisorID uuid.UUID, channel string) error
	AddNote(ctx context.Context, leadID uuid.UUID, author, body string) (timelinerepo.Note, error)
	Notes(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Note, error)
	Timeline(ctx context.Context, leadID uuid.UUID, limit int) ([]timelinerepo.Event, error)
	Summarize(ctx context.Context, leadID uuid.UUID) (timelinerepo.Note, error)
}

type Handler struct {
	svc Pipeline
	val *validator.Validator
}

func New(svc Pipeline, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, intake gin.HandlerFunc) {
	rg.POST("", intake, h.Create)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/qualify", h.Qualify)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/contacted", h.Contacted)
	rg.POST("/:id/appointment", h.Appointment)
	rg.POST("/:id/follow-up", h.FollowUp)
	rg.POST("/:id/closed", h.Closed)
	rg.POST("/:id/lost", h.Lost)
	rg.POST("/:id/contact-attempt", h.ContactAttempt)
	rg.GET("/:id/notes", h.ListNotes)
	rg.POST("/:id/notes", h.AddNote)
	rg.GET("/:id/timeline", h.Timeline)
	rg.POST("/:id/summary", h.Summarize)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), req.Phone, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromLead(lead))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromLead(lead))
}

func (h *Handler) Qualify(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Qualify(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromLead(lead))
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.AssignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	source := assignment.SourceSystem
	if req.AdvisorID != nil {
		source = assignment.SourceManual
	}

	assignment, err := h.svc.Assign(c.Request.Context(), id, req.AdvisorID, source)
	if httpkit.HandleError(c, err) {
		return
	}
	if assignment == nil {
		// No advisor available; the lead was parked for the distributor.
		httpkit.JSON(c, http.StatusAccepted, gin.H{"pendingDistribution": true})
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromAssignment(*assignment))
}

func (h *Handler) Contacted(c *gin.Context) {
	h.advisorAction(c, h.svc.Contacted)
}

func (h *Handler) Appointment(c *gin.Context) {
	h.advisorAction(c, h.svc.Appointment)
}

func (h *Handler) FollowUp(c *gin.Context) {
	h.advisorAction(c, h.svc.FollowUp)
}

func (h *Handler) Closed(c *gin.Context) {
	h.advisorAction(c, h.svc.Closed)
}

func (h *Handler) Lost(c *gin.Context) {
	h.advisorAction(c, h.svc.Lost)
}

func (h *Handler) ContactAttempt(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.ContactAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.ContactAttempt(c.Request.Context(), id, req.AdvisorID, req.Channel); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusNoContent, nil)
}

func (h *Handler) ListNotes(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	notes, err := h.svc.Notes(c.Request.Context(), id, defaultListLimit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromNotes(notes))
}

func (h *Handler) AddNote(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	note, err := h.svc.AddNote(c.Request.Context(), id, req.Author, req.Body)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromNote(note))
}

func (h *Handler) Timeline(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	events, err := h.svc.Timeline(c.Request.Context(), id, defaultListLimit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromTimeline(events))
}

func (h *Handler) Summarize(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	note, err := h.svc.Summarize(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromNote(note))
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

// advisorAction binds the shared advisor-attributed command shape and invokes
// the pipeline command.
func (h *Handler) advisorAction(c *gin.Context, fn func(ctx context.Context, leadID, advisorID uuid.UUID) (repository.Lead, error)) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.AdvisorActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := fn(c.Request.Context(), id, req.AdvisorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromLead(lead))
}
