package transport

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/advisors/repository"
)

type CreateAdvisorRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Phone string `json:"phone" validate:"required,min=5,max=20"`
}

type SetAvailabilityRequest struct {
	Available bool `json:"available"`
	// WindowMinutes bounds an open availability window; omitted means open
	// until explicitly closed.
	WindowMinutes *int `json:"windowMinutes,omitempty" validate:"omitempty,min=1,max=1440"`
}

type AdvisorResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	Phone                 string     `json:"phone"`
	Score                 int        `json:"score"`
	Status                string     `json:"status"`
	AvailabilityExpiresAt *time.Time `json:"availabilityExpiresAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}

func FromAdvisor(a repository.Advisor) AdvisorResponse {
	return AdvisorResponse{
		ID:                    a.ID,
		Name:                  a.Name,
		Phone:                 a.Phone,
		Score:                 a.Score,
		Status:                a.Status,
		AvailabilityExpiresAt: a.AvailabilityExpiresAt,
		CreatedAt:             a.CreatedAt,
	}
}

func FromAdvisors(advisors []repository.Advisor) []AdvisorResponse {
	out := make([]AdvisorResponse, 0, len(advisors))
	for _, a := range advisors {
		out = append(out, FromAdvisor(a))
	}
	return out
}

type MonthlyScoreResponse struct {
	AdvisorID    uuid.UUID `json:"advisorId"`
	MonthlyScore int       `json:"monthlyScore"`
}
