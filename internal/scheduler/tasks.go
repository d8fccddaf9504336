package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSLACheck = "sla.check"

type SLACheckPayload struct {
	SlaJobID  string `json:"slaJobId"`
	LeadID    string `json:"leadId"`
	AdvisorID string `json:"advisorId"`
}

func NewSLACheckTask(payload SLACheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSLACheck, data), nil
}

func ParseSLACheckPayload(task *asynq.Task) (SLACheckPayload, error) {
	var payload SLACheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SLACheckPayload{}, err
	}
	return payload, nil
}

// slaCheckTaskID keys the queue entry so a re-enqueue for the same job is
// deduplicated instead of firing twice.
func slaCheckTaskID(slaJobID string) string {
	return "sla:check:" + slaJobID
}
