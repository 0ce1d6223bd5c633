package facade

import (
	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
)

// ExecutionDTO is the wire shape for GET /executions/{id}, flattening the
// Execution aggregate's private fields through its getters.
type ExecutionDTO struct {
	ID            string                     `json:"id"`
	WorkflowID    string                     `json:"workflowId"`
	TriggerNodeID string                     `json:"triggerNodeId"`
	Mode          string                     `json:"mode"`
	Status        string                     `json:"status"`
	StartedAt     string                     `json:"startedAt"`
	FinishedAt    *string                    `json:"finishedAt,omitempty"`
	Error         *execmodel.ExecutionError  `json:"error,omitempty"`
	NodeExecutions map[string]*execmodel.NodeExecution `json:"nodeExecutions"`
}

func executionDTO(e *execmodel.Execution) *ExecutionDTO {
	dto := &ExecutionDTO{
		ID:             string(e.ID()),
		WorkflowID:     e.WorkflowID(),
		TriggerNodeID:  e.TriggerNodeID(),
		Mode:           string(e.Mode()),
		Status:         string(e.Status()),
		StartedAt:      e.StartedAt().Format(timeLayout),
		Error:          e.Error(),
		NodeExecutions: e.NodeExecutions(),
	}
	if finished := e.FinishedAt(); finished != nil {
		s := finished.Format(timeLayout)
		dto.FinishedAt = &s
	}
	return dto
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
