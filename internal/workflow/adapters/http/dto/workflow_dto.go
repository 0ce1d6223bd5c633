package dto

import (
	"errors"
	"time"
)

// CreateWorkflowRequest represents a request to create a workflow
type CreateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Nodes       []NodeDTO       `json:"nodes,omitempty"`
	Connections []ConnectionDTO `json:"connections,omitempty"`
}

// Validate validates the create workflow request
func (r *CreateWorkflowRequest) Validate() error {
	if r.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(r.Name) < 3 || len(r.Name) > 200 {
		return errors.New("workflow name must be between 3 and 200 characters")
	}
	return nil
}

// UpdateWorkflowRequest represents a request to update a workflow
type UpdateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Nodes       []NodeDTO       `json:"nodes"`
	Connections []ConnectionDTO `json:"connections"`
	Settings    *SettingsDTO    `json:"settings,omitempty"`
}

// DuplicateWorkflowRequest represents a request to duplicate a workflow
type DuplicateWorkflowRequest struct {
	Name string `json:"name"`
}

// WorkflowResponse represents a workflow response
type WorkflowResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Nodes       []NodeDTO       `json:"nodes"`
	Connections []ConnectionDTO `json:"connections"`
	Settings    SettingsDTO     `json:"settings"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ListWorkflowsResponse represents a list of workflows response
type ListWorkflowsResponse struct {
	Items      []WorkflowResponse `json:"items"`
	Total      int64              `json:"total"`
	Pagination Pagination         `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
	Total  int64 `json:"total"`
}

// NodeDTO represents a workflow node
type NodeDTO struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"`
	Name                string                 `json:"name"`
	Position            PositionDTO            `json:"position"`
	Parameters          map[string]interface{} `json:"parameters"`
	Credentials         map[string]string      `json:"credentials,omitempty"`
	Disabled            bool                   `json:"disabled,omitempty"`
	ExecutionCapability string                 `json:"executionCapability,omitempty"`
	ParentID            string                 `json:"parentId,omitempty"`
	Extent              string                 `json:"extent,omitempty"`
}

// PositionDTO represents node position
type PositionDTO struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ConnectionDTO represents a connection between nodes' named ports
type ConnectionDTO struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
	SourceOutput string `json:"sourceOutput,omitempty"`
	TargetInput  string `json:"targetInput,omitempty"`
}

// SettingsDTO represents workflow settings
type SettingsDTO struct {
	Timezone       string `json:"timezone"`
	ExecutionOrder string `json:"executionOrder"`
	ErrorPolicy    string `json:"errorPolicy"`
	CallerPolicy   string `json:"callerPolicy,omitempty"`
	MaxDurationMs  int64  `json:"maxDurationMs"`
}
