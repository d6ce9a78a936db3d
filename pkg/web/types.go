// Package web provides the HTTP control surface: workflow CRUD and
// publishing for the builder, and execution control for running graphs.
package web

import "github.com/flowion-ai/flowion/pkg/models"

// CreateWorkflowRequest is the request body for creating a new workflow.
// The graph may be supplied up front or filled in later via updates; new
// workflows always start as drafts.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Owner       string                 `json:"owner,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes,omitempty"`
	Connections []*models.Connection   `json:"connections,omitempty"`
}

// UpdateWorkflowRequest is the request body for updating a workflow. All
// fields are optional; absent fields keep their stored value. Nodes and
// connections are replaced wholesale when present, which is how the
// builder saves graph edits.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty" validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes,omitempty"`
	Connections []*models.Connection   `json:"connections,omitempty"`
}

// StartExecutionRequest is the request body for starting an execution.
type StartExecutionRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// StartExecutionResponse acknowledges an admitted execution.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionActionResponse reports the outcome of a lifecycle action.
type ExecutionActionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
