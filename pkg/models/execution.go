// Package models defines execution tracking models for workflow runs.
package models

import "time"

// ExecutionStatus defines the lifecycle states of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Execution represents one run instance of a workflow.
type Execution struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflow_id"`
	Status       ExecutionStatus  `json:"status"`
	Input        map[string]any   `json:"input,omitempty"`
	Output       map[string]any   `json:"output,omitempty"`
	Variables    map[string]any   `json:"variables,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Metrics      ExecutionMetrics `json:"metrics"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// ExecutionMetrics aggregates per-run counters.
type ExecutionMetrics struct {
	NodesTotal     int   `json:"nodes_total"`
	NodesCompleted int   `json:"nodes_completed"`
	NodesFailed    int   `json:"nodes_failed"`
	DurationMS     int64 `json:"duration_ms"`
}

// StepStatus defines the states of a single recorded step.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ExecutionStep records one node execution within a run. Steps are closed
// exactly once and immutable afterwards.
type ExecutionStep struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeName    string         `json:"node_name"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ErrorType classifies recorded execution errors.
type ErrorType string

const (
	ErrorTypeNodeExecution ErrorType = "node_execution" // A node failed after its internal retries
	ErrorTypeStructural    ErrorType = "structural"     // Runtime navigation failure, always fatal
	ErrorTypeCancellation  ErrorType = "cancellation"   // Explicit stop, never a failure
)

// ExecutionError is an append-only error record for a run.
type ExecutionError struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id,omitempty"`
	NodeID      string         `json:"node_id,omitempty"`
	Message     string         `json:"message"`
	Type        ErrorType      `json:"type"`
	Context     map[string]any `json:"context,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// ExecutionState is the view of a live run handed to node executors:
// the run identity, its global input, workflow variables, and the merged
// outputs of completed upstream nodes.
type ExecutionState struct {
	ExecutionID string                    `json:"execution_id"`
	WorkflowID  string                    `json:"workflow_id"`
	Input       map[string]any            `json:"input,omitempty"`
	Variables   map[string]any            `json:"variables,omitempty"`
	NodeOutputs map[string]map[string]any `json:"node_outputs,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
}
