package services

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
)

// Runner is the engine surface the execution service drives. Implemented
// by *workflow.Engine.
type Runner interface {
	StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error)
	PauseExecution(ctx context.Context, executionID string) bool
	ResumeExecution(ctx context.Context, executionID string) bool
	StopExecution(ctx context.Context, executionID string) bool
	ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error)
	ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
	ExecutionErrors(ctx context.Context, executionID string) ([]*models.ExecutionError, error)
	RunningExecutions() []*models.Execution
}

// Execution exposes execution control and history to the API: starting
// runs, the pause/resume/stop lifecycle, and the recorded step and error
// trails.
type Execution struct {
	runner      Runner
	persistence persistence.Persistence
}

// NewExecution creates a new execution service.
func NewExecution(runner Runner, persist persistence.Persistence) *Execution {
	return &Execution{runner: runner, persistence: persist}
}

// Start begins an execution of the published workflow and returns its ID.
func (e *Execution) Start(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	return e.runner.StartExecution(ctx, workflowID, input)
}

// Pause asks a running execution to pause at its next dispatch boundary.
func (e *Execution) Pause(ctx context.Context, executionID string) bool {
	return e.runner.PauseExecution(ctx, executionID)
}

// Resume releases a paused execution.
func (e *Execution) Resume(ctx context.Context, executionID string) bool {
	return e.runner.ResumeExecution(ctx, executionID)
}

// Stop cancels a live execution.
func (e *Execution) Stop(ctx context.Context, executionID string) bool {
	return e.runner.StopExecution(ctx, executionID)
}

// ByID returns an execution record, live state first.
func (e *Execution) ByID(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.runner.ExecutionByID(ctx, executionID)
}

// Steps returns the recorded steps of an execution in recording order.
func (e *Execution) Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	return e.runner.ExecutionSteps(ctx, executionID)
}

// Errors returns the recorded errors of an execution in recording order.
func (e *Execution) Errors(ctx context.Context, executionID string) ([]*models.ExecutionError, error) {
	return e.runner.ExecutionErrors(ctx, executionID)
}

// ByWorkflow returns the execution history of a workflow, most recent
// first. The workflow must exist.
func (e *Execution) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	if _, err := e.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return e.persistence.ExecutionRepository().ExecutionsByWorkflow(ctx, workflowID)
}

// Running returns a snapshot of every execution currently in flight.
func (e *Execution) Running() []*models.Execution {
	return e.runner.RunningExecutions()
}
