// Package persistence provides the storage abstraction for workflows and execution history.
package persistence

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
)

// WorkflowRepository stores workflow definitions for the builder and loads
// them for the engine.
type WorkflowRepository interface {
	// Workflows returns all stored workflows
	Workflows(ctx context.Context) ([]*models.Workflow, error)

	// Save creates or overwrites a workflow definition
	Save(ctx context.Context, workflow *models.Workflow) error

	// WorkflowByID returns a workflow regardless of status
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)

	// PublishedWorkflowByID returns a workflow only when it is published
	PublishedWorkflowByID(ctx context.Context, id string) (*models.Workflow, error)

	// Delete removes a workflow; deleting a missing workflow is not an error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository records execution, step, and error state. Writes must
// tolerate being repeated for the same logical update, since the engine may
// retry after an ambiguous failure.
type ExecutionRepository interface {
	// CreateExecution stores a new execution record
	CreateExecution(ctx context.Context, execution *models.Execution) error

	// UpdateExecution overwrites the stored execution record
	UpdateExecution(ctx context.Context, execution *models.Execution) error

	// UpdateExecutionStatus transitions the stored status, recording an error message for failures
	UpdateExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage string) error

	// ExecutionByID returns one execution record
	ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error)

	// ExecutionsByWorkflow returns all executions of a workflow, most recent first
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)

	// ExecutionsByStatus returns all executions currently in the given status
	ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)

	// AddStep appends a step record for an execution
	AddStep(ctx context.Context, step *models.ExecutionStep) error

	// UpdateStep overwrites a previously added step record
	UpdateStep(ctx context.Context, step *models.ExecutionStep) error

	// ExecutionSteps returns the steps of an execution in recording order
	ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)

	// AddError appends an error record for an execution
	AddError(ctx context.Context, execError *models.ExecutionError) error

	// ExecutionErrors returns the errors of an execution in recording order
	ExecutionErrors(ctx context.Context, executionID string) ([]*models.ExecutionError, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
