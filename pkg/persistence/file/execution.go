package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	json "github.com/goccy/go-json"
)

// ExecutionRepository stores execution records on the file system. Each
// execution gets its own directory holding execution.json plus append-only
// steps.json and errors.json, so recording order survives restarts.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) executionDir(executionID string) string {
	return filepath.Join(er.root, "executions", executionID)
}

// CreateExecution stores a new execution record. Repeating the call for the
// same execution overwrites the record, keeping the write idempotent.
func (er *ExecutionRepository) CreateExecution(_ context.Context, execution *models.Execution) error {
	if err := validateStorageID(execution.ID); err != nil {
		return persistence.NewExecutionError("create_execution", execution.ID, persistence.ErrInvalidExecutionID)
	}

	if err := os.MkdirAll(er.executionDir(execution.ID), 0750); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}

	return er.writeExecution(execution)
}

// UpdateExecution overwrites the stored execution record.
func (er *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	if _, err := er.ExecutionByID(ctx, execution.ID); err != nil {
		return err
	}

	return er.writeExecution(execution)
}

// UpdateExecutionStatus transitions the stored status in place.
func (er *ExecutionRepository) UpdateExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage string) error {
	execution, err := er.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	execution.Status = status
	if errorMessage != "" {
		execution.ErrorMessage = errorMessage
	}

	return er.writeExecution(execution)
}

func (er *ExecutionRepository) writeExecution(execution *models.Execution) error {
	toSave := *execution
	if toSave.Input == nil {
		toSave.Input = make(map[string]any)
	}

	if toSave.Variables == nil {
		toSave.Variables = make(map[string]any)
	}

	if toSave.Metadata == nil {
		toSave.Metadata = make(map[string]any)
	}

	data, err := json.Marshal(toSave)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	filePath := filepath.Join(er.executionDir(execution.ID), "execution.json")

	err = os.WriteFile(filePath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// ExecutionByID retrieves an execution record by its ID.
func (er *ExecutionRepository) ExecutionByID(_ context.Context, executionID string) (*models.Execution, error) {
	if err := validateStorageID(executionID); err != nil {
		return nil, persistence.NewExecutionError("execution_by_id", executionID, persistence.ErrInvalidExecutionID)
	}

	filePath := filepath.Join(er.executionDir(executionID), "execution.json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- path is built from a validated identifier
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("execution_by_id", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", executionID, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &execution, nil
}

// ExecutionsByWorkflow retrieves all executions for a workflow, most recent first.
func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return er.scanExecutions(ctx, func(execution *models.Execution) bool {
		return execution.WorkflowID == workflowID
	})
}

// ExecutionsByStatus retrieves all executions currently in the given status.
func (er *ExecutionRepository) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return er.scanExecutions(ctx, func(execution *models.Execution) bool {
		return execution.Status == status
	})
}

func (er *ExecutionRepository) scanExecutions(ctx context.Context, keep func(*models.Execution) bool) ([]*models.Execution, error) {
	executionsDir := filepath.Join(er.root, "executions")
	if _, err := os.Stat(executionsDir); os.IsNotExist(err) {
		return []*models.Execution{}, nil
	}

	entries, err := os.ReadDir(executionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.Execution, 0)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		execution, err := er.ExecutionByID(ctx, entry.Name())
		if err != nil {
			// Skip partially written or foreign directories.
			continue
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// AddStep appends a step record for an execution.
func (er *ExecutionRepository) AddStep(_ context.Context, step *models.ExecutionStep) error {
	if err := validateStorageID(step.ExecutionID); err != nil {
		return persistence.NewExecutionError("add_step", step.ExecutionID, persistence.ErrInvalidExecutionID)
	}

	steps, err := er.readSteps(step.ExecutionID)
	if err != nil {
		return err
	}

	// Repeated AddStep for the same step ID replaces instead of duplicating.
	replaced := false

	for i, existing := range steps {
		if existing.ID == step.ID {
			steps[i] = step
			replaced = true

			break
		}
	}

	if !replaced {
		steps = append(steps, step)
	}

	return er.writeSteps(step.ExecutionID, steps)
}

// UpdateStep overwrites a previously added step record.
func (er *ExecutionRepository) UpdateStep(_ context.Context, step *models.ExecutionStep) error {
	steps, err := er.readSteps(step.ExecutionID)
	if err != nil {
		return err
	}

	for i, existing := range steps {
		if existing.ID == step.ID {
			steps[i] = step

			return er.writeSteps(step.ExecutionID, steps)
		}
	}

	return persistence.NewExecutionError("update_step", step.ExecutionID, persistence.ErrStepNotFound)
}

// ExecutionSteps returns the steps of an execution in recording order.
func (er *ExecutionRepository) ExecutionSteps(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	if err := validateStorageID(executionID); err != nil {
		return nil, persistence.NewExecutionError("execution_steps", executionID, persistence.ErrInvalidExecutionID)
	}

	return er.readSteps(executionID)
}

func (er *ExecutionRepository) readSteps(executionID string) ([]*models.ExecutionStep, error) {
	filePath := filepath.Join(er.executionDir(executionID), "steps.json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- path is built from a validated identifier
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionStep{}, nil
		}

		return nil, fmt.Errorf("failed to read steps for execution %s: %w", executionID, err)
	}

	var steps []*models.ExecutionStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps for execution %s: %w", executionID, err)
	}

	return steps, nil
}

func (er *ExecutionRepository) writeSteps(executionID string, steps []*models.ExecutionStep) error {
	if err := os.MkdirAll(er.executionDir(executionID), 0750); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}

	data, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps for execution %s: %w", executionID, err)
	}

	filePath := filepath.Join(er.executionDir(executionID), "steps.json")

	return os.WriteFile(filePath, data, 0600)
}

// AddError appends an error record for an execution.
func (er *ExecutionRepository) AddError(_ context.Context, execError *models.ExecutionError) error {
	if err := validateStorageID(execError.ExecutionID); err != nil {
		return persistence.NewExecutionError("add_error", execError.ExecutionID, persistence.ErrInvalidExecutionID)
	}

	execErrors, err := er.readErrors(execError.ExecutionID)
	if err != nil {
		return err
	}

	for i, existing := range execErrors {
		if existing.ID == execError.ID {
			execErrors[i] = execError

			return er.writeErrors(execError.ExecutionID, execErrors)
		}
	}

	execErrors = append(execErrors, execError)

	return er.writeErrors(execError.ExecutionID, execErrors)
}

// ExecutionErrors returns the errors of an execution in recording order.
func (er *ExecutionRepository) ExecutionErrors(_ context.Context, executionID string) ([]*models.ExecutionError, error) {
	if err := validateStorageID(executionID); err != nil {
		return nil, persistence.NewExecutionError("execution_errors", executionID, persistence.ErrInvalidExecutionID)
	}

	return er.readErrors(executionID)
}

func (er *ExecutionRepository) readErrors(executionID string) ([]*models.ExecutionError, error) {
	filePath := filepath.Join(er.executionDir(executionID), "errors.json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- path is built from a validated identifier
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionError{}, nil
		}

		return nil, fmt.Errorf("failed to read errors for execution %s: %w", executionID, err)
	}

	var execErrors []*models.ExecutionError
	if err := json.Unmarshal(data, &execErrors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors for execution %s: %w", executionID, err)
	}

	return execErrors, nil
}

func (er *ExecutionRepository) writeErrors(executionID string, execErrors []*models.ExecutionError) error {
	if err := os.MkdirAll(er.executionDir(executionID), 0750); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}

	data, err := json.Marshal(execErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors for execution %s: %w", executionID, err)
	}

	filePath := filepath.Join(er.executionDir(executionID), "errors.json")

	return os.WriteFile(filePath, data, 0600)
}
