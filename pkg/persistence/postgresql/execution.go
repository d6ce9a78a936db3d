package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
)

// ExecutionRepository handles execution, step, and error records.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, workflow_id, status, input, output, variables,
	metadata, metrics, error_message, started_at, completed_at
`

// CreateExecution stores a new execution record. Repeating the call for the
// same execution overwrites the record, keeping the write idempotent.
func (er *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	return er.upsertExecution(ctx, "create_execution", execution)
}

// UpdateExecution overwrites the stored execution record.
func (er *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	_, err := er.ExecutionByID(ctx, execution.ID)
	if err != nil {
		return err
	}

	return er.upsertExecution(ctx, "update_execution", execution)
}

func (er *ExecutionRepository) upsertExecution(ctx context.Context, op string, execution *models.Execution) error {
	inputJSON, err := json.Marshal(execution.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	outputJSON, err := json.Marshal(execution.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	variablesJSON, err := json.Marshal(execution.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metricsJSON, err := json.Marshal(execution.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, status, input, output, variables,
			metadata, metrics, error_message, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			status = EXCLUDED.status,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			metrics = EXCLUDED.metrics,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		inputJSON,
		outputJSON,
		variablesJSON,
		metadataJSON,
		metricsJSON,
		execution.ErrorMessage,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	return nil
}

// UpdateExecutionStatus transitions the stored status in place. An empty
// error message leaves the recorded message untouched.
func (er *ExecutionRepository) UpdateExecutionStatus(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage string) error {
	query := `
		UPDATE executions
		SET status = $2,
			error_message = CASE WHEN $3 = '' THEN error_message ELSE $3 END
		WHERE id = $1
	`

	result, err := er.db.ExecContext(ctx, query, executionID, status, errorMessage)
	if err != nil {
		return persistence.NewExecutionError("update_execution_status", executionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewExecutionError("update_execution_status", executionID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// ExecutionByID retrieves an execution record by its ID.
func (er *ExecutionRepository) ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	row := er.db.QueryRowContext(ctx, query, executionID)

	execution, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("execution_by_id", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("execution_by_id", executionID, err)
	}

	return execution, nil
}

// ExecutionsByWorkflow returns all executions of a workflow, most recent first.
func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC`

	return er.queryExecutions(ctx, query, workflowID)
}

// ExecutionsByStatus returns all executions currently in the given status.
func (er *ExecutionRepository) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE status = $1 ORDER BY started_at DESC`

	return er.queryExecutions(ctx, query, status)
}

func (er *ExecutionRepository) queryExecutions(ctx context.Context, query string, arg any) ([]*models.Execution, error) {
	rows, err := er.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// AddStep appends a step record. Re-adding a step with the same ID replaces
// the earlier record and keeps its position in the recording order.
func (er *ExecutionRepository) AddStep(ctx context.Context, step *models.ExecutionStep) error {
	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO execution_steps (
			id, execution_id, node_id, node_name, status,
			input, output, error, duration_ms, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			node_name = EXCLUDED.node_name,
			status = EXCLUDED.status,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = er.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeName,
		step.Status,
		inputJSON,
		outputJSON,
		step.Error,
		step.DurationMS,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("add_step", step.ExecutionID, err)
	}

	return nil
}

// UpdateStep overwrites a previously added step record.
func (er *ExecutionRepository) UpdateStep(ctx context.Context, step *models.ExecutionStep) error {
	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		UPDATE execution_steps
		SET node_id = $3,
			node_name = $4,
			status = $5,
			input = $6,
			output = $7,
			error = $8,
			duration_ms = $9,
			started_at = $10,
			completed_at = $11
		WHERE id = $1 AND execution_id = $2
	`

	result, err := er.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeName,
		step.Status,
		inputJSON,
		outputJSON,
		step.Error,
		step.DurationMS,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("update_step", step.ExecutionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewExecutionError("update_step", step.ExecutionID, persistence.ErrStepNotFound)
	}

	return nil
}

// ExecutionSteps returns the steps of an execution in recording order.
func (er *ExecutionRepository) ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	query := `
		SELECT id, execution_id, node_id, node_name, status,
			   input, output, error, duration_ms, started_at, completed_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY seq
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution steps: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step               models.ExecutionStep
			inputJSON, outJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.NodeName,
			&step.Status,
			&inputJSON,
			&outJSON,
			&step.Error,
			&step.DurationMS,
			&step.StartedAt,
			&step.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if inputJSON != nil {
			if err := json.Unmarshal(inputJSON, &step.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
			}
		}

		if outJSON != nil {
			if err := json.Unmarshal(outJSON, &step.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// AddError appends an error record. Duplicate IDs are ignored, keeping the
// first record.
func (er *ExecutionRepository) AddError(ctx context.Context, execError *models.ExecutionError) error {
	contextJSON, err := json.Marshal(execError.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal error context: %w", err)
	}

	query := `
		INSERT INTO execution_errors (
			id, execution_id, step_id, node_id, message, error_type, context, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = er.db.ExecContext(ctx, query,
		execError.ID,
		execError.ExecutionID,
		execError.StepID,
		execError.NodeID,
		execError.Message,
		execError.Type,
		contextJSON,
		execError.OccurredAt,
	)
	if err != nil {
		return persistence.NewExecutionError("add_error", execError.ExecutionID, err)
	}

	return nil
}

// ExecutionErrors returns the errors of an execution in recording order.
func (er *ExecutionRepository) ExecutionErrors(ctx context.Context, executionID string) ([]*models.ExecutionError, error) {
	query := `
		SELECT id, execution_id, step_id, node_id, message, error_type, context, occurred_at
		FROM execution_errors
		WHERE execution_id = $1
		ORDER BY seq
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution errors: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	execErrors := make([]*models.ExecutionError, 0)

	for rows.Next() {
		var (
			execError   models.ExecutionError
			contextJSON []byte
		)

		err := rows.Scan(
			&execError.ID,
			&execError.ExecutionID,
			&execError.StepID,
			&execError.NodeID,
			&execError.Message,
			&execError.Type,
			&contextJSON,
			&execError.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution error: %w", err)
		}

		if contextJSON != nil {
			if err := json.Unmarshal(contextJSON, &execError.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal error context: %w", err)
			}
		}

		execErrors = append(execErrors, &execError)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution errors: %w", err)
	}

	return execErrors, nil
}

func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		execution models.Execution

		inputJSON, outputJSON, variablesJSON, metadataJSON, metricsJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&inputJSON,
		&outputJSON,
		&variablesJSON,
		&metadataJSON,
		&metricsJSON,
		&execution.ErrorMessage,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &execution.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &execution.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &execution.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &execution.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if metricsJSON != nil {
		if err := json.Unmarshal(metricsJSON, &execution.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return &execution, nil
}
