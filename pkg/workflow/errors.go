package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyExecutions is returned by StartExecution when the engine is
// already running its configured maximum of concurrent executions.
var ErrTooManyExecutions = errors.New("too many concurrent executions")

// ErrDuplicateExecution is returned when an execution ID is registered as
// live twice. It indicates an ID generation problem, not a caller mistake.
var ErrDuplicateExecution = errors.New("execution already registered")

// ValidationError reports every structural problem found in a workflow
// graph. It is returned synchronously by StartExecution, before any
// execution record is created.
type ValidationError struct {
	WorkflowID string
	Problems   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow '%s' is invalid: %s", e.WorkflowID, strings.Join(e.Problems, "; "))
}
