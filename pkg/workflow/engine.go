package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/flowion-ai/flowion/pkg/eventbus"
	"github.com/flowion-ai/flowion/pkg/events"
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/registry"
)

// DefaultMaxConcurrentRuns bounds the number of executions one engine
// drives at a time.
const DefaultMaxConcurrentRuns = 64

// mainPort is the conventional port data flows through when nothing more
// specific is configured.
const mainPort = "main"

// Engine loads published workflows, validates them and runs them on a
// shared worker pool. One engine instance serves many concurrent
// executions; progress is reported through the execution repository and
// the event bus.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	executions  *executionRegistry
	runs        *errgroup.Group
}

// EngineConfig tunes an Engine. The zero value gives working defaults.
type EngineConfig struct {
	// MaxConcurrentRuns bounds concurrently running executions.
	// Defaults to DefaultMaxConcurrentRuns.
	MaxConcurrentRuns int

	// Tracer records run spans. Defaults to a no-op tracer.
	Tracer trace.Tracer
}

func NewEngine(logger *slog.Logger, persist persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus, config EngineConfig) *Engine {
	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("flowion.engine")
	}

	runs := &errgroup.Group{}
	runs.SetLimit(config.MaxConcurrentRuns)

	return &Engine{
		logger:      logger.With(slog.String("component", "engine")),
		persistence: persist,
		registry:    reg,
		eventBus:    bus,
		tracer:      config.Tracer,
		executions:  newExecutionRegistry(),
		runs:        runs,
	}
}

// StartExecution loads the published workflow, validates it, creates the
// execution record and begins traversal on the engine's worker pool. The
// execution ID is returned as soon as the run is admitted; progress is
// observable through ExecutionStatus, the step records and the event bus.
//
// A cancelled caller context does not abort admission: the run is still
// created, observes the cancellation before dispatching any node, and
// finalizes as cancelled.
func (e *Engine) StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	admitCtx := context.WithoutCancel(ctx)

	wf, err := e.persistence.WorkflowRepository().PublishedWorkflowByID(admitCtx, workflowID)
	if err != nil {
		return "", fmt.Errorf("failed to load published workflow '%s': %w", workflowID, err)
	}

	graph := NewGraph(wf)

	if err := graph.Validate(e.registry); err != nil {
		return "", err
	}

	execution := newExecution(wf, input)

	if err := e.persistence.ExecutionRepository().CreateExecution(admitCtx, execution); err != nil {
		return "", fmt.Errorf("failed to create execution record: %w", err)
	}

	// The run context outlives the caller: an admitted run only ends when
	// it finishes or is stopped. Trace context is carried over.
	runCtx, cancel := context.WithCancel(admitCtx)

	le := newLiveExecution(runCtx, cancel, execution)

	if err := e.executions.register(le); err != nil {
		cancel()

		return "", err
	}

	if ctx.Err() != nil {
		le.stop()
	}

	admitted := e.runs.TryGo(func() error {
		e.newDriver(graph, le).run()

		return nil
	})

	if !admitted {
		e.executions.remove(le.id)
		cancel()
		e.finalizeRejected(admitCtx, execution)

		return "", fmt.Errorf("%w: cannot start workflow '%s'", ErrTooManyExecutions, workflowID)
	}

	e.logger.InfoContext(ctx, "Execution started",
		slog.String("workflow_id", workflowID),
		slog.String("execution_id", execution.ID))

	return execution.ID, nil
}

// PauseExecution asks a running execution to pause at its next dispatch
// boundary. Nodes already in flight finish; nothing new is dispatched
// until ResumeExecution. Returns false when the execution is unknown,
// terminal, or already stopping; pausing an already paused execution
// returns true.
func (e *Engine) PauseExecution(ctx context.Context, executionID string) bool {
	le, found := e.executions.get(executionID)
	if !found {
		return false
	}

	ok, changed := le.pause()
	if changed {
		persistCtx := context.WithoutCancel(ctx)

		if err := e.persistence.ExecutionRepository().UpdateExecutionStatus(persistCtx, executionID, models.ExecutionStatusPaused, ""); err != nil {
			e.logger.Warn("Failed to persist paused status",
				slog.String("execution_id", executionID),
				slog.String("error", err.Error()))
		}

		e.publishStatusChange(persistCtx, le.snapshot(), models.ExecutionStatusRunning, models.ExecutionStatusPaused, "pause requested")
		e.logger.InfoContext(ctx, "Execution paused", slog.String("execution_id", executionID))
	}

	return ok
}

// ResumeExecution releases a paused execution. Returns false when the
// execution is unknown, terminal, or stopping; resuming an execution that
// is not paused returns true.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string) bool {
	le, found := e.executions.get(executionID)
	if !found {
		return false
	}

	ok, changed := le.resume()
	if changed {
		persistCtx := context.WithoutCancel(ctx)

		if err := e.persistence.ExecutionRepository().UpdateExecutionStatus(persistCtx, executionID, models.ExecutionStatusRunning, ""); err != nil {
			e.logger.Warn("Failed to persist resumed status",
				slog.String("execution_id", executionID),
				slog.String("error", err.Error()))
		}

		e.publishStatusChange(persistCtx, le.snapshot(), models.ExecutionStatusPaused, models.ExecutionStatusRunning, "resume requested")
		e.logger.InfoContext(ctx, "Execution resumed", slog.String("execution_id", executionID))
	}

	return ok
}

// StopExecution cancels a live execution. The driver winds down
// asynchronously, lets in-flight nodes observe the cancellation and
// finalizes the execution as cancelled. Only the first stop of a live
// execution returns true.
func (e *Engine) StopExecution(ctx context.Context, executionID string) bool {
	le, found := e.executions.get(executionID)
	if !found {
		return false
	}

	stopped := le.stop()
	if stopped {
		e.logger.InfoContext(ctx, "Execution stop requested", slog.String("execution_id", executionID))
	}

	return stopped
}

// ExecutionStatus returns the current status of an execution, consulting
// live state first and the execution repository for finished runs.
func (e *Engine) ExecutionStatus(ctx context.Context, executionID string) (models.ExecutionStatus, error) {
	if le, found := e.executions.get(executionID); found {
		return le.status(), nil
	}

	execution, err := e.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return "", err
	}

	return execution.Status, nil
}

// ExecutionByID returns the execution record, live view first.
func (e *Engine) ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error) {
	if le, found := e.executions.get(executionID); found {
		return le.snapshot(), nil
	}

	return e.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
}

// ExecutionSteps returns the recorded steps of an execution.
func (e *Engine) ExecutionSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	return e.persistence.ExecutionRepository().ExecutionSteps(ctx, executionID)
}

// ExecutionErrors returns the recorded errors of an execution.
func (e *Engine) ExecutionErrors(ctx context.Context, executionID string) ([]*models.ExecutionError, error) {
	return e.persistence.ExecutionRepository().ExecutionErrors(ctx, executionID)
}

// RunningExecutions returns a snapshot of every execution the engine is
// currently driving, sorted by execution ID.
func (e *Engine) RunningExecutions() []*models.Execution {
	return e.executions.running()
}

// SaveSnapshot records a checkpoint for a live execution under the
// "checkpoint" metadata key and persists the updated record. It
// implements protocol.Snapshotter for checkpoint nodes.
func (e *Engine) SaveSnapshot(ctx context.Context, executionID, nodeID string, state models.ExecutionState) error {
	le, found := e.executions.get(executionID)
	if !found {
		return fmt.Errorf("%w: '%s'", persistence.ErrExecutionNotFound, executionID)
	}

	le.update(func(execution *models.Execution) {
		if execution.Metadata == nil {
			execution.Metadata = map[string]any{}
		}

		execution.Metadata["checkpoint"] = map[string]any{
			"node_id":      nodeID,
			"variables":    state.Variables,
			"node_outputs": state.NodeOutputs,
			"metadata":     state.Metadata,
			"saved_at":     time.Now().UTC().Format(time.RFC3339),
		}
	})

	return e.persistence.ExecutionRepository().UpdateExecution(context.WithoutCancel(ctx), le.snapshot())
}

// Close stops every live execution and waits for the drivers to finish
// writing their terminal state, or until ctx expires.
func (e *Engine) Close(ctx context.Context) error {
	for _, le := range e.executions.all() {
		le.stop()
	}

	done := make(chan struct{})

	go func() {
		_ = e.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finalizeRejected marks an execution that was never admitted to the
// worker pool as failed.
func (e *Engine) finalizeRejected(ctx context.Context, execution *models.Execution) {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = ErrTooManyExecutions.Error()
	execution.CompletedAt = &now
	execution.Metrics.DurationMS = now.Sub(execution.StartedAt).Milliseconds()

	if err := e.persistence.ExecutionRepository().UpdateExecution(ctx, execution); err != nil {
		e.logger.Warn("Failed to record rejected execution",
			slog.String("execution_id", execution.ID),
			slog.String("error", err.Error()))
	}

	e.publishStatusChange(ctx, execution, models.ExecutionStatusRunning, models.ExecutionStatusFailed, ErrTooManyExecutions.Error())
}

func (e *Engine) publishStatusChange(ctx context.Context, execution *models.Execution, oldStatus, newStatus models.ExecutionStatus, reason string) {
	if e.eventBus == nil {
		return
	}

	event := events.ExecutionStatusChanged{
		BaseEvent: events.NewBaseEvent(events.ExecutionStatusChangedEvent, execution.WorkflowID, execution.ID),
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
	}

	if err := e.eventBus.Publish(ctx, execution.ID, event); err != nil {
		e.logger.Warn("Failed to publish status change",
			slog.String("execution_id", execution.ID),
			slog.String("new_status", string(newStatus)),
			slog.String("error", err.Error()))
	}
}

// newExecution builds the initial execution record for a workflow run.
// Input and variables are normalized to non-nil maps so template and
// expression evaluation never see a nil map.
func newExecution(wf *models.Workflow, input map[string]any) *models.Execution {
	if input == nil {
		input = map[string]any{}
	}

	variables := maps.Clone(wf.Variables)
	if variables == nil {
		variables = map[string]any{}
	}

	nodesTotal := 0

	for _, node := range wf.Nodes {
		if node.Enabled {
			nodesTotal++
		}
	}

	return &models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     models.ExecutionStatusRunning,
		Input:      input,
		Variables:  variables,
		Metadata:   map[string]any{},
		Metrics:    models.ExecutionMetrics{NodesTotal: nodesTotal},
		StartedAt:  time.Now().UTC(),
	}
}
