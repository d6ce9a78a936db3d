package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowion-ai/flowion/pkg/eventbus"
	"github.com/flowion-ai/flowion/pkg/events"
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/registry"
	"github.com/flowion-ai/flowion/pkg/workflow"
)

// Runner executes one published workflow in the foreground, streaming step
// events from the bus to the log as they happen.
type Runner struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	engine      *workflow.Engine

	terminal chan terminalStatus
}

type terminalStatus struct {
	executionID string
	status      models.ExecutionStatus
}

func NewRunner(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
) *Runner {
	runnerLogger := logger.With("module", "flowion-runner", "runner_id", id)

	engine := workflow.NewEngine(runnerLogger, persistence, registry, eventBus, workflow.EngineConfig{})
	registry.RegisterDefaultNodes(protocol.Dependencies{Snapshotter: engine})

	return &Runner{
		id:          id,
		logger:      runnerLogger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		engine:      engine,
		terminal:    make(chan terminalStatus, 16),
	}
}

// Run starts the workflow and blocks until it reaches a terminal status,
// the timeout passes, or the context is cancelled. The returned execution
// is the persisted record, whatever its final status.
func (r *Runner) Run(ctx context.Context, workflowID string, input map[string]any, timeout time.Duration) (*models.Execution, error) {
	if err := r.eventBus.Handle(events.StepCompletedEvent, r.handleStepCompleted); err != nil {
		return nil, err
	}

	if err := r.eventBus.Handle(events.ExecutionErrorRaisedEvent, r.handleErrorRaised); err != nil {
		return nil, err
	}

	if err := r.eventBus.Handle(events.ExecutionStatusChangedEvent, r.handleStatusChanged); err != nil {
		return nil, err
	}

	if err := r.eventBus.Subscribe(ctx); err != nil {
		return nil, err
	}

	executionID, err := r.engine.StartExecution(ctx, workflowID, input)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Execution started",
		"workflow_id", workflowID,
		"execution_id", executionID)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ts := <-r.terminal:
			if ts.executionID != executionID {
				continue
			}

			return r.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
		case <-deadline.C:
			r.engine.StopExecution(ctx, executionID)

			return nil, fmt.Errorf("execution %s did not finish within %s", executionID, timeout)
		case <-ctx.Done():
			r.engine.StopExecution(context.WithoutCancel(ctx), executionID)

			return nil, ctx.Err()
		}
	}
}

// Close drains the engine so in-flight node work finishes before exit.
func (r *Runner) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

func (r *Runner) handleStepCompleted(ctx context.Context, event any) error {
	stepEvent, ok := event.(*events.StepCompleted)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for StepCompleted")

		return nil
	}

	r.logger.InfoContext(ctx, "Step completed",
		"execution_id", stepEvent.ExecutionID,
		"node_id", stepEvent.NodeID,
		"node_name", stepEvent.NodeName,
		"status", stepEvent.Status,
		"duration_ms", stepEvent.DurationMs)

	return nil
}

func (r *Runner) handleErrorRaised(ctx context.Context, event any) error {
	errorEvent, ok := event.(*events.ExecutionErrorRaised)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for ExecutionErrorRaised")

		return nil
	}

	r.logger.WarnContext(ctx, "Execution error raised",
		"execution_id", errorEvent.ExecutionID,
		"node_id", errorEvent.NodeID,
		"error_type", errorEvent.ErrorType,
		"message", errorEvent.Message)

	return nil
}

func (r *Runner) handleStatusChanged(ctx context.Context, event any) error {
	statusEvent, ok := event.(*events.ExecutionStatusChanged)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for ExecutionStatusChanged")

		return nil
	}

	r.logger.InfoContext(ctx, "Execution status changed",
		"execution_id", statusEvent.ExecutionID,
		"old_status", statusEvent.OldStatus,
		"new_status", statusEvent.NewStatus)

	if !statusEvent.NewStatus.IsTerminal() {
		return nil
	}

	select {
	case r.terminal <- terminalStatus{executionID: statusEvent.ExecutionID, status: statusEvent.NewStatus}:
	default:
	}

	return nil
}
