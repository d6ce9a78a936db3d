package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowion-ai/flowion/pkg/mocks"
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence/file"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/registry"
	"github.com/flowion-ai/flowion/pkg/workflow"
)

func newExecutionFixture(t *testing.T) (*Execution, *Publishing, *Workflow) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	engine := workflow.NewEngine(logger, persist, reg, nil, workflow.EngineConfig{})
	reg.RegisterDefaultNodes(protocol.Dependencies{Snapshotter: engine})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Close(ctx)
	})

	return NewExecution(engine, persist), NewPublishing(persist, reg), NewWorkflow(persist)
}

func TestExecution_StartAndHistory(t *testing.T) {
	executions, publishing, workflows := newExecutionFixture(t)

	created, err := workflows.Create(t.Context(), draftWorkflow("Runs"))
	require.NoError(t, err)

	_, err = publishing.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	executionID, err := executions.Start(t.Context(), created.ID, map[string]any{"x": "one"})
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	require.Eventually(t, func() bool {
		execution, err := executions.ByID(t.Context(), executionID)

		return err == nil && execution.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	steps, err := executions.Steps(t.Context(), executionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "start", steps[0].NodeID)
	assert.Equal(t, "end", steps[1].NodeID)

	execErrors, err := executions.Errors(t.Context(), executionID)
	require.NoError(t, err)
	assert.Empty(t, execErrors)

	history, err := executions.ByWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, executionID, history[0].ID)
}

func TestExecution_StartUnpublishedWorkflow(t *testing.T) {
	executions, _, workflows := newExecutionFixture(t)

	created, err := workflows.Create(t.Context(), draftWorkflow("Draft only"))
	require.NoError(t, err)

	_, err = executions.Start(t.Context(), created.ID, nil)
	require.Error(t, err)
}

func TestExecution_LifecycleUnknownExecution(t *testing.T) {
	executions, _, _ := newExecutionFixture(t)

	assert.False(t, executions.Pause(t.Context(), "missing"))
	assert.False(t, executions.Resume(t.Context(), "missing"))
	assert.False(t, executions.Stop(t.Context(), "missing"))
}

func TestExecution_ByWorkflowUnknownWorkflow(t *testing.T) {
	executions, _, _ := newExecutionFixture(t)

	_, err := executions.ByWorkflow(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestExecution_RunningEmpty(t *testing.T) {
	executions, _, _ := newExecutionFixture(t)

	assert.Empty(t, executions.Running())
}

func TestExecution_ByWorkflowStorageFailure(t *testing.T) {
	persist := mocks.NewMockPersistence()
	persist.GetMockWorkflowRepository().On("WorkflowByID", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1"}, nil)
	persist.GetMockExecutionRepository().On("ExecutionsByWorkflow", mock.Anything, "wf-1").
		Return(nil, errors.New("query timeout"))

	executions := NewExecution(nil, persist)

	_, err := executions.ByWorkflow(t.Context(), "wf-1")
	require.ErrorContains(t, err, "query timeout")
	persist.GetMockExecutionRepository().AssertExpectations(t)
}
