package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowion-ai/flowion/pkg/eventbus"
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/persistence/file"
	"github.com/flowion-ai/flowion/pkg/registry"
	"github.com/flowion-ai/flowion/pkg/services"
	"github.com/flowion-ai/flowion/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, persistence.Persistence, *registry.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(logger)

	pub, sub := eventbus.NewTestGoChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub)

	runner := NewRunner("runner-test", persist, bus, logger, reg)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = runner.Close(ctx)
		_ = bus.Close()
	})

	return runner, persist, reg
}

func publishWorkflow(t *testing.T, persist persistence.Persistence, reg *registry.Registry, wf *models.Workflow) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, persist.WorkflowRepository().Save(ctx, wf))

	_, err := services.NewPublishing(persist, reg).Publish(ctx, wf.ID)
	require.NoError(t, err)
}

func TestRunner_RunCompletes(t *testing.T) {
	runner, persist, reg := newTestRunner(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	publishWorkflow(t, persist, reg, wf)

	execution, err := runner.Run(context.Background(), wf.ID, map[string]any{"user": "ada"}, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "ada", execution.Input["user"])
	assert.NotNil(t, execution.CompletedAt)

	steps, err := persist.ExecutionRepository().ExecutionSteps(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestRunner_RunFailedWorkflow(t *testing.T) {
	runner, persist, reg := newTestRunner(t)

	wf := testutil.CreateTestWorkflow()
	wf.Nodes = []*models.WorkflowNode{
		testutil.CreateTestNode(testutil.WithStartNode(), testutil.WithID("start-1")),
		testutil.CreateTestNode(
			testutil.WithID("fn-1"),
			testutil.WithType(models.NodeTypeFunction),
			testutil.WithConfig(map[string]any{"expression": "{{.broken"}),
		),
		testutil.CreateTestNode(testutil.WithEndNode(), testutil.WithID("end-1")),
	}
	wf.Connections = []*models.Connection{
		testutil.CreateTestConnection("start-1", "main", "fn-1"),
		testutil.CreateTestConnection("fn-1", "success", "end-1"),
	}

	publishWorkflow(t, persist, reg, wf)

	execution, err := runner.Run(context.Background(), wf.ID, nil, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "fn-1")
}

func TestRunner_RunUnknownWorkflow(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.Run(context.Background(), "no-such-workflow", nil, time.Second)
	require.Error(t, err)
}
