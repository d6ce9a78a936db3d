package queue_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/persistence/file"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/queue"
	"github.com/flowion-ai/flowion/pkg/registry"
	"github.com/flowion-ai/flowion/pkg/services"
	"github.com/flowion-ai/flowion/pkg/workflow"
)

type queueFixture struct {
	consumer *queue.Consumer
	redis    *miniredis.Miniredis
	persist  persistence.Persistence
	queue    string
}

func newQueueFixture(t *testing.T) (*queueFixture, string) {
	t.Helper()

	mr := miniredis.RunT(t)

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

	consumer := queue.NewConsumer(logger, queue.Config{Addr: mr.Addr(), Queue: "test:runs"}, engine)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = consumer.Stop(ctx)
	})

	workflows := services.NewWorkflow(persist)
	publishing := services.NewPublishing(persist, reg)

	created, err := workflows.Create(context.Background(), &models.Workflow{
		Name: "Queued Pipeline",
		Nodes: []*models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart, Name: "start", Config: map[string]any{}, Enabled: true},
			{ID: "end", Type: models.NodeTypeEnd, Name: "end", Config: map[string]any{}, Enabled: true},
		},
		Connections: []*models.Connection{
			{
				ID:         "c1",
				SourcePort: models.MakePortID("start", "main"),
				TargetPort: models.MakePortID("end", "main"),
			},
		},
	})
	require.NoError(t, err)

	_, err = publishing.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	fixture := &queueFixture{
		consumer: consumer,
		redis:    mr,
		persist:  persist,
		queue:    "test:runs",
	}

	return fixture, created.ID
}

func (f *queueFixture) push(t *testing.T, payload string) {
	t.Helper()

	_, err := f.redis.Lpush(f.queue, payload)
	require.NoError(t, err)
}

func (f *queueFixture) waitForExecution(t *testing.T, workflowID string) *models.Execution {
	t.Helper()

	var execution *models.Execution

	require.Eventually(t, func() bool {
		executions, err := f.persist.ExecutionRepository().ExecutionsByWorkflow(context.Background(), workflowID)
		if err != nil || len(executions) == 0 {
			return false
		}

		execution = executions[0]

		return true
	}, 5*time.Second, 20*time.Millisecond)

	return execution
}

func TestConsumer_StartsQueuedRun(t *testing.T) {
	f, workflowID := newQueueFixture(t)

	payload, err := json.Marshal(queue.RunRequest{
		WorkflowID: workflowID,
		Input:      map[string]any{"region": "eu"},
	})
	require.NoError(t, err)

	f.push(t, string(payload))

	require.NoError(t, f.consumer.Start(t.Context()))

	execution := f.waitForExecution(t, workflowID)
	assert.Equal(t, "eu", execution.Input["region"])
}

func TestConsumer_DropsMalformedPayloads(t *testing.T) {
	f, workflowID := newQueueFixture(t)

	// Neither garbage nor a request without a workflow ID may stall the queue.
	f.push(t, "not-json")
	f.push(t, `{"input":{"x":1}}`)
	f.push(t, `{"workflow_id":"`+workflowID+`"}`)

	require.NoError(t, f.consumer.Start(t.Context()))

	f.waitForExecution(t, workflowID)
}

func TestConsumer_ContinuesPastUnknownWorkflow(t *testing.T) {
	f, workflowID := newQueueFixture(t)

	f.push(t, `{"workflow_id":"does-not-exist"}`)
	f.push(t, `{"workflow_id":"`+workflowID+`"}`)

	require.NoError(t, f.consumer.Start(t.Context()))

	f.waitForExecution(t, workflowID)

	executions, err := f.persist.ExecutionRepository().ExecutionsByWorkflow(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestConsumer_StartFailsWithoutRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer := queue.NewConsumer(logger, queue.Config{Addr: "127.0.0.1:1"}, nil)

	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })

	err := consumer.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
