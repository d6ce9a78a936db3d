package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"execution_errors", "execution_steps", "executions", "workflow_connections", "workflow_nodes", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowion_test"),
			postgres.WithUsername("flowion"),
			postgres.WithPassword("flowion"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func agentWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          uuid.NewString(),
		Name:        "Support Triage",
		Description: "Classifies a ticket and drafts a reply",
		Nodes: []*models.WorkflowNode{
			{
				ID:       "start",
				Type:     models.NodeTypeStart,
				Category: models.CategoryTypeControl,
				Name:     "Start",
				Enabled:  true,
			},
			{
				ID:       "classify",
				Type:     models.NodeTypeLLMAgent,
				Category: models.CategoryTypeTask,
				Name:     "Classify Ticket",
				Config: map[string]any{
					"model":       "gpt-4o-mini",
					"prompt":      "Classify the ticket: {{.input.ticket}}",
					"temperature": 0.2,
				},
				Enabled:   true,
				PositionX: 300,
				PositionY: 100,
			},
			{
				ID:       "end",
				Type:     models.NodeTypeEnd,
				Category: models.CategoryTypeControl,
				Name:     "End",
				Enabled:  true,
			},
		},
		Connections: []*models.Connection{
			{ID: "conn1", SourcePort: "start:main", TargetPort: "classify:main"},
			{ID: "conn2", SourcePort: "classify:main", TargetPort: "end:main", Label: "reply"},
		},
		Variables: map[string]any{"team": "support", "max_tokens": 512},
		Metadata:  map[string]any{"version": "1.0.0"},
		Status:    models.WorkflowStatusPublished,
		Owner:     "test-user",
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_connections", "executions", "execution_steps", "execution_errors", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := agentWorkflow()

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)
	assert.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.IsZero())

	retrieved, err := p.WorkflowRepository().WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, workflow.ID, retrieved.ID)
	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, workflow.Description, retrieved.Description)
	assert.Equal(t, workflow.Status, retrieved.Status)
	assert.Equal(t, workflow.Owner, retrieved.Owner)
	assert.Len(t, retrieved.Nodes, 3)
	assert.Len(t, retrieved.Connections, 2)

	classify := retrieved.NodeByID("classify")
	require.NotNil(t, classify)
	assert.Equal(t, models.NodeTypeLLMAgent, classify.Type)
	assert.Equal(t, "gpt-4o-mini", classify.Config["model"])
	// JSON round-trips numbers as float64
	assert.Equal(t, 0.2, classify.Config["temperature"])

	// Ports are split into columns and reassembled on load
	for _, conn := range retrieved.Connections {
		switch conn.ID {
		case "conn1":
			assert.Equal(t, "start:main", conn.SourcePort)
			assert.Equal(t, "classify:main", conn.TargetPort)
		case "conn2":
			assert.Equal(t, "classify:main", conn.SourcePort)
			assert.Equal(t, "end:main", conn.TargetPort)
			assert.Equal(t, "reply", conn.Label)
		}
	}

	assert.Equal(t, float64(512), retrieved.Variables["max_tokens"])
	assert.Equal(t, "1.0.0", retrieved.Metadata["version"])

	_, err = p.WorkflowRepository().WorkflowByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestNewPersistence_UpdateWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := agentWorkflow()

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	initialUpdatedAt := workflow.UpdatedAt

	// Wait a moment to ensure different timestamp
	time.Sleep(10 * time.Millisecond)

	workflow.Name = "Support Triage v2"
	workflow.Nodes = workflow.Nodes[:2]
	workflow.Connections = workflow.Connections[:1]

	err = p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	retrieved, err := p.WorkflowRepository().WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, "Support Triage v2", retrieved.Name)
	assert.Len(t, retrieved.Nodes, 2)
	assert.Len(t, retrieved.Connections, 1)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}

func TestNewPersistence_PublishedWorkflowByID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := agentWorkflow()
	workflow.Status = models.WorkflowStatusDraft

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	_, err = p.WorkflowRepository().PublishedWorkflowByID(ctx, workflow.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotPublished(err))

	publishedAt := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &publishedAt

	err = p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	published, err := p.WorkflowRepository().PublishedWorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
}

func TestNewPersistence_DeleteWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := agentWorkflow()

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	err = p.WorkflowRepository().Delete(ctx, workflow.ID)
	require.NoError(t, err)

	_, err = p.WorkflowRepository().WorkflowByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	// Delete non-existent workflow (should not error)
	err = p.WorkflowRepository().Delete(ctx, uuid.NewString())
	assert.NoError(t, err)
}

func TestNewPersistence_ExecutionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.ExecutionRepository()
	executionID := "exec-" + uuid.NewString()[:8]

	execution := &models.Execution{
		ID:         executionID,
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusRunning,
		Input:      map[string]any{"ticket": "printer on fire"},
		StartedAt:  time.Now().UTC(),
	}

	require.NoError(t, repo.CreateExecution(ctx, execution))
	// Create is an upsert, retrying the same write must not fail
	require.NoError(t, repo.CreateExecution(ctx, execution))

	loaded, err := repo.ExecutionByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	assert.Equal(t, "printer on fire", loaded.Input["ticket"])

	// Steps come back in recording order regardless of timestamps
	for _, stepID := range []string{"step-1", "step-2", "step-3"} {
		step := &models.ExecutionStep{
			ID:          stepID,
			ExecutionID: executionID,
			NodeID:      "node-" + stepID,
			Status:      models.StepStatusRunning,
			StartedAt:   time.Now().UTC(),
		}
		require.NoError(t, repo.AddStep(ctx, step))
	}

	completedAt := time.Now().UTC()
	closing := &models.ExecutionStep{
		ID:          "step-2",
		ExecutionID: executionID,
		NodeID:      "node-step-2",
		Status:      models.StepStatusCompleted,
		Output:      map[string]any{"category": "hardware"},
		DurationMS:  42,
		StartedAt:   time.Now().UTC(),
		CompletedAt: &completedAt,
	}
	require.NoError(t, repo.UpdateStep(ctx, closing))

	steps, err := repo.ExecutionSteps(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "step-1", steps[0].ID)
	assert.Equal(t, "step-2", steps[1].ID)
	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
	assert.Equal(t, "hardware", steps[1].Output["category"])
	assert.Equal(t, "step-3", steps[2].ID)

	err = repo.UpdateStep(ctx, &models.ExecutionStep{ID: "ghost", ExecutionID: executionID})
	assert.True(t, persistence.IsStepNotFound(err))

	execError := &models.ExecutionError{
		ID:          "err-1",
		ExecutionID: executionID,
		StepID:      "step-2",
		NodeID:      "node-step-2",
		Message:     "downstream service returned 503",
		Type:        models.ErrorTypeNodeExecution,
		OccurredAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.AddError(ctx, execError))
	// Duplicate error writes keep the first record
	require.NoError(t, repo.AddError(ctx, execError))

	execErrors, err := repo.ExecutionErrors(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, execErrors, 1)
	assert.Equal(t, models.ErrorTypeNodeExecution, execErrors[0].Type)

	require.NoError(t, repo.UpdateExecutionStatus(ctx, executionID, models.ExecutionStatusFailed, "node node-step-2 failed"))

	failed, err := repo.ExecutionByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "node node-step-2 failed", failed.ErrorMessage)

	err = repo.UpdateExecutionStatus(ctx, "missing", models.ExecutionStatusCompleted, "")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestNewPersistence_ExecutionQueries(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.ExecutionRepository()
	base := time.Now().UTC()

	for i, spec := range []struct {
		id         string
		workflowID string
		status     models.ExecutionStatus
	}{
		{"exec-a", "wf-1", models.ExecutionStatusRunning},
		{"exec-b", "wf-1", models.ExecutionStatusCompleted},
		{"exec-c", "wf-2", models.ExecutionStatusRunning},
	} {
		execution := &models.Execution{
			ID:         spec.id,
			WorkflowID: spec.workflowID,
			Status:     spec.status,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateExecution(ctx, execution))
	}

	byWorkflow, err := repo.ExecutionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	// Most recent first
	assert.Equal(t, "exec-b", byWorkflow[0].ID)
	assert.Equal(t, "exec-a", byWorkflow[1].ID)

	running, err := repo.ExecutionsByStatus(ctx, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.Len(t, running, 2)

	completed, err := repo.ExecutionsByStatus(ctx, models.ExecutionStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}
