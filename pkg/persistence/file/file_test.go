package file

import (
	"path/filepath"
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	// Test with file:// prefix
	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Close(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	err := fp.Close(t.Context())
	assert.NoError(t, err)
}

func TestPersistence_HealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	assert.NoError(t, fp.HealthCheck(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestValidateStorageID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid id", "exec-12345678", false},
		{"valid uuid", "0b5ac1ee-5bd9-4d0e-b0a6-6b1ba966c0b4", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStorageID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPersistence_Repositories(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	require.NotNil(t, fp.WorkflowRepository())
	require.NotNil(t, fp.ExecutionRepository())

	// Repositories must satisfy the persistence contracts.
	var _ persistence.WorkflowRepository = fp.WorkflowRepository()

	var _ persistence.ExecutionRepository = fp.ExecutionRepository()
}

func TestWorkflowRepository_SaveAndLoad(t *testing.T) {
	testDir := t.TempDir()
	fp := NewPersistence(testDir)
	repo := fp.WorkflowRepository()

	workflow := &models.Workflow{
		ID:          "test-workflow",
		Name:        "Test Workflow",
		Description: "Linear pipeline used by repository tests",
		Status:      models.WorkflowStatusDraft,
		Nodes: []*models.WorkflowNode{
			{ID: "start-1", Type: models.NodeTypeStart, Category: models.CategoryTypeControl, Name: "Start", Enabled: true},
			{ID: "end-1", Type: models.NodeTypeEnd, Category: models.CategoryTypeControl, Name: "End", Enabled: true},
		},
		Connections: []*models.Connection{
			{ID: "conn-1", SourcePort: "start-1:main", TargetPort: "end-1:main"},
		},
	}

	err := repo.Save(t.Context(), workflow)
	require.NoError(t, err)

	// Verify file was created
	filePath := filepath.Join(testDir, "workflows", "test-workflow.json")
	assert.FileExists(t, filePath)

	loaded, err := repo.WorkflowByID(t.Context(), "test-workflow")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, models.NodeTypeStart, loaded.Nodes[0].Type)
	require.Len(t, loaded.Connections, 1)
	assert.Equal(t, "start-1:main", loaded.Connections[0].SourcePort)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestWorkflowRepository_WorkflowByID_NotFound(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	_, err := fp.WorkflowRepository().WorkflowByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_PublishedWorkflowByID(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	repo := fp.WorkflowRepository()

	draft := &models.Workflow{ID: "wf-draft", Name: "Draft Workflow", Status: models.WorkflowStatusDraft}
	require.NoError(t, repo.Save(t.Context(), draft))

	_, err := repo.PublishedWorkflowByID(t.Context(), "wf-draft")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotPublished(err))

	draft.Status = models.WorkflowStatusPublished
	require.NoError(t, repo.Save(t.Context(), draft))

	published, err := repo.PublishedWorkflowByID(t.Context(), "wf-draft")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
}

func TestWorkflowRepository_Workflows(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	repo := fp.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), &models.Workflow{ID: "wf-1", Name: "First Workflow", Status: models.WorkflowStatusDraft}))
	require.NoError(t, repo.Save(t.Context(), &models.Workflow{ID: "wf-2", Name: "Second Workflow", Status: models.WorkflowStatusPublished}))

	workflows, err := repo.Workflows(t.Context())
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	repo := fp.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), &models.Workflow{ID: "wf-1", Name: "Disposable Workflow", Status: models.WorkflowStatusDraft}))
	require.NoError(t, repo.Delete(t.Context(), "wf-1"))

	_, err := repo.WorkflowByID(t.Context(), "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	// Deleting again is not an error.
	assert.NoError(t, repo.Delete(t.Context(), "wf-1"))
}
