// Package services provides workflow publishing with structural validation.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/flowion-ai/flowion/pkg/workflow"
)

// Publishing handles workflow publishing. Publishing is the gate between
// building and running: only published workflows are loadable by the
// engine, and a workflow may only be published when its graph validates
// against the registered node types.
type Publishing struct {
	persistence persistence.Persistence
	resolver    workflow.TypeResolver
}

// NewPublishing creates a new workflow publishing service. The resolver is
// used to check node types at publish time; a nil resolver skips the type
// check.
func NewPublishing(persist persistence.Persistence, resolver workflow.TypeResolver) *Publishing {
	return &Publishing{persistence: persist, resolver: resolver}
}

// Publish validates the workflow and transitions it to published status.
// Graph problems surface as a *workflow.ValidationError carrying the full
// problem list. Republishing an already published workflow revalidates it
// and refreshes the publish timestamp.
func (p *Publishing) Publish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := p.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := p.validateForPublishing(wf); err != nil {
		return nil, err
	}

	if err := workflow.NewGraph(wf).Validate(p.resolver); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wf.Status = models.WorkflowStatusPublished
	wf.PublishedAt = &now
	wf.UpdatedAt = now

	if err := p.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	return wf, nil
}

// Unpublish transitions a published workflow back to unpublished, making it
// invisible to the engine without deleting it.
func (p *Publishing) Unpublish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := p.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: workflow '%s' is not published", ErrInvalidStatus, workflowID)
	}

	wf.Status = models.WorkflowStatusUnpublished
	wf.UpdatedAt = time.Now().UTC()

	if err := p.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to unpublish workflow: %w", err)
	}

	return wf, nil
}

// validateForPublishing ensures a workflow is structurally ready to be
// published.
func (p *Publishing) validateForPublishing(wf *models.Workflow) error {
	if wf == nil {
		return ErrWorkflowNil
	}

	if wf.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(wf.Nodes) == 0 {
		return ErrNodesRequired
	}

	for _, node := range wf.Nodes {
		if node.IsStart() && node.Enabled {
			return nil
		}
	}

	return ErrStartNodeRequired
}
