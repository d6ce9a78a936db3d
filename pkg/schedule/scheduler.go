// Package schedule runs published workflows on cron schedules declared in
// workflow metadata.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// MetadataKey is the workflow metadata key holding the cron expression.
const MetadataKey = "schedule"

// Starter starts workflow executions. Implemented by *workflow.Engine.
type Starter interface {
	StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error)
}

// Scheduler dispatches StartExecution calls for published workflows that
// carry a schedule in their metadata. A workflow is scheduled while it is
// published and its metadata names a parseable cron expression; Sync
// reconciles the cron entries with the current workflow set.
type Scheduler struct {
	logger  *slog.Logger
	repo    persistence.WorkflowRepository
	starter Starter
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]string
}

func NewScheduler(logger *slog.Logger, repo persistence.WorkflowRepository, starter Starter) *Scheduler {
	scheduleLogger := logger.With("module", "scheduler")

	return &Scheduler{
		logger:  scheduleLogger,
		repo:    repo,
		starter: starter,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{scheduleLogger}),
			cron.Recover(cronLogger{scheduleLogger}),
		)),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Start performs an initial Sync and begins dispatching.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "jobs", len(s.Jobs()))

	return nil
}

// Sync reconciles cron entries with the currently published workflows.
// Invalid cron expressions are logged and skipped, never fatal.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.repo.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows for scheduling: %w", err)
	}

	desired := make(map[string]string)

	for _, wf := range workflows {
		if wf.Status != models.WorkflowStatusPublished {
			continue
		}

		spec, ok := wf.Metadata[MetadataKey].(string)
		if !ok || spec == "" {
			continue
		}

		desired[wf.ID] = spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for workflowID, entryID := range s.entries {
		if spec, ok := desired[workflowID]; ok && spec == s.specs[workflowID] {
			continue
		}

		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
		delete(s.specs, workflowID)
		s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
	}

	for workflowID, spec := range desired {
		if _, ok := s.entries[workflowID]; ok {
			continue
		}

		entryID, err := s.cron.AddFunc(spec, s.job(workflowID, spec))
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflowID, "schedule", spec, "error", err)

			continue
		}

		s.entries[workflowID] = entryID
		s.specs[workflowID] = spec
		s.logger.InfoContext(ctx, "Scheduled workflow", "workflow_id", workflowID, "schedule", spec)
	}

	return nil
}

// Jobs returns the workflow IDs with active schedules, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for workflowID := range s.entries {
		ids = append(ids, workflowID)
	}

	sort.Strings(ids)

	return ids
}

// Stop halts dispatch and waits for in-flight jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) job(workflowID, spec string) func() {
	return func() {
		input := map[string]any{
			"schedule":     spec,
			"scheduled_at": time.Now().UTC().Format(time.RFC3339),
		}

		executionID, err := s.starter.StartExecution(context.Background(), workflowID, input)
		if err != nil {
			s.logger.Error("Failed to start scheduled execution", "workflow_id", workflowID, "error", err)

			return
		}

		s.logger.Info("Started scheduled execution", "workflow_id", workflowID, "execution_id", executionID)
	}
}

// cronLogger adapts slog to the cron logging interface. Routine messages go
// to debug so steady-state scheduling stays quiet.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
