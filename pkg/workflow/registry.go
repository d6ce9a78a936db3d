package workflow

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/flowion-ai/flowion/pkg/models"
)

// liveExecution tracks one in-flight run: its cancellable context, the
// cooperative pause gate and the authoritative execution record. The
// record here leads; persistence trails it.
type liveExecution struct {
	mu        sync.Mutex
	id        string
	execution *models.Execution
	ctx       context.Context
	cancel    context.CancelFunc
	resumeCh  chan struct{} // non-nil while paused
	stopped   bool
}

func newLiveExecution(ctx context.Context, cancel context.CancelFunc, execution *models.Execution) *liveExecution {
	return &liveExecution{
		id:        execution.ID,
		execution: execution,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// pause flips the run into the paused state. ok reports whether the run
// accepts pause requests at all (false once stopped or terminal); changed
// reports whether this call performed the transition.
func (le *liveExecution) pause() (ok, changed bool) {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.stopped || le.execution.Status.IsTerminal() {
		return false, false
	}

	if le.resumeCh != nil {
		return true, false
	}

	le.resumeCh = make(chan struct{})
	le.execution.Status = models.ExecutionStatusPaused

	return true, true
}

// resume releases a paused run. Resuming a run that is not paused is a
// no-op reported as ok.
func (le *liveExecution) resume() (ok, changed bool) {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.stopped || le.execution.Status.IsTerminal() {
		return false, false
	}

	if le.resumeCh == nil {
		return true, false
	}

	close(le.resumeCh)
	le.resumeCh = nil
	le.execution.Status = models.ExecutionStatusRunning

	return true, true
}

// stop cancels the run context. Only the first call reports true; the
// driver observes the cancellation and finalizes the run as cancelled.
// Stopping also releases a pending pause so the driver can wind down.
func (le *liveExecution) stop() bool {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.stopped || le.execution.Status.IsTerminal() {
		return false
	}

	le.stopped = true

	if le.resumeCh != nil {
		close(le.resumeCh)
		le.resumeCh = nil
	}

	le.cancel()

	return true
}

// waitIfPaused blocks while the run is paused. It returns the run
// context's error, non-nil when the run was stopped rather than resumed.
func (le *liveExecution) waitIfPaused() error {
	le.mu.Lock()
	resumeCh := le.resumeCh
	le.mu.Unlock()

	if resumeCh == nil {
		return le.ctx.Err()
	}

	select {
	case <-resumeCh:
	case <-le.ctx.Done():
	}

	return le.ctx.Err()
}

// update applies fn to the execution record under the lock.
func (le *liveExecution) update(fn func(execution *models.Execution)) {
	le.mu.Lock()
	defer le.mu.Unlock()

	fn(le.execution)
}

// status returns the current lifecycle status.
func (le *liveExecution) status() models.ExecutionStatus {
	le.mu.Lock()
	defer le.mu.Unlock()

	return le.execution.Status
}

// snapshot returns a copy of the execution record that is safe to hand
// out. Top-level maps are cloned so later checkpoint writes do not race
// with readers.
func (le *liveExecution) snapshot() *models.Execution {
	le.mu.Lock()
	defer le.mu.Unlock()

	copied := *le.execution
	copied.Input = maps.Clone(le.execution.Input)
	copied.Output = maps.Clone(le.execution.Output)
	copied.Variables = maps.Clone(le.execution.Variables)
	copied.Metadata = maps.Clone(le.execution.Metadata)

	return &copied
}

// executionRegistry tracks live executions by ID. For anything still in
// flight it is the authoritative view; runs are removed only after their
// terminal state has been written out.
type executionRegistry struct {
	mu    sync.RWMutex
	items map[string]*liveExecution
}

func newExecutionRegistry() *executionRegistry {
	return &executionRegistry{items: make(map[string]*liveExecution)}
}

func (r *executionRegistry) register(le *liveExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[le.id]; exists {
		return fmt.Errorf("%w: '%s'", ErrDuplicateExecution, le.id)
	}

	r.items[le.id] = le

	return nil
}

func (r *executionRegistry) get(executionID string) (*liveExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	le, ok := r.items[executionID]

	return le, ok
}

func (r *executionRegistry) remove(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, executionID)
}

// running returns snapshots of every live execution, sorted by ID.
func (r *executionRegistry) running() []*models.Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*models.Execution, 0, len(r.items))
	for _, le := range r.items {
		executions = append(executions, le.snapshot())
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].ID < executions[j].ID
	})

	return executions
}

// all returns the live executions themselves, for shutdown.
func (r *executionRegistry) all() []*liveExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*liveExecution, 0, len(r.items))
	for _, le := range r.items {
		items = append(items, le)
	}

	return items
}
