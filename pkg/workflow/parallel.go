package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/nodes/parallel"
	"github.com/flowion-ai/flowion/pkg/otelhelper"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// parallelRun tracks one parallel node's fan-out until its join
// completes. Mutated only on the driver goroutine.
type parallelRun struct {
	node       *models.WorkflowNode
	settings   parallel.Settings
	exec       models.ExecutionSettings
	step       *models.ExecutionStep
	pending    int // launched targets not yet reported
	successes  int
	needed     int // successes required by the join policy
	joined     bool
	outputs    map[string]map[string]any // target node ID -> output data
	failureMsg string
}

// targetLaunch is one fan-out target prepared for concurrent execution.
type targetLaunch struct {
	node     *models.WorkflowNode
	executor protocol.NodeExecutor
	settings models.ExecutionSettings
	step     *models.ExecutionStep
	inputs   map[string]models.NodeResult
}

// startParallel dispatches a parallel node: its main-port successors run
// concurrently, bounded by the node's max_concurrent, and the node's own
// step completes once the configured join is satisfied. The engine drives
// the fan-out itself; the parallel executor type only describes ports and
// validates configuration.
func (d *driver) startParallel(ctx context.Context, item readyNode) {
	node := item.node
	step := d.openStep(node, item.inputs)

	settings, err := parallel.ParseSettings(node.Config)
	if err != nil {
		execSettings := models.ParseExecutionSettings(node.Config)
		d.handleNodeFailure(node, step, execSettings, nil,
			fmt.Errorf("invalid parallel configuration: %w", err), time.Now().UTC())

		return
	}

	execSettings := models.ParseExecutionSettings(node.Config)

	passthrough := models.NodeResult{
		NodeID:    node.ID,
		Data:      mergedInputData(item.inputs),
		Status:    string(models.NodeStatusSuccess),
		Timestamp: time.Now().UTC(),
	}

	launches := d.collectTargets(node, settings, passthrough)

	if len(launches) == 0 {
		d.state.NodeOutputs[node.ID] = map[string]any{}
		d.closeStep(step, models.StepStatusCompleted, map[string]any{}, "", time.Now().UTC())

		return
	}

	for _, launch := range launches {
		executor, err := d.engine.registry.CreateNode(ctx, launch.node)
		if err != nil {
			message := fmt.Sprintf("cannot instantiate node '%s': %s", launch.node.ID, err)
			d.closeStep(step, models.StepStatusFailed, nil, message, time.Now().UTC())
			d.failStructural(launch.node.ID, step.ID, message)

			return
		}

		launch.executor = executor
		launch.settings = models.ParseExecutionSettings(launch.node.Config)
	}

	needed := len(launches)
	if settings.Join == parallel.JoinAny {
		needed = min(settings.AnyCount, len(launches))
	}

	run := &parallelRun{
		node:     node,
		settings: settings,
		exec:     execSettings,
		step:     step,
		pending:  len(launches),
		needed:   needed,
		outputs:  make(map[string]map[string]any),
	}

	for _, launch := range launches {
		launch.step = d.openStep(launch.node, launch.inputs)
	}

	// Targets share a read-only snapshot of the state; the traversal keeps
	// mutating its own copy while they run.
	snapshot := d.snapshotState()

	d.inflight += len(launches)

	d.logger.Debug("Dispatching parallel targets",
		slog.String("node_id", node.ID),
		slog.Int("targets", len(launches)),
		slog.String("join", string(settings.Join)))

	go func() {
		group := &errgroup.Group{}
		group.SetLimit(settings.MaxConcurrent)

		for _, launch := range launches {
			group.Go(func() error {
				d.executeTarget(ctx, run, launch, snapshot)

				return nil
			})
		}

		_ = group.Wait()
	}()
}

// collectTargets resolves the fan-out targets among the parallel node's
// successors and settles every other outgoing connection: non-main ports
// and excluded targets are pruned, nested parallel nodes fall back to the
// sequential queue, disabled targets forward their input.
func (d *driver) collectTargets(node *models.WorkflowNode, settings parallel.Settings, passthrough models.NodeResult) []*targetLaunch {
	var launches []*targetLaunch

	seen := make(map[string]bool)

	for _, conn := range d.graph.NextConnections(node.ID) {
		_, portName, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			continue
		}

		if portName != mainPort {
			d.cancelDelivery(conn)

			continue
		}

		targetID, targetPort, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			continue
		}

		if !settings.IncludesTarget(targetID) {
			d.cancelDelivery(conn)

			continue
		}

		if seen[targetID] {
			continue
		}

		seen[targetID] = true

		target := d.graph.Node(targetID)
		if target == nil {
			continue
		}

		if d.visited[targetID] {
			d.logger.Warn("Parallel target already executed, skipping",
				slog.String("node_id", targetID))

			continue
		}

		d.visited[targetID] = true
		delete(d.arrived, targetID)

		inputs := map[string]models.NodeResult{targetPort: passthrough}

		// A nested parallel node needs the driver loop; it runs from the
		// queue with its full join semantics and does not count towards
		// this node's join.
		if target.Type == models.NodeTypeParallel {
			d.queue = append(d.queue, readyNode{node: target, inputs: inputs})

			continue
		}

		if !target.Enabled {
			d.forwardDisabled(target, inputs)

			continue
		}

		launches = append(launches, &targetLaunch{node: target, inputs: inputs})
	}

	return launches
}

// executeTarget runs one fan-out target and reports its outcome to the
// driver loop. This is the only traversal code that runs off the driver
// goroutine; it touches nothing but its own launch and the shared
// snapshot.
func (d *driver) executeTarget(ctx context.Context, run *parallelRun, launch *targetLaunch, state models.ExecutionState) {
	outcome := targetOutcome{run: run, node: launch.node, step: launch.step}

	nodeCtx := ctx
	cancelNode := func() {}

	if launch.settings.TimeoutMs > 0 {
		nodeCtx, cancelNode = context.WithTimeout(ctx, time.Duration(launch.settings.TimeoutMs)*time.Millisecond)
	}

	nodeCtx, span := d.engine.tracer.Start(nodeCtx, "workflow.node",
		trace.WithAttributes(
			attribute.String(otelhelper.NodeIDKey, launch.node.ID),
			attribute.String(otelhelper.NodeTypeKey, launch.node.Type)))

	outcome.results, outcome.err = launch.executor.Execute(nodeCtx, state, launch.inputs)

	cancelNode()

	if outcome.err != nil {
		otelhelper.SetError(span, outcome.err)
	}

	span.End()

	outcome.finished = time.Now().UTC()

	// The driver drains the outcomes channel until every launched target
	// has reported, including after cancellation, so this send always
	// completes.
	d.outcomes <- outcome
}

// handleOutcome folds one target result back into the traversal on the
// driver goroutine.
func (d *driver) handleOutcome(outcome targetOutcome) {
	d.inflight--

	run := outcome.run
	run.pending--

	target := outcome.node
	settings := models.ParseExecutionSettings(target.Config)

	stampResults(target.ID, outcome.results, outcome.finished)

	failed := outcome.err != nil || failedResult(outcome.results, settings)

	switch {
	case failed && d.le.ctx.Err() != nil && outcome.err != nil:
		d.closeStep(outcome.step, models.StepStatusFailed, nil, "execution stopped", outcome.finished)
	case failed:
		message := resultError(outcome.results, settings, outcome.err)
		d.closeStep(outcome.step, models.StepStatusFailed, portPayload(outcome.results), message, outcome.finished)
		d.recordError(models.ErrorTypeNodeExecution, target.ID, outcome.step.ID,
			fmt.Sprintf("node '%s' failed: %s", target.ID, message),
			map[string]any{"node_type": target.Type, "parallel_node": run.node.ID})

		if run.exec.ContinueOnError {
			// The failed target is excluded from the join result and its
			// branch pruned; the remaining targets decide the join.
			for _, conn := range d.graph.NextConnections(target.ID) {
				d.cancelDelivery(conn)
			}
		} else {
			run.failureMsg = fmt.Sprintf("node '%s' failed: %s", target.ID, message)

			d.failed = true
			if d.failureMsg == "" {
				d.failureMsg = run.failureMsg
			}
		}
	default:
		d.applySuccess(target, outcome.step, outcome.results, outcome.finished)
		d.routeResults(target, outcome.results)

		run.successes++
		run.outputs[target.ID] = portPayload(outcome.results)
	}

	d.checkJoin(run)
}

// checkJoin closes the fan-out once its join policy is satisfied or every
// target has reported.
func (d *driver) checkJoin(run *parallelRun) {
	if run.joined {
		return
	}

	if run.settings.Join == parallel.JoinAny && run.successes >= run.needed {
		d.closeParallel(run)

		return
	}

	if run.pending == 0 {
		d.closeParallel(run)
	}
}

// closeParallel settles the parallel node's own step. Successful targets
// are merged in target ID order into the node's output; an unsatisfied
// join or a halting target failure fails the node.
func (d *driver) closeParallel(run *parallelRun) {
	run.joined = true

	finished := time.Now().UTC()

	if run.settings.Join == parallel.JoinAny && run.successes < run.needed {
		message := fmt.Sprintf("parallel join requires %d successful targets, got %d", run.needed, run.successes)
		d.closeStep(run.step, models.StepStatusFailed, nil, message, finished)
		d.recordError(models.ErrorTypeNodeExecution, run.node.ID, run.step.ID, message, nil)

		d.failed = true
		if d.failureMsg == "" {
			d.failureMsg = fmt.Sprintf("node '%s' failed: %s", run.node.ID, message)
		}

		return
	}

	if run.failureMsg != "" && !run.exec.ContinueOnError {
		d.closeStep(run.step, models.StepStatusFailed, nil, run.failureMsg, finished)

		return
	}

	merged := map[string]any{}

	for _, targetID := range sortedKeys(run.outputs) {
		data := run.outputs[targetID]
		if data == nil {
			continue
		}

		if err := mergo.Merge(&merged, data, mergo.WithOverride); err != nil {
			d.logger.Warn("Failed to merge parallel output",
				slog.String("node_id", run.node.ID),
				slog.String("target_id", targetID),
				slog.String("error", err.Error()))
		}
	}

	d.state.NodeOutputs[run.node.ID] = merged
	d.closeStep(run.step, models.StepStatusCompleted, merged, "", finished)
}

// snapshotState returns a copy of the execution state safe for concurrent
// readers. The outer node output map is cloned; completed entries are
// never mutated afterwards.
func (d *driver) snapshotState() models.ExecutionState {
	state := d.state
	state.NodeOutputs = maps.Clone(d.state.NodeOutputs)

	return state
}
