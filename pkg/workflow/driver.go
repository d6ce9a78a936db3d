package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowion-ai/flowion/pkg/events"
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/otelhelper"
)

// readyNode is a dispatchable unit of work: a node together with its
// merged per-port inputs.
type readyNode struct {
	node   *models.WorkflowNode
	inputs map[string]models.NodeResult
}

// targetOutcome reports the completion of one concurrently executed
// fan-out target back to the driver loop.
type targetOutcome struct {
	run      *parallelRun
	node     *models.WorkflowNode
	step     *models.ExecutionStep
	results  map[string]models.NodeResult
	err      error
	finished time.Time
}

// driver walks one workflow graph for one execution. All traversal state
// is owned by the driver goroutine; concurrent fan-out targets report
// back through the outcomes channel. Fan-in is implemented by dependency
// counting: a node dispatches once every incoming connection has either
// delivered a result or been cancelled by pruning, and a node whose
// counter drains without any contribution is abandoned, cascading the
// cancellation downstream.
type driver struct {
	engine     *Engine
	graph      *Graph
	le         *liveExecution
	logger     *slog.Logger
	persistCtx context.Context

	state    models.ExecutionState
	queue    []readyNode
	expected map[string]int
	arrived  map[string]map[string]map[string]models.NodeResult // node -> port -> source -> result
	visited  map[string]bool
	outcomes chan targetOutcome
	inflight int

	endOutputs map[string]map[string]any
	failed     bool
	failureMsg string
}

func (e *Engine) newDriver(graph *Graph, le *liveExecution) *driver {
	execution := le.snapshot()

	return &driver{
		engine: e,
		graph:  graph,
		le:     le,
		logger: e.logger.With(
			slog.String("workflow_id", execution.WorkflowID),
			slog.String("execution_id", execution.ID)),
		persistCtx: context.WithoutCancel(le.ctx),
		state: models.ExecutionState{
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			Input:       execution.Input,
			Variables:   execution.Variables,
			NodeOutputs: make(map[string]map[string]any),
			Metadata:    execution.Metadata,
		},
		expected:   make(map[string]int),
		arrived:    make(map[string]map[string]map[string]models.NodeResult),
		visited:    make(map[string]bool),
		outcomes:   make(chan targetOutcome, 8),
		endOutputs: make(map[string]map[string]any),
	}
}

// run drives the execution to a terminal state. It is the only writer of
// the terminal status; Pause, Resume and Stop influence it through the
// live execution's gate and context.
func (d *driver) run() {
	ctx, span := d.engine.tracer.Start(d.le.ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String(otelhelper.WorkflowIDKey, d.state.WorkflowID),
			attribute.String(otelhelper.ExecutionIDKey, d.state.ExecutionID)))
	defer span.End()

	d.initExpected()
	d.seedStartNodes()

	for {
		if ctx.Err() != nil {
			// Stopped. Nothing new is dispatched; in-flight targets are
			// drained so their steps close before the terminal write.
			if d.inflight == 0 {
				break
			}

			d.handleOutcome(<-d.outcomes)

			continue
		}

		if err := d.le.waitIfPaused(); err != nil {
			continue
		}

		if len(d.queue) > 0 {
			next := d.queue[0]
			d.queue = d.queue[1:]
			d.dispatch(ctx, next)

			continue
		}

		if d.inflight == 0 {
			break
		}

		select {
		case outcome := <-d.outcomes:
			d.handleOutcome(outcome)
		case <-ctx.Done():
		}
	}

	d.finalize(span)
}

// initExpected seeds the dependency counters with the number of incoming
// connections per node.
func (d *driver) initExpected() {
	for targetID, conns := range d.graph.incoming {
		if d.graph.Node(targetID) == nil {
			continue
		}

		d.expected[targetID] = len(conns)
	}
}

// seedStartNodes queues every enabled start node with the execution input
// on its main port. Disabled start nodes are abandoned so their branches
// prune cleanly.
func (d *driver) seedStartNodes() {
	for _, node := range d.graph.Workflow().Nodes {
		if !node.IsStart() {
			continue
		}

		if !node.Enabled {
			d.abandon(node.ID)

			continue
		}

		d.visited[node.ID] = true
		d.queue = append(d.queue, readyNode{
			node: node,
			inputs: map[string]models.NodeResult{
				mainPort: {
					NodeID:    node.ID,
					Data:      d.state.Input,
					Status:    string(models.NodeStatusSuccess),
					Timestamp: time.Now().UTC(),
				},
			},
		})
	}
}

func (d *driver) dispatch(ctx context.Context, item readyNode) {
	if item.node.Type == models.NodeTypeParallel {
		d.startParallel(ctx, item)

		return
	}

	d.executeNode(ctx, item)
}

// executeNode runs one regular node inline on the driver goroutine.
func (d *driver) executeNode(ctx context.Context, item readyNode) {
	node := item.node

	d.logger.Debug("Dispatching node",
		slog.String("node_id", node.ID),
		slog.String("node_type", node.Type))

	step := d.openStep(node, item.inputs)

	executor, err := d.engine.registry.CreateNode(ctx, node)
	if err != nil {
		message := fmt.Sprintf("cannot instantiate node '%s': %s", node.ID, err)
		d.closeStep(step, models.StepStatusFailed, nil, message, time.Now().UTC())
		d.failStructural(node.ID, step.ID, message)

		return
	}

	settings := models.ParseExecutionSettings(node.Config)

	nodeCtx := ctx
	cancelNode := func() {}

	if settings.TimeoutMs > 0 {
		nodeCtx, cancelNode = context.WithTimeout(ctx, time.Duration(settings.TimeoutMs)*time.Millisecond)
	}

	nodeCtx, span := d.engine.tracer.Start(nodeCtx, "workflow.node",
		trace.WithAttributes(
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, node.Type)))

	results, execErr := executor.Execute(nodeCtx, d.state, item.inputs)

	cancelNode()

	if execErr != nil {
		otelhelper.SetError(span, execErr)
	}

	span.End()

	finished := time.Now().UTC()

	stampResults(node.ID, results, finished)

	if execErr != nil || failedResult(results, settings) {
		d.handleNodeFailure(node, step, settings, results, execErr, finished)

		return
	}

	d.applySuccess(node, step, results, finished)
	d.routeResults(node, results)
}

// handleNodeFailure records a failed node and decides between halting the
// branch and continuing along the node's error port.
func (d *driver) handleNodeFailure(node *models.WorkflowNode, step *models.ExecutionStep, settings models.ExecutionSettings, results map[string]models.NodeResult, execErr error, finished time.Time) {
	if d.le.ctx.Err() != nil && execErr != nil {
		// The run is being stopped; the node's error reflects the
		// cancellation, not a failure of its own.
		d.closeStep(step, models.StepStatusFailed, nil, "execution stopped", finished)

		return
	}

	message := resultError(results, settings, execErr)
	d.closeStep(step, models.StepStatusFailed, portPayload(results), message, finished)
	d.recordError(models.ErrorTypeNodeExecution, node.ID, step.ID,
		fmt.Sprintf("node '%s' failed: %s", node.ID, message),
		map[string]any{"node_type": node.Type})

	errorConns := d.graph.ConnectionsFromPort(node.ID, settings.ErrorPort)
	if settings.ContinueOnError && len(errorConns) > 0 {
		payload := errorPayload(node.ID, results, settings, message)
		d.state.NodeOutputs[node.ID] = payload.Data

		for _, conn := range errorConns {
			d.deliver(conn, node.ID, payload)
		}

		d.cancelPortsExcept(node, settings.ErrorPort)

		d.logger.Warn("Node failed, continuing along error port",
			slog.String("node_id", node.ID),
			slog.String("error", message))

		return
	}

	// Halt: the failed branch's downstream is deliberately left
	// undelivered so nothing past the failure runs. Other branches drain
	// on their own before the run finalizes as failed.
	d.failed = true
	if d.failureMsg == "" {
		d.failureMsg = fmt.Sprintf("node '%s' failed: %s", node.ID, message)
	}
}

// applySuccess records a completed node: its merged output becomes
// visible to downstream templates, end nodes contribute to the execution
// output, and the step is closed.
func (d *driver) applySuccess(node *models.WorkflowNode, step *models.ExecutionStep, results map[string]models.NodeResult, finished time.Time) {
	d.state.NodeOutputs[node.ID] = portPayload(results)

	if node.IsEnd() {
		if result, ok := results[mainPort]; ok {
			d.endOutputs[node.ID] = result.Data
		}
	}

	d.closeStep(step, models.StepStatusCompleted, portPayload(results), "", finished)
}

// routeResults delivers each emitted port along its connections and
// cancels the connections of ports the node did not emit, pruning
// unselected branches.
func (d *driver) routeResults(node *models.WorkflowNode, results map[string]models.NodeResult) {
	for _, conn := range d.graph.NextConnections(node.ID) {
		_, portName, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			continue
		}

		result, selected := results[portName]
		if !selected {
			d.cancelDelivery(conn)

			continue
		}

		d.deliver(conn, node.ID, result)
	}
}

// cancelPortsExcept cancels every outgoing connection not leaving the
// given port.
func (d *driver) cancelPortsExcept(node *models.WorkflowNode, keepPort string) {
	for _, conn := range d.graph.NextConnections(node.ID) {
		_, portName, ok := models.ParsePortID(conn.SourcePort)
		if !ok || portName == keepPort {
			continue
		}

		d.cancelDelivery(conn)
	}
}

// deliver records one upstream contribution on the connection's target
// and completes a dependency of it.
func (d *driver) deliver(conn *models.Connection, sourceID string, result models.NodeResult) {
	targetID, portName, ok := models.ParsePortID(conn.TargetPort)
	if !ok {
		return
	}

	if d.visited[targetID] {
		d.logger.Warn("Dropping delivery to already executed node",
			slog.String("node_id", targetID),
			slog.String("source_id", sourceID))

		return
	}

	ports := d.arrived[targetID]
	if ports == nil {
		ports = make(map[string]map[string]models.NodeResult)
		d.arrived[targetID] = ports
	}

	sources := ports[portName]
	if sources == nil {
		sources = make(map[string]models.NodeResult)
		ports[portName] = sources
	}

	sources[sourceID] = result

	d.completeDependency(targetID)
}

// cancelDelivery completes a dependency of the connection's target
// without contributing data.
func (d *driver) cancelDelivery(conn *models.Connection) {
	targetID, _, ok := models.ParsePortID(conn.TargetPort)
	if !ok || d.visited[targetID] {
		return
	}

	d.completeDependency(targetID)
}

// completeDependency decrements the target's dependency counter. At zero
// the node either dispatches with whatever arrived or, when every
// upstream was pruned, is abandoned.
func (d *driver) completeDependency(targetID string) {
	d.expected[targetID]--
	if d.expected[targetID] > 0 {
		return
	}

	if len(d.arrived[targetID]) == 0 {
		d.abandon(targetID)

		return
	}

	d.enqueue(targetID)
}

func (d *driver) enqueue(targetID string) {
	node := d.graph.Node(targetID)
	if node == nil {
		return
	}

	inputs := d.mergeArrived(targetID)
	delete(d.arrived, targetID)
	d.visited[targetID] = true

	if !node.Enabled {
		d.forwardDisabled(node, inputs)

		return
	}

	d.queue = append(d.queue, readyNode{node: node, inputs: inputs})
}

// abandon marks a node skipped by pruning and cascades the cancellation
// along its outgoing connections.
func (d *driver) abandon(targetID string) {
	if d.visited[targetID] {
		return
	}

	d.visited[targetID] = true

	delete(d.arrived, targetID)

	for _, conn := range d.graph.NextConnections(targetID) {
		d.cancelDelivery(conn)
	}
}

// forwardDisabled passes a disabled node's merged input through on every
// outgoing connection without executing it or recording a step.
func (d *driver) forwardDisabled(node *models.WorkflowNode, inputs map[string]models.NodeResult) {
	d.logger.Info("Node is disabled, forwarding input",
		slog.String("node_id", node.ID))

	passthrough := models.NodeResult{
		NodeID:    node.ID,
		Data:      mergedInputData(inputs),
		Status:    string(models.NodeStatusSuccess),
		Timestamp: time.Now().UTC(),
	}

	for _, conn := range d.graph.NextConnections(node.ID) {
		d.deliver(conn, node.ID, passthrough)
	}
}

// mergeArrived folds the recorded contributions of a node into per-port
// inputs. A port fed by one source passes its result through unchanged;
// a port fed by several merges their data in source ID order, later IDs
// overriding earlier ones on key conflicts.
func (d *driver) mergeArrived(nodeID string) map[string]models.NodeResult {
	ports := d.arrived[nodeID]
	inputs := make(map[string]models.NodeResult, len(ports))

	for port, sources := range ports {
		if len(sources) == 1 {
			for _, result := range sources {
				inputs[port] = result
			}

			continue
		}

		merged := map[string]any{}

		for _, sourceID := range sortedKeys(sources) {
			data := sources[sourceID].Data
			if data == nil {
				continue
			}

			if err := mergo.Merge(&merged, data, mergo.WithOverride); err != nil {
				d.logger.Warn("Failed to merge node inputs",
					slog.String("node_id", nodeID),
					slog.String("port", port),
					slog.String("error", err.Error()))
			}
		}

		inputs[port] = models.NodeResult{
			Data:      merged,
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		}
	}

	return inputs
}

// finalize writes the terminal state. A recorded failure wins over
// cancellation; cancellation wins over the stall check; a drained
// traversal with no failures completes.
func (d *driver) finalize(span trace.Span) {
	var (
		status  models.ExecutionStatus
		message string
	)

	switch {
	case d.failed:
		status = models.ExecutionStatusFailed
		message = d.failureMsg
	case d.le.ctx.Err() != nil:
		status = models.ExecutionStatusCancelled
		message = "execution stopped"
		d.recordError(models.ErrorTypeCancellation, "", "", message, nil)
	default:
		if stalled := d.stalledNode(); stalled != "" {
			status = models.ExecutionStatusFailed
			message = fmt.Sprintf("workflow stalled: node '%s' is waiting on inputs that can never arrive", stalled)
			d.recordError(models.ErrorTypeStructural, stalled, "", message, nil)
		} else {
			status = models.ExecutionStatusCompleted
		}
	}

	output := d.mergedEndOutput()
	finished := time.Now().UTC()
	oldStatus := d.le.status()

	d.le.update(func(execution *models.Execution) {
		execution.Status = status
		execution.ErrorMessage = message
		execution.Output = output
		execution.CompletedAt = &finished
		execution.Metrics.DurationMS = finished.Sub(execution.StartedAt).Milliseconds()
	})

	if err := d.engine.persistence.ExecutionRepository().UpdateExecution(d.persistCtx, d.le.snapshot()); err != nil {
		d.logger.Warn("Failed to record terminal execution state",
			slog.String("error", err.Error()))
	}

	d.engine.executions.remove(d.state.ExecutionID)

	d.engine.publishStatusChange(d.persistCtx, d.le.snapshot(), oldStatus, status, message)

	if status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, errors.New(message))
	}

	d.logger.Info("Execution finished",
		slog.String("status", string(status)))
}

// stalledNode returns a node left with partial inputs after the traversal
// drained, the signature of a cycle reachable from a start node.
func (d *driver) stalledNode() string {
	if len(d.arrived) == 0 {
		return ""
	}

	return sortedKeys(d.arrived)[0]
}

// mergedEndOutput folds the contributions of every completed end node
// into the execution output, end node IDs in sorted order.
func (d *driver) mergedEndOutput() map[string]any {
	if len(d.endOutputs) == 0 {
		return nil
	}

	merged := map[string]any{}

	for _, nodeID := range sortedKeys(d.endOutputs) {
		data := d.endOutputs[nodeID]
		if data == nil {
			continue
		}

		if err := mergo.Merge(&merged, data, mergo.WithOverride); err != nil {
			d.logger.Warn("Failed to merge end output",
				slog.String("node_id", nodeID),
				slog.String("error", err.Error()))
		}
	}

	return merged
}

func (d *driver) openStep(node *models.WorkflowNode, inputs map[string]models.NodeResult) *models.ExecutionStep {
	step := &models.ExecutionStep{
		ID:          uuid.NewString(),
		ExecutionID: d.state.ExecutionID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		Status:      models.StepStatusRunning,
		Input:       portPayload(inputs),
		StartedAt:   time.Now().UTC(),
	}

	if err := d.engine.persistence.ExecutionRepository().AddStep(d.persistCtx, step); err != nil {
		d.logger.Warn("Failed to record step start",
			slog.String("node_id", node.ID),
			slog.String("error", err.Error()))
	}

	return step
}

func (d *driver) closeStep(step *models.ExecutionStep, status models.StepStatus, output map[string]any, errMsg string, finished time.Time) {
	step.Status = status
	step.Output = output
	step.Error = errMsg
	step.CompletedAt = &finished
	step.DurationMS = finished.Sub(step.StartedAt).Milliseconds()

	if err := d.engine.persistence.ExecutionRepository().UpdateStep(d.persistCtx, step); err != nil {
		d.logger.Warn("Failed to record step completion",
			slog.String("node_id", step.NodeID),
			slog.String("error", err.Error()))
	}

	d.le.update(func(execution *models.Execution) {
		switch status {
		case models.StepStatusCompleted:
			execution.Metrics.NodesCompleted++
		case models.StepStatusFailed:
			execution.Metrics.NodesFailed++
		case models.StepStatusRunning:
		}
	})

	d.publishStepCompleted(step)
}

func (d *driver) publishStepCompleted(step *models.ExecutionStep) {
	if d.engine.eventBus == nil {
		return
	}

	event := events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, d.state.WorkflowID, d.state.ExecutionID),
		StepID:     step.ID,
		NodeID:     step.NodeID,
		NodeName:   step.NodeName,
		Status:     step.Status,
		OutputData: step.Output,
		DurationMs: step.DurationMS,
	}

	if err := d.engine.eventBus.Publish(d.persistCtx, d.state.ExecutionID, event); err != nil {
		d.logger.Warn("Failed to publish step completion",
			slog.String("step_id", step.ID),
			slog.String("error", err.Error()))
	}
}

func (d *driver) recordError(errorType models.ErrorType, nodeID, stepID, message string, errCtx map[string]any) {
	execError := &models.ExecutionError{
		ID:          uuid.NewString(),
		ExecutionID: d.state.ExecutionID,
		StepID:      stepID,
		NodeID:      nodeID,
		Message:     message,
		Type:        errorType,
		Context:     errCtx,
		OccurredAt:  time.Now().UTC(),
	}

	if err := d.engine.persistence.ExecutionRepository().AddError(d.persistCtx, execError); err != nil {
		d.logger.Warn("Failed to record execution error",
			slog.String("node_id", nodeID),
			slog.String("error", err.Error()))
	}

	d.publishErrorRaised(execError)
}

func (d *driver) publishErrorRaised(execError *models.ExecutionError) {
	if d.engine.eventBus == nil {
		return
	}

	event := events.ExecutionErrorRaised{
		BaseEvent: events.NewBaseEvent(events.ExecutionErrorRaisedEvent, d.state.WorkflowID, d.state.ExecutionID),
		StepID:    execError.StepID,
		NodeID:    execError.NodeID,
		Message:   execError.Message,
		ErrorType: execError.Type,
	}

	if err := d.engine.eventBus.Publish(d.persistCtx, d.state.ExecutionID, event); err != nil {
		d.logger.Warn("Failed to publish error event",
			slog.String("node_id", execError.NodeID),
			slog.String("error", err.Error()))
	}
}

// failStructural records a fatal navigation failure and aborts the run.
// Structural failures bypass continue-on-error.
func (d *driver) failStructural(nodeID, stepID, message string) {
	d.recordError(models.ErrorTypeStructural, nodeID, stepID, message, nil)

	d.failed = true
	if d.failureMsg == "" {
		d.failureMsg = message
	}

	d.le.cancel()
}

// stampResults fills in the producing node and timestamp on results the
// executor left unset.
func stampResults(nodeID string, results map[string]models.NodeResult, at time.Time) {
	for port, result := range results {
		if result.NodeID == "" {
			result.NodeID = nodeID
		}

		if result.Timestamp.IsZero() {
			result.Timestamp = at
		}

		results[port] = result
	}
}

// failedResult reports whether a node signalled failure through an
// error-status result on its error port instead of returning an error.
func failedResult(results map[string]models.NodeResult, settings models.ExecutionSettings) bool {
	result, ok := results[settings.ErrorPort]

	return ok && result.Status == string(models.NodeStatusError)
}

// resultError extracts the failure message from an executor error or from
// an error-status result on the node's error port.
func resultError(results map[string]models.NodeResult, settings models.ExecutionSettings, execErr error) string {
	if execErr != nil {
		return execErr.Error()
	}

	result, ok := results[settings.ErrorPort]
	if !ok || result.Status != string(models.NodeStatusError) {
		return "node reported an error result"
	}

	if result.Error != "" {
		return result.Error
	}

	if msg, ok := result.Data["error"].(string); ok && msg != "" {
		return msg
	}

	return "node reported an error result"
}

// errorPayload is the result forwarded along error-port connections when
// a failed node continues.
func errorPayload(nodeID string, results map[string]models.NodeResult, settings models.ExecutionSettings, message string) models.NodeResult {
	if result, ok := results[settings.ErrorPort]; ok && result.Data != nil {
		return result
	}

	return models.NodeResult{
		NodeID:    nodeID,
		Data:      map[string]any{"error": message, "success": false},
		Status:    string(models.NodeStatusError),
		Timestamp: time.Now().UTC(),
	}
}

// portPayload flattens per-port results for step records and node
// outputs: a single port contributes its data directly, several ports
// are keyed by port name.
func portPayload(results map[string]models.NodeResult) map[string]any {
	if len(results) == 0 {
		return nil
	}

	if len(results) == 1 {
		for _, result := range results {
			return result.Data
		}
	}

	payload := make(map[string]any, len(results))
	for port, result := range results {
		payload[port] = result.Data
	}

	return payload
}

// mergedInputData folds every input port's data into one map, ports in
// sorted order.
func mergedInputData(inputs map[string]models.NodeResult) map[string]any {
	merged := map[string]any{}

	for _, port := range sortedKeys(inputs) {
		data := inputs[port].Data
		if data == nil {
			continue
		}

		if err := mergo.Merge(&merged, data, mergo.WithOverride); err != nil {
			continue
		}
	}

	return merged
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
