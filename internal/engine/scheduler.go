package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
	"github.com/linkflow-ai/linkflow-ai/pkg/expression"
)

// nodeSched is the scheduler's per-node bookkeeping for one run.
type nodeSched struct {
	node     workflowmodel.Node
	incoming []workflowmodel.Connection
	outgoing []workflowmodel.Connection
}

// run holds everything needed to drive one workflow execution to
// completion. It exists only while its execution is active.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	execution   *execmodel.Execution
	workflow    *workflowmodel.Workflow
	errPolicy   workflowmodel.ErrorHandlingStrategy
	gracePeriod time.Duration
	execSem     chan struct{}

	mu          sync.Mutex
	nodes       map[string]*nodeSched
	pending     map[string]int32
	inputs      map[string]map[string][]runtime.Item // nodeId -> targetInput port -> items
	outputs     map[string]map[string][]runtime.Item // nodeId -> sourceOutput port -> items
	terminal    map[string]bool
	stopped     bool
	stopReason  string
	executedIDs []string
	failedIDs   []string

	doneWG sync.WaitGroup
}

// markTerminal records that nodeID will never change state again within
// this execution, idempotently. Returns true only the first time it is
// called for a given nodeID — every doneWG.Done() call in the scheduler
// must be gated on this so a node raced between normal completion and a
// stopAll cancellation is only ever counted once.
func (r *run) markTerminal(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal[nodeID] {
		return false
	}
	r.terminal[nodeID] = true
	return true
}

// Scheduler is the graph dispatcher driving one workflow's nodes to
// completion. It dispatches nodes the instant they become ready rather
// than in strict topological stages, so branch semantics and the
// continue-policy skip cascade both fall out of one readiness rule: a
// node with zero accumulated input items across its incoming edges is
// SKIPPED instead of run.
type Scheduler struct {
	registry *runtime.Registry
	resolver credentialResolver
	parser   *expression.Parser
	tracker  *Tracker
	bus      *EventBus
	pool     *WorkerPool
	persist  *Persistence

	mu   sync.Mutex
	runs map[string]*run
}

// credentialResolver is the narrow slice of credential.Resolver the
// scheduler depends on; declared locally so internal/engine doesn't
// import internal/credential directly and invert the wiring direction
// the top-level Engine is responsible for (it constructs the real
// resolver and hands it in here as this interface).
type credentialResolver interface {
	ResolveAll(ctx context.Context, node workflowmodel.Node) (map[string]interface{}, error)
}

func NewScheduler(registry *runtime.Registry, resolver credentialResolver, parser *expression.Parser, tracker *Tracker, bus *EventBus, pool *WorkerPool, persist *Persistence) *Scheduler {
	return &Scheduler{
		registry: registry,
		resolver: resolver,
		parser:   parser,
		tracker:  tracker,
		bus:      bus,
		pool:     pool,
		persist:  persist,
		runs:     make(map[string]*run),
	}
}

// Result is handed back to the Execution Façade as the unified outcome
// of either a full-workflow or single-node run.
type Result struct {
	ExecutionID   string
	Status        execmodel.ExecutionStatus
	ExecutedNodes []string
	FailedNodes   []string
	Duration      time.Duration
	HasFailures   bool
	// Partial is true only when the run ended in error under a continue
	// error policy, i.e. one or more nodes failed but the workflow kept
	// going and other nodes still completed. Under the stop policy a
	// node failure always leaves Partial false, even if earlier nodes
	// already succeeded, since the run was not meant to survive it.
	Partial bool
}

// affectedNodes computes the BFS-reachable set from triggerNodeID over
// outgoing connections. Cycles are tolerated: the visited set ensures
// each node id is enumerated at most once.
func affectedNodes(wf *workflowmodel.Workflow, triggerNodeID string) []string {
	visited := map[string]bool{triggerNodeID: true}
	order := []string{triggerNodeID}
	queue := []string{triggerNodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, conn := range wf.Connections() {
			if conn.SourceNodeID != current || visited[conn.TargetNodeID] {
				continue
			}
			visited[conn.TargetNodeID] = true
			order = append(order, conn.TargetNodeID)
			queue = append(queue, conn.TargetNodeID)
		}
	}
	return order
}

// buildNodes constructs per-node scheduling state restricted to the
// affected subgraph, and the map of how many distinct upstream source
// nodes each node is still waiting on.
func buildNodes(wf *workflowmodel.Workflow, affected []string) (map[string]*nodeSched, map[string]int32) {
	affectedSet := make(map[string]bool, len(affected))
	for _, id := range affected {
		affectedSet[id] = true
	}

	nodes := make(map[string]*nodeSched, len(affected))
	for _, id := range affected {
		n, _ := wf.NodeByID(id)
		nodes[id] = &nodeSched{node: n}
	}

	// A connection into a node still on the depth-first path from the
	// trigger closes a cycle; it is left out so no node waits on itself.
	conns := wf.Connections()
	back, seen, onPath := map[int]bool{}, map[string]bool{}, map[string]bool{}
	var visit func(id string)
	visit = func(id string) {
		seen[id], onPath[id] = true, true
		for i, c := range conns {
			if c.SourceNodeID == id && onPath[c.TargetNodeID] {
				back[i] = true
			} else if c.SourceNodeID == id && !seen[c.TargetNodeID] {
				visit(c.TargetNodeID)
			}
		}
		onPath[id] = false
	}
	visit(affected[0])

	sources := make(map[string]map[string]bool, len(affected))
	for i, conn := range conns {
		if !affectedSet[conn.SourceNodeID] || !affectedSet[conn.TargetNodeID] || back[i] {
			continue
		}
		nodes[conn.SourceNodeID].outgoing = append(nodes[conn.SourceNodeID].outgoing, conn)
		nodes[conn.TargetNodeID].incoming = append(nodes[conn.TargetNodeID].incoming, conn)
		if sources[conn.TargetNodeID] == nil {
			sources[conn.TargetNodeID] = make(map[string]bool)
		}
		sources[conn.TargetNodeID][conn.SourceNodeID] = true
	}

	pending := make(map[string]int32, len(affected))
	for id := range nodes {
		pending[id] = int32(len(sources[id]))
	}
	return nodes, pending
}

// ExecuteWorkflow runs a workflow from triggerNodeID to completion
// (full graph mode), minting a fresh execution id.
func (s *Scheduler) ExecuteWorkflow(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}) (*Result, error) {
	return s.executeWorkflow(ctx, wf, triggerNodeID, mode, triggerData, "")
}

// ExecuteWorkflowWithID behaves like ExecuteWorkflow but runs under a
// caller-supplied execution id instead of minting a new one. This lets
// a caller that must hand the id back before the run finishes (an
// async webhook response, say) reserve it up front.
func (s *Scheduler) ExecuteWorkflowWithID(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}, executionID string) (*Result, error) {
	return s.executeWorkflow(ctx, wf, triggerNodeID, mode, triggerData, executionID)
}

func (s *Scheduler) executeWorkflow(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}, executionID string) (*Result, error) {
	var execution *execmodel.Execution
	var err error
	if executionID != "" {
		execution, err = execmodel.NewExecutionWithID(execmodel.ExecutionID(executionID), string(wf.ID()), triggerNodeID, mode, triggerData, wf.Snapshot())
	} else {
		execution, err = execmodel.NewExecution(string(wf.ID()), triggerNodeID, mode, triggerData, wf.Snapshot())
	}
	if err != nil {
		return nil, err
	}
	if err := s.persist.SaveStart(ctx, execution); err != nil {
		return nil, fmt.Errorf("persist execution start: %w", err)
	}

	start := time.Now()
	affected := affectedNodes(wf, triggerNodeID)
	settings := wf.Settings()
	nodes, pending := buildNodes(wf, affected)

	grace := time.Duration(settings.GracePeriodMs) * time.Millisecond
	if grace <= 0 {
		grace = 5 * time.Second
	}
	concurrency := settings.MaxConcurrency
	if concurrency <= 0 || concurrency > len(affected) {
		concurrency = len(affected)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	errPolicy := settings.ErrorPolicy
	if errPolicy == "" {
		errPolicy = workflowmodel.ErrorHandlingStop
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		ctx: runCtx, cancel: cancel,
		execution: execution, workflow: wf,
		errPolicy: errPolicy, gracePeriod: grace,
		execSem: make(chan struct{}, concurrency),
		nodes:   nodes, pending: pending,
		inputs: make(map[string]map[string][]runtime.Item),
		outputs: make(map[string]map[string][]runtime.Item),
		terminal: make(map[string]bool),
	}
	r.doneWG.Add(len(affected))

	s.mu.Lock()
	s.runs[string(execution.ID())] = r
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.runs, string(execution.ID()))
		s.mu.Unlock()
	}()

	s.tracker.StartExecution(string(execution.ID()), triggerNodeID, affected)
	s.bus.Publish(WorkflowTopic(string(wf.ID())), BusEvent{
		Type: EventExecutionStarted, ExecutionID: string(execution.ID()), WorkflowID: string(wf.ID()),
	})

	if settings.MaxDurationMs > 0 {
		timer := time.AfterFunc(time.Duration(settings.MaxDurationMs)*time.Millisecond, func() { s.stopAll(r, "timeout") })
		defer timer.Stop()
	}

	r.inputs[triggerNodeID] = map[string][]runtime.Item{"main": {{JSON: triggerData}}}
	s.tracker.SetQueued(string(execution.ID()), triggerNodeID)
	s.dispatchAsync(r, triggerNodeID)

	r.doneWG.Wait()
	cancel()

	return s.finish(ctx, r, start)
}

// CancelExecution requests cancellation of a running workflow
// execution. Returns false if executionID is not currently running.
func (s *Scheduler) CancelExecution(executionID string) bool {
	s.mu.Lock()
	r, ok := s.runs[executionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.stopAll(r, "cancelled")
	return true
}

// stopAll cancels the execution's context and marks every non-terminal
// affected node CANCELLED. Running nodes observe the cancelled
// AbortSignal; non-cooperating ones are force-abandoned by runNode's
// own grace-period race, not by this function.
func (s *Scheduler) stopAll(r *run, reason string) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.stopReason = reason
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.cancel()

	for _, id := range ids {
		if !r.markTerminal(id) {
			continue
		}
		s.tracker.SetCancelled(string(r.execution.ID()), id)
		s.recordNode(r, id, execmodel.NodeExecutionCancelled, nil, nil, time.Now(), time.Now())
		s.bus.Publish(ExecutionTopic(string(r.execution.ID())), BusEvent{
			Type: EventNodeFailed, ExecutionID: string(r.execution.ID()), NodeID: id,
			Data: map[string]interface{}{"status": "cancelled", "reason": reason},
		})
		r.doneWG.Done()
	}
}

// dispatchAsync bounds concurrency both per-execution (r.execSem) and
// process-wide (the WorkerPool) before running a node.
func (s *Scheduler) dispatchAsync(r *run, nodeID string) {
	go func() {
		select {
		case r.execSem <- struct{}{}:
		case <-r.ctx.Done():
			return
		}
		defer func() { <-r.execSem }()

		if err := s.pool.Acquire(r.ctx); err != nil {
			return
		}
		defer s.pool.Release()

		s.runAndRecord(r, nodeID)
	}()
}

// runAndRecord executes one ready node (or passes it through disabled)
// and applies the resulting terminal transition, then cascades
// readiness to its dependents.
func (s *Scheduler) runAndRecord(r *run, nodeID string) {
	sched := r.nodes[nodeID]
	node := sched.node
	execID := string(r.execution.ID())

	r.mu.Lock()
	inputs := r.inputs[nodeID]
	r.mu.Unlock()

	startTime := time.Now()
	s.tracker.SetRunning(execID, nodeID, startTime)
	s.bus.Publish(ExecutionTopic(execID), BusEvent{Type: EventNodeStarted, ExecutionID: execID, NodeID: nodeID})

	if node.Disabled {
		// Identity pass-through: forward each input port to the
		// same-named output port, complete immediately, but persist
		// SKIPPED so the audit trail distinguishes this from a real run.
		if !r.markTerminal(nodeID) {
			return
		}
		endTime := time.Now()
		s.tracker.SetCompleted(execID, nodeID, inputs, endTime)
		s.recordNode(r, nodeID, execmodel.NodeExecutionSkipped, flattenJSON(inputs), flattenJSON(inputs), startTime, endTime)
		s.bus.Publish(ExecutionTopic(execID), BusEvent{Type: EventNodeCompleted, ExecutionID: execID, NodeID: nodeID})
		s.cascade(r, nodeID, inputs)
		r.doneWG.Done()
		return
	}

	params, paramErr := s.resolveParams(r, nodeID, node, inputs)
	var output *runtime.ExecutionOutput
	var execErr error
	if paramErr != nil {
		execErr = paramErr
	} else {
		output, execErr = s.runNodeWithRetry(r, node, inputs, params)
	}

	if !r.markTerminal(nodeID) {
		return
	}
	endTime := time.Now()

	if execErr != nil {
		nodeErr := toNodeError(execErr)
		s.tracker.SetFailed(execID, nodeID, nodeErr, endTime)
		s.recordNode(r, nodeID, execmodel.NodeExecutionError, flattenJSON(inputs), nil, startTime, endTime)
		r.mu.Lock()
		r.failedIDs = append(r.failedIDs, nodeID)
		r.executedIDs = append(r.executedIDs, nodeID)
		r.mu.Unlock()
		s.bus.Publish(ExecutionTopic(execID), BusEvent{
			Type: EventNodeFailed, ExecutionID: execID, NodeID: nodeID,
			Data: map[string]interface{}{"message": nodeErr.Message},
		})

		if r.errPolicy == workflowmodel.ErrorHandlingStop {
			r.doneWG.Done()
			go s.stopAll(r, "node-failure")
			return
		}
		// continue policy: this node produced nothing, so its
		// dependents see zero items on every edge from it and cascade
		// to SKIPPED via the same rule branch pruning uses.
		s.cascade(r, nodeID, nil)
		r.doneWG.Done()
		return
	}

	s.tracker.SetCompleted(execID, nodeID, output.Outputs, endTime)
	s.recordNode(r, nodeID, execmodel.NodeExecutionSuccess, flattenJSON(inputs), flattenJSON(output.Outputs), startTime, endTime)
	r.mu.Lock()
	r.executedIDs = append(r.executedIDs, nodeID)
	r.outputs[nodeID] = output.Outputs
	r.mu.Unlock()
	s.bus.Publish(ExecutionTopic(execID), BusEvent{Type: EventNodeCompleted, ExecutionID: execID, NodeID: nodeID})

	s.cascade(r, nodeID, output.Outputs)
	r.doneWG.Done()
}

// cascade propagates a completed (or failed/skipped, outputs==nil) node's
// output items to its dependents, per-port: a dependent only activates
// on the ports that actually received items. A dependent whose total
// accumulated input across all its incoming edges is zero once every
// upstream source has reported in is marked SKIPPED rather than
// dispatched — this single rule implements both branch pruning and the
// continue-policy failure cascade.
func (s *Scheduler) cascade(r *run, nodeID string, outputs map[string][]runtime.Item) {
	sched := r.nodes[nodeID]
	ready := make([]string, 0)
	skipped := make([]string, 0)

	for _, conn := range sched.outgoing {
		target := conn.TargetNodeID

		r.mu.Lock()
		if r.terminal[target] {
			r.mu.Unlock()
			continue
		}
		if outputs != nil {
			if items, ok := outputs[conn.SourceOutput]; ok && len(items) > 0 {
				if r.inputs[target] == nil {
					r.inputs[target] = make(map[string][]runtime.Item)
				}
				r.inputs[target][conn.TargetInput] = append(r.inputs[target][conn.TargetInput], items...)
			}
		}
		r.pending[target]--
		isReady := r.pending[target] <= 0
		var total int
		if isReady {
			for _, items := range r.inputs[target] {
				total += len(items)
			}
		}
		r.mu.Unlock()

		if !isReady {
			continue
		}
		if total == 0 {
			skipped = append(skipped, target)
		} else {
			ready = append(ready, target)
		}
	}

	for _, target := range skipped {
		s.skipNode(r, target)
	}
	for _, target := range ready {
		s.tracker.SetQueued(string(r.execution.ID()), target)
		s.dispatchAsync(r, target)
	}
}

// skipNode marks a node SKIPPED without running it and recurses the
// cascade so a chain of dependents downstream of a pruned branch or a
// failed node all resolve to SKIPPED in one pass.
func (s *Scheduler) skipNode(r *run, nodeID string) {
	if !r.markTerminal(nodeID) {
		return
	}
	execID := string(r.execution.ID())
	now := time.Now()
	s.tracker.SetSkipped(execID, nodeID)
	s.recordNode(r, nodeID, execmodel.NodeExecutionSkipped, nil, nil, now, now)
	s.bus.Publish(ExecutionTopic(execID), BusEvent{Type: EventNodeStatusUpdate, ExecutionID: execID, NodeID: nodeID, Data: map[string]interface{}{"status": "skipped"}})
	r.doneWG.Done()
	s.cascade(r, nodeID, nil)
}

// recordNode builds and records the NodeExecution row for one terminal
// node. Execution is a shared aggregate across goroutines, so every call
// is serialized through run.mu.
func (s *Scheduler) recordNode(r *run, nodeID string, status execmodel.NodeExecutionStatus, input, output map[string]interface{}, startedAt, finishedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.execution.RecordNodeExecution(&execmodel.NodeExecution{
		NodeID: nodeID, Status: status,
		InputData: input, OutputData: output,
		StartedAt: startedAt, FinishedAt: finishedAt,
	})
}

// runNode calls the node's registered executor, racing completion against
// the workflow's grace period once the execution context is cancelled,
// so a non-cooperating node cannot keep the scheduler from finishing.
// Credential resolution happens here rather than in the registry; params
// arrive already resolved by resolveParams, which evaluates expressions
// against the run's live node-output map.
func (s *Scheduler) runNode(r *run, node workflowmodel.Node, inputs map[string][]runtime.Item, params map[string]interface{}) (*runtime.ExecutionOutput, error) {
	executor, err := s.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}

	creds, err := s.resolver.ResolveAll(r.ctx, node)
	if err != nil {
		return nil, err
	}

	execCtx := &runtime.ExecutionContext{
		ExecutionID: string(r.execution.ID()),
		WorkflowID:  string(r.workflow.ID()),
		NodeID:      node.ID,
		Mode:        string(r.execution.Mode()),
		AbortSignal: r.ctx.Done(),
	}
	input := &runtime.ExecutionInput{
		NodeID: node.ID, Parameters: params, Inputs: inputs, Credentials: creds, Context: execCtx,
	}

	type execResult struct {
		output *runtime.ExecutionOutput
		err    error
	}
	resultCh := make(chan execResult, 1)
	go func() {
		out, err := executor.Execute(r.ctx, input)
		resultCh <- execResult{out, err}
	}()

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-r.ctx.Done():
		select {
		case res := <-resultCh:
			return res.output, res.err
		case <-time.After(r.gracePeriod):
			return nil, fmt.Errorf("node %s force-abandoned after grace period", node.ID)
		}
	}
}

// runNodeWithRetry wraps runNode with the generic retry loop (retry.go)
// when the node's own parameters request it via "retryOnFail". This is a
// node-declared opt-in, distinct from continueOnFail: continueOnFail
// decides what happens to the workflow after a node gives up, retryOnFail
// decides whether the node gets more than one attempt first.
func (s *Scheduler) runNodeWithRetry(r *run, node workflowmodel.Node, inputs map[string][]runtime.Item, params map[string]interface{}) (*runtime.ExecutionOutput, error) {
	retryOnFail, _ := params["retryOnFail"].(bool)
	if !retryOnFail {
		return s.runNode(r, node, inputs, params)
	}

	cfg := DefaultRetryConfig()
	if n, ok := toPositiveInt(params["maxTries"]); ok {
		cfg.MaxAttempts = n
	}
	if n, ok := toPositiveInt(params["waitBetweenTries"]); ok {
		cfg.InitialDelay = time.Duration(n) * time.Millisecond
		cfg.MaxDelay = cfg.InitialDelay
		cfg.BackoffFactor = 1
		cfg.JitterFactor = 0
	}

	var output *runtime.ExecutionOutput
	err := Retry(r.ctx, cfg, func(ctx context.Context, attempt int) error {
		out, runErr := s.runNode(r, node, inputs, params)
		if runErr != nil {
			return runErr
		}
		output = out
		return nil
	})
	return output, err
}

// toPositiveInt accepts the numeric shapes a resolved JSON parameter may
// take (float64 from JSON decode, or a plain int) and rejects non-positive
// values so a malformed maxTries/waitBetweenTries falls back to defaults
// instead of looping zero times or sleeping forever.
func toPositiveInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return int(n), true
		}
	case int:
		if n > 0 {
			return n, true
		}
	}
	return 0, false
}

// resolveParams evaluates the node's templated parameters against an
// expression context built from this run's already-terminal node
// outputs, exposing them through the `$node`/`$input` bracket syntax.
func (s *Scheduler) resolveParams(r *run, nodeID string, node workflowmodel.Node, inputs map[string][]runtime.Item) (map[string]interface{}, error) {
	exprCtx := expression.NewContext()
	exprCtx.Execution = expression.ExecutionContext{ID: string(r.execution.ID()), Mode: string(r.execution.Mode()), Timestamp: time.Now()}
	exprCtx.Workflow = expression.WorkflowContext{ID: string(r.workflow.ID()), Name: r.workflow.Name(), Active: r.workflow.Status() == workflowmodel.WorkflowStatusActive}

	if main := inputs["main"]; len(main) > 0 {
		all := make([]interface{}, len(main))
		for i, it := range main {
			all[i] = it.JSON
		}
		exprCtx.SetInput(main[0].JSON)
		exprCtx.SetInputAll(all)
	}

	r.mu.Lock()
	for id, ports := range r.outputs {
		if items := ports["main"]; len(items) > 0 {
			exprCtx.SetNodeOutput(id, items[0].JSON)
		}
	}
	r.mu.Unlock()

	return s.parser.EvaluateTemplate(node.Parameters, exprCtx)
}

// finish aggregates the run's outcome into the Execution aggregate's
// terminal status and persists it transactionally. The persisted
// ExecutionStatus enum has no separate "partial" value — a continue-policy
// run that lost some nodes but kept others still lands on ERROR, with
// Result.Partial carrying the distinction for the façade to surface.
func (s *Scheduler) finish(ctx context.Context, r *run, start time.Time) (*Result, error) {
	r.mu.Lock()
	executed := append([]string(nil), r.executedIDs...)
	failed := append([]string(nil), r.failedIDs...)
	stopped := r.stopped
	reason := r.stopReason
	r.mu.Unlock()

	var status execmodel.ExecutionStatus
	var execErr *execmodel.ExecutionError
	switch {
	case len(failed) == 0 && !stopped:
		status = execmodel.ExecutionStatusSuccess
	case stopped && (reason == "cancelled" || reason == "timeout") && len(failed) == 0:
		// externally cancelled or timed out before any node failed
		status = execmodel.ExecutionStatusCancelled
	default:
		// a node failed under the stop policy, or under continue policy
		// one or more branches failed and the rest completed: both map
		// to ERROR, with FailedNodes/HasFailures/Partial in the façade
		// response distinguishing "everything failed" from a partial
		// outcome.
		status = execmodel.ExecutionStatusError
		execErr = &execmodel.ExecutionError{Message: "one or more nodes failed", FailedNodes: failed}
	}

	partial := status == execmodel.ExecutionStatusError && r.errPolicy == workflowmodel.ErrorHandlingContinue && len(executed) > len(failed)

	if err := r.execution.Finish(status, execErr); err != nil {
		return nil, err
	}
	if err := s.persist.FinishTransactional(ctx, r.execution); err != nil {
		return nil, fmt.Errorf("persist execution finish: %w", err)
	}

	s.tracker.MarkDone(string(r.execution.ID()))
	s.bus.Publish(WorkflowTopic(string(r.workflow.ID())), BusEvent{
		Type: EventExecutionCompleted, ExecutionID: string(r.execution.ID()), WorkflowID: string(r.workflow.ID()),
	})

	return &Result{
		ExecutionID: string(r.execution.ID()), Status: status,
		ExecutedNodes: executed, FailedNodes: failed,
		Duration: time.Since(start), HasFailures: len(failed) > 0,
		Partial: partial,
	}, nil
}

// ExecuteSingleNode runs exactly one node against caller-supplied input,
// bypassing the dependency/readiness machinery entirely. It persists
// exactly one NodeExecution plus the Execution row, and reports through
// the same Result shape as a full-workflow run.
func (s *Scheduler) ExecuteSingleNode(ctx context.Context, wf *workflowmodel.Workflow, nodeID string, inputData map[string]interface{}, paramOverrides map[string]interface{}) (*Result, error) {
	node, ok := wf.NodeByID(nodeID)
	if !ok {
		return nil, fmt.Errorf("node %s not found in workflow %s", nodeID, wf.ID())
	}

	execution, err := execmodel.NewExecution(string(wf.ID()), nodeID, execmodel.ExecutionModeSingle, inputData, wf.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := s.persist.SaveStart(ctx, execution); err != nil {
		return nil, fmt.Errorf("persist execution start: %w", err)
	}

	execID := string(execution.ID())
	s.tracker.StartExecution(execID, nodeID, []string{nodeID})
	s.bus.Publish(WorkflowTopic(string(wf.ID())), BusEvent{Type: EventExecutionStarted, ExecutionID: execID, WorkflowID: string(wf.ID())})

	params := node.Parameters
	if len(paramOverrides) > 0 {
		merged := make(map[string]interface{}, len(params)+len(paramOverrides))
		for k, v := range params {
			merged[k] = v
		}
		for k, v := range paramOverrides {
			merged[k] = v
		}
		params = merged
	}

	items := []runtime.Item{{JSON: inputData}}
	inputs := map[string][]runtime.Item{"main": items}
	startTime := time.Now()
	s.tracker.SetRunning(execID, nodeID, startTime)
	s.bus.Publish(ExecutionTopic(execID), BusEvent{Type: EventNodeStarted, ExecutionID: execID, NodeID: nodeID})

	creds, credErr := s.resolver.ResolveAll(ctx, node)
	var output *runtime.ExecutionOutput
	var execErr error
	if credErr != nil {
		execErr = credErr
	} else {
		execCtx := &runtime.ExecutionContext{ExecutionID: execID, WorkflowID: string(wf.ID()), NodeID: node.ID, Mode: string(execmodel.ExecutionModeSingle), AbortSignal: ctx.Done()}
		executor, getErr := s.registry.Get(node.Type)
		if getErr != nil {
			execErr = getErr
		} else {
			output, execErr = executor.Execute(ctx, &runtime.ExecutionInput{NodeID: nodeID, Parameters: params, Inputs: inputs, Credentials: creds, Context: execCtx})
		}
	}

	endTime := time.Now()
	status := execmodel.ExecutionStatusSuccess
	nodeStatus := execmodel.NodeExecutionSuccess
	var aggErr *execmodel.ExecutionError
	var outputData map[string]interface{}

	if execErr != nil {
		status = execmodel.ExecutionStatusError
		nodeStatus = execmodel.NodeExecutionError
		aggErr = &execmodel.ExecutionError{Message: execErr.Error(), FailedNodes: []string{nodeID}}
		s.tracker.SetFailed(execID, nodeID, toNodeError(execErr), endTime)
	} else {
		if items := output.Outputs["main"]; len(items) > 0 {
			outputData = items[0].JSON
		}
		s.tracker.SetCompleted(execID, nodeID, output.Outputs, endTime)
	}

	ne := &execmodel.NodeExecution{NodeID: nodeID, Status: nodeStatus, InputData: inputData, OutputData: outputData, StartedAt: startTime, FinishedAt: endTime}
	if execErr != nil {
		ne.Error = execmodel.NormalizeError(execErr)
	}
	_ = execution.RecordNodeExecution(ne)
	_ = execution.Finish(status, aggErr)

	if err := s.persist.FinishTransactional(ctx, execution); err != nil {
		return nil, fmt.Errorf("persist execution finish: %w", err)
	}
	s.tracker.MarkDone(execID)
	s.bus.Publish(WorkflowTopic(string(wf.ID())), BusEvent{Type: EventExecutionCompleted, ExecutionID: execID, WorkflowID: string(wf.ID())})

	result := &Result{ExecutionID: execID, Status: status, Duration: time.Since(startTime), HasFailures: execErr != nil}
	result.ExecutedNodes = []string{nodeID}
	if execErr != nil {
		result.FailedNodes = []string{nodeID}
	}
	return result, nil
}

func toNodeError(err error) *runtime.NodeError {
	if ne, ok := err.(*runtime.NodeError); ok {
		return ne
	}
	return &runtime.NodeError{Message: err.Error()}
}

// flattenJSON reduces a port map of items down to the representative
// JSON persisted on a NodeExecution row: the first item's document on
// each port, matching how resolveParams treats `$node`/`$input`
// references. Full item arrays remain available in-memory via
// run.inputs/run.outputs for the life of the execution; only the
// representative document is durable.
func flattenJSON(ports map[string][]runtime.Item) map[string]interface{} {
	if len(ports) == 0 {
		return nil
	}
	flat := make(map[string]interface{}, len(ports))
	for port, items := range ports {
		if len(items) > 0 {
			flat[port] = items[0].JSON
		}
	}
	return flat
}
