package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/cache"
)

// Tracker is the Progress Tracker: the sole authority for "is node X
// running in execution Y?". State is partitioned by
// executionId at every read and write so that two executions of the same
// workflow never observe each other's node states — the historical bug
// this component exists to make structurally impossible.
type Tracker struct {
	mu         sync.RWMutex
	executions map[string]*executionTracking

	// redisCache is an optional read-through cache for GetExecutionStatus.
	// A nil cache just means every read goes straight to the in-memory
	// map, which is already cheap; the cache only matters under many
	// concurrent progress-polling subscribers.
	redisCache *cache.RedisCache
	cacheTTL   time.Duration

	retention time.Duration
}

type executionTracking struct {
	mu            sync.Mutex
	triggerNodeID string
	affectedNodes map[string]bool
	nodeStates    map[string]*NodeState
	doneAt        *time.Time
}

// NewTracker creates a Progress Tracker. redisCache may be nil.
func NewTracker(redisCache *cache.RedisCache, retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = 60 * time.Second // EXECUTION_RETENTION_MS default
	}
	return &Tracker{
		executions: make(map[string]*executionTracking),
		redisCache: redisCache,
		cacheTTL:   2 * time.Second,
		retention:  retention,
	}
}

// StartExecution initializes every affected node to QUEUED (the trigger)
// or IDLE (everything downstream).
func (t *Tracker) StartExecution(executionID, triggerNodeID string, affectedNodes []string) {
	et := &executionTracking{
		triggerNodeID: triggerNodeID,
		affectedNodes: make(map[string]bool, len(affectedNodes)),
		nodeStates:    make(map[string]*NodeState, len(affectedNodes)),
	}
	for _, nodeID := range affectedNodes {
		et.affectedNodes[nodeID] = true
		status := NodeIdle
		if nodeID == triggerNodeID {
			status = NodeQueued
		}
		et.nodeStates[nodeID] = &NodeState{NodeID: nodeID, Status: status}
	}

	t.mu.Lock()
	t.executions[executionID] = et
	t.mu.Unlock()

	t.invalidateCache(executionID)
}

func (t *Tracker) get(executionID string) (*executionTracking, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	et, ok := t.executions[executionID]
	return et, ok
}

// SetQueued marks a node ready to dispatch but not yet running.
func (t *Tracker) SetQueued(executionID, nodeID string) {
	t.transition(executionID, nodeID, func(ns *NodeState) { ns.Status = NodeQueued })
}

// SetRunning marks a node as dispatched.
func (t *Tracker) SetRunning(executionID, nodeID string, startTime time.Time) {
	t.transition(executionID, nodeID, func(ns *NodeState) {
		ns.Status = NodeRunning
		ns.StartTime = &startTime
	})
}

// SetCompleted records a node's successful output.
func (t *Tracker) SetCompleted(executionID, nodeID string, output map[string][]runtime.Item, endTime time.Time) {
	t.transition(executionID, nodeID, func(ns *NodeState) {
		ns.Status = NodeCompleted
		ns.Output = output
		ns.EndTime = &endTime
	})
}

// SetFailed records a node's failure.
func (t *Tracker) SetFailed(executionID, nodeID string, nodeErr *runtime.NodeError, endTime time.Time) {
	t.transition(executionID, nodeID, func(ns *NodeState) {
		ns.Status = NodeFailed
		ns.Error = nodeErr
		ns.EndTime = &endTime
	})
}

// SetCancelled marks a node cancelled (external cancel, timeout, or a
// stop-policy cascade from a sibling failure).
func (t *Tracker) SetCancelled(executionID, nodeID string) {
	t.transition(executionID, nodeID, func(ns *NodeState) {
		ns.Status = NodeCancelled
		now := time.Now()
		ns.EndTime = &now
	})
}

// SetSkipped marks a node skipped: branch pruning or a continue-policy
// cascade from an upstream failure. Disabled nodes pass through as
// completed, not skipped.
func (t *Tracker) SetSkipped(executionID, nodeID string) {
	t.transition(executionID, nodeID, func(ns *NodeState) {
		ns.Status = NodeSkipped
		now := time.Now()
		ns.EndTime = &now
	})
}

func (t *Tracker) transition(executionID, nodeID string, mutate func(*NodeState)) {
	et, ok := t.get(executionID)
	if !ok {
		return
	}
	et.mu.Lock()
	ns, exists := et.nodeStates[nodeID]
	if !exists {
		ns = &NodeState{NodeID: nodeID}
		et.nodeStates[nodeID] = ns
	}
	mutate(ns)
	et.mu.Unlock()

	t.invalidateCache(executionID)
}

// IsNodeRunning returns true only if nodeId is in this execution's
// affected set and its status is RUNNING — the guard that makes
// cross-execution leakage structurally impossible.
func (t *Tracker) IsNodeRunning(executionID, nodeID string) bool {
	et, ok := t.get(executionID)
	if !ok {
		return false
	}
	et.mu.Lock()
	defer et.mu.Unlock()
	if !et.affectedNodes[nodeID] {
		return false
	}
	ns, exists := et.nodeStates[nodeID]
	return exists && ns.Status == NodeRunning
}

// GetExecutionStatus returns a snapshot of every affected node's state.
// When a redis cache is configured, a cache hit skips the in-memory
// rebuild entirely.
func (t *Tracker) GetExecutionStatus(ctx context.Context, executionID string) (*ExecutionStatusView, bool) {
	if t.redisCache != nil {
		var cached ExecutionStatusView
		if err := t.redisCache.Get(ctx, cacheKey(executionID), &cached); err == nil {
			return &cached, true
		}
	}

	et, ok := t.get(executionID)
	if !ok {
		return nil, false
	}

	et.mu.Lock()
	view := &ExecutionStatusView{
		ExecutionID:   executionID,
		TriggerNodeID: et.triggerNodeID,
		Nodes:         make(map[string]NodeState, len(et.nodeStates)),
		Done:          et.doneAt != nil,
	}
	for id, ns := range et.nodeStates {
		view.Nodes[id] = *ns
	}
	et.mu.Unlock()

	if t.redisCache != nil {
		_ = t.redisCache.Set(ctx, cacheKey(executionID), view, t.cacheTTL)
	}
	return view, true
}

// MarkDone seals the execution so ClearExecution's retention sweep knows
// when the clock on eviction started.
func (t *Tracker) MarkDone(executionID string) {
	et, ok := t.get(executionID)
	if !ok {
		return
	}
	et.mu.Lock()
	now := time.Now()
	et.doneAt = &now
	et.mu.Unlock()
	t.invalidateCache(executionID)

	time.AfterFunc(t.retention, func() { t.ClearExecution(executionID) })
}

// ClearExecution releases a finished execution's in-memory state. Safe to
// call on an execution that is still running (it is a no-op until
// MarkDone has scheduled it).
func (t *Tracker) ClearExecution(executionID string) {
	t.mu.Lock()
	et, ok := t.executions[executionID]
	if ok && et.doneAt != nil {
		delete(t.executions, executionID)
	}
	t.mu.Unlock()
	t.invalidateCache(executionID)
}

func (t *Tracker) invalidateCache(executionID string) {
	if t.redisCache == nil {
		return
	}
	_ = t.redisCache.Delete(context.Background(), cacheKey(executionID))
}

func cacheKey(executionID string) string {
	return fmt.Sprintf("progress:%s", executionID)
}
