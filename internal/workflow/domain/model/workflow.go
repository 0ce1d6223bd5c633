package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Value Objects
type WorkflowID string

func NewWorkflowID() WorkflowID {
	return WorkflowID(uuid.New().String())
}

func (id WorkflowID) String() string {
	return string(id)
}

func (id WorkflowID) Validate() error {
	if id == "" {
		return errors.New("workflow ID cannot be empty")
	}
	_, err := uuid.Parse(string(id))
	return err
}

type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// ExecutionCapability distinguishes trigger nodes (entered only when the
// engine starts at them) from ordinary action nodes.
type ExecutionCapability string

const (
	ExecutionCapabilityTrigger ExecutionCapability = "trigger"
	ExecutionCapabilityAction  ExecutionCapability = "action"
)

const defaultPort = "main"

// Node is a graph vertex. Parameters may hold literal values or templated
// `{{ expression }}` strings the engine resolves before calling execute.
// Credentials maps a node-declared field name to a credential id; the
// engine never hardcodes that field name.
type Node struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"`
	Name                string                 `json:"name"`
	Position            Position               `json:"position"`
	Parameters          map[string]interface{} `json:"parameters"`
	Credentials         map[string]string      `json:"credentials"`
	Disabled            bool                   `json:"disabled"`
	ExecutionCapability ExecutionCapability    `json:"executionCapability"`
	ParentID            string                 `json:"parentId,omitempty"`
	Extent              string                 `json:"extent,omitempty"`
}

// Position is opaque UI metadata with no semantic effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connection is a directed edge between two nodes' named ports. A node's
// declared outputs must include every sourceOutput referencing it; that
// is validated against the NodeDefinition registry, not here, since the
// workflow model has no dependency on the node registry.
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	SourceOutput string `json:"sourceOutput"`
	TargetNodeID string `json:"targetNodeId"`
	TargetInput  string `json:"targetInput"`
}

// ErrorHandlingStrategy is the workflow-level failure policy.
type ErrorHandlingStrategy string

const (
	ErrorHandlingStop     ErrorHandlingStrategy = "stop"
	ErrorHandlingContinue ErrorHandlingStrategy = "continue"
)

// Settings is the workflow-level execution configuration.
type Settings struct {
	Timezone         string                `json:"timezone"`
	ExecutionOrder   string                `json:"executionOrder"`
	ErrorPolicy      ErrorHandlingStrategy `json:"errorPolicy"`
	CallerPolicy     string                `json:"callerPolicy,omitempty"`
	MaxDurationMs    int64                 `json:"maxDurationMs"`
	GracePeriodMs    int64                 `json:"gracePeriodMs"`
	MaxConcurrency   int                   `json:"maxConcurrency"`
}

// DefaultSettings returns the settings a freshly created workflow starts
// with. executionOrder "v1" is the only defined value; the engine
// accepts it as a forward-compatible enum and does not branch on it.
func DefaultSettings() Settings {
	return Settings{
		Timezone:       "UTC",
		ExecutionOrder: "v1",
		ErrorPolicy:    ErrorHandlingStop,
		MaxDurationMs:  0, // 0 == unbounded
		GracePeriodMs:  5000,
		MaxConcurrency: 0, // 0 == unbounded within the process-wide limiter
	}
}

// Workflow aggregate root. Immutable per execution via the snapshot taken
// at execution start; this in-memory aggregate is the live, editable
// version.
type Workflow struct {
	id      WorkflowID
	version int
	events  []DomainEvent

	userID      string
	name        string
	description string
	status      WorkflowStatus
	nodes       []Node
	connections []Connection
	settings    Settings
	createdAt   time.Time
	updatedAt   time.Time

	maxNodes int
}

// NewWorkflow creates a new draft workflow.
func NewWorkflow(ownerID, name, description string) (*Workflow, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID is required")
	}
	if name == "" {
		return nil, errors.New("workflow name is required")
	}

	w := &Workflow{
		id:          NewWorkflowID(),
		userID:      ownerID,
		name:        name,
		description: description,
		status:      WorkflowStatusDraft,
		nodes:       make([]Node, 0),
		connections: make([]Connection, 0),
		settings:    DefaultSettings(),
		createdAt:   time.Now(),
		updatedAt:   time.Now(),
		maxNodes:    500,
	}

	w.addEvent(WorkflowCreatedEvent{
		WorkflowID:  w.id,
		UserID:      ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   w.createdAt,
	})

	return w, nil
}

func (w *Workflow) ID() WorkflowID                { return w.id }
func (w *Workflow) UserID() string                 { return w.userID }
func (w *Workflow) Name() string                   { return w.name }
func (w *Workflow) Description() string            { return w.description }
func (w *Workflow) Status() WorkflowStatus         { return w.status }
func (w *Workflow) Nodes() []Node                  { return w.nodes }
func (w *Workflow) Connections() []Connection      { return w.connections }
func (w *Workflow) Settings() Settings             { return w.settings }
func (w *Workflow) Version() int                   { return w.version }
func (w *Workflow) CreatedAt() time.Time           { return w.createdAt }
func (w *Workflow) UpdatedAt() time.Time           { return w.updatedAt }

// NodeByID returns the node with the given id, if present.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Triggers returns every node declared as a trigger.
func (w *Workflow) Triggers() []Node {
	var triggers []Node
	for _, n := range w.nodes {
		if n.ExecutionCapability == ExecutionCapabilityTrigger {
			triggers = append(triggers, n)
		}
	}
	return triggers
}

// Activate activates the workflow. Unlike an earlier revision of this
// model, activation does not reject cyclic graphs: the scheduler (spec
// §4.6.1) tolerates cycles with a visited set, so acyclicity is not a
// data-model invariant.
func (w *Workflow) Activate() error {
	if w.status != WorkflowStatusDraft && w.status != WorkflowStatusInactive {
		return errors.New("workflow can only be activated from draft or inactive status")
	}
	if len(w.nodes) == 0 {
		return errors.New("workflow must have at least one node")
	}
	if err := w.validateConnections(); err != nil {
		return fmt.Errorf("invalid connections: %w", err)
	}
	if len(w.Triggers()) == 0 {
		return errors.New("workflow must have at least one trigger node")
	}

	w.status = WorkflowStatusActive
	w.updatedAt = time.Now()
	w.addEvent(WorkflowActivatedEvent{WorkflowID: w.id, ActivatedAt: w.updatedAt})
	return nil
}

// Deactivate deactivates the workflow.
func (w *Workflow) Deactivate() error {
	if w.status != WorkflowStatusActive {
		return errors.New("only active workflows can be deactivated")
	}
	w.status = WorkflowStatusInactive
	w.updatedAt = time.Now()
	w.addEvent(WorkflowDeactivatedEvent{WorkflowID: w.id, DeactivatedAt: w.updatedAt})
	return nil
}

// Archive archives the workflow.
func (w *Workflow) Archive() error {
	if w.status == WorkflowStatusArchived {
		return errors.New("workflow is already archived")
	}
	w.status = WorkflowStatusArchived
	w.updatedAt = time.Now()
	w.addEvent(WorkflowArchivedEvent{WorkflowID: w.id, ArchivedAt: w.updatedAt})
	return nil
}

// AddNode adds a node to the workflow.
func (w *Workflow) AddNode(node Node) error {
	if len(w.nodes) >= w.maxNodes {
		return fmt.Errorf("workflow cannot have more than %d nodes", w.maxNodes)
	}
	if w.status == WorkflowStatusArchived {
		return errors.New("cannot modify archived workflow")
	}
	for _, existing := range w.nodes {
		if existing.ID == node.ID {
			return errors.New("node with this ID already exists")
		}
	}
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if node.ExecutionCapability == "" {
		node.ExecutionCapability = ExecutionCapabilityAction
	}

	w.nodes = append(w.nodes, node)
	w.updatedAt = time.Now()
	if w.status == WorkflowStatusActive {
		w.status = WorkflowStatusDraft
	}
	w.addEvent(NodeAddedEvent{WorkflowID: w.id, Node: node, AddedAt: w.updatedAt})
	return nil
}

// RemoveNode removes a node and any connections touching it.
func (w *Workflow) RemoveNode(nodeID string) error {
	if w.status == WorkflowStatusArchived {
		return errors.New("cannot modify archived workflow")
	}

	nodeIndex := -1
	for i, node := range w.nodes {
		if node.ID == nodeID {
			nodeIndex = i
			break
		}
	}
	if nodeIndex == -1 {
		return errors.New("node not found")
	}

	w.nodes = append(w.nodes[:nodeIndex], w.nodes[nodeIndex+1:]...)

	var remaining []Connection
	for _, conn := range w.connections {
		if conn.SourceNodeID != nodeID && conn.TargetNodeID != nodeID {
			remaining = append(remaining, conn)
		}
	}
	w.connections = remaining

	w.updatedAt = time.Now()
	if w.status == WorkflowStatusActive {
		w.status = WorkflowStatusDraft
	}
	w.addEvent(NodeRemovedEvent{WorkflowID: w.id, NodeID: nodeID, RemovedAt: w.updatedAt})
	return nil
}

// AddConnection adds a directed edge between two nodes' ports. Missing
// port names default to "main".
func (w *Workflow) AddConnection(connection Connection) error {
	if w.status == WorkflowStatusArchived {
		return errors.New("cannot modify archived workflow")
	}
	if connection.SourceOutput == "" {
		connection.SourceOutput = defaultPort
	}
	if connection.TargetInput == "" {
		connection.TargetInput = defaultPort
	}

	sourceExists, targetExists := false, false
	for _, node := range w.nodes {
		if node.ID == connection.SourceNodeID {
			sourceExists = true
		}
		if node.ID == connection.TargetNodeID {
			targetExists = true
		}
	}
	if !sourceExists {
		return fmt.Errorf("source node %s not found", connection.SourceNodeID)
	}
	if !targetExists {
		return fmt.Errorf("target node %s not found", connection.TargetNodeID)
	}

	for _, existing := range w.connections {
		if existing.SourceNodeID == connection.SourceNodeID &&
			existing.TargetNodeID == connection.TargetNodeID &&
			existing.SourceOutput == connection.SourceOutput &&
			existing.TargetInput == connection.TargetInput {
			return errors.New("connection already exists")
		}
	}

	if connection.ID == "" {
		connection.ID = uuid.New().String()
	}

	w.connections = append(w.connections, connection)
	w.updatedAt = time.Now()
	if w.status == WorkflowStatusActive {
		w.status = WorkflowStatusDraft
	}
	w.addEvent(ConnectionAddedEvent{WorkflowID: w.id, Connection: connection, AddedAt: w.updatedAt})
	return nil
}

// UpdateSettings replaces the workflow's execution settings.
func (w *Workflow) UpdateSettings(settings Settings) error {
	if w.status == WorkflowStatusArchived {
		return errors.New("cannot modify archived workflow")
	}
	w.settings = settings
	w.updatedAt = time.Now()
	w.addEvent(WorkflowSettingsUpdatedEvent{WorkflowID: w.id, Settings: settings, UpdatedAt: w.updatedAt})
	return nil
}

// validateConnections checks that every connection's endpoints reference
// existing nodes. It deliberately does not reject cycles: the scheduler
// tolerates them.
func (w *Workflow) validateConnections() error {
	nodeMap := make(map[string]bool, len(w.nodes))
	for _, node := range w.nodes {
		nodeMap[node.ID] = true
	}

	for _, conn := range w.connections {
		if !nodeMap[conn.SourceNodeID] {
			return fmt.Errorf("source node %s not found", conn.SourceNodeID)
		}
		if !nodeMap[conn.TargetNodeID] {
			return fmt.Errorf("target node %s not found", conn.TargetNodeID)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the graph and settings, suitable for
// storing on an Execution row at start time.
func (w *Workflow) Snapshot() map[string]interface{} {
	nodes := make([]Node, len(w.nodes))
	copy(nodes, w.nodes)
	connections := make([]Connection, len(w.connections))
	copy(connections, w.connections)

	return map[string]interface{}{
		"id":          w.id.String(),
		"name":        w.name,
		"userId":      w.userID,
		"nodes":       nodes,
		"connections": connections,
		"settings":    w.settings,
	}
}

func (w *Workflow) addEvent(event DomainEvent) {
	w.events = append(w.events, event)
	w.version++
}

func (w *Workflow) GetUncommittedEvents() []DomainEvent {
	return w.events
}

func (w *Workflow) MarkEventsAsCommitted() {
	w.events = []DomainEvent{}
}

// ReconstructWorkflow rebuilds a workflow from persisted state.
func ReconstructWorkflow(
	id WorkflowID,
	userID string,
	name string,
	description string,
	status WorkflowStatus,
	nodes []Node,
	connections []Connection,
	settings Settings,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
) *Workflow {
	return &Workflow{
		id:          id,
		version:     version,
		userID:      userID,
		name:        name,
		description: description,
		status:      status,
		nodes:       nodes,
		connections: connections,
		settings:    settings,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		maxNodes:    500,
		events:      []DomainEvent{},
	}
}
