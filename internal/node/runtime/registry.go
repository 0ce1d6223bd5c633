// Package runtime provides node execution runtime
package runtime

import (
	"context"
	"fmt"
	"sync"
)

// Item is the unit nodes consume and produce: a JSON document plus
// optional binary attachments keyed by field name.
type Item struct {
	JSON   map[string]interface{} `json:"json"`
	Binary map[string]BinaryData  `json:"binary,omitempty"`
}

// BinaryData is a single binary attachment on an Item.
type BinaryData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// NodeError is the structured error a node may return instead of (or in
// addition to) a Go error. It is what gets persisted on a NodeExecution
// row.
type NodeError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func (e *NodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Logger is the execution-scoped logger handed to nodes. Nodes never log
// decrypted credential payloads; the engine's logger implementation is
// responsible for that guarantee, not this interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// ExecutionContext carries per-execution identifiers and cooperative
// cancellation down to a node's Execute call.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	Mode        string // workflow, single
	Variables   map[string]interface{}
	Env         map[string]string
	AbortSignal <-chan struct{}
	Logger      Logger
}

// ExecutionInput is the ctx a node's Execute receives. Parameters have
// already had their `{{ expression }}` forms resolved by the engine;
// Credentials are materialized objects keyed by the field name the node
// definition declared, never a hardcoded literal.
type ExecutionInput struct {
	NodeID      string
	Parameters  map[string]interface{}
	Inputs      map[string][]Item
	Credentials map[string]interface{}
	Context     *ExecutionContext
}

// Main returns the items on the conventional "main" input port, or an
// empty slice if the node has none (e.g. a trigger).
func (in *ExecutionInput) Main() []Item {
	if in == nil {
		return nil
	}
	return in.Inputs["main"]
}

// ExecutionOutput is what a node's Execute produces: items keyed by
// output port name. A node with multiple output ports (IF, Switch)
// activates only the dependents on ports that actually received items.
type ExecutionOutput struct {
	Outputs map[string][]Item
	Error   *NodeError
}

// NewOutput builds a single-port ("main") output from a slice of items.
func NewOutput(items []Item) *ExecutionOutput {
	return &ExecutionOutput{Outputs: map[string][]Item{"main": items}}
}

// NodeExecutor is the interface that all node executors must implement.
type NodeExecutor interface {
	// Execute runs the node with given input and returns output. A
	// returned error is an engine-level failure (unhandled throw); a
	// structured failure that should be recorded and handled per the
	// workflow's failure policy belongs on ExecutionOutput.Error.
	Execute(ctx context.Context, input *ExecutionInput) (*ExecutionOutput, error)

	// Validate validates the node configuration
	Validate(config map[string]interface{}) error

	// GetType returns the node type identifier
	GetType() string

	// GetMetadata returns node metadata for UI
	GetMetadata() NodeMetadata
}

// NodeMetadata contains metadata about a node type: its UI presentation
// plus the property/credential schema the definition declares.
type NodeMetadata struct {
	Type        string
	Name        string
	Description string
	Category    string
	Icon        string
	Color       string
	Version     string
	Inputs      []PortDefinition
	Outputs     []PortDefinition
	// Properties is used when the node's parameter schema is static.
	// PropertiesFunc is used instead when it must be computed lazily
	// (e.g. a form-generator node); at most one should be set. See
	// ResolveProperties.
	Properties     []PropertyDefinition
	PropertiesFunc func() []PropertyDefinition
	// CredentialTypes declares which credential-field names this node
	// accepts and what credential types satisfy each.
	CredentialTypes []CredentialTypeDeclaration
	IsTrigger       bool
	IsPremium       bool
}

// ResolveProperties materializes the property list, calling
// PropertiesFunc lazily when the node declares one instead of a static
// Properties list.
func (m NodeMetadata) ResolveProperties() []PropertyDefinition {
	if m.PropertiesFunc != nil {
		return m.PropertiesFunc()
	}
	return m.Properties
}

// CredentialTypeDeclaration is one entry in NodeMetadata.CredentialTypes.
// FieldName is the key under which the resolved credential is delivered
// in ExecutionInput.Credentials; it is never assumed by the engine to be
// any particular literal.
type CredentialTypeDeclaration struct {
	FieldName    string
	AllowedTypes []string
	Required     bool
}

// PortDefinition defines an input or output port
type PortDefinition struct {
	Name        string
	Type        string
	Required    bool
	Multiple    bool
	Description string
}

// PropertyDefinition defines a configuration property
type PropertyDefinition struct {
	Name         string
	DisplayName  string
	Type         string // string, number, bool, options, json, credential
	Required     bool
	Default      interface{}
	Description  string
	Options      []PropertyOption
	Placeholder  string
	DisplayOrder int
}

// PropertyOption for select properties
type PropertyOption struct {
	Label string
	Value interface{}
}

// Registry holds all registered node executors
type Registry struct {
	mu       sync.RWMutex
	nodes    map[string]NodeExecutor
	triggers map[string]TriggerExecutor
}

// TriggerExecutor is the interface for trigger nodes
type TriggerExecutor interface {
	NodeExecutor

	// Start starts the trigger (for polling/webhook setup)
	Start(ctx context.Context, config map[string]interface{}, callback TriggerCallback) error

	// Stop stops the trigger
	Stop(ctx context.Context) error

	// GetTriggerType returns the trigger type
	GetTriggerType() TriggerType
}

// TriggerType represents the type of trigger
type TriggerType string

const (
	TriggerTypeWebhook      TriggerType = "webhook"
	TriggerTypeSchedule     TriggerType = "schedule"
	TriggerTypeManual       TriggerType = "manual"
	TriggerTypeWorkflowCall TriggerType = "workflow-call"
)

// TriggerCallback is called when a trigger fires, carrying the raw
// triggerData the dispatcher should hand to the Execution Façade.
type TriggerCallback func(data map[string]interface{}) error

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new node registry
func NewRegistry() *Registry {
	return &Registry{
		nodes:    make(map[string]NodeExecutor),
		triggers: make(map[string]TriggerExecutor),
	}
}

// Register registers a node executor
func (r *Registry) Register(executor NodeExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodeType := executor.GetType()
	if _, exists := r.nodes[nodeType]; exists {
		return fmt.Errorf("node type '%s' already registered", nodeType)
	}

	r.nodes[nodeType] = executor

	// Also register as trigger if applicable
	if trigger, ok := executor.(TriggerExecutor); ok {
		r.triggers[nodeType] = trigger
	}

	return nil
}

// Get returns a node executor by type
func (r *Registry) Get(nodeType string) (NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.nodes[nodeType]
	if !exists {
		return nil, fmt.Errorf("node type '%s' not found", nodeType)
	}

	return executor, nil
}

// GetTrigger returns a trigger executor by type
func (r *Registry) GetTrigger(nodeType string) (TriggerExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trigger, exists := r.triggers[nodeType]
	if !exists {
		return nil, fmt.Errorf("trigger type '%s' not found", nodeType)
	}

	return trigger, nil
}

// List returns all registered node types
func (r *Registry) List() []NodeMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]NodeMetadata, 0, len(r.nodes))
	for _, executor := range r.nodes {
		result = append(result, executor.GetMetadata())
	}
	return result
}

// ListByCategory returns nodes filtered by category
func (r *Registry) ListByCategory(category string) []NodeMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []NodeMetadata
	for _, executor := range r.nodes {
		meta := executor.GetMetadata()
		if meta.Category == category {
			result = append(result, meta)
		}
	}
	return result
}

// Global registry functions

// Register registers a node executor in the global registry
func Register(executor NodeExecutor) error {
	return globalRegistry.Register(executor)
}

// Get returns a node executor from the global registry
func Get(nodeType string) (NodeExecutor, error) {
	return globalRegistry.Get(nodeType)
}

// GetTrigger returns a trigger executor from the global registry
func GetTrigger(nodeType string) (TriggerExecutor, error) {
	return globalRegistry.GetTrigger(nodeType)
}

// List returns all registered nodes from the global registry
func List() []NodeMetadata {
	return globalRegistry.List()
}

// ListByCategory returns nodes by category from the global registry
func ListByCategory(category string) []NodeMetadata {
	return globalRegistry.ListByCategory(category)
}

// Default returns the global registry instance, for callers (the engine,
// the façade) that need to pass it around explicitly instead of relying
// on package-level functions.
func Default() *Registry {
	return globalRegistry
}
