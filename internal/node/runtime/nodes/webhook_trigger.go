// Package nodes provides built-in node implementations
package nodes

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// WebhookTriggerNode marks a workflow's entry point as HTTP-driven. The
// actual HTTP listener, path registry, and authentication (Basic/Header/
// Query, credential-backed) live in internal/trigger/webhook.go (spec
// §4.7.1) — this node only declares the shape and, when fired directly
// (single-node test execution), echoes back whatever data it is handed.
type WebhookTriggerNode struct {
	mu        sync.RWMutex
	callbacks map[string]runtime.TriggerCallback
}

// NewWebhookTriggerNode creates a new webhook trigger node
func NewWebhookTriggerNode() *WebhookTriggerNode {
	return &WebhookTriggerNode{
		callbacks: make(map[string]runtime.TriggerCallback),
	}
}

// GetType returns the node type
func (n *WebhookTriggerNode) GetType() string {
	return "webhookTrigger"
}

// GetTriggerType returns the trigger type
func (n *WebhookTriggerNode) GetTriggerType() runtime.TriggerType {
	return runtime.TriggerTypeWebhook
}

// GetMetadata returns node metadata
func (n *WebhookTriggerNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "webhookTrigger",
		Name:        "Webhook",
		Description: "Trigger workflow when receiving HTTP requests",
		Category:    "trigger",
		Icon:        "webhook",
		Color:       "#9C27B0",
		Version:     "1.0.0",
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Webhook data"},
		},
		CredentialTypes: []runtime.CredentialTypeDeclaration{
			{FieldName: "authentication", AllowedTypes: []string{"httpBasicAuth", "httpHeaderAuth", "webhookQueryAuth"}, Required: false},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "httpMethod", Type: "options", Required: true, Default: "POST", Description: "HTTP method to accept", Options: []runtime.PropertyOption{
				{Label: "GET", Value: "GET"},
				{Label: "POST", Value: "POST"},
				{Label: "PUT", Value: "PUT"},
				{Label: "PATCH", Value: "PATCH"},
				{Label: "DELETE", Value: "DELETE"},
				{Label: "ANY", Value: "ANY"},
			}},
			{Name: "path", Type: "string", Description: "Custom webhook path (auto-generated if empty)"},
			{Name: "authentication", Type: "options", Default: "none", Description: "Authentication method", Options: []runtime.PropertyOption{
				{Label: "None", Value: "none"},
				{Label: "Basic Auth", Value: "basic"},
				{Label: "Header Auth", Value: "header"},
				{Label: "Query Auth", Value: "query"},
			}},
			{Name: "responseMode", Type: "options", Default: "onReceived", Description: "When to respond", Options: []runtime.PropertyOption{
				{Label: "When received", Value: "onReceived"},
				{Label: "When execution finishes", Value: "onFinished"},
			}},
			{Name: "responseCode", Type: "number", Default: 200, Description: "Response status code"},
			{Name: "responseData", Type: "string", Default: `{"success": true}`, Description: "Response body (onReceived mode)"},
		},
		IsTrigger: true,
	}
}

// Validate validates the node configuration
func (n *WebhookTriggerNode) Validate(config map[string]interface{}) error {
	return nil
}

// Execute surfaces the triggerData the dispatcher built from the inbound
// HTTP request as the single output item.
func (n *WebhookTriggerNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	items := input.Main()
	if len(items) == 0 {
		items = []runtime.Item{{JSON: map[string]interface{}{}}}
	}
	return runtime.NewOutput(items), nil
}

// Start records this workflow's callback, keyed by workflow id. The HTTP
// handler in internal/trigger/webhook.go does not call it: it starts the
// run through the façade itself once a request passes path/method/auth.
func (n *WebhookTriggerNode) Start(ctx context.Context, config map[string]interface{}, callback runtime.TriggerCallback) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	workflowID := getStringConfig(config, "workflowId", "")
	n.callbacks[workflowID] = callback
	return nil
}

// Stop does nothing: a workflow's callback stays registered until a
// later Start for the same workflow replaces it.
func (n *WebhookTriggerNode) Stop(ctx context.Context) error {
	return nil
}

// Callback returns the callback Start recorded for a workflow, if any.
// The dispatcher and webhook handler in internal/trigger do not call it.
func (n *WebhookTriggerNode) Callback(workflowID string) (runtime.TriggerCallback, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cb, ok := n.callbacks[workflowID]
	return cb, ok
}

// NewWebhookPath generates a random path segment for workflows that
// don't configure a custom one.
func NewWebhookPath() string {
	return uuid.New().String()
}

var webhookTrigger *WebhookTriggerNode

func init() {
	webhookTrigger = NewWebhookTriggerNode()
	runtime.Register(webhookTrigger)
}

// GetWebhookTrigger returns the global webhook trigger node.
func GetWebhookTrigger() *WebhookTriggerNode {
	return webhookTrigger
}
