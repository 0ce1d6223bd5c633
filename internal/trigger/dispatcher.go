// Package trigger implements the Trigger Dispatcher: the component that
// turns a workflow's trigger nodes into live listeners — a registered
// webhook path, a running cron entry, a callable sub-workflow target —
// and, once one of them fires, starts a full workflow execution through
// the Execution Façade.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/linkflow-ai/linkflow-ai/internal/facade"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

// Executor is the subset of *facade.Facade the dispatcher drives. Named
// locally so tests can supply a fake.
type Executor interface {
	Execute(ctx context.Context, req facade.Request) (*facade.Response, error)
}

// webhookBinding is what the HTTP side (webhook.go) needs to route an
// inbound request: which workflow/node it belongs to, which method it
// accepts, and how to authenticate it.
type webhookBinding struct {
	workflowID     string
	nodeID         string
	method         string
	authentication string
	authConfig     map[string]interface{}
}

// Dispatcher owns the live bindings between a workflow's trigger nodes
// and the registry's TriggerExecutors. One Dispatcher serves the whole
// process; RegisterWorkflow/UnregisterWorkflow are called as workflows
// are activated/deactivated.
type Dispatcher struct {
	registry *runtime.Registry
	executor Executor
	logger   logger.Logger

	mu       sync.RWMutex
	webhooks map[string]webhookBinding // webhookId -> binding
}

// New creates a Dispatcher wired to the node registry and the façade.
func New(registry *runtime.Registry, executor Executor, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		executor: executor,
		logger:   log,
		webhooks: make(map[string]webhookBinding),
	}
}

// RegisterWorkflow starts every trigger node a workflow declares. Called
// when a workflow transitions to active.
func (d *Dispatcher) RegisterWorkflow(ctx context.Context, wf *workflowmodel.Workflow) error {
	for _, node := range wf.Triggers() {
		if node.Disabled {
			continue
		}
		if err := d.registerNode(ctx, wf, node); err != nil {
			return fmt.Errorf("register trigger %s: %w", node.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) registerNode(ctx context.Context, wf *workflowmodel.Workflow, node workflowmodel.Node) error {
	trig, err := d.registry.GetTrigger(node.Type)
	if err != nil {
		return err
	}

	config := cloneParams(node.Parameters)
	config["workflowId"] = string(wf.ID())
	config["nodeId"] = node.ID

	workflowID := string(wf.ID())
	nodeID := node.ID

	callback := func(data map[string]interface{}) error {
		_, execErr := d.executor.Execute(ctx, facade.Request{
			WorkflowID:    workflowID,
			TriggerNodeID: nodeID,
			InputData:     data,
		})
		if execErr != nil {
			d.logger.Error("trigger fired but execution failed to start",
				"workflowId", workflowID, "nodeId", nodeID, "error", execErr)
		}
		return execErr
	}

	if trig.GetTriggerType() == runtime.TriggerTypeWebhook {
		webhookID := webhookIDFor(node)
		path, _ := config["path"].(string)
		if path == "" {
			path = webhookID
		}
		d.mu.Lock()
		d.webhooks[webhookID] = webhookBinding{
			workflowID:     workflowID,
			nodeID:         nodeID,
			method:         methodOf(config),
			authentication: authenticationOf(config),
			authConfig:     node.Parameters,
		}
		d.mu.Unlock()
		config["path"] = path
		config["webhookId"] = webhookID
	}

	return trig.Start(ctx, config, callback)
}

// UnregisterWorkflow stops every trigger node a workflow declares when it
// transitions to inactive, and removes any webhook bindings it owned.
func (d *Dispatcher) UnregisterWorkflow(ctx context.Context, wf *workflowmodel.Workflow) error {
	for _, node := range wf.Triggers() {
		trig, err := d.registry.GetTrigger(node.Type)
		if err != nil {
			continue
		}
		if err := trig.Stop(ctx); err != nil {
			d.logger.Warn("trigger stop failed", "nodeId", node.ID, "error", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, b := range d.webhooks {
		if b.workflowID == string(wf.ID()) {
			delete(d.webhooks, id)
		}
	}
	return nil
}

// Webhook returns the binding registered for a webhookId, for the HTTP
// handler in webhook.go.
func (d *Dispatcher) Webhook(webhookID string) (webhookBinding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.webhooks[webhookID]
	return b, ok
}

func webhookIDFor(node workflowmodel.Node) string {
	if path, ok := node.Parameters["path"].(string); ok && path != "" {
		return path
	}
	return node.ID
}

func methodOf(config map[string]interface{}) string {
	if m, ok := config["httpMethod"].(string); ok && m != "" {
		return m
	}
	return "POST"
}

func authenticationOf(config map[string]interface{}) string {
	if a, ok := config["authentication"].(string); ok {
		return a
	}
	return "none"
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	return out
}
