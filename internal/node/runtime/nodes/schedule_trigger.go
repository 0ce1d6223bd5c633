// Package nodes provides built-in node implementations
package nodes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/robfig/cron/v3"
)

// ScheduleTriggerNode implements scheduled workflow triggering. A single
// cron.Cron instance backs every workflow's schedule; entries are keyed
// by workflowID so Stop/StopWorkflow can tear down one without touching
// the rest.
type ScheduleTriggerNode struct {
	mu        sync.Mutex
	scheduler *cron.Cron
	entries   map[string]cron.EntryID
}

// NewScheduleTriggerNode creates a new Schedule Trigger node
func NewScheduleTriggerNode() *ScheduleTriggerNode {
	return &ScheduleTriggerNode{
		scheduler: cron.New(cron.WithSeconds()),
		entries:   make(map[string]cron.EntryID),
	}
}

// GetType returns the node type
func (n *ScheduleTriggerNode) GetType() string {
	return "scheduleTrigger"
}

// GetTriggerType returns the trigger type
func (n *ScheduleTriggerNode) GetTriggerType() runtime.TriggerType {
	return runtime.TriggerTypeSchedule
}

// GetMetadata returns node metadata
func (n *ScheduleTriggerNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "scheduleTrigger",
		Name:        "Schedule Trigger",
		Description: "Trigger workflow on a schedule (cron or interval)",
		Category:    "trigger",
		Icon:        "calendar",
		Color:       "#FF5722",
		Version:     "1.0.0",
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Trigger data"},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "mode", Type: "options", Default: "interval", Description: "Schedule mode", Options: []runtime.PropertyOption{
				{Label: "Interval", Value: "interval"},
				{Label: "Cron Expression", Value: "cron"},
			}},
			{Name: "interval", Type: "number", Default: 60, Description: "Interval in seconds (for interval mode)"},
			{Name: "cronExpression", Type: "string", Description: "Cron expression (for cron mode)", Placeholder: "0 0 * * * *"},
			{Name: "timezone", Type: "string", Default: "UTC", Description: "Timezone for schedule"},
		},
		IsTrigger: true,
	}
}

// Validate validates the node configuration
func (n *ScheduleTriggerNode) Validate(config map[string]interface{}) error {
	mode := getStringConfig(config, "mode", "interval")

	if mode == "cron" {
		cronExpr := getStringConfig(config, "cronExpression", "")
		if cronExpr == "" {
			return fmt.Errorf("cron expression is required for cron mode")
		}

		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cronExpr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	} else {
		interval := getIntConfig(config, "interval", 60)
		if interval < 1 {
			return fmt.Errorf("interval must be at least 1 second")
		}
	}

	return nil
}

// Execute surfaces the trigger data the scheduler fired with, falling
// back to a synthetic tick when called outside of Start (e.g. single-node
// test execution).
func (n *ScheduleTriggerNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	items := input.Main()
	if len(items) == 0 {
		items = []runtime.Item{{JSON: map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"triggerType": "schedule",
		}}}
	}
	return runtime.NewOutput(items), nil
}

// Start registers the workflow's schedule with the shared cron instance.
func (n *ScheduleTriggerNode) Start(ctx context.Context, config map[string]interface{}, callback runtime.TriggerCallback) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	workflowID := getStringConfig(config, "workflowId", "")
	mode := getStringConfig(config, "mode", "interval")

	var schedule string
	if mode == "cron" {
		schedule = getStringConfig(config, "cronExpression", "0 * * * * *")
	} else {
		interval := getIntConfig(config, "interval", 60)
		schedule = fmt.Sprintf("@every %ds", interval)
	}

	entryID, err := n.scheduler.AddFunc(schedule, func() {
		data := map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"triggerType": "schedule",
			"mode":        mode,
		}
		callback(data)
	})
	if err != nil {
		return fmt.Errorf("failed to add schedule: %w", err)
	}

	if old, exists := n.entries[workflowID]; exists {
		n.scheduler.Remove(old)
	}
	n.entries[workflowID] = entryID
	n.scheduler.Start()

	return nil
}

// Stop stops the shared cron scheduler entirely.
func (n *ScheduleTriggerNode) Stop(ctx context.Context) error {
	n.scheduler.Stop()
	return nil
}

// StopWorkflow removes a single workflow's schedule entry without
// stopping schedules belonging to other workflows.
func (n *ScheduleTriggerNode) StopWorkflow(workflowID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if entryID, exists := n.entries[workflowID]; exists {
		n.scheduler.Remove(entryID)
		delete(n.entries, workflowID)
	}
}

// Global schedule trigger instance, shared so the Trigger Dispatcher can
// reach the same cron.Cron that Register() wired into the node registry.
var scheduleTrigger *ScheduleTriggerNode

func init() {
	scheduleTrigger = NewScheduleTriggerNode()
	runtime.Register(scheduleTrigger)
}

// GetScheduleTrigger returns the global schedule trigger
func GetScheduleTrigger() *ScheduleTriggerNode {
	return scheduleTrigger
}
