package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflow(t *testing.T) {
	tests := []struct {
		name         string
		userID       string
		workflowName string
		description  string
		wantErr      bool
	}{
		{
			name:         "valid workflow",
			userID:       "user-123",
			workflowName: "Test Workflow",
			description:  "Test Description",
			wantErr:      false,
		},
		{
			name:         "empty name",
			userID:       "user-123",
			workflowName: "",
			description:  "Test Description",
			wantErr:      true,
		},
		{
			name:         "empty userID",
			userID:       "",
			workflowName: "Test Workflow",
			description:  "Test Description",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow, err := NewWorkflow(tt.userID, tt.workflowName, tt.description)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, workflow)
			} else {
				require.NoError(t, err)
				require.NotNil(t, workflow)

				assert.Equal(t, tt.workflowName, workflow.Name())
				assert.Equal(t, tt.description, workflow.Description())
				assert.Equal(t, tt.userID, workflow.UserID())
				assert.Equal(t, WorkflowStatusDraft, workflow.Status())
				assert.GreaterOrEqual(t, workflow.Version(), 0)
				assert.NotEmpty(t, workflow.ID())
			}
		})
	}
}

func triggerNode(id, name string) Node {
	return Node{ID: id, Type: "manualTrigger", Name: name, ExecutionCapability: ExecutionCapabilityTrigger}
}

func actionNode(id, name string) Node {
	return Node{ID: id, Type: "set", Name: name, ExecutionCapability: ExecutionCapabilityAction}
}

func TestWorkflowAddNode(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	node := actionNode("node-1", "HTTP Request")

	err = workflow.AddNode(node)
	assert.NoError(t, err)

	nodes := workflow.Nodes()
	assert.Len(t, nodes, 1)
	assert.Equal(t, node.ID, nodes[0].ID)

	err = workflow.AddNode(node)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestWorkflowAddConnection(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	node1 := triggerNode("node-1", "Start")
	node2 := actionNode("node-2", "Action")

	require.NoError(t, workflow.AddNode(node1))
	require.NoError(t, workflow.AddNode(node2))

	connection := Connection{
		ID:           "conn-1",
		SourceNodeID: "node-1",
		TargetNodeID: "node-2",
	}

	err = workflow.AddConnection(connection)
	assert.NoError(t, err)

	connections := workflow.Connections()
	assert.Len(t, connections, 1)
	assert.Equal(t, connection.ID, connections[0].ID)
	// Missing port names default to "main".
	assert.Equal(t, defaultPort, connections[0].SourceOutput)
	assert.Equal(t, defaultPort, connections[0].TargetInput)
}

func TestWorkflowActivation(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	err = workflow.Activate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one node")

	node := triggerNode("node-1", "Start")
	require.NoError(t, workflow.AddNode(node))

	err = workflow.Activate()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusActive, workflow.Status())
}

func TestWorkflowActivationToleratesCycles(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	require.NoError(t, workflow.AddNode(triggerNode("node-1", "Start")))
	require.NoError(t, workflow.AddNode(actionNode("node-2", "A")))
	require.NoError(t, workflow.AddNode(actionNode("node-3", "B")))

	require.NoError(t, workflow.AddConnection(Connection{ID: "c1", SourceNodeID: "node-1", TargetNodeID: "node-2"}))
	require.NoError(t, workflow.AddConnection(Connection{ID: "c2", SourceNodeID: "node-2", TargetNodeID: "node-3"}))
	// node-3 -> node-2 closes a cycle; activation must still succeed.
	require.NoError(t, workflow.AddConnection(Connection{ID: "c3", SourceNodeID: "node-3", TargetNodeID: "node-2"}))

	err = workflow.Activate()
	assert.NoError(t, err)
}

func TestWorkflowConnections(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	node1 := triggerNode("node-1", "Start")
	node2 := actionNode("node-2", "Action")
	node3 := actionNode("node-3", "End")

	require.NoError(t, workflow.AddNode(node1))
	require.NoError(t, workflow.AddNode(node2))
	require.NoError(t, workflow.AddNode(node3))

	require.NoError(t, workflow.AddConnection(Connection{ID: "c1", SourceNodeID: "node-1", TargetNodeID: "node-2"}))
	require.NoError(t, workflow.AddConnection(Connection{ID: "c2", SourceNodeID: "node-2", TargetNodeID: "node-3"}))

	connections := workflow.Connections()
	assert.Len(t, connections, 2)
}

func TestWorkflowStatusTransitions(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	require.NoError(t, workflow.AddNode(triggerNode("node-1", "Start")))

	err = workflow.Activate()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusActive, workflow.Status())

	err = workflow.Deactivate()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusInactive, workflow.Status())

	err = workflow.Activate()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusActive, workflow.Status())

	err = workflow.Archive()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusArchived, workflow.Status())

	err = workflow.Activate()
	assert.Error(t, err)
}

func TestWorkflowNodeManagement(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	node1 := triggerNode("node-1", "Start")
	node2 := actionNode("node-2", "Action")

	require.NoError(t, workflow.AddNode(node1))
	require.NoError(t, workflow.AddNode(node2))

	assert.Len(t, workflow.Nodes(), 2)

	err = workflow.RemoveNode("node-2")
	assert.NoError(t, err)
	assert.Len(t, workflow.Nodes(), 1)

	err = workflow.RemoveNode("node-999")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestWorkflowArchive(t *testing.T) {
	workflow, err := NewWorkflow("user-123", "Test", "Description")
	require.NoError(t, err)

	err = workflow.Archive()
	assert.NoError(t, err)
	assert.Equal(t, WorkflowStatusArchived, workflow.Status())

	node := triggerNode("node-1", "Start")
	err = workflow.AddNode(node)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "archived")
}
