package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Events publish in order to every subscriber of the topic they were
// published on, and never cross into a topic nobody published to.
func TestEventBus_TopicRouting(t *testing.T) {
	bus := NewEventBus()
	workflowSub := bus.Subscribe(WorkflowTopic("wf-1"))
	executionSub := bus.Subscribe(ExecutionTopic("exec-1"))

	bus.Publish(WorkflowTopic("wf-1"), BusEvent{Type: EventExecutionStarted})
	bus.Publish(ExecutionTopic("exec-1"), BusEvent{Type: EventNodeStarted, NodeID: "n1"})
	bus.Publish(ExecutionTopic("exec-1"), BusEvent{Type: EventNodeCompleted, NodeID: "n1"})

	select {
	case ev := <-workflowSub.Events():
		assert.Equal(t, EventExecutionStarted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for workflow event")
	}

	first := <-executionSub.Events()
	second := <-executionSub.Events()
	assert.Equal(t, EventNodeStarted, first.Type)
	assert.Equal(t, EventNodeCompleted, second.Type, "events on one topic must arrive in publication order")

	select {
	case ev := <-workflowSub.Events():
		t.Fatalf("workflow subscriber must not see execution-topic events, got %v", ev)
	default:
	}
}

// A slow consumer's channel fills and publish degrades by dropping the
// oldest buffered event rather than blocking the publisher.
func TestEventBus_DropsOldestUnderBackpressure(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(ExecutionTopic("exec-1"))

	total := subscriberBuffer + 10
	for i := 0; i < total; i++ {
		bus.Publish(ExecutionTopic("exec-1"), BusEvent{Type: EventNodeStatusUpdate, NodeID: string(rune('a' + i%26))})
	}

	assert.Equal(t, subscriberBuffer, len(sub.Events()), "channel should be full but never exceed its bound")
}

// AddSink fans every published event out to registered sinks regardless
// of topic subscribers, without blocking Publish.
func TestEventBus_SinkReceivesEveryEvent(t *testing.T) {
	bus := NewEventBus()
	received := make(chan BusEvent, 4)
	bus.AddSink(func(ev BusEvent) { received <- ev })

	bus.Publish(WorkflowTopic("wf-1"), BusEvent{Type: EventWebhookTriggered})
	bus.Publish(ExecutionTopic("exec-1"), BusEvent{Type: EventNodeFailed})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-received:
			seen[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for sink event")
		}
	}
	assert.True(t, seen[EventWebhookTriggered])
	assert.True(t, seen[EventNodeFailed])
}

// Unsubscribe closes the subscriber's channel and Publish no longer
// panics or blocks trying to deliver to it.
func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(WorkflowTopic("wf-1"))
	bus.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open, "channel should be closed after Unsubscribe")

	assert.NotPanics(t, func() {
		bus.Publish(WorkflowTopic("wf-1"), BusEvent{Type: EventExecutionCompleted})
	})
}

// Close tears down every subscriber across every topic.
func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus()
	sub1 := bus.Subscribe(WorkflowTopic("wf-1"))
	sub2 := bus.Subscribe(ExecutionTopic("exec-1"))

	bus.Close()

	_, open1 := <-sub1.Events()
	_, open2 := <-sub2.Events()
	assert.False(t, open1)
	assert.False(t, open2)

	require.NotPanics(t, func() {
		bus.Publish(WorkflowTopic("wf-1"), BusEvent{Type: EventExecutionCompleted})
	})
}
