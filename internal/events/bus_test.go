package events

import (
	"fmt"
	"testing"
	"time"
)

func submitted(id string) TaskSubmittedEvent {
	return TaskSubmittedEvent{ID: id, Query: "CRM tools", Timestamp: time.Now()}
}

func round(id string, n int) RoundCompletedEvent {
	return RoundCompletedEvent{ID: id, Round: n, Decision: "retry", Timestamp: time.Now()}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(submitted("task-1"))

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskSubmitted {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskSubmitted, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies every subscriber receives the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskCompletedEvent{ID: "task-2", Records: 3, Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are full.
func TestNonBlockingSend(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan bool)
	go func() {
		for i := range 10 {
			bus.Publish(submitted(fmt.Sprintf("task-%d", i)))
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-ch:
		if received.TaskID() != "task-0" {
			t.Errorf("expected the first event to be buffered, got %s", received.TaskID())
		}
	default:
		t.Error("expected at least one event in buffer")
	}
}

// TestCloseSignalsSubscribers verifies that closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 10)

	bus.Close()
	bus.Close()

	received := 0
	for range ch {
		received++
	}
	if received != 0 {
		t.Errorf("expected 0 events after close, got %d", received)
	}

	late := bus.SubscribeAll(1)
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed bus should return a closed channel")
	}
}

// TestPublishAfterClose verifies publishing after close doesn't panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()
	bus.Publish(submitted("task-1"))

	var nilBus *Bus
	nilBus.Publish(submitted("task-1"))
}

// TestTopicIsolation verifies events only reach their own topic.
func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	roundCh := bus.Subscribe(TopicRound, 10)

	bus.Publish(submitted("task-1"))
	bus.Publish(round("task-1", 1))

	select {
	case received := <-taskCh:
		if received.EventType() != EventTypeTaskSubmitted {
			t.Errorf("task channel: expected task event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case received := <-roundCh:
		if received.EventType() != EventTypeRoundCompleted {
			t.Errorf("round channel: expected round event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("round channel: timeout waiting for event")
	}

	select {
	case ev := <-taskCh:
		t.Errorf("task channel received unexpected %s", ev.EventType())
	case ev := <-roundCh:
		t.Errorf("round channel received unexpected %s", ev.EventType())
	case <-time.After(10 * time.Millisecond):
	}
}

// TestSubscribeAll verifies that SubscribeAll receives events from all topics.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(submitted("task-1"))
	bus.Publish(SourceFailedEvent{ID: "task-1", Round: 1, Source: "https://a.example", Err: "timeout"})

	receivedTypes := make(map[string]bool)
	for range 2 {
		select {
		case received := <-allCh:
			receivedTypes[received.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	if !receivedTypes[EventTypeTaskSubmitted] || !receivedTypes[EventTypeSourceFailed] {
		t.Errorf("expected events from both topics, got %v", receivedTypes)
	}
}

// TestUnsubscribe verifies a removed subscriber is closed and no longer receives.
func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	gone := bus.Subscribe(TopicTask, 10)
	kept := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Unsubscribe(gone)
	bus.Unsubscribe(all)
	bus.Publish(submitted("task-1"))

	if _, ok := <-gone; ok {
		t.Error("unsubscribed channel should be closed")
	}
	if _, ok := <-all; ok {
		t.Error("unsubscribed all-topics channel should be closed")
	}
	select {
	case <-kept:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber missed the event")
	}
}
