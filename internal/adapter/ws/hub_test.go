package ws

import (
	"context"
	"testing"

	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubPublishNoConnections(t *testing.T) {
	hub := NewHub()

	hub.Publish(context.Background(), eventbus.TopicStateChanged, eventbus.StateChangedEvent{
		SessionID: "S1",
	})
}

func TestHubPublishMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON — should log, not panic.
	hub.Publish(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel}
	hub.remove(c)
}

// Hub must satisfy the event bus port.
var _ eventbus.Bus = (*Hub)(nil)
