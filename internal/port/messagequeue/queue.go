// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for the NATS mirror of runtime events. Headless
// consumers (CI bots, audit sinks) subscribe here instead of holding a
// WebSocket open.
const (
	SubjectAgentState      = "agents.state"       // executor state transitions
	SubjectAgentOutput     = "agents.output"      // streaming assistant output
	SubjectAgentPermission = "agents.permission"  // pending human escalations
	SubjectPipelineEvents  = "pipelines.progress" // stage-boundary progress
)
