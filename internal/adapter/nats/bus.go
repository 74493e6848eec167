package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
	"github.com/Strob0t/AgentMesh/internal/port/messagequeue"
)

// Bus mirrors event-bus topics onto queue subjects. It satisfies
// eventbus.Bus so it can be fanned in next to the WebSocket hub.
type Bus struct {
	queue messagequeue.Queue
}

// NewBus wraps a queue as an event bus mirror.
func NewBus(queue messagequeue.Queue) *Bus {
	return &Bus{queue: queue}
}

var _ eventbus.Bus = (*Bus)(nil)

// topicSubjects maps bus topics to queue subjects. Unmapped topics are
// dropped.
var topicSubjects = map[string]string{
	eventbus.TopicStateChanged:       messagequeue.SubjectAgentState,
	eventbus.TopicOutput:             messagequeue.SubjectAgentOutput,
	eventbus.TopicPermissionRequired: messagequeue.SubjectAgentPermission,
	eventbus.TopicPipelineProgress:   messagequeue.SubjectPipelineEvents,
}

// Publish forwards one event onto its queue subject.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	subject, ok := topicSubjects[topic]
	if !ok {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue event payload", "topic", topic, "error", err)
		return
	}
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("queue publish failed", "subject", subject, "error", err)
	}
}
