// Package eventbus defines the port for pushing runtime events to the GUI
// and other subscribers. The executor and orchestrator publish here; the
// WebSocket hub and the optional NATS mirror implement it.
package eventbus

import "context"

// Topic constants for runtime events.
const (
	TopicStateChanged       = "executor:state_changed"
	TopicPermissionRequired = "executor:permission_required"
	TopicOutput             = "executor:output"
	TopicPipelineProgress   = "pipeline:progress"
)

// Bus delivers typed event payloads to subscribers. Publish is synchronous:
// the WebSocket hub writes to every connected client before returning and
// the NATS mirror returns after its queue publish call, so a slow consumer
// delays the caller.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Nop is a Bus that drops everything. Useful as a default and in tests.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(context.Context, string, any) {}

// Fan is a Bus that forwards every event to each of its members.
type Fan []Bus

// Publish forwards to all member buses in order.
func (f Fan) Publish(ctx context.Context, topic string, payload any) {
	for _, b := range f {
		b.Publish(ctx, topic, payload)
	}
}

// StateChangedEvent is the payload for TopicStateChanged.
type StateChangedEvent struct {
	SessionID string `json:"session_id"`
	OldState  any    `json:"old_state"`
	NewState  any    `json:"new_state"`
}

// PermissionRequiredEvent is the payload for TopicPermissionRequired.
type PermissionRequiredEvent struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	ToolName  string `json:"tool_name"`
	ToolInput any    `json:"tool_input"`
}

// OutputEvent is the payload for TopicOutput.
type OutputEvent struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// PipelineProgressEvent is the payload for TopicPipelineProgress.
type PipelineProgressEvent struct {
	ExecutionID     string  `json:"execution_id"`
	StageIndex      int     `json:"stage_index"`
	StageName       string  `json:"stage_name"`
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	Message         string  `json:"message"`
}

// Pipeline progress status values.
const (
	ProgressPipelineStarted   = "pipeline-started"
	ProgressStageStarted      = "stage-started"
	ProgressStageCompleted    = "stage-completed"
	ProgressStageFailed       = "stage-failed"
	ProgressPipelineCompleted = "pipeline-completed"
	ProgressCancelled         = "cancelled"
)
