package state

import "encoding/json"

// EventKind discriminates the state machine's input alphabet.
type EventKind string

const (
	EventInitialized        EventKind = "initialized"
	EventTaskStarted        EventKind = "task_started"
	EventToolUseStarted     EventKind = "tool_use_started"
	EventToolUseCompleted   EventKind = "tool_use_completed"
	EventPermissionRequired EventKind = "permission_required"
	EventPermissionGranted  EventKind = "permission_granted"
	EventPermissionDenied   EventKind = "permission_denied"
	EventInputRequired      EventKind = "input_required"
	EventInputReceived      EventKind = "input_received"
	EventErrorOccurred      EventKind = "error_occurred"
	EventTaskCompleted      EventKind = "task_completed"
)

// Event is one input to the state machine. As with State, only the fields of
// the active variant are meaningful.
type Event struct {
	Kind EventKind `json:"event"`

	Prompt      string          `json:"prompt,omitempty"`       // TaskStarted
	ToolName    string          `json:"tool_name,omitempty"`    // ToolUseStarted, ToolUseCompleted, PermissionRequired
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`   // PermissionRequired
	Success     bool            `json:"success,omitempty"`      // ToolUseCompleted
	RequestID   string          `json:"request_id,omitempty"`   // Permission*
	Reason      string          `json:"reason,omitempty"`       // PermissionDenied
	Question    string          `json:"question,omitempty"`     // InputRequired
	Options     []string        `json:"options,omitempty"`      // InputRequired
	Answer      string          `json:"answer,omitempty"`       // InputReceived
	Message     string          `json:"message,omitempty"`      // ErrorOccurred
	Recoverable bool            `json:"recoverable,omitempty"`  // ErrorOccurred
	Output      string          `json:"output,omitempty"`       // TaskCompleted
}

// Initialized builds an Initialized event.
func Initialized() Event {
	return Event{Kind: EventInitialized}
}

// TaskStarted builds a TaskStarted event.
func TaskStarted(prompt string) Event {
	return Event{Kind: EventTaskStarted, Prompt: prompt}
}

// ToolUseStarted builds a ToolUseStarted event.
func ToolUseStarted(toolName string) Event {
	return Event{Kind: EventToolUseStarted, ToolName: toolName}
}

// ToolUseCompleted builds a ToolUseCompleted event.
func ToolUseCompleted(toolName string, success bool) Event {
	return Event{Kind: EventToolUseCompleted, ToolName: toolName, Success: success}
}

// PermissionRequired builds a PermissionRequired event.
func PermissionRequired(toolName string, toolInput json.RawMessage, requestID string) Event {
	return Event{Kind: EventPermissionRequired, ToolName: toolName, ToolInput: toolInput, RequestID: requestID}
}

// PermissionGranted builds a PermissionGranted event.
func PermissionGranted(requestID string) Event {
	return Event{Kind: EventPermissionGranted, RequestID: requestID}
}

// PermissionDenied builds a PermissionDenied event.
func PermissionDenied(requestID, reason string) Event {
	return Event{Kind: EventPermissionDenied, RequestID: requestID, Reason: reason}
}

// InputRequired builds an InputRequired event.
func InputRequired(question string, options []string) Event {
	return Event{Kind: EventInputRequired, Question: question, Options: options}
}

// InputReceived builds an InputReceived event.
func InputReceived(answer string) Event {
	return Event{Kind: EventInputReceived, Answer: answer}
}

// ErrorOccurred builds an ErrorOccurred event.
func ErrorOccurred(message string, recoverable bool) Event {
	return Event{Kind: EventErrorOccurred, Message: message, Recoverable: recoverable}
}

// TaskCompleted builds a TaskCompleted event.
func TaskCompleted(output string) Event {
	return Event{Kind: EventTaskCompleted, Output: output}
}
