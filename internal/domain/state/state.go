// Package state defines the agent state machine: the set of states an agent
// session moves through, the event alphabet that drives transitions, and a
// Machine that applies events and broadcasts transitions to observers.
package state

import (
	"encoding/json"
	"time"
)

// Kind discriminates the agent state variants.
type Kind string

const (
	KindInitializing         Kind = "initializing"
	KindIdle                 Kind = "idle"
	KindProcessing           Kind = "processing"
	KindWaitingForPermission Kind = "waiting_for_permission"
	KindWaitingForInput      Kind = "waiting_for_input"
	KindError                Kind = "error"
	KindCompleted            Kind = "completed"
)

// State is a tagged value: exactly one variant holds at any moment, selected
// by Kind. Only the fields belonging to the active variant are meaningful.
type State struct {
	Kind Kind `json:"state"`

	// Idle
	LastOutput string `json:"last_output,omitempty"`

	// Processing
	CurrentTool string    `json:"current_tool,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`

	// WaitingForPermission
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	RequestID string          `json:"request_id,omitempty"`

	// WaitingForInput
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`

	// Error
	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`

	// Completed
	Output string `json:"output,omitempty"`
}

// Initializing is the state before the init event has been observed.
func Initializing() State {
	return State{Kind: KindInitializing}
}

// Idle is the ready-for-a-prompt state. lastOutput carries the previous
// completed output, if any.
func Idle(lastOutput string) State {
	return State{Kind: KindIdle, LastOutput: lastOutput}
}

// Processing is the prompt-in-flight state. currentTool is empty unless a
// tool-use event is open.
func Processing(currentTool string, startedAt time.Time) State {
	return State{Kind: KindProcessing, CurrentTool: currentTool, StartedAt: startedAt}
}

// WaitingForPermission is the state while a tool call awaits approval.
func WaitingForPermission(toolName string, toolInput json.RawMessage, requestID string) State {
	return State{Kind: KindWaitingForPermission, ToolName: toolName, ToolInput: toolInput, RequestID: requestID}
}

// WaitingForInput is the state while the agent awaits an answer to a
// user-facing question.
func WaitingForInput(question string, options []string) State {
	return State{Kind: KindWaitingForInput, Question: question, Options: options}
}

// Errored is the error state.
func Errored(message string, recoverable bool) State {
	return State{Kind: KindError, Message: message, Recoverable: recoverable}
}

// Completed is the terminal state for the current task.
func Completed(output string) State {
	return State{Kind: KindCompleted, Output: output}
}

// Terminal reports whether no further task activity is expected without an
// external prompt or restart.
func (s State) Terminal() bool {
	return s.Kind == KindCompleted || (s.Kind == KindError && !s.Recoverable)
}

// Ready reports whether the agent can accept a new prompt.
func (s State) Ready() bool {
	return s.Kind == KindIdle || s.Kind == KindCompleted
}
