// Package agentbackend defines the agent backend port (interface) and the
// factory registry adapters register themselves into.
package agentbackend

import (
	"context"

	"github.com/Strob0t/AgentMesh/internal/domain/state"
)

// Options configures one backend session.
type Options struct {
	// WorkingDir is the child's working directory; empty inherits ours.
	WorkingDir string

	// AllowedTools are extra patterns passed to the CLI's own allow-list
	// flag on top of the policy's auto-approve list.
	AllowedTools []string

	// SessionID resumes an existing CLI session when set.
	SessionID string
}

// Backend is the port interface for one agent session: a supervised child
// process (or future remote peer) that accepts prompts and reports progress
// through the state machine.
type Backend interface {
	// Name returns the backend identifier (e.g. "claude-code").
	Name() string

	// SessionID returns the live session id; empty before Start.
	SessionID() string

	// Start launches the session and blocks until it is ready for a prompt.
	// Returns the session id.
	Start(ctx context.Context) (string, error)

	// Execute sends one prompt and blocks until the task completes,
	// returning the final output. A second concurrent call fails.
	Execute(ctx context.Context, prompt string) (string, error)

	// SubmitPermission resolves a pending human permission request.
	SubmitPermission(ctx context.Context, requestID string, allow, always bool) error

	// Interrupt asks the session to abandon the in-flight task without
	// ending the session.
	Interrupt(ctx context.Context) error

	// Stop ends the session and releases the child process.
	Stop(ctx context.Context) error

	// State returns an atomic snapshot of the agent state.
	State() state.State

	// Running reports whether the session owns a live child.
	Running() bool

	// Subscribe registers a state transition observer; the cancel function
	// releases it.
	Subscribe() (<-chan state.Transition, func())
}
