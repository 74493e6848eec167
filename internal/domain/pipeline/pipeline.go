// Package pipeline defines multi-stage agent pipelines: the static
// definition (ordered stages with executor kinds and input templates) and
// the runtime execution state threaded through the orchestrator.
package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrNameRequired     = errors.New("pipeline name is required")
	ErrNoStages         = errors.New("pipeline must have at least one stage")
	ErrStageMissingName = errors.New("stage name is required")
	ErrDuplicateStage   = errors.New("stage names must be unique")
	ErrInvalidKind      = errors.New("invalid stage kind")
	ErrCallableRequired = errors.New("native stage requires a callable key")
	ErrAgentRequired    = errors.New("cli stage requires an agent id")
	ErrTooManyStages    = errors.New("pipeline exceeds the stage limit")
)

// StageKind selects how a stage is executed. The set is closed: dispatch is
// by switch, not interface polymorphism.
type StageKind string

const (
	// KindNativeCallable runs a registered in-process function.
	KindNativeCallable StageKind = "native"
	// KindCliAgent delegates to an executor session; the resolved input is
	// the prompt and the session's final output is the stage output.
	KindCliAgent StageKind = "cli_agent"
)

// Stage is one step of a pipeline.
type Stage struct {
	Name string    `json:"name" yaml:"name"`
	Kind StageKind `json:"kind" yaml:"kind"`

	// Callable is the registered function key for KindNativeCallable.
	Callable string `json:"callable,omitempty" yaml:"callable,omitempty"`

	// AgentID is the executor session for KindCliAgent.
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`

	// InputTemplate maps prior-stage outputs into this stage's input; see
	// ResolveInput. Empty means "previous stage's output verbatim".
	InputTemplate string `json:"input_template,omitempty" yaml:"input_template,omitempty"`
}

// Definition is the static configuration of a pipeline.
type Definition struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Builtin     bool    `json:"builtin" yaml:"-"`
	Stages      []Stage `json:"stages" yaml:"stages"`
}

// Validate checks the definition for structural correctness. maxStages <= 0
// means unlimited.
func (d *Definition) Validate(maxStages int) error {
	if d.Name == "" {
		return ErrNameRequired
	}
	if len(d.Stages) == 0 {
		return ErrNoStages
	}
	if maxStages > 0 && len(d.Stages) > maxStages {
		return fmt.Errorf("%w: %d > %d", ErrTooManyStages, len(d.Stages), maxStages)
	}

	seen := make(map[string]struct{}, len(d.Stages))
	for i, s := range d.Stages {
		if s.Name == "" {
			return fmt.Errorf("stage %d: %w", i, ErrStageMissingName)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("stage %d (%s): %w", i, s.Name, ErrDuplicateStage)
		}
		seen[s.Name] = struct{}{}

		switch s.Kind {
		case KindNativeCallable:
			if s.Callable == "" {
				return fmt.Errorf("stage %d (%s): %w", i, s.Name, ErrCallableRequired)
			}
		case KindCliAgent:
			if s.AgentID == "" {
				return fmt.Errorf("stage %d (%s): %w", i, s.Name, ErrAgentRequired)
			}
		default:
			return fmt.Errorf("stage %d (%s): %w: %q", i, s.Name, ErrInvalidKind, s.Kind)
		}
	}
	return nil
}
