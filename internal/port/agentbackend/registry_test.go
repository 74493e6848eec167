package agentbackend

import (
	"context"
	"testing"

	"github.com/Strob0t/AgentMesh/internal/domain/state"
)

type stubBackend struct{ opts Options }

func (s *stubBackend) Name() string      { return "stub" }
func (s *stubBackend) SessionID() string { return s.opts.SessionID }
func (s *stubBackend) Start(context.Context) (string, error) {
	return s.opts.SessionID, nil
}
func (s *stubBackend) Execute(context.Context, string) (string, error) { return "", nil }
func (s *stubBackend) SubmitPermission(context.Context, string, bool, bool) error {
	return nil
}
func (s *stubBackend) Interrupt(context.Context) error { return nil }
func (s *stubBackend) Stop(context.Context) error      { return nil }
func (s *stubBackend) State() state.State              { return state.Initializing() }
func (s *stubBackend) Running() bool                   { return false }
func (s *stubBackend) Subscribe() (<-chan state.Transition, func()) {
	ch := make(chan state.Transition)
	close(ch)
	return ch, func() {}
}

func TestRegisterAndNew(t *testing.T) {
	Register("stub", func(opts Options) (Backend, error) {
		return &stubBackend{opts: opts}, nil
	})

	b, err := New("stub", Options{SessionID: "S1"})
	if err != nil {
		t.Fatal(err)
	}
	if b.SessionID() != "S1" {
		t.Errorf("options not threaded through factory: %q", b.SessionID())
	}

	found := false
	for _, name := range Available() {
		if name == "stub" {
			found = true
		}
	}
	if !found {
		t.Error("registered backend missing from Available")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("does-not-exist", Options{}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("stub", func(Options) (Backend, error) { return nil, nil })
}
