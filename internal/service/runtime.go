package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/AgentMesh/internal/adapter/otel"
	"github.com/Strob0t/AgentMesh/internal/domain/permission"
	"github.com/Strob0t/AgentMesh/internal/domain/state"
	"github.com/Strob0t/AgentMesh/internal/port/agentbackend"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrExecutorCapacity = errors.New("executor capacity reached")
)

// RuntimeService owns the map from session id to live executor and enforces
// the cap on concurrent executors.
type RuntimeService struct {
	backendName string
	permissions *permission.Manager
	metrics     *otel.Metrics

	// slots caps live executors; acquired on start, released on stop.
	slots *semaphore.Weighted

	mu       sync.RWMutex
	sessions map[string]agentbackend.Backend
}

// NewRuntimeService creates a runtime service driving the named backend.
func NewRuntimeService(backendName string, maxConcurrent int64, pm *permission.Manager, metrics *otel.Metrics) *RuntimeService {
	if maxConcurrent < 1 {
		maxConcurrent = 5
	}
	return &RuntimeService{
		backendName: backendName,
		permissions: pm,
		metrics:     metrics,
		slots:       semaphore.NewWeighted(maxConcurrent),
		sessions:    make(map[string]agentbackend.Backend),
	}
}

// Permissions exposes the shared permission manager.
func (s *RuntimeService) Permissions() *permission.Manager { return s.permissions }

// Start launches a new executor session and returns its session id.
func (s *RuntimeService) Start(ctx context.Context, opts agentbackend.Options) (string, error) {
	if !s.slots.TryAcquire(1) {
		return "", ErrExecutorCapacity
	}

	backend, err := agentbackend.New(s.backendName, opts)
	if err != nil {
		s.slots.Release(1)
		return "", err
	}

	sessionID, err := backend.Start(ctx)
	if err != nil {
		s.slots.Release(1)
		return "", fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sessionID] = backend
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
	}
	slog.Info("session started", "session_id", sessionID, "backend", s.backendName)
	return sessionID, nil
}

// Execute runs one prompt on a session and returns the final output.
func (s *RuntimeService) Execute(ctx context.Context, sessionID, prompt string) (string, error) {
	backend, err := s.get(sessionID)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.PromptsExecuted.Add(ctx, 1)
	}
	out, err := backend.Execute(ctx, prompt)
	if err != nil && s.metrics != nil {
		s.metrics.PromptsFailed.Add(ctx, 1)
	}
	return out, err
}

// SubmitPermission resolves a pending permission request on a session.
func (s *RuntimeService) SubmitPermission(ctx context.Context, sessionID, requestID string, allow, always bool) error {
	backend, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PermissionAnswers.Add(ctx, 1)
	}
	return backend.SubmitPermission(ctx, requestID, allow, always)
}

// Stop ends a session and releases its executor slot.
func (s *RuntimeService) Stop(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	backend, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	defer s.slots.Release(1)
	return backend.Stop(ctx)
}

// StopAll ends every live session; used at shutdown.
func (s *RuntimeService) StopAll(ctx context.Context) {
	s.mu.Lock()
	backends := make([]agentbackend.Backend, 0, len(s.sessions))
	for id, b := range s.sessions {
		backends = append(backends, b)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, b := range backends {
		if err := b.Stop(ctx); err != nil {
			slog.Warn("session stop failed", "error", err)
		}
		s.slots.Release(1)
	}
}

// State returns the state snapshot for a session.
func (s *RuntimeService) State(sessionID string) (state.State, error) {
	backend, err := s.get(sessionID)
	if err != nil {
		return state.State{}, err
	}
	return backend.State(), nil
}

// IsRunning reports whether the session's child is alive.
func (s *RuntimeService) IsRunning(sessionID string) (bool, error) {
	backend, err := s.get(sessionID)
	if err != nil {
		return false, err
	}
	return backend.Running(), nil
}

// Interrupt asks a session to abandon its in-flight task.
func (s *RuntimeService) Interrupt(ctx context.Context, sessionID string) error {
	backend, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return backend.Interrupt(ctx)
}

// Backend returns the live backend for a session; the orchestrator uses it
// to drive CliAgent stages.
func (s *RuntimeService) Backend(sessionID string) (agentbackend.Backend, error) {
	return s.get(sessionID)
}

// Sessions returns the live session ids.
func (s *RuntimeService) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *RuntimeService) get(sessionID string) (agentbackend.Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	backend, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return backend, nil
}
