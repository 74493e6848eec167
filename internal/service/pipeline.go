package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentMesh/internal/domain/pipeline"
)

var ErrPipelineNotFound = errors.New("pipeline not found")

// PipelineService manages pipeline definitions (built-in + custom).
type PipelineService struct {
	mu        sync.RWMutex
	pipelines map[string]pipeline.Definition
	maxStages int
}

// NewPipelineService creates a PipelineService pre-loaded with built-in
// definitions.
func NewPipelineService(maxStages int) *PipelineService {
	s := &PipelineService{
		pipelines: make(map[string]pipeline.Definition),
		maxStages: maxStages,
	}
	for _, d := range pipeline.BuiltinDefinitions() {
		s.pipelines[d.ID] = d
	}
	return s
}

// List returns all registered definitions.
func (s *PipelineService) List() []pipeline.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]pipeline.Definition, 0, len(s.pipelines))
	for _, d := range s.pipelines {
		result = append(result, d)
	}
	return result
}

// Get returns a definition by ID.
func (s *PipelineService) Get(id string) (*pipeline.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, id)
	}
	return &d, nil
}

// Define validates and registers a definition, minting an id when absent.
// Built-in definitions cannot be overwritten.
func (s *PipelineService) Define(d *pipeline.Definition) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := d.Validate(s.maxStages); err != nil {
		return "", fmt.Errorf("validate pipeline: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pipelines[d.ID]; ok && existing.Builtin {
		return "", fmt.Errorf("cannot overwrite built-in pipeline %q", d.ID)
	}
	s.pipelines[d.ID] = *d
	return d.ID, nil
}

// LoadCustom registers definitions loaded from a YAML directory.
func (s *PipelineService) LoadCustom(dir string) (int, error) {
	defs, err := pipeline.LoadFromDirectory(dir, s.maxStages)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		if existing, ok := s.pipelines[d.ID]; ok && existing.Builtin {
			continue
		}
		s.pipelines[d.ID] = d
	}
	return len(defs), nil
}
