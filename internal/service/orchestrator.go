package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentMesh/internal/adapter/otel"
	"github.com/Strob0t/AgentMesh/internal/domain/pipeline"
	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrUnknownCallable   = errors.New("unknown native callable")
)

// NativeCallable is an in-process pipeline stage function.
type NativeCallable func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// execEntry pairs an execution with its cancellation handle.
type execEntry struct {
	def    pipeline.Definition
	exec   *pipeline.Execution
	cancel context.CancelFunc
}

// OrchestratorService drives pipeline executions: stages run sequentially,
// each stage's output feeding the next stage's input, with progress events
// at stage boundaries and cooperative cancellation.
type OrchestratorService struct {
	pipelines *PipelineService
	runtime   *RuntimeService
	bus       eventbus.Bus
	metrics   *otel.Metrics
	retention time.Duration
	now       func() time.Time

	mu         sync.RWMutex
	callables  map[string]NativeCallable
	executions map[string]*execEntry
}

// NewOrchestratorService creates the orchestrator.
func NewOrchestratorService(pipelines *PipelineService, runtime *RuntimeService, bus eventbus.Bus, metrics *otel.Metrics, retention time.Duration) *OrchestratorService {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &OrchestratorService{
		pipelines:  pipelines,
		runtime:    runtime,
		bus:        bus,
		metrics:    metrics,
		retention:  retention,
		now:        time.Now,
		callables:  make(map[string]NativeCallable),
		executions: make(map[string]*execEntry),
	}
}

// RegisterCallable makes a native stage function available under key.
func (s *OrchestratorService) RegisterCallable(key string, fn NativeCallable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callables[key] = fn
}

// Execute starts a pipeline run and returns its execution id. The run
// continues in the background; progress arrives on the event bus.
func (s *OrchestratorService) Execute(pipelineID string, initialInput json.RawMessage) (string, error) {
	def, err := s.pipelines.Get(pipelineID)
	if err != nil {
		return "", err
	}

	executionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	entry := &execEntry{
		def:    *def,
		exec:   pipeline.NewExecution(executionID, def, s.now()),
		cancel: cancel,
	}

	s.mu.Lock()
	s.executions[executionID] = entry
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PipelinesStarted.Add(runCtx, 1)
	}
	go s.run(runCtx, entry, initialInput)
	return executionID, nil
}

// Status returns a copy of the execution state.
func (s *OrchestratorService) Status(executionID string) (*pipeline.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return entry.exec.Clone(), nil
}

// ListActive returns the ids of non-terminal executions.
func (s *OrchestratorService) ListActive() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, entry := range s.executions {
		if !entry.exec.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Cancel flags an execution for cooperative cancellation. The driving task
// observes the flag between stages; the running stage sees its context
// cancelled (CliAgent stages translate that into a child interrupt).
func (s *OrchestratorService) Cancel(executionID string) error {
	s.mu.RLock()
	entry, ok := s.executions[executionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	entry.cancel()
	return nil
}

// Drop removes a terminal execution immediately instead of waiting out the
// retention window.
func (s *OrchestratorService) Drop(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if !entry.exec.Status.Terminal() {
		return fmt.Errorf("execution %s is still running", executionID)
	}
	delete(s.executions, executionID)
	return nil
}

// run is the single task driving one execution.
func (s *OrchestratorService) run(ctx context.Context, entry *execEntry, initial json.RawMessage) {
	execID := entry.exec.ExecutionID
	total := len(entry.def.Stages)

	s.mutate(entry, func(e *pipeline.Execution) { e.Start(s.now()) })
	s.emit(execID, 0, "", eventbus.ProgressPipelineStarted, 0, "pipeline started")

	var prev json.RawMessage
	for i, stage := range entry.def.Stages {
		if ctx.Err() != nil {
			s.finishCancelled(entry, i, stage.Name)
			return
		}

		s.emit(execID, i, stage.Name, eventbus.ProgressStageStarted,
			percent(i, total), fmt.Sprintf("stage %q started", stage.Name))

		input := s.resolveInput(entry, stage, initial, prev)

		stageStart := s.now()
		output, err := s.invoke(ctx, stage, input)
		if s.metrics != nil {
			s.metrics.StageDuration.Record(ctx, s.now().Sub(stageStart).Seconds())
		}

		if err != nil {
			if ctx.Err() != nil {
				s.finishCancelled(entry, i, stage.Name)
				return
			}
			s.mutate(entry, func(e *pipeline.Execution) { e.FailStage(err.Error(), s.now()) })
			s.emit(execID, i, stage.Name, eventbus.ProgressStageFailed,
				percent(i, total), err.Error())
			if s.metrics != nil {
				s.metrics.PipelinesFailed.Add(ctx, 1)
			}
			slog.Warn("pipeline stage failed", "execution_id", execID, "stage", stage.Name, "error", err)
			s.scheduleDrop(execID)
			return
		}

		s.mutate(entry, func(e *pipeline.Execution) { e.CompleteStage(output, s.now()) })
		s.emit(execID, i, stage.Name, eventbus.ProgressStageCompleted,
			percent(i+1, total), fmt.Sprintf("stage %q completed", stage.Name))
		prev = output
	}

	s.emit(execID, total-1, "", eventbus.ProgressPipelineCompleted, 100, "pipeline completed")
	slog.Info("pipeline completed", "execution_id", execID, "stages", total)
	s.scheduleDrop(execID)
}

// resolveInput renders a stage's input under the orchestrator lock.
func (s *OrchestratorService) resolveInput(entry *execEntry, stage pipeline.Stage, initial, prev json.RawMessage) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pipeline.ResolveInput(stage.InputTemplate, initial, prev, entry.exec.Outputs)
}

// invoke runs one stage by kind.
func (s *OrchestratorService) invoke(ctx context.Context, stage pipeline.Stage, input json.RawMessage) (json.RawMessage, error) {
	switch stage.Kind {
	case pipeline.KindNativeCallable:
		s.mu.RLock()
		fn, ok := s.callables[stage.Callable]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCallable, stage.Callable)
		}
		return fn(ctx, input)

	case pipeline.KindCliAgent:
		backend, err := s.runtime.Backend(stage.AgentID)
		if err != nil {
			return nil, err
		}
		out, err := backend.Execute(ctx, promptText(input))
		if err != nil {
			return nil, err
		}
		wrapped, _ := json.Marshal(out)
		return wrapped, nil

	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrInvalidKind, stage.Kind)
	}
}

// finishCancelled marks the execution cancelled and emits the final event.
func (s *OrchestratorService) finishCancelled(entry *execEntry, stageIndex int, stageName string) {
	execID := entry.exec.ExecutionID
	s.mutate(entry, func(e *pipeline.Execution) { e.Cancel(s.now()) })
	s.emit(execID, stageIndex, stageName, eventbus.ProgressCancelled,
		entry.exec.Progress(), "pipeline cancelled")
	slog.Info("pipeline cancelled", "execution_id", execID, "stage", stageName)
	s.scheduleDrop(execID)
}

// mutate applies fn to the execution under the lock.
func (s *OrchestratorService) mutate(entry *execEntry, fn func(*pipeline.Execution)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(entry.exec)
}

// scheduleDrop garbage-collects a terminal execution after the retention
// window.
func (s *OrchestratorService) scheduleDrop(executionID string) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if entry, ok := s.executions[executionID]; ok && entry.exec.Status.Terminal() {
			delete(s.executions, executionID)
		}
	})
}

// emit publishes one pipeline progress event.
func (s *OrchestratorService) emit(executionID string, stageIndex int, stageName, status string, progressPercent float64, message string) {
	s.bus.Publish(context.Background(), eventbus.TopicPipelineProgress, eventbus.PipelineProgressEvent{
		ExecutionID:     executionID,
		StageIndex:      stageIndex,
		StageName:       stageName,
		Status:          status,
		ProgressPercent: progressPercent,
		Message:         message,
	})
}

// percent converts completed-stage counts to a progress percentage.
func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
