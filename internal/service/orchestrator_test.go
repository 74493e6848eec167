package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentMesh/internal/domain/pipeline"
	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
)

// captureBus records pipeline progress events in order.
type captureBus struct {
	mu     sync.Mutex
	events []eventbus.PipelineProgressEvent
}

func (b *captureBus) Publish(_ context.Context, topic string, payload any) {
	if topic != eventbus.TopicPipelineProgress {
		return
	}
	if ev, ok := payload.(eventbus.PipelineProgressEvent); ok {
		b.mu.Lock()
		b.events = append(b.events, ev)
		b.mu.Unlock()
	}
}

func (b *captureBus) statuses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Status
	}
	return out
}

func newOrchestrator(t *testing.T, defs ...pipeline.Definition) (*OrchestratorService, *captureBus) {
	t.Helper()
	ps := NewPipelineService(32)
	for i := range defs {
		if _, err := ps.Define(&defs[i]); err != nil {
			t.Fatal(err)
		}
	}
	bus := &captureBus{}
	orch := NewOrchestratorService(ps, nil, bus, nil, time.Hour)
	return orch, bus
}

func awaitStatus(t *testing.T, orch *OrchestratorService, execID string, want pipeline.Status) *pipeline.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e, err := orch.Status(execID)
		if err != nil {
			t.Fatal(err)
		}
		if e.Status == want {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	e, _ := orch.Status(execID)
	t.Fatalf("execution never reached %q; status %q", want, e.Status)
	return nil
}

// Scenario: two native stages threading output to input.
func TestPipelineTwoNativeStages(t *testing.T) {
	def := pipeline.Definition{
		ID:   "two-native",
		Name: "Two native stages",
		Stages: []pipeline.Stage{
			{Name: "first", Kind: pipeline.KindNativeCallable, Callable: "emit-x"},
			{Name: "second", Kind: pipeline.KindNativeCallable, Callable: "add-one"},
		},
	}
	orch, bus := newOrchestrator(t, def)

	orch.RegisterCallable("emit-x", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"x": 2}`), nil
	})
	orch.RegisterCallable("add-one", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in struct {
			X int `json:"x"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return json.RawMessage(fmt.Sprintf(`{"y": %d}`, in.X+1)), nil
	})

	execID, err := orch.Execute("two-native", nil)
	if err != nil {
		t.Fatal(err)
	}

	e := awaitStatus(t, orch, execID, pipeline.StatusCompleted)

	if e.CurrentStage != 2 {
		t.Errorf("current_stage_index should equal stage count, got %d", e.CurrentStage)
	}
	if len(e.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(e.Results))
	}
	for i, r := range e.Results {
		if r.Status != pipeline.StageCompleted {
			t.Errorf("result %d not completed: %v", i, r.Status)
		}
	}
	var out struct {
		Y int `json:"y"`
	}
	if err := json.Unmarshal(e.Results[1].Output, &out); err != nil || out.Y != 3 {
		t.Errorf("expected stage 2 output y=3, got %s", e.Results[1].Output)
	}

	want := []string{
		eventbus.ProgressPipelineStarted,
		eventbus.ProgressStageStarted,
		eventbus.ProgressStageCompleted,
		eventbus.ProgressStageStarted,
		eventbus.ProgressStageCompleted,
		eventbus.ProgressPipelineCompleted,
	}
	got := bus.statuses()
	if len(got) != len(want) {
		t.Fatalf("expected %d progress events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineStageFailureStopsRun(t *testing.T) {
	def := pipeline.Definition{
		ID:   "fails",
		Name: "Failing pipeline",
		Stages: []pipeline.Stage{
			{Name: "boom", Kind: pipeline.KindNativeCallable, Callable: "boom"},
			{Name: "never", Kind: pipeline.KindNativeCallable, Callable: "never"},
		},
	}
	orch, bus := newOrchestrator(t, def)
	orch.RegisterCallable("boom", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("kaboom")
	})
	ran := false
	orch.RegisterCallable("never", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		ran = true
		return nil, nil
	})

	execID, err := orch.Execute("fails", nil)
	if err != nil {
		t.Fatal(err)
	}
	e := awaitStatus(t, orch, execID, pipeline.StatusFailed)

	if e.Results[0].Error != "kaboom" {
		t.Errorf("stage error should be caller-visible, got %q", e.Results[0].Error)
	}
	if ran {
		t.Error("stage after the failure must not run")
	}
	statuses := bus.statuses()
	last := statuses[len(statuses)-1]
	if last != eventbus.ProgressStageFailed {
		t.Errorf("last event should be stage-failed, got %q", last)
	}
}

// Scenario: cancellation interrupts a sleeping stage.
func TestPipelineCancellation(t *testing.T) {
	def := pipeline.Definition{
		ID:   "sleepy",
		Name: "Sleeping pipeline",
		Stages: []pipeline.Stage{
			{Name: "sleep", Kind: pipeline.KindNativeCallable, Callable: "sleep"},
			{Name: "after", Kind: pipeline.KindNativeCallable, Callable: "after"},
		},
	}
	orch, bus := newOrchestrator(t, def)

	stageRunning := make(chan struct{})
	var once sync.Once
	orch.RegisterCallable("sleep", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		once.Do(func() { close(stageRunning) })
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return json.RawMessage(`"overslept"`), nil
		}
	})
	orch.RegisterCallable("after", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"nope"`), nil
	})

	execID, err := orch.Execute("sleepy", nil)
	if err != nil {
		t.Fatal(err)
	}
	<-stageRunning

	if err := orch.Cancel(execID); err != nil {
		t.Fatal(err)
	}
	e := awaitStatus(t, orch, execID, pipeline.StatusCancelled)

	if e.Results[1].Status != pipeline.StageSkipped {
		t.Errorf("unreached stage should be skipped, got %v", e.Results[1].Status)
	}

	// No stage-started may follow the cancellation event.
	statuses := bus.statuses()
	sawCancelled := false
	for _, st := range statuses {
		if st == eventbus.ProgressCancelled {
			sawCancelled = true
			continue
		}
		if sawCancelled && st == eventbus.ProgressStageStarted {
			t.Errorf("stage started after cancellation: %v", statuses)
		}
	}
	if !sawCancelled {
		t.Errorf("expected a cancelled event, got %v", statuses)
	}
}

func TestPipelineTemplateThreading(t *testing.T) {
	def := pipeline.Definition{
		ID:   "templated",
		Name: "Templated pipeline",
		Stages: []pipeline.Stage{
			{Name: "hello", Kind: pipeline.KindNativeCallable, Callable: "echo"},
			{
				Name: "wrap", Kind: pipeline.KindNativeCallable, Callable: "echo",
				InputTemplate: "got: {{stage.hello}}",
			},
		},
	}
	orch, _ := newOrchestrator(t, def)
	orch.RegisterCallable("echo", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})

	execID, err := orch.Execute("templated", json.RawMessage(`"world"`))
	if err != nil {
		t.Fatal(err)
	}
	e := awaitStatus(t, orch, execID, pipeline.StatusCompleted)

	var second string
	if err := json.Unmarshal(e.Results[1].Output, &second); err != nil {
		t.Fatalf("second output not a string: %s", e.Results[1].Output)
	}
	if second != "got: world" {
		t.Errorf("template threading broken: %q", second)
	}
}

func TestExecuteUnknownPipeline(t *testing.T) {
	orch, _ := newOrchestrator(t)
	if _, err := orch.Execute("ghost", nil); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	orch, _ := newOrchestrator(t)
	if err := orch.Cancel("ghost"); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestUnknownCallableFailsStage(t *testing.T) {
	def := pipeline.Definition{
		ID:     "missing",
		Name:   "Missing callable",
		Stages: []pipeline.Stage{{Name: "x", Kind: pipeline.KindNativeCallable, Callable: "ghost"}},
	}
	orch, _ := newOrchestrator(t, def)

	execID, err := orch.Execute("missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	e := awaitStatus(t, orch, execID, pipeline.StatusFailed)
	if e.Results[0].Error == "" {
		t.Error("missing callable should surface in the stage error")
	}
}

func TestDropRemovesTerminalExecution(t *testing.T) {
	def := pipeline.Definition{
		ID:     "quick",
		Name:   "Quick",
		Stages: []pipeline.Stage{{Name: "x", Kind: pipeline.KindNativeCallable, Callable: "ok"}},
	}
	orch, _ := newOrchestrator(t, def)
	orch.RegisterCallable("ok", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`true`), nil
	})

	execID, _ := orch.Execute("quick", nil)
	awaitStatus(t, orch, execID, pipeline.StatusCompleted)

	if err := orch.Drop(execID); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.Status(execID); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("dropped execution should be gone, got %v", err)
	}
}

func TestListActiveExcludesTerminal(t *testing.T) {
	def := pipeline.Definition{
		ID:     "quick2",
		Name:   "Quick2",
		Stages: []pipeline.Stage{{Name: "x", Kind: pipeline.KindNativeCallable, Callable: "ok"}},
	}
	orch, _ := newOrchestrator(t, def)
	orch.RegisterCallable("ok", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`true`), nil
	})

	execID, _ := orch.Execute("quick2", nil)
	awaitStatus(t, orch, execID, pipeline.StatusCompleted)

	for _, id := range orch.ListActive() {
		if id == execID {
			t.Error("terminal execution listed as active")
		}
	}
}

func TestDefineRejectsEmptyStages(t *testing.T) {
	ps := NewPipelineService(32)
	_, err := ps.Define(&pipeline.Definition{Name: "empty"})
	if !errors.Is(err, pipeline.ErrNoStages) {
		t.Errorf("expected ErrNoStages, got %v", err)
	}
}
