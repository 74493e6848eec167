package claudecli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentMesh/internal/domain/state"
	"github.com/Strob0t/AgentMesh/internal/port/agentbackend"
	"github.com/Strob0t/AgentMesh/internal/stream"
)

// openTool is a tool_use the CLI announced but has not resolved yet.
type openTool struct {
	name  string
	input json.RawMessage
}

// pendingPermission is a human escalation awaiting SubmitPermission.
type pendingPermission struct {
	toolName  string
	toolInput json.RawMessage
}

// Executor supervises one CLI child process for the lifetime of a session.
//
// Lock discipline: mu guards identity and process fields and is never held
// across a blocking operation — stdin writes, process waits, and transition
// awaits all happen on copies taken under the lock.
type Executor struct {
	cfg  Config
	opts agentbackend.Options

	machine *state.Machine

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	sessionID string
	running   bool
	busy      bool
	pending   map[string]pendingPermission

	// open tool_use records keyed by tool_use_id, owned by the read loop.
	tools map[string]openTool

	stopping   atomic.Bool
	readerDone chan struct{}
}

var _ agentbackend.Backend = (*Executor)(nil)

// New creates an executor session. The child is not spawned until Start.
func New(cfg Config, opts agentbackend.Options) *Executor {
	return &Executor{
		cfg:       cfg.withDefaults(),
		opts:      opts,
		machine:   state.NewMachine(),
		sessionID: opts.SessionID,
		pending:   make(map[string]pendingPermission),
		tools:     make(map[string]openTool),
	}
}

// Name returns "claude-code".
func (e *Executor) Name() string { return backendName }

// SessionID returns the session id; empty before Start.
func (e *Executor) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// State returns an atomic snapshot of the agent state.
func (e *Executor) State() state.State { return e.machine.Current() }

// Running reports whether the session owns a live child.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Subscribe registers a state transition observer.
func (e *Executor) Subscribe() (<-chan state.Transition, func()) {
	return e.machine.Subscribe()
}

// Start spawns the CLI child and blocks until the init event arrives or the
// init timeout expires. Returns the session id.
func (e *Executor) Start(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	e.mu.Unlock()

	args := e.buildArgs()
	cmd := exec.Command(e.cfg.Binary, args...) //nolint:gosec // G204: binary comes from config
	if e.opts.WorkingDir != "" {
		cmd.Dir = e.opts.WorkingDir
	}
	cmd.Env = scrubEnv(os.Environ())

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("claudecli: open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("claudecli: open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("claudecli: open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("claudecli: spawn %s: %w", e.cfg.Binary, err)
	}

	e.cfg.Log.Info("claude session starting",
		"binary", e.cfg.Binary,
		"working_dir", e.opts.WorkingDir,
		"resume", e.opts.SessionID != "",
	)

	return e.startWithPipes(ctx, cmd, stdin, stdout, stderr)
}

// startWithPipes wires the pipes, launches the read loops, and waits for
// init. cmd may be nil in tests driving fake pipes.
func (e *Executor) startWithPipes(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, stdout, stderr io.Reader) (string, error) {
	e.mu.Lock()
	e.cmd = cmd
	e.stdin = stdin
	e.running = true
	e.readerDone = make(chan struct{})
	e.mu.Unlock()
	e.stopping.Store(false)

	// Subscribe before the read loop starts so the init transition cannot
	// be missed.
	transitions, cancel := e.machine.Subscribe()
	defer cancel()

	go e.readLoop(stdout)
	if stderr != nil {
		go e.readStderr(stderr)
	}

	timer := time.NewTimer(e.cfg.InitTimeout)
	defer timer.Stop()

	for {
		select {
		case tr, ok := <-transitions:
			if !ok {
				return "", ErrNotRunning
			}
			if tr.New.Kind == state.KindIdle {
				return e.ensureSessionID(), nil
			}
			if tr.New.Kind == state.KindError {
				e.kill()
				return "", fmt.Errorf("claudecli: init failed: %s", tr.New.Message)
			}
		case <-timer.C:
			e.kill()
			e.machine.Apply(state.ErrorOccurred("initialization timeout", false))
			return "", ErrInitTimeout
		case <-ctx.Done():
			e.kill()
			return "", ctx.Err()
		}
	}
}

// ensureSessionID returns the session id, minting one if the init event did
// not carry it.
func (e *Executor) ensureSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		e.sessionID = uuid.NewString()
	}
	return e.sessionID
}

// buildArgs assembles the CLI argument list for machine-readable streaming.
func (e *Executor) buildArgs() []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if e.opts.SessionID != "" {
		args = append(args, "--resume", e.opts.SessionID)
	}
	for _, tool := range e.opts.AllowedTools {
		e.cfg.Permissions.PreApprove(tool)
	}
	args = append(args, e.cfg.Permissions.AllowedToolsArgs()...)
	return args
}

// scrubEnv removes variables that would make the CLI detect a nested
// invocation and refuse to run.
func scrubEnv(env []string) []string {
	out := env[:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if name == "CLAUDECODE" || strings.HasPrefix(name, "CLAUDE_CODE_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Execute sends one prompt and blocks until the task completes. Requires
// the agent to be Idle or Completed.
func (e *Executor) Execute(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return "", ErrNotRunning
	}
	if e.busy {
		e.mu.Unlock()
		return "", ErrBusy
	}
	if !e.machine.Current().Ready() {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: state is %q", ErrNotReady, e.machine.Current().Kind)
	}
	e.busy = true
	stdin := e.stdin
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	transitions, cancel := e.machine.Subscribe()
	defer cancel()

	if _, err := io.WriteString(stdin, prompt+"\n"); err != nil {
		e.applyAndBroadcast(ctx, state.ErrorOccurred("stdin write failed: "+err.Error(), false))
		return "", fmt.Errorf("claudecli: write prompt: %w", err)
	}
	e.applyAndBroadcast(ctx, state.TaskStarted(prompt))

	timer := time.NewTimer(e.cfg.ExecuteTimeout)
	defer timer.Stop()

	for {
		select {
		case tr, ok := <-transitions:
			if !ok {
				return "", ErrNotRunning
			}
			switch tr.New.Kind {
			case state.KindCompleted:
				return tr.New.Output, nil
			case state.KindError:
				return "", fmt.Errorf("claudecli: task failed: %s", tr.New.Message)
			}
		case <-timer.C:
			e.interruptChild()
			e.applyAndBroadcast(ctx, state.ErrorOccurred("task timeout", true))
			return "", ErrTaskTimeout
		case <-ctx.Done():
			e.interruptChild()
			e.applyAndBroadcast(ctx, state.ErrorOccurred("task cancelled", true))
			return "", ctx.Err()
		}
	}
}

// SubmitPermission resolves a pending human permission request. always
// feeds the manager's memo table.
func (e *Executor) SubmitPermission(ctx context.Context, requestID string, allow, always bool) error {
	e.mu.Lock()
	req, ok := e.pending[requestID]
	if ok {
		delete(e.pending, requestID)
	}
	stdin := e.stdin
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRequest, requestID)
	}

	if always {
		e.cfg.Permissions.Remember(req.toolName, allow)
	}

	token := tokenDeny
	if allow {
		token = tokenGrant
		if always {
			token = tokenGrantAlways
		}
	}
	if err := e.writeToken(stdin, token); err != nil {
		return err
	}

	if allow {
		e.applyAndBroadcast(ctx, state.PermissionGranted(requestID))
		e.cfg.Log.Info("permission granted by human", "request_id", requestID, "tool", req.toolName, "always", always)
	} else {
		e.applyAndBroadcast(ctx, state.PermissionDenied(requestID, "denied by human"))
		e.cfg.Log.Info("permission denied by human", "request_id", requestID, "tool", req.toolName, "always", always)
	}
	return nil
}

// Interrupt asks the child to abandon the in-flight task.
func (e *Executor) Interrupt(context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	e.interruptChild()
	return nil
}

// Stop ends the session: EOF on stdin, then SIGTERM, then SIGKILL. All
// observers are released through the machine's channel closure.
func (e *Executor) Stop(context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	stdin := e.stdin
	done := e.readerDone
	sessionID := e.sessionID
	e.mu.Unlock()

	e.stopping.Store(true)

	if stdin != nil {
		_ = stdin.Close() // EOF: the CLI exits on its own in print mode.
	}

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownTimeout):
		e.signalChild(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(e.cfg.CancelTimeout):
			e.kill()
			<-done
		}
	}

	e.machine.Close()
	e.cfg.Log.Info("claude session stopped", "session_id", sessionID)
	return nil
}

// writeToken writes a permission answer to the child's stdin.
func (e *Executor) writeToken(stdin io.Writer, token string) error {
	if stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(stdin, token); err != nil {
		return fmt.Errorf("claudecli: write permission answer: %w", err)
	}
	return nil
}

// interruptChild delivers SIGINT to the child, if any.
func (e *Executor) interruptChild() { e.signalChild(syscall.SIGINT) }

// signalChild sends sig to the child process, tolerating an absent or
// already-exited child.
func (e *Executor) signalChild(sig os.Signal) {
	e.mu.Lock()
	cmd := e.cmd
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(sig)
}

// kill force-terminates the child.
func (e *Executor) kill() {
	e.mu.Lock()
	cmd := e.cmd
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// readLoop pumps stdout chunks through the stream parser and applies every
// completed event. It owns e.tools and runs until the stream closes.
func (e *Executor) readLoop(stdout io.Reader) {
	defer e.finishRead()

	parser := stream.NewParserWithLimit(e.cfg.MaxLineBytes)
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				e.handleEvent(ev)
			}
		}
		if err != nil {
			for _, ev := range parser.Close() {
				e.handleEvent(ev)
			}
			return
		}
	}
}

// finishRead reaps the child and marks the stream closed. An unexpected
// close while a task may be running is child-fatal.
func (e *Executor) finishRead() {
	e.mu.Lock()
	cmd := e.cmd
	done := e.readerDone
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	if cmd != nil {
		_ = cmd.Wait()
	}

	if wasRunning && !e.stopping.Load() {
		e.applyAndBroadcast(context.Background(), state.ErrorOccurred("agent process exited unexpectedly", false))
		e.cfg.Log.Error("claude child exited unexpectedly", "session_id", e.SessionID())
	}
	close(done)
}

// readStderr forwards child stderr to the log sink line by line.
func (e *Executor) readStderr(stderr io.Reader) {
	parser := stream.NewParserWithLimit(e.cfg.MaxLineBytes)
	buf := make([]byte, 8*1024)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			for _, line := range splitLines(buf[:n], parser) {
				e.cfg.Log.Debug("claude stderr", "line", line)
			}
		}
		if err != nil {
			return
		}
	}
}

// splitLines reuses the parser's framing to cut stderr into raw lines.
func splitLines(chunk []byte, p *stream.Parser) []string {
	var lines []string
	for _, ev := range p.Feed(chunk) {
		if len(ev.Raw) > 0 {
			lines = append(lines, string(ev.Raw))
		} else if ev.Detail != "" {
			lines = append(lines, ev.Detail)
		}
	}
	return lines
}
