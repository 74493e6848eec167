// Package claudecli implements the agentbackend port for the Claude Code
// CLI: a supervised child process driven over stdin/stdout in stream-json
// mode. The adapter owns exactly one child per session, feeds its stdout
// through the stream parser, applies the resulting events to the state
// machine, and mediates tool permissions through the permission manager.
package claudecli

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/AgentMesh/internal/config"
	"github.com/Strob0t/AgentMesh/internal/domain/permission"
	"github.com/Strob0t/AgentMesh/internal/port/agentbackend"
	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
)

const backendName = "claude-code"

var (
	ErrAlreadyRunning = errors.New("claudecli: session already running")
	ErrNotRunning     = errors.New("claudecli: session not running")
	ErrNotReady       = errors.New("claudecli: agent is not ready for a prompt")
	ErrBusy           = errors.New("claudecli: a prompt is already in flight")
	ErrEmptyPrompt    = errors.New("claudecli: prompt must not be empty")
	ErrInitTimeout    = errors.New("claudecli: initialization timeout")
	ErrTaskTimeout    = errors.New("claudecli: task timeout")
	ErrUnknownRequest = errors.New("claudecli: unknown permission request id")
)

// Permission answer tokens on the CLI's stdin menu protocol.
const (
	tokenGrant       = "1\n"
	tokenGrantAlways = "2\n"
	tokenDeny        = "3\n"
)

// Config carries the executor's runtime dependencies and tuning.
type Config struct {
	Binary          string
	InitTimeout     time.Duration
	ExecuteTimeout  time.Duration
	ShutdownTimeout time.Duration
	CancelTimeout   time.Duration
	MaxLineBytes    int

	Permissions *permission.Manager
	Bus         eventbus.Bus
	Log         *slog.Logger
}

// ConfigFrom builds an executor Config from the application config.
func ConfigFrom(cfg config.Executor, pm *permission.Manager, bus eventbus.Bus, log *slog.Logger) Config {
	return Config{
		Binary:          cfg.Binary,
		InitTimeout:     cfg.InitTimeout,
		ExecuteTimeout:  cfg.ExecuteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CancelTimeout:   cfg.CancelTimeout,
		MaxLineBytes:    cfg.MaxLineBytes,
		Permissions:     pm,
		Bus:             bus,
		Log:             log,
	}
}

// withDefaults fills zero fields with working values.
func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "claude"
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 3 * time.Second
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 4 << 20
	}
	if c.Permissions == nil {
		c.Permissions = permission.NewManager()
	}
	if c.Bus == nil {
		c.Bus = eventbus.Nop{}
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// Register registers the claude-code backend factory with the given
// executor configuration.
func Register(cfg Config) {
	agentbackend.Register(backendName, func(opts agentbackend.Options) (agentbackend.Backend, error) {
		return New(cfg, opts), nil
	})
}
