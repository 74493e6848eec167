// Package config provides hierarchical configuration loading for AgentMesh.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the AgentMesh core service.
type Config struct {
	Server     Server     `yaml:"server"`
	NATS       NATS       `yaml:"nats"`
	Logging    Logging    `yaml:"logging"`
	Executor   Executor   `yaml:"executor"`
	Permission Permission `yaml:"permission"`
	Registry   Registry   `yaml:"registry"`
	Pipeline   Pipeline   `yaml:"pipeline"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the
// message-queue mirror; events then flow only over WebSocket.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Executor holds CLI agent subprocess configuration.
type Executor struct {
	Binary          string        `yaml:"binary"`           // CLI assistant binary (default: "claude")
	InitTimeout     time.Duration `yaml:"init_timeout"`     // Wait for the init event (default: 30s)
	ExecuteTimeout  time.Duration `yaml:"execute_timeout"`  // Per-prompt deadline (default: 5m)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // EOF grace before SIGTERM (default: 5s)
	CancelTimeout   time.Duration `yaml:"cancel_timeout"`   // SIGTERM grace before SIGKILL on Stop (default: 3s); a SIGINT interrupt is never followed by SIGKILL
	MaxConcurrent   int64         `yaml:"max_concurrent"`   // Total live executors (default: 5)
	MaxLineBytes    int           `yaml:"max_line_bytes"`   // Stream parser line cap (default: 4 MiB)
}

// Permission holds permission manager configuration.
type Permission struct {
	DefaultPolicy string `yaml:"default_policy"` // "read-only" | "standard" | "strict" | "permissive"
}

// Registry holds agent registry configuration.
type Registry struct {
	StaleAfter     time.Duration `yaml:"stale_after"`     // Heartbeat TTL (default: 60s)
	GCInterval     time.Duration `yaml:"gc_interval"`     // Stale entry sweep period (default: 30s)
	CacheSizeBytes int64         `yaml:"cache_size_mb"`   // Discovery cache budget in MB (default: 8)
	CacheTTL       time.Duration `yaml:"cache_ttl"`       // Discovery cache entry TTL (default: 5s)
}

// Pipeline holds pipeline orchestrator configuration.
type Pipeline struct {
	Retention time.Duration `yaml:"retention"`  // Terminal executions kept this long (default: 30m)
	MaxStages int           `yaml:"max_stages"` // Upper bound on stages per definition (default: 32)
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		NATS: NATS{
			URL: "",
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentmesh-core",
		},
		Executor: Executor{
			Binary:          "claude",
			InitTimeout:     30 * time.Second,
			ExecuteTimeout:  5 * time.Minute,
			ShutdownTimeout: 5 * time.Second,
			CancelTimeout:   3 * time.Second,
			MaxConcurrent:   5,
			MaxLineBytes:    4 << 20,
		},
		Permission: Permission{
			DefaultPolicy: "standard",
		},
		Registry: Registry{
			StaleAfter:     60 * time.Second,
			GCInterval:     30 * time.Second,
			CacheSizeBytes: 8,
			CacheTTL:       5 * time.Second,
		},
		Pipeline: Pipeline{
			Retention: 30 * time.Minute,
			MaxStages: 32,
		},
	}
}
