package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentmesh.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTMESH_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTMESH_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "AGENTMESH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTMESH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTMESH_LOG_ASYNC")
	setString(&cfg.Executor.Binary, "AGENTMESH_EXECUTOR_BINARY")
	setDuration(&cfg.Executor.InitTimeout, "AGENTMESH_EXECUTOR_INIT_TIMEOUT")
	setDuration(&cfg.Executor.ExecuteTimeout, "AGENTMESH_EXECUTOR_EXECUTE_TIMEOUT")
	setDuration(&cfg.Executor.ShutdownTimeout, "AGENTMESH_EXECUTOR_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.Executor.CancelTimeout, "AGENTMESH_EXECUTOR_CANCEL_TIMEOUT")
	setInt64(&cfg.Executor.MaxConcurrent, "AGENTMESH_EXECUTOR_MAX_CONCURRENT")
	setInt(&cfg.Executor.MaxLineBytes, "AGENTMESH_EXECUTOR_MAX_LINE_BYTES")
	setString(&cfg.Permission.DefaultPolicy, "AGENTMESH_PERMISSION_POLICY")
	setDuration(&cfg.Registry.StaleAfter, "AGENTMESH_REGISTRY_STALE_AFTER")
	setDuration(&cfg.Registry.GCInterval, "AGENTMESH_REGISTRY_GC_INTERVAL")
	setInt64(&cfg.Registry.CacheSizeBytes, "AGENTMESH_REGISTRY_CACHE_SIZE_MB")
	setDuration(&cfg.Registry.CacheTTL, "AGENTMESH_REGISTRY_CACHE_TTL")
	setDuration(&cfg.Pipeline.Retention, "AGENTMESH_PIPELINE_RETENTION")
	setInt(&cfg.Pipeline.MaxStages, "AGENTMESH_PIPELINE_MAX_STAGES")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Executor.Binary == "" {
		return errors.New("executor.binary is required")
	}
	if cfg.Executor.MaxConcurrent < 1 {
		return errors.New("executor.max_concurrent must be >= 1")
	}
	if cfg.Executor.MaxLineBytes < 1024 {
		return errors.New("executor.max_line_bytes must be >= 1024")
	}
	if cfg.Registry.StaleAfter <= 0 {
		return errors.New("registry.stale_after must be positive")
	}
	if cfg.Pipeline.MaxStages < 1 {
		return errors.New("pipeline.max_stages must be >= 1")
	}
	switch cfg.Permission.DefaultPolicy {
	case "read-only", "standard", "strict", "permissive":
	default:
		return fmt.Errorf("permission.default_policy %q is not a known policy", cfg.Permission.DefaultPolicy)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
