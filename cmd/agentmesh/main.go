package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/AgentMesh/internal/adapter/claudecli"
	amhttp "github.com/Strob0t/AgentMesh/internal/adapter/http"
	amnats "github.com/Strob0t/AgentMesh/internal/adapter/nats"
	"github.com/Strob0t/AgentMesh/internal/adapter/otel"
	"github.com/Strob0t/AgentMesh/internal/adapter/ristretto"
	"github.com/Strob0t/AgentMesh/internal/adapter/ws"
	"github.com/Strob0t/AgentMesh/internal/config"
	"github.com/Strob0t/AgentMesh/internal/domain/permission"
	"github.com/Strob0t/AgentMesh/internal/logger"
	"github.com/Strob0t/AgentMesh/internal/port/eventbus"
	"github.com/Strob0t/AgentMesh/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"executor_binary", cfg.Executor.Binary,
		"policy", cfg.Permission.DefaultPolicy,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown := otel.Init(cfg.Logging.Service)
	defer func() { _ = otelShutdown(ctx) }()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Event bus: WebSocket hub, plus a NATS mirror when configured ---
	hub := ws.NewHub()
	bus := eventbus.Fan{hub}

	if cfg.NATS.URL != "" {
		queue, qErr := amnats.Connect(ctx, cfg.NATS.URL)
		if qErr != nil {
			return fmt.Errorf("nats: %w", qErr)
		}
		defer func() { _ = queue.Close() }()
		bus = append(bus, amnats.NewBus(queue))
	}

	// --- Permission manager ---
	policy, err := permission.ParsePolicy(cfg.Permission.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	pm := permission.NewManager()
	pm.SetPolicy(policy)

	// --- Agent backend ---
	claudecli.Register(claudecli.ConfigFrom(cfg.Executor, pm, bus, log))

	// --- Services ---
	discoCache, err := ristretto.New(cfg.Registry.CacheSizeBytes << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer discoCache.Close()

	runtime := service.NewRuntimeService("claude-code", cfg.Executor.MaxConcurrent, pm, metrics)
	registry := service.NewRegistryService(cfg.Registry.StaleAfter, cfg.Registry.GCInterval, discoCache, cfg.Registry.CacheTTL)
	pipelines := service.NewPipelineService(cfg.Pipeline.MaxStages)
	orchestrator := service.NewOrchestratorService(pipelines, runtime, bus, metrics, cfg.Pipeline.Retention)

	stopGC := registry.StartGC(ctx)
	defer stopGC()

	// --- HTTP ---
	handlers := &amhttp.Handlers{
		Runtime:      runtime,
		Registry:     registry,
		Pipelines:    pipelines,
		Orchestrator: orchestrator,
	}

	r := chi.NewRouter()
	r.Use(amhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(amhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ws", hub.HandleWS)
	amhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	runtime.StopAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
