package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	fghttp "github.com/fraudgrid/fraudgrid/internal/adapter/http"
	"github.com/fraudgrid/fraudgrid/internal/adapter/inproc"
	fgnats "github.com/fraudgrid/fraudgrid/internal/adapter/nats"
	fgotel "github.com/fraudgrid/fraudgrid/internal/adapter/otel"
	"github.com/fraudgrid/fraudgrid/internal/adapter/postgres"
	"github.com/fraudgrid/fraudgrid/internal/adapter/ristretto"
	"github.com/fraudgrid/fraudgrid/internal/adapter/ws"
	"github.com/fraudgrid/fraudgrid/internal/config"
	"github.com/fraudgrid/fraudgrid/internal/domain/template"
	"github.com/fraudgrid/fraudgrid/internal/logger"
	"github.com/fraudgrid/fraudgrid/internal/port/broadcast"
	"github.com/fraudgrid/fraudgrid/internal/port/snapshot"
	"github.com/fraudgrid/fraudgrid/internal/resilience"
	"github.com/fraudgrid/fraudgrid/internal/service"
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

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"seed_dev", cfg.Registry.SeedDev,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL snapshot store (optional; workflows run in memory without it)
	var store snapshot.Store
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		store = postgres.NewStore(pool)
		slog.Info("postgres connected, migrations applied")
	}

	// Match result cache
	matchCache, err := ristretto.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer matchCache.Close()

	// --- Event fan-out: WebSocket clients, NATS subscribers, metrics ---

	hub := ws.NewHub()
	defer hub.Close()

	metrics, err := fgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	events := broadcast.Multi{hub, fgotel.NewObserver(metrics)}

	if cfg.NATS.URL != "" {
		publisher, err := fgnats.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		events = append(events, publisher)
	}

	// --- Services ---

	registry := service.NewRegistry(cfg.Registry.HeartbeatTimeout, cfg.Registry.HistoryCap, log)
	if cfg.Registry.SeedDev {
		if _, err := registry.SeedDevAgents(); err != nil {
			return fmt.Errorf("seed dev agents: %w", err)
		}
	}

	templates := template.NewManager()
	if cfg.Templates.CustomDir != "" {
		custom, err := template.LoadFromDirectory(cfg.Templates.CustomDir)
		if err != nil {
			return fmt.Errorf("load custom templates: %w", err)
		}
		for _, t := range custom {
			if err := templates.Add(t); err != nil {
				return fmt.Errorf("register custom template %q: %w", t.Name, err)
			}
		}
		slog.Info("loaded custom templates", "count", len(custom))
	}

	matcher := service.NewMatcher(registry, matchCache, cfg.Matcher.CacheTTL, log)
	breakers := resilience.NewGroup(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown)
	executor := inproc.New(inproc.DefaultHandlers(), log)

	orchestrator := service.NewOrchestrator(templates, matcher, registry, executor,
		breakers, store, events, service.OrchestratorConfig{
			MaxParallel:      cfg.Orchestrator.MaxParallel,
			DefaultRetries:   cfg.Orchestrator.DefaultMaxRetries,
			StepTimeout:      cfg.Orchestrator.StepTimeout,
			UrgencyThreshold: cfg.Orchestrator.UrgencyThreshold,
		}, log)

	// Background liveness sweep: agents past the heartbeat deadline go offline.
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go healthLoop(healthCtx, registry, cfg.Registry.HeartbeatTimeout)

	// --- HTTP ---

	handlers := &fghttp.Handlers{
		Registry:     registry,
		Matcher:      matcher,
		Orchestrator: orchestrator,
		Templates:    templates,
		Breakers:     breakers,
	}

	r := chi.NewRouter()

	r.Use(fghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(fghttp.RequestID)
	r.Use(fghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(fgotel.Tracing(cfg.Logging.Service))

	r.Get("/ws", hub.HandleWS)
	fghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthLoop periodically sweeps the registry for stale agents.
func healthLoop(ctx context.Context, registry *service.Registry, heartbeatTimeout time.Duration) {
	interval := heartbeatTimeout / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := registry.CheckHealth()
			if report.UnhealthyAgents > 0 {
				slog.Warn("health sweep found stale agents",
					"unhealthy", report.UnhealthyAgents,
					"offline", report.OfflineAgents)
			}
		}
	}
}
