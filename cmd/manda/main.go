package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoferino/manda/internal/artifacts"
	"github.com/hoferino/manda/internal/checkpoint"
	"github.com/hoferino/manda/internal/expressions"
	"github.com/hoferino/manda/internal/logging"
	"github.com/hoferino/manda/internal/scheduler"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/internal/supervisor"
	"github.com/hoferino/manda/internal/validation"
	"github.com/hoferino/manda/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "manda:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(mandaDir(), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Routing manifest (optional); defaults apply when no file is configured.
	var rules []supervisor.Rule
	var routerOpts []supervisor.RouterOption
	execTimeout := supervisor.DefaultSpecialistTimeout

	routerOpts = append(routerOpts, supervisor.WithRouterLogger(logger))
	if cfg.RulesPath != "" {
		manifest, err := loadManifest(ctx, cfg.RulesPath)
		if err != nil {
			return fmt.Errorf("load routing manifest: %w", err)
		}
		rules = manifest.Rules
		if manifest.AmbiguityPredicate != "" {
			pred, err := expressions.NewAmbiguityPredicate(manifest.AmbiguityPredicate)
			if err != nil {
				return fmt.Errorf("ambiguity predicate: %w", err)
			}
			routerOpts = append(routerOpts, supervisor.WithAmbiguityPredicate(pred))
		}
		if manifest.SpecialistTimeout != "" {
			execTimeout, _ = time.ParseDuration(manifest.SpecialistTimeout)
		}
	}
	if cfg.SpecialistTimeout != "" {
		if d, err := time.ParseDuration(cfg.SpecialistTimeout); err == nil && d > 0 {
			execTimeout = d
		}
	}

	checkpoints, err := checkpoint.NewLibSQLStore(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer func() { _ = checkpoints.Close() }()

	artifactStore, err := artifacts.NewLibSQLStore(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer func() { _ = artifactStore.Close() }()

	manager, err := artifacts.NewManager(ctx, artifactStore)
	if err != nil {
		return fmt.Errorf("rebuild artifact graph: %w", err)
	}

	hub := streaming.NewMemoryHub()

	// Domain specialists are registered by embedders; only the built-in
	// clarify handler ships with the daemon. Unrouted specialists degrade
	// into error results, they never abort a turn.
	registry := supervisor.NewRegistry()
	if err := registry.Register(supervisor.NewClarifySpecialist()); err != nil {
		return err
	}

	sup := supervisor.NewSupervisor(
		nil, // no classifier backend; callers supply intent or get the general fallback
		supervisor.NewRouter(rules, routerOpts...),
		supervisor.NewExecutor(registry,
			supervisor.WithTimeout(execTimeout),
			supervisor.WithEventHub(hub),
			supervisor.WithExecutorLogger(logger),
		),
		checkpoints,
		supervisor.WithSupervisorHub(hub),
		supervisor.WithSupervisorLogger(logger),
	)

	sched := scheduler.NewScheduler(logger, 0)
	for _, job := range []*scheduler.Job{
		scheduler.CheckpointSweepJob(checkpoints, cfg.checkpointTTL(), logger),
		scheduler.GraphAuditJob(manager, logger),
	} {
		if err := sched.Register(job); err != nil {
			return fmt.Errorf("register maintenance job: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	srv := mcp.NewMandaServer(mcp.MandaServerDeps{
		Supervisor:  sup,
		Artifacts:   manager,
		Checkpoints: checkpoints,
		Hub:         hub,
		Logger:      logger,
	})

	logger.Info("manda server starting",
		slog.String("db_path", cfg.DBPath),
		slog.Duration("specialist_timeout", execTimeout),
	)
	return srv.Serve(ctx)
}

func loadManifest(ctx context.Context, path string) (*validation.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	validator, err := validation.NewManifestValidator()
	if err != nil {
		return nil, err
	}
	return validator.Parse(ctx, raw)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
