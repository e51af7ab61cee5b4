package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	reviewconsensus "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/filesystem"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/memory"
	postgresadapter "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/postgres"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/vocabulary"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
	"github.com/FreddieTree/manual-review-sub000/internal/platform/config"
	"github.com/FreddieTree/manual-review-sub000/internal/platform/db"
	"github.com/FreddieTree/manual-review-sub000/internal/platform/httpserver"
	"github.com/FreddieTree/manual-review-sub000/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server     *httpserver.Server
	runtime    *Runtime
	background *WorkerApp
	logger     *slog.Logger
}

type WorkerApp struct {
	runtime         *Runtime
	module          reviewconsensus.Module
	bus             *messaging.Bus
	nats            *messaging.NATSPublisher
	reclaimInterval time.Duration
	pollInterval    time.Duration
	runReclaimer    bool
	runRelay        bool
	logger          *slog.Logger
}

// Runtime is the storage backend plus the module wired on top of it.
type Runtime struct {
	Config     config.Config
	Module     reviewconsensus.Module
	Vocabulary *vocabulary.Provider
	postgres   *db.Postgres
	logger     *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildAPIWithConfig(context.Background(), cfg)
}

func BuildAPIWithConfig(ctx context.Context, cfg config.Config) (*APIApp, error) {
	logger := NewLogger(cfg, "api")
	runtime, err := BuildRuntime(ctx, cfg, nil, logger)
	if err != nil {
		return nil, err
	}

	app := &APIApp{
		server:  httpserver.New(runtime.Module, logger, normalizeAddr(cfg.HTTPPort)),
		runtime: runtime,
		logger:  logger,
	}
	// A memory store lives inside this process, so its workers must too.
	if cfg.StoreBackend == config.StoreBackendMemory {
		app.background = newWorkerApp(runtime, runtime.Module, messaging.NewBus(logger), nil, logger)
	}
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWorkerWithConfig(context.Background(), cfg)
}

func BuildWorkerWithConfig(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	logger := NewLogger(cfg, "worker")
	if cfg.StoreBackend != config.StoreBackendPostgres {
		return nil, errors.New("worker process requires STORE_BACKEND=postgres; the api runs workers in-process for the memory backend")
	}

	var (
		publisher ports.EventPublisher
		bus       *messaging.Bus
		nats      *messaging.NATSPublisher
	)
	if cfg.NATSURL != "" {
		var err error
		nats, err = messaging.NewNATSPublisher(cfg.NATSURL, cfg.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		publisher = nats
	} else {
		bus = messaging.NewBus(logger)
		publisher = bus
	}

	runtime, err := BuildRuntime(ctx, cfg, publisher, logger)
	if err != nil {
		nats.Close()
		return nil, err
	}
	return newWorkerApp(runtime, runtime.Module, bus, nats, logger), nil
}

func newWorkerApp(
	runtime *Runtime,
	module reviewconsensus.Module,
	bus *messaging.Bus,
	nats *messaging.NATSPublisher,
	logger *slog.Logger,
) *WorkerApp {
	if module.Relay.Publisher == nil && bus != nil {
		module.Relay.Publisher = bus
	}
	return &WorkerApp{
		runtime:         runtime,
		module:          module,
		bus:             bus,
		nats:            nats,
		reclaimInterval: runtime.Config.LeaseReclaimInterval,
		pollInterval:    runtime.Config.WorkerPollInterval,
		runReclaimer:    runtime.Config.EnableLeaseReclaimer,
		runRelay:        runtime.Config.EnableOutboxRelay,
		logger:          logger,
	}
}

// BuildRuntime connects the configured store and wires the module. publisher
// may be nil for processes that never relay the outbox.
func BuildRuntime(ctx context.Context, cfg config.Config, publisher ports.EventPublisher, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vocab := vocabulary.NewDefaultProvider()
	if cfg.VocabularyFile != "" {
		var err error
		vocab, err = vocabulary.NewProvider(cfg.VocabularyFile, logger)
		if err != nil {
			return nil, err
		}
	}
	writer, err := filesystem.NewSnapshotWriter(cfg.ExportDir, logger)
	if err != nil {
		return nil, err
	}

	deps := reviewconsensus.Dependencies{
		SnapshotWriter:    writer,
		Vocabulary:        vocab,
		Publisher:         publisher,
		LeaseTTL:          cfg.LeaseTTL,
		RequiredReviewers: cfg.RequiredReviewers,
		FuzzyThreshold:    cfg.FuzzyMatchThreshold,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		WorkerBatchSize:   cfg.OutboxBatchSize,
		Logger:            logger,
	}
	runtime := &Runtime{Config: cfg, Vocabulary: vocab, logger: logger}

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pg, err := db.ConnectWithOptions(ctx, cfg.PostgresDSN, db.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if cfg.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate review schema: %w", err)
			}
		}
		deps.Documents = repo
		deps.Leases = repo
		deps.Corpus = repo
		deps.Snapshots = repo
		deps.Idempotency = repo
		deps.Outbox = repo
		deps.Clock = postgresadapter.SystemClock{}
		deps.IDGen = postgresadapter.UUIDGenerator{}
		runtime.postgres = pg
		runtime.Module = reviewconsensus.NewModule(deps)
	case config.StoreBackendMemory:
		store := memory.NewStore(nil, logger)
		deps.Documents = store
		deps.Leases = store
		deps.Corpus = store
		deps.Snapshots = store
		deps.Idempotency = store
		deps.Outbox = store
		deps.Clock = store
		deps.IDGen = postgresadapter.UUIDGenerator{}
		runtime.Module = reviewconsensus.NewModule(deps)
		runtime.Module.Store = store
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	logger.Info("review runtime built",
		"event", "bootstrap_runtime_built",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"store_backend", cfg.StoreBackend,
		"lease_ttl", cfg.LeaseTTL.String(),
		"required_reviewers", cfg.RequiredReviewers,
		"vocabulary_file", cfg.VocabularyFile,
		"export_dir", cfg.ExportDir,
	)
	return runtime, nil
}

func (r *Runtime) Close() error {
	if r != nil && r.postgres != nil {
		return r.postgres.Close()
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, watching the vocabulary file and,
// for the memory backend, running the lease and outbox workers alongside.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.runtime.Config.VocabularyFile != "" {
		group.Go(func() error {
			return a.runtime.Vocabulary.Watch(ctx)
		})
	}
	if a.background != nil {
		group.Go(func() error {
			return a.background.Run(ctx)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	return a.runtime.Close()
}

// Run drives the lease reclaimer and the outbox relay on their own tickers
// until ctx is cancelled. A failed cycle is logged and retried next tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"reclaim_interval", w.reclaimInterval.String(),
		"poll_interval", w.pollInterval.String(),
		"reclaimer_enabled", w.runReclaimer,
		"relay_enabled", w.runRelay,
	)

	group, ctx := errgroup.WithContext(ctx)
	if w.runReclaimer {
		group.Go(func() error {
			return runEvery(ctx, w.reclaimInterval, func(ctx context.Context) error {
				_, err := w.module.Reclaimer.RunOnce(ctx)
				return err
			}, w.logger, "lease_reclaimer")
		})
	}
	if w.runRelay {
		group.Go(func() error {
			return runEvery(ctx, w.pollInterval, w.module.Relay.RunOnce, w.logger, "outbox_relay")
		})
	}
	if w.bus != nil {
		if err := w.subscribeAuditLog(ctx); err != nil {
			return err
		}
	}
	return group.Wait()
}

// subscribeAuditLog logs every relayed event when no external broker is
// configured, so in-process deployments still leave a trace of them.
func (w *WorkerApp) subscribeAuditLog(ctx context.Context) error {
	for _, topic := range []string{
		"review.submitted",
		"arbitration.decided",
		"lease.reclaimed",
		"consensus.snapshot_published",
	} {
		err := w.bus.Subscribe(ctx, topic, "review-audit-log", func(_ context.Context, event ports.EventEnvelope) error {
			w.logger.Info("review event relayed",
				"event", "review_event_relayed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"partition_key", event.PartitionKey,
			)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *WorkerApp) Close() error {
	w.nats.Close()
	return w.runtime.Close()
}

func runEvery(
	ctx context.Context,
	interval time.Duration,
	fn func(context.Context) error,
	logger *slog.Logger,
	name string,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Error("worker cycle failed",
				"event", "bootstrap_worker_cycle_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"worker", name,
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg config.Config, process string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("service", cfg.ServiceName, "process", process)
	slog.SetDefault(logger)
	return logger
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
