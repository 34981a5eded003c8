package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/api"
	"pipeline-validation/internal/bus"
	"pipeline-validation/internal/config"
	"pipeline-validation/internal/crypto"
	"pipeline-validation/internal/dashboard"
	"pipeline-validation/internal/executor"
	"pipeline-validation/internal/orchestrator"
	"pipeline-validation/internal/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	level := new(slog.LevelVar)
	level.Set(cfg.Level())
	logger := config.NewLogger(os.Stdout, level)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	key, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		logger.Error("ENCRYPTION_KEY must be 32 bytes", slog.String("error", err.Error()))
		os.Exit(1)
	}
	enc, err := crypto.NewAesGcmEncryptor(key)
	if err != nil {
		logger.Error("failed to init encryptor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next config.Config) {
				level.Set(next.Level())
			})
			if err != nil {
				logger.Warn("config watch disabled", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	if applied, err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate", slog.String("error", err.Error()))
		os.Exit(1)
	} else if len(applied) > 0 {
		logger.Info("applied migrations", slog.Any("files", applied))
	}
	repo := storage.NewRepository(store, enc)

	orch := &orchestrator.Orchestrator{
		Tests:        repo,
		Connections:  repo,
		Results:      repo,
		Connectors:   dbconnector.NewConnector,
		Executors:    executor.For,
		Logger:       logger,
		WaitTimeout:  cfg.WaitTimeout(),
		SingleFlight: cfg.SingleFlight,
	}
	ready := readiness{store: store}

	switch cfg.Queue {
	case config.QueueMemory:
		pool := orchestrator.NewWorkerPool(cfg.Workers, cfg.JobTimeout(), logger)
		pool.Start(orch.Execute)
		defer pool.Stop()
		orch.Queue = pool
		reconciler := &orchestrator.Reconciler{Results: repo, StaleAfter: cfg.StaleAfter(), Logger: logger}
		go reconciler.Run(ctx)
	default:
		queue, err := bus.NewJetStreamQueue(cfg.NATSURL, cfg.Stream, cfg.Subject, cfg.Durable)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer queue.Close()
		orch.Queue = queue
		ready.queue = queue
	}

	if cfg.ScheduleResyncSeconds > 0 {
		scheduler := orchestrator.NewScheduler(repo, orch, cfg.ScheduleResync(), logger)
		go scheduler.Run(ctx)
	}

	handler := &api.Handler{
		Tests:          repo,
		Connections:    repo,
		Executions:     repo,
		Runner:         orch,
		Dashboard:      &dashboard.Aggregator{Source: repo},
		Ready:          ready,
		Connectors:     dbconnector.NewConnector,
		Logger:         logger,
		Timeout:        5 * time.Second,
		RequestTimeout: cfg.WaitTimeout() + 10*time.Second,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.WaitTimeout() + 15*time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("validation api listening", slog.String("port", cfg.Port), slog.String("queue", cfg.Queue))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}

// readiness requires the results store and, when configured, the broker.
type readiness struct {
	store *storage.Store
	queue *bus.JetStreamQueue
}

func (r readiness) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return err
	}
	if r.queue != nil {
		return r.queue.Ping()
	}
	return nil
}
