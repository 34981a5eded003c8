package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/bus"
	"pipeline-validation/internal/config"
	"pipeline-validation/internal/crypto"
	"pipeline-validation/internal/executor"
	"pipeline-validation/internal/orchestrator"
	"pipeline-validation/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Queue != config.QueueNATS {
		logger.Error("worker requires the nats queue", slog.String("queue", cfg.Queue))
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

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	repo := storage.NewRepository(store, enc)

	queue, err := bus.NewJetStreamQueue(cfg.NATSURL, cfg.Stream, cfg.Subject, cfg.Durable)
	if err != nil {
		logger.Error("failed to connect to nats", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer queue.Close()

	orch := &orchestrator.Orchestrator{
		Tests:       repo,
		Connections: repo,
		Results:     repo,
		Queue:       queue,
		Connectors:  dbconnector.NewConnector,
		Executors:   executor.For,
		Logger:      logger,
	}
	subs, err := queue.Consume(orch.Execute, cfg.Workers, cfg.JobTimeout(), logger)
	if err != nil {
		logger.Error("failed to subscribe", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	reconciler := &orchestrator.Reconciler{Results: repo, StaleAfter: cfg.StaleAfter(), Logger: logger}
	go reconciler.Run(ctx)

	logger.Info("validation worker started",
		slog.Int("workers", cfg.Workers),
		slog.String("subject", cfg.Subject),
		slog.String("durable", cfg.Durable),
	)
	<-ctx.Done()
	logger.Info("validation worker stopping")
}
