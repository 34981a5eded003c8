package main

import (
	"context"
	"log/slog"
	"os"

	"pipeline-validation/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	ctx := context.Background()
	store, err := storage.NewStore(ctx, dsn)
	if err != nil {
		logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	applied, err := store.Migrate(ctx)
	if err != nil {
		logger.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, file := range applied {
		logger.Info("applied migration", slog.String("file", file))
	}
	if len(applied) == 0 {
		logger.Info("schema up to date")
	}
}
