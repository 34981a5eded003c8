package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "config.yaml", "log_level: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Config, 8)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, logger, func(cfg Config) { changes <- cfg })
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-changes:
			if cfg.Level() != slog.LevelDebug {
				t.Fatalf("expected debug level, got %v", cfg.Level())
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("unexpected watch error: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}

func TestLevelFallsBackToInfo(t *testing.T) {
	if (Config{LogLevel: "loud"}).Level() != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
	if (Config{LogLevel: "warn"}).Level() != slog.LevelWarn {
		t.Fatalf("expected warn")
	}
}
