package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.StaleAfter() != time.Hour || cfg.SingleFlight {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "port: \"9000\"\nworkers: 8\nsingle_flight: true\nlog_level: debug\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" || cfg.Workers != 8 || !cfg.SingleFlight || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.NATSURL != Defaults().NATSURL {
		t.Fatalf("unset keys must keep defaults")
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "queue = \"memory\"\njob_timeout_seconds = 60\nstale_after_seconds = 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Queue != QueueMemory || cfg.JobTimeout() != time.Minute || cfg.StaleAfter() != 0 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "workers: 8\n")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("PORT", "7070")
	t.Setenv("SINGLE_FLIGHT", "true")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 2 || cfg.Port != "7070" || !cfg.SingleFlight {
		t.Fatalf("env must win: %+v", cfg)
	}
}

func TestInvalidEnv(t *testing.T) {
	t.Setenv("JOB_TIMEOUT_SECONDS", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "JOB_TIMEOUT_SECONDS") {
		t.Fatalf("expected env error, got %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "config.json", "{}")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Workers = 0
	cfg.Queue = "kafka"
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"workers", "queue", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateStaleAfterExceedsJobTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.JobTimeoutSeconds = 300
	for _, stale := range []int{1, 120, 300} {
		cfg.StaleAfterSeconds = stale
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "stale_after_seconds") {
			t.Fatalf("stale_after %d: expected validation error, got %v", stale, err)
		}
	}
	for _, stale := range []int{0, 301} {
		cfg.StaleAfterSeconds = stale
		if err := cfg.Validate(); err != nil {
			t.Fatalf("stale_after %d: unexpected error: %v", stale, err)
		}
	}
}

func TestScheduleResync(t *testing.T) {
	t.Setenv("SCHEDULE_RESYNC_SECONDS", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ScheduleResync() != 0 {
		t.Fatalf("env must disable the scheduler: %+v", cfg)
	}
	cfg.ScheduleResyncSeconds = -1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "schedule_resync_seconds") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if Defaults().ScheduleResync() != time.Minute {
		t.Fatalf("unexpected default resync %v", Defaults().ScheduleResync())
	}
}
