package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"finboard/internal/config"
	applog "finboard/internal/log"
)

func testLogger(buf *bytes.Buffer) *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentApp, Output: buf})
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger("debug", applog.ComponentWorker)
	if logger.Component() != applog.ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
	if slog.Default().Handler() != logger.Handler() {
		t.Error("logger should be installed as the slog default")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("BANKING_API_URL", "")

	seed := filepath.Join(t.TempDir(), "transactions.json")
	if err := os.WriteFile(seed, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("validation error", func(t *testing.T) {
		t.Setenv("SEED_TRANSACTIONS_FILE", "")
		if _, err := LoadConfig((*config.Config).Validate); err == nil {
			t.Fatal("expected error without a transaction source")
		}
	})

	t.Run("valid", func(t *testing.T) {
		t.Setenv("SEED_TRANSACTIONS_FILE", seed)
		cfg, err := LoadConfig((*config.Config).Validate)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Port != "9000" {
			t.Errorf("Port = %q", cfg.Port)
		}
	})

	t.Run("checks run in order", func(t *testing.T) {
		sentinel := errors.New("stop")
		calls := 0
		_, err := LoadConfig(
			func(*config.Config) error { calls++; return sentinel },
			func(*config.Config) error { calls++; return nil },
		)
		if !errors.Is(err, sentinel) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})
}

func TestOpenStore(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		DataBackend:  config.BackendSQLite,
		SQLiteDBPath: filepath.Join(t.TempDir(), "finboard.db"),
		StoreTimeout: time.Second,
		CacheSize:    16,
		CacheTTL:     time.Minute,
	}
	res, err := OpenStore(context.Background(), testLogger(&buf), cfg)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer res.Cleanup()

	if !strings.Contains(buf.String(), "component=storage") {
		t.Errorf("factory should log as storage component:\n%s", buf.String())
	}

	cfg.DataBackend = "sheets"
	if _, err := OpenStore(context.Background(), testLogger(&buf), cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestShutdownOn(t *testing.T) {
	var buf bytes.Buffer
	sigs := make(chan os.Signal, 1)
	cleaned := make(chan struct{})

	ctx, done := shutdownOn(sigs, testLogger(&buf), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context should carry the shutdown deadline")
		}
		close(cleaned)
	})

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	sigs <- syscall.SIGTERM
	WaitForShutdown(ctx, done)

	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
	if !strings.Contains(buf.String(), "Shutdown complete") {
		t.Errorf("missing completion log:\n%s", buf.String())
	}
}

func TestShutdownOn_Timeout(t *testing.T) {
	var buf bytes.Buffer
	sigs := make(chan os.Signal, 1)
	release := make(chan struct{})
	defer close(release)

	ctx, done := shutdownOn(sigs, testLogger(&buf), 20*time.Millisecond, func(context.Context) {
		<-release
	})
	sigs <- syscall.SIGINT
	WaitForShutdown(ctx, done)

	if !strings.Contains(buf.String(), "Shutdown timeout reached") {
		t.Errorf("missing timeout log:\n%s", buf.String())
	}
}
