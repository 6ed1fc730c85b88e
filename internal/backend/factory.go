package backend

import (
	"context"
	"fmt"
	"log/slog"

	"finboard/internal/store"
	"finboard/internal/store/firestore"
	"finboard/internal/store/memory"
	"finboard/internal/store/sqlite"
	"finboard/internal/store/tiered"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateStore opens the primary store and, when a fallback is configured,
// puts both behind a tiered store.
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	primary, err := f.open(ctx, config.Type, config)
	if err != nil {
		return nil, err
	}
	if config.Fallback == "" {
		return &StoreResult{Store: primary, Cleanup: primary.Close}, nil
	}

	fallback, err := f.open(ctx, config.Fallback, config)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}

	ts := tiered.New(primary, fallback, tiered.Config{
		Timeout:   config.Timeout,
		CacheSize: config.CacheSize,
		CacheTTL:  config.CacheTTL,
	}, f.logger)

	f.logger.Info("Initialized tiered store",
		"primary", config.Type,
		"fallback", config.Fallback,
		"timeout", config.Timeout)

	return &StoreResult{
		Store:  ts,
		Tiered: ts,
		Cleanup: ts.Close,
	}, nil
}

func (f *DefaultFactory) open(ctx context.Context, bt BackendType, config Config) (store.Store, error) {
	switch bt {
	case MemoryBackend:
		return f.createMemoryStore(config)
	case SQLiteBackend:
		return f.createSQLiteStore(config)
	case FirestoreBackend:
		return f.createFirestoreStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", bt)
	}
}

func (f *DefaultFactory) createMemoryStore(config Config) (store.Store, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory store")
		return memory.New(), nil
	}
	st, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}
	f.logger.Info("Initialized memory store", "seed_file", config.SeedFile)
	return st, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (store.Store, error) {
	st, err := sqlite.Open(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
	return st, nil
}

func (f *DefaultFactory) createFirestoreStore(ctx context.Context, config Config) (store.Store, error) {
	st, err := firestore.New(ctx, config.FirestoreProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore store: %w", err)
	}
	f.logger.Info("Initialized Firestore store", "project_id", config.FirestoreProjectID)
	return st, nil
}
