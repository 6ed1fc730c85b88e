// Package backend builds the document store the dashboard runs on from the
// application configuration.
package backend

import (
	"context"
	"time"

	"finboard/internal/store"
	"finboard/internal/store/tiered"
)

// CleanupFunc releases the resources held by a store.
type CleanupFunc func() error

// StoreResult holds the store to hand to the service. Tiered is set when a
// fallback was configured so callers can drive reconciliation and cache
// cleanup.
type StoreResult struct {
	Store   store.Store
	Tiered  *tiered.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
}

// Config holds configuration for store creation.
type Config struct {
	Type     BackendType
	Fallback BackendType

	// Memory specific
	SeedFile string

	// SQLite specific
	SQLiteDBPath string

	// Firestore specific
	FirestoreProjectID string

	// Tiered wrapper
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	FirestoreBackend BackendType = "firestore"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}
