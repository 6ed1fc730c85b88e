// Package store defines the document persistence contract shared by every
// backend: keyed JSON documents with last-write-wins Set/Update and an
// optimistic read-modify-write transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finboard/internal/core"
)

// Document is a stored JSON value. Version starts at 1 and grows by one on
// every write; a missing document has version 0.
type Document struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is implemented by memory, sqlite, firestore and tiered backends.
type Store interface {
	// Get returns core.ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (Document, error)
	// Set replaces the document, last write wins.
	Set(ctx context.Context, key string, data []byte) error
	// Update shallow-merges patch into the top-level JSON object at key,
	// creating it when absent.
	Update(ctx context.Context, key string, patch map[string]any) error
	// RunTransaction runs fn and commits its writes only if fn returns nil
	// and no document fn read has changed meanwhile. A conflict returns an
	// error wrapping core.ErrStaleState and nothing is written.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside RunTransaction. Writes are buffered
// until commit and are visible to later reads in the same Tx.
type Tx interface {
	Get(key string) (Document, error)
	Set(key string, data []byte) error
}

type TxFunc func(ctx context.Context, tx Tx) error

// Stale builds the conflict error for key.
func Stale(key string) error {
	return fmt.Errorf("%w: %s changed since read", core.ErrStaleState, key)
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

// GetJSON decodes the document at key into v and returns its version.
// A missing key leaves v untouched and returns version 0 with no error.
func GetJSON(ctx context.Context, s Store, key string, v any) (int64, error) {
	doc, err := s.Get(ctx, key)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc.Version, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// TxGetJSON is GetJSON inside a transaction.
func TxGetJSON(tx Tx, key string, v any) (int64, error) {
	doc, err := tx.Get(key)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc.Version, nil
}

// TxSetJSON is SetJSON inside a transaction.
func TxSetJSON(tx Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, data)
}

// Merge applies patch over the top-level fields of the JSON object in
// existing. Empty existing data is treated as an empty object.
func Merge(existing []byte, patch map[string]any) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &fields); err != nil {
			return nil, fmt.Errorf("existing document is not an object: %w", err)
		}
	}
	for k, v := range patch {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
