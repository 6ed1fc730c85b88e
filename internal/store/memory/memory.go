package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"finboard/internal/core"
	"finboard/internal/store"
)

// Store keeps documents in a map. Transactions are optimistic: fn runs
// without the lock and commit re-checks the versions fn observed.
type Store struct {
	mu   sync.Mutex
	docs map[string]store.Document
	now  func() time.Time
}

func New() *Store {
	return &Store{docs: make(map[string]store.Document), now: time.Now}
}

// NewFromFile seeds the store from a JSON object mapping keys to documents.
// A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for k, v := range seed {
		s.put(k, v)
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return store.Document{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return clone(doc), nil
}

func (s *Store) Set(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, data)
	return nil
}

func (s *Store) Update(_ context.Context, key string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := store.Merge(s.docs[key].Data, patch)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	s.put(key, merged)
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	tx := &memTx{
		store:  s,
		reads:  make(map[string]int64),
		writes: make(map[string][]byte),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, version := range tx.reads {
		if s.docs[key].Version != version {
			return store.Stale(key)
		}
	}
	for _, key := range sortedKeys(tx.writes) {
		s.put(key, tx.writes[key])
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Keys lists stored keys in order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for k := range s.docs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// put must be called with mu held.
func (s *Store) put(key string, data []byte) {
	prev := s.docs[key]
	s.docs[key] = store.Document{
		Key:       key,
		Data:      append([]byte(nil), data...),
		Version:   prev.Version + 1,
		UpdatedAt: s.now().UTC(),
	}
}

type memTx struct {
	store  *Store
	reads  map[string]int64
	writes map[string][]byte
}

func (t *memTx) Get(key string) (store.Document, error) {
	if data, ok := t.writes[key]; ok {
		return store.Document{Key: key, Data: append([]byte(nil), data...), Version: t.reads[key]}, nil
	}
	t.store.mu.Lock()
	doc, ok := t.store.docs[key]
	t.store.mu.Unlock()

	if _, seen := t.reads[key]; !seen {
		t.reads[key] = doc.Version
	}
	if !ok {
		return store.Document{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return clone(doc), nil
}

func (t *memTx) Set(key string, data []byte) error {
	t.writes[key] = append([]byte(nil), data...)
	return nil
}

func clone(doc store.Document) store.Document {
	doc.Data = append([]byte(nil), doc.Data...)
	return doc
}

func sortedKeys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
