// Package storetest holds behaviour tests every store.Store backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"finboard/internal/core"
	"finboard/internal/store"
)

// Run exercises s against the store contract. Keys are prefixed with the
// test name so a shared backend can be reused. Cases named in skip are not run.
func Run(t *testing.T, newStore func(t *testing.T) store.Store, skip ...string) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"get missing", testGetMissing},
		{"set and get", testSetGet},
		{"update merges", testUpdateMerges},
		{"transaction commits", testTransactionCommits},
		{"transaction error discards writes", testTransactionErrorDiscards},
		{"transaction detects stale read", testTransactionStale},
		{"concurrent increments", testConcurrentIncrements},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range skip {
				if name == tt.name {
					t.Skip("not supported by this backend")
				}
			}
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func key(t *testing.T, name string) string {
	return "tests/" + sanitize(t.Name()) + "/docs/" + name
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == '/' || c == ' ' {
			out[i] = '_'
		}
	}
	return string(out)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), key(t, "missing"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSetGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := key(t, "doc")
	if err := s.Set(ctx, k, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, k, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := s.Get(ctx, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Version != 2 {
		t.Errorf("expected version 2, got %d", doc.Version)
	}
	var v map[string]int
	if err := json.Unmarshal(doc.Data, &v); err != nil || v["a"] != 2 {
		t.Errorf("last write should win, got %s (%v)", doc.Data, err)
	}
}

func testUpdateMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := key(t, "doc")
	if err := s.Update(ctx, k, map[string]any{"a": 1}); err != nil {
		t.Fatalf("Update on missing doc: %v", err)
	}
	if err := s.Update(ctx, k, map[string]any{"b": "x"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var v struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	if _, err := store.GetJSON(ctx, s, k, &v); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if v.A != 1 || v.B != "x" {
		t.Fatalf("fields not merged: %+v", v)
	}
}

func testTransactionCommits(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := key(t, "a"), key(t, "b")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Get(a); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound inside tx, got %v", err)
		}
		if err := tx.Set(a, []byte(`{"n":1}`)); err != nil {
			return err
		}
		doc, err := tx.Get(a)
		if err != nil || string(doc.Data) != `{"n":1}` {
			t.Errorf("tx should read its own write, got %s (%v)", doc.Data, err)
		}
		return tx.Set(b, []byte(`{"n":2}`))
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	for _, k := range []string{a, b} {
		if _, err := s.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) after commit: %v", k, err)
		}
	}
}

func testTransactionErrorDiscards(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := key(t, "doc")
	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_ = tx.Set(k, []byte(`{}`))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if _, err := s.Get(ctx, k); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("write from failed tx was applied: %v", err)
	}
}

func testTransactionStale(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := key(t, "doc")
	if err := s.Set(ctx, k, []byte(`{"n":0}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Get(k); err != nil {
			return err
		}
		// a concurrent writer lands between read and commit
		if err := s.Set(ctx, k, []byte(`{"n":5}`)); err != nil {
			return err
		}
		return tx.Set(k, []byte(`{"n":1}`))
	})
	if !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	doc, err := s.Get(ctx, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(doc.Data) != `{"n":5}` {
		t.Fatalf("stale tx overwrote data: %s", doc.Data)
	}
}

func testConcurrentIncrements(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := key(t, "counter")
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
					var c struct{ N int }
					if _, err := store.TxGetJSON(tx, k, &c); err != nil {
						return err
					}
					c.N++
					return store.TxSetJSON(tx, k, c)
				})
				if errors.Is(err, core.ErrStaleState) {
					continue
				}
				errs <- err
				return
			}
			errs <- errors.New("too many conflicts")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	var c struct{ N int }
	if _, err := store.GetJSON(ctx, s, k, &c); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if c.N != workers {
		t.Fatalf("lost updates: counter = %d, want %d", c.N, workers)
	}
}
