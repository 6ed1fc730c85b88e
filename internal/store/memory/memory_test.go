package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"finboard/internal/store"
	"finboard/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{"users/u1/finance/emergency_fund": {"target_amount": "1000"}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	doc, err := s.Get(context.Background(), "users/u1/finance/emergency_fund")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Version != 1 || len(s.Keys()) != 1 {
		t.Fatalf("unexpected seeded doc %+v", doc)
	}

	empty, err := NewFromFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || len(empty.Keys()) != 0 {
		t.Fatalf("missing seed file should give an empty store, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte("[1,2"), 0o644)
	if _, err := NewFromFile(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte(`{"a":1}`))
	doc, _ := s.Get(ctx, "k")
	doc.Data[0] = 'X'
	again, _ := s.Get(ctx, "k")
	if string(again.Data) != `{"a":1}` {
		t.Fatalf("stored data was aliased: %s", again.Data)
	}
}
