package banking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"finboard/internal/core"
)

// StaticSource serves fixture transactions, keyed by user id. The "*" entry
// is returned for users without their own list.
type StaticSource struct {
	mu   sync.RWMutex
	data map[string][]core.Transaction
}

func NewStaticSource(data map[string][]core.Transaction) *StaticSource {
	s := &StaticSource{data: make(map[string][]core.Transaction)}
	for user, txs := range data {
		s.Put(user, txs)
	}
	return s
}

// NewStaticSourceFromFile loads fixtures from JSON shaped like
// {"<user id>": [<transaction>, ...]}.
func NewStaticSourceFromFile(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transactions file: %w", err)
	}
	var data map[string][]core.Transaction
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse transactions file: %w", err)
	}
	for user, txs := range data {
		for i, tx := range txs {
			if err := tx.Validate(); err != nil {
				return nil, fmt.Errorf("transaction %d for %s: %w", i, user, err)
			}
		}
	}
	return NewStaticSource(data), nil
}

// Put replaces a user's transactions.
func (s *StaticSource) Put(userID string, txs []core.Transaction) {
	cp := append([]core.Transaction(nil), txs...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp.Before(cp[j].Timestamp) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = cp
}

// Transactions ignores the token; fixtures need only a user id.
func (s *StaticSource) Transactions(_ context.Context, sess Session) ([]core.Transaction, error) {
	if sess.UserID == "" {
		return nil, ErrNoSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs, ok := s.data[sess.UserID]
	if !ok {
		txs = s.data["*"]
	}
	return append([]core.Transaction(nil), txs...), nil
}
