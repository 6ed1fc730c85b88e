package memory

import (
	"context"
	"fmt"
	"sync"

	"finboard/internal/core"
	ports "finboard/internal/sheets"
)

var (
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerReader = (*Store)(nil)
)

// Store is an in-process ledger used when no spreadsheet is configured.
type Store struct {
	mu     sync.Mutex
	events []core.LedgerEvent
}

func New() *Store {
	return &Store{}
}

// AppendEvent stores the event and returns a synthetic row reference.
func (s *Store) AppendEvent(_ context.Context, ev core.LedgerEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return fmt.Sprintf("mem:%d", len(s.events)), nil
}

func (s *Store) EventIDs(_ context.Context, year int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.OccurredAt.Year() == year {
			out = append(out, ev.ID)
		}
	}
	return out, nil
}

// Events returns a copy of everything appended so far.
func (s *Store) Events() []core.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEvent(nil), s.events...)
}
