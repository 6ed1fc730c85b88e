package sheets

import (
	"context"

	"finboard/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends committed ledger events to an external ledger.
	LedgerWriter interface {
		AppendEvent(ctx context.Context, ev core.LedgerEvent) (rowRef string, err error)
	}

	// LedgerReader lists the event ids already exported for a year.
	LedgerReader interface {
		EventIDs(ctx context.Context, year int) ([]string, error)
	}
)
