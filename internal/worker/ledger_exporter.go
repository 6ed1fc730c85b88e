package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/sheets"
)

const (
	seenCacheSize = 10000
	seenCacheTTL  = 7 * 24 * time.Hour
)

// LedgerExporter appends committed ledger events to the external ledger.
// Redelivered events are recognised by id and skipped.
type LedgerExporter struct {
	writer sheets.LedgerWriter
	reader sheets.LedgerReader
	seen   *cache.LRUCache[time.Time]
	now    func() time.Time
}

// NewLedgerExporter creates an exporter. reader may be nil, in which case
// WarmUp is a no-op.
func NewLedgerExporter(writer sheets.LedgerWriter, reader sheets.LedgerReader) *LedgerExporter {
	return &LedgerExporter{
		writer: writer,
		reader: reader,
		seen:   cache.NewLRUCache[time.Time](seenCacheSize, seenCacheTTL),
		now:    time.Now,
	}
}

// SeenCache exposes the dedupe cache so it can be registered for cleanup.
func (w *LedgerExporter) SeenCache() *cache.LRUCache[time.Time] {
	return w.seen
}

// HandleLedgerEvent exports one event. Invalid events are logged and
// dropped, since redelivering them cannot succeed.
func (w *LedgerExporter) HandleLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	if err := ev.Validate(); err != nil {
		slog.WarnContext(ctx, "Dropping invalid ledger event", "event_id", ev.ID, "error", err)
		return nil
	}
	if _, ok := w.seen.Get(ev.ID); ok {
		slog.InfoContext(ctx, "Ledger event already exported, skipping", "event_id", ev.ID)
		return nil
	}

	ref, err := w.writer.AppendEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("append ledger event %s: %w", ev.ID, err)
	}
	w.seen.Set(ev.ID, w.now())

	slog.InfoContext(ctx, "Exported ledger event",
		"event_id", ev.ID,
		"type", ev.Type,
		"user_id", ev.UserID,
		"amount", ev.Amount.StringFixed(2),
		"sheets_ref", ref)
	return nil
}

// WarmUp seeds the dedupe cache with ids already in the ledger for the
// current and previous year, so a restart does not re-export events the
// broker redelivers.
func (w *LedgerExporter) WarmUp(ctx context.Context) error {
	if w.reader == nil {
		return nil
	}
	year := w.now().Year()
	total := 0
	for _, y := range []int{year - 1, year} {
		ids, err := w.reader.EventIDs(ctx, y)
		if err != nil {
			return fmt.Errorf("load exported event ids for %d: %w", y, err)
		}
		for _, id := range ids {
			w.seen.Set(id, w.now())
		}
		total += len(ids)
	}
	slog.InfoContext(ctx, "Ledger exporter warmed up", "known_events", total)
	return nil
}
