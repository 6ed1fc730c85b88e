// Package tiered puts a primary store in front of a fallback store. Reads
// are cached and deduplicated; when the primary fails or times out the
// fallback serves the call and the key is queued for reconciliation.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/store"
)

type Config struct {
	// Timeout bounds each primary call.
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:   3 * time.Second,
		CacheSize: 512,
		CacheTTL:  30 * time.Second,
	}
}

type Store struct {
	primary  store.Store
	fallback store.Store
	cfg      Config
	cache    *cache.LRUCache[store.Document]
	group    singleflight.Group
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func New(primary, fallback store.Store, cfg Config, logger *slog.Logger) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		cache:    cache.NewLRUCache[store.Document](cfg.CacheSize, cfg.CacheTTL),
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

// Cache exposes the read cache so it can be registered for periodic cleanup.
func (s *Store) Cache() *cache.LRUCache[store.Document] {
	return s.cache
}

// errPendingKey aborts a primary transaction that touches a key whose
// newest copy is still in the fallback.
var errPendingKey = errors.New("key awaiting reconciliation")

// Get reads pending keys from the fallback, which holds their newest copy,
// and everything else from the primary.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	if s.isPending(key) {
		return s.fallback.Get(ctx, key)
	}
	if doc, ok := s.cache.Get(key); ok {
		return doc, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		doc, err := s.primary.Get(pctx, key)
		if err == nil {
			s.cache.Set(key, doc)
			return doc, nil
		}
		if !s.degraded(err) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "Primary store read failed, using fallback", "key", key, "error", err)
		return s.fallback.Get(ctx, key)
	})
	if err != nil {
		return store.Document{}, err
	}
	return v.(store.Document), nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	defer s.cache.Delete(key)
	if s.isPending(key) {
		if err := s.fallback.Set(ctx, key, data); err != nil {
			return fmt.Errorf("fallback set %s: %w", key, err)
		}
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.primary.Set(pctx, key, data)
	if err == nil || !s.degraded(err) {
		return err
	}
	s.logger.WarnContext(ctx, "Primary store write failed, using fallback", "key", key, "error", err)
	if err := s.fallback.Set(ctx, key, data); err != nil {
		return fmt.Errorf("fallback set %s: %w", key, err)
	}
	s.markPending(key)
	return nil
}

func (s *Store) Update(ctx context.Context, key string, patch map[string]any) error {
	defer s.cache.Delete(key)
	if s.isPending(key) {
		if err := s.fallback.Update(ctx, key, patch); err != nil {
			return fmt.Errorf("fallback update %s: %w", key, err)
		}
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.primary.Update(pctx, key, patch)
	if err == nil || !s.degraded(err) {
		return err
	}
	s.logger.WarnContext(ctx, "Primary store update failed, using fallback", "key", key, "error", err)
	if err := s.fallback.Update(ctx, key, patch); err != nil {
		return fmt.Errorf("fallback update %s: %w", key, err)
	}
	s.markPending(key)
	return nil
}

// RunTransaction tries the primary first. Errors returned by fn and
// conflicts are passed through. fn runs again against the fallback when the
// primary fails, when a read inside fn fails for infrastructure reasons, or
// when fn touches a key that is awaiting reconciliation.
func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	var rec *recordingTx
	attempt := func(primary bool) store.TxFunc {
		return func(ctx context.Context, tx store.Tx) error {
			rec = &recordingTx{Tx: tx}
			if !primary {
				return fn(ctx, rec)
			}
			rec.pending = s.isPending
			rec.degraded = s.degraded
			err := fn(ctx, rec)
			switch {
			case rec.diverted != "":
				return errPendingKey
			case rec.readErr != nil:
				return rec.readErr
			}
			return err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err := s.primary.RunTransaction(pctx, attempt(true))
	cancel()
	if rec != nil {
		s.invalidate(rec.written)
	}

	switch {
	case err == nil:
		return nil
	case rec != nil && rec.diverted != "":
		s.logger.DebugContext(ctx, "Transaction touches a pending key, using fallback", "key", rec.diverted)
	case rec != nil && rec.readErr != nil:
		s.logger.WarnContext(ctx, "Primary store read failed inside transaction, using fallback", "error", rec.readErr)
	case !s.degraded(err):
		return err
	default:
		s.logger.WarnContext(ctx, "Primary store transaction failed, using fallback", "error", err)
	}

	rec = nil
	if err := s.fallback.RunTransaction(ctx, attempt(false)); err != nil {
		return err
	}
	if rec != nil {
		s.invalidate(rec.written)
		for _, key := range rec.written {
			s.markPending(key)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.primary.Ping(pctx); err != nil {
		if ferr := s.fallback.Ping(ctx); ferr != nil {
			return errors.Join(err, ferr)
		}
		s.logger.WarnContext(ctx, "Primary store unreachable, fallback healthy", "error", err)
	}
	return nil
}

func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.fallback.Close())
}

// Pending lists keys written to the fallback that the primary has not seen,
// oldest first.
func (s *Store) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for k := range s.pending {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if !s.pending[out[i]].Equal(s.pending[out[j]]) {
			return s.pending[out[i]].Before(s.pending[out[j]])
		}
		return out[i] < out[j]
	})
	return out
}

// Reconciled drops key from the pending list.
func (s *Store) Reconciled(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// Reconcile copies key from the fallback to the primary and clears it from
// the pending list. The fallback copy wins: it holds the newest write the
// primary missed. A key written again during the copy stays pending.
func (s *Store) Reconcile(ctx context.Context, key string) error {
	doc, err := s.fallback.Get(ctx, key)
	if store.IsNotFound(err) {
		s.Reconciled(key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fallback get %s: %w", key, err)
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.primary.Set(pctx, key, doc.Data); err != nil {
		return fmt.Errorf("primary set %s: %w", key, err)
	}
	s.cache.Delete(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	latest, err := s.fallback.Get(ctx, key)
	if err == nil && latest.Version != doc.Version {
		return nil
	}
	delete(s.pending, key)
	return nil
}

func (s *Store) isPending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *Store) markPending(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; !ok {
		s.pending[key] = time.Now()
	}
}

func (s *Store) invalidate(keys []string) {
	for _, k := range keys {
		s.cache.Delete(k)
	}
}

// degraded reports whether err is an infrastructure failure rather than a
// normal outcome the caller must see.
func (s *Store) degraded(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrStaleState), errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// recordingTx tracks the keys fn writes. On the primary it also refuses
// pending keys and remembers infrastructure failures from reads, so fn's
// own error handling cannot hide them.
type recordingTx struct {
	store.Tx
	pending  func(key string) bool
	degraded func(err error) bool

	written  []string
	diverted string
	readErr  error
}

func (t *recordingTx) Get(key string) (store.Document, error) {
	if t.pending != nil && t.pending(key) {
		t.diverted = key
		return store.Document{}, errPendingKey
	}
	doc, err := t.Tx.Get(key)
	if err != nil && t.degraded != nil && t.degraded(err) {
		t.readErr = err
	}
	return doc, err
}

func (t *recordingTx) Set(key string, data []byte) error {
	if t.pending != nil && t.pending(key) {
		t.diverted = key
		return errPendingKey
	}
	t.written = append(t.written, key)
	return t.Tx.Set(key, data)
}
