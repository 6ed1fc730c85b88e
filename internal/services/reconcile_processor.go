package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Reconciler is the part of the tiered store the processor drives.
type Reconciler interface {
	Pending() []string
	Reconcile(ctx context.Context, key string) error
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// PollInterval is how often to look for pending keys (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of keys to copy per poll cycle (default: 20)
	BatchSize int

	// MaxRetries is how many failed attempts are logged as warnings before a
	// key is reported as stuck (default: 5). Stuck keys keep being retried.
	MaxRetries int
}

func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    20,
		MaxRetries:   5,
	}
}

// ReconcileProcessor copies writes that landed in the fallback store back
// into the primary once it is reachable again.
type ReconcileProcessor struct {
	store  Reconciler
	config ReconcileProcessorConfig

	attemptsMu sync.Mutex
	attempts   map[string]int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(store Reconciler, config ReconcileProcessorConfig) *ReconcileProcessor {
	def := DefaultReconcileProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	return &ReconcileProcessor{
		store:    store,
		config:   config,
		attempts: make(map[string]int),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch reconciles up to BatchSize pending keys, oldest first, and
// returns how many succeeded.
func (p *ReconcileProcessor) ProcessBatch(ctx context.Context) int {
	keys := p.store.Pending()
	if len(keys) == 0 {
		return 0
	}
	if len(keys) > p.config.BatchSize {
		keys = keys[:p.config.BatchSize]
	}

	slog.DebugContext(ctx, "Reconciling pending keys", "count", len(keys))

	done := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return done
		}
		if err := p.store.Reconcile(ctx, key); err != nil {
			p.handleFailure(ctx, key, err)
			continue
		}
		p.handleSuccess(ctx, key)
		done++
	}
	return done
}

func (p *ReconcileProcessor) handleSuccess(ctx context.Context, key string) {
	p.attemptsMu.Lock()
	attempts := p.attempts[key]
	delete(p.attempts, key)
	p.attemptsMu.Unlock()

	slog.InfoContext(ctx, "Reconciled key to primary store", "key", key, "attempts", attempts+1)
}

func (p *ReconcileProcessor) handleFailure(ctx context.Context, key string, err error) {
	p.attemptsMu.Lock()
	p.attempts[key]++
	attempts := p.attempts[key]
	p.attemptsMu.Unlock()

	if attempts >= p.config.MaxRetries {
		slog.ErrorContext(ctx, "Key stuck in fallback store",
			"key", key, "attempts", attempts, "error", err)
		return
	}
	slog.WarnContext(ctx, "Reconcile failed", "key", key, "attempt", attempts, "error", err)
}

// Attempts returns the failed attempt count for key.
func (p *ReconcileProcessor) Attempts(key string) int {
	p.attemptsMu.Lock()
	defer p.attemptsMu.Unlock()
	return p.attempts[key]
}
