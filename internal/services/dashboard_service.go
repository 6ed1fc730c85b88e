package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/advisor"
	"finboard/internal/aggregate"
	"finboard/internal/banking"
	"finboard/internal/cache"
	"finboard/internal/categorize"
	"finboard/internal/core"
	"finboard/internal/emergency"
	"finboard/internal/roundup"
	"finboard/internal/store"
)

// maxTxAttempts bounds how often a read-compute-write cycle is replayed
// after a store conflict.
const maxTxAttempts = 3

// errVersionMismatch marks a caller-supplied version that no longer
// matches. It is never retried.
var errVersionMismatch = fmt.Errorf("%w: version mismatch", core.ErrStaleState)

// EventPublisher delivers committed ledger events downstream.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

type DashboardConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{CacheSize: 256, CacheTTL: 2 * time.Minute}
}

// DashboardService composes the banking source, the aggregator, the
// round-up engine and the emergency fund over a document store.
type DashboardService struct {
	source      banking.TransactionSource
	store       store.Store
	categorizer *categorize.Categorizer
	aggregator  *aggregate.Aggregator
	engine      *roundup.Engine
	advisor     advisor.Advisor
	publisher   EventPublisher
	txCache     *cache.LRUCache[[]core.Transaction]
	locks       *keyedMutex
	now         func() time.Time
}

// NewDashboardService wires the service. categorizer, advisor and
// publisher may be nil.
func NewDashboardService(
	source banking.TransactionSource,
	st store.Store,
	categorizer *categorize.Categorizer,
	adv advisor.Advisor,
	publisher EventPublisher,
	config DashboardConfig,
) *DashboardService {
	if categorizer == nil {
		categorizer = categorize.New()
	}
	def := DefaultDashboardConfig()
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	return &DashboardService{
		source:      source,
		store:       st,
		categorizer: categorizer,
		aggregator:  aggregate.New(categorizer),
		engine:      roundup.NewEngine(categorizer),
		advisor:     adv,
		publisher:   publisher,
		txCache:     cache.NewLRUCache[[]core.Transaction](config.CacheSize, config.CacheTTL),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// TransactionCache exposes the per-user transaction cache for cleanup.
func (s *DashboardService) TransactionCache() *cache.LRUCache[[]core.Transaction] {
	return s.txCache
}

// Store keys, one document per concern per user.
func roundUpKey(userID string) string       { return "users/" + userID + "/finance/roundups" }
func emergencyKey(userID string) string     { return "users/" + userID + "/finance/emergency_fund" }
func contributionsKey(userID string) string { return "users/" + userID + "/finance/contributions" }

// SpendingSummary is the category breakdown for one period.
type SpendingSummary struct {
	Categories       []core.CategoryTotal `json:"categories"`
	Total            decimal.Decimal      `json:"total"`
	TransactionCount int                  `json:"transaction_count"`
}

func (s *DashboardService) Spending(ctx context.Context, sess banking.Session, period aggregate.Period) (SpendingSummary, error) {
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return SpendingSummary{}, err
	}
	return summarize(s.aggregator.ByCategory(txs, period)), nil
}

func (s *DashboardService) Income(ctx context.Context, sess banking.Session, period aggregate.Period) (SpendingSummary, error) {
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return SpendingSummary{}, err
	}
	return summarize(s.aggregator.IncomeByCategory(txs, period)), nil
}

func (s *DashboardService) SpendingByMonth(ctx context.Context, sess banking.Session, period aggregate.Period) ([]core.GroupTotal, error) {
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.aggregator.ByMonth(txs, period), nil
}

func (s *DashboardService) SpendingByAccount(ctx context.Context, sess banking.Session, period aggregate.Period) ([]core.GroupTotal, error) {
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.aggregator.ByAccount(txs, period), nil
}

func summarize(cats []core.CategoryTotal) SpendingSummary {
	sum := SpendingSummary{Categories: cats, Total: decimal.Zero}
	for _, c := range cats {
		sum.Total = sum.Total.Add(c.TotalAmount)
		sum.TransactionCount += c.TransactionCount
	}
	return sum
}

// transactions fetches through the per-user cache.
func (s *DashboardService) transactions(ctx context.Context, sess banking.Session) ([]core.Transaction, error) {
	if sess.UserID == "" {
		return nil, banking.ErrNoSession
	}
	if txs, ok := s.txCache.Get(sess.UserID); ok {
		return txs, nil
	}
	txs, err := s.source.Transactions(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	s.txCache.Set(sess.UserID, txs)
	slog.DebugContext(ctx, "Fetched transactions", "user_id", sess.UserID, "count", len(txs))
	return txs, nil
}

// InvalidateTransactions drops the cached transactions for userID.
func (s *DashboardService) InvalidateTransactions(userID string) {
	s.txCache.Delete(userID)
}

// roundUpLedger is the persisted round-up document: which transactions
// were invested and how much each fund received.
type roundUpLedger struct {
	Invested   map[string]roundup.Entry `json:"invested"`
	Allocation roundup.FundAllocation   `json:"allocation"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

func (l roundUpLedger) investedSet() roundup.InvestedSet {
	set := make(roundup.InvestedSet, len(l.Invested))
	for id := range l.Invested {
		set[id] = true
	}
	return set
}

// RoundUpSummary is the dashboard view of round-ups.
type RoundUpSummary struct {
	Pool          roundup.Pool          `json:"pool"`
	Allocation    []roundup.FundBalance `json:"allocation"`
	TotalInvested decimal.Decimal       `json:"total_invested"`
	Funds         []roundup.Fund        `json:"funds"`
	Version       int64                 `json:"version"`
}

func (s *DashboardService) RoundUps(ctx context.Context, sess banking.Session) (RoundUpSummary, error) {
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return RoundUpSummary{}, err
	}
	var ledger roundUpLedger
	version, err := store.GetJSON(ctx, s.store, roundUpKey(sess.UserID), &ledger)
	if err != nil {
		return RoundUpSummary{}, fmt.Errorf("load round-up ledger: %w", err)
	}
	return RoundUpSummary{
		Pool:          s.engine.AccumulatePool(txs, ledger.investedSet()),
		Allocation:    ledger.Allocation.Sorted(),
		TotalInvested: ledger.Allocation.Total(),
		Funds:         roundup.Funds(),
		Version:       version,
	}, nil
}

type InvestRequest struct {
	FundID roundup.FundID
	// Amount nil invests the whole pool.
	Amount *decimal.Decimal
	// ExpectedVersion, when non-zero, must equal the ledger version the
	// caller last saw.
	ExpectedVersion int64
}

// Invest moves the user's uninvested round-ups into a fund. An explicit
// amount must equal the whole pool: more fails with insufficient funds and
// less with an invalid amount. The ledger
// read, pool rebuild and write happen in one store transaction; a
// concurrent invest makes one of the two fail rather than double-count.
func (s *DashboardService) Invest(ctx context.Context, sess banking.Session, req InvestRequest) (roundup.Investment, error) {
	if req.Amount != nil {
		if err := core.RequirePositive(*req.Amount); err != nil {
			return roundup.Investment{}, fmt.Errorf("invest %s: %w", *req.Amount, err)
		}
	}
	if _, err := roundup.ParseFund(string(req.FundID)); err != nil {
		return roundup.Investment{}, err
	}
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return roundup.Investment{}, err
	}

	unlock := s.locks.Lock(roundUpKey(sess.UserID))
	defer unlock()

	key := roundUpKey(sess.UserID)
	var inv roundup.Investment
	err = s.retry(ctx, func(ctx context.Context, tx store.Tx) error {
		var ledger roundUpLedger
		version, err := store.TxGetJSON(tx, key, &ledger)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && version != req.ExpectedVersion {
			return errVersionMismatch
		}

		pool := s.engine.AccumulatePool(txs, ledger.investedSet())
		amount := pool.TotalAvailable
		if req.Amount != nil {
			amount = *req.Amount
		} else if !amount.IsPositive() {
			return &core.InsufficientFundsError{Requested: amount, Available: amount}
		}
		// Every entry is marked invested, so anything short of the whole
		// pool would leave the allocation behind the invested round-ups.
		if amount.LessThan(pool.TotalAvailable) {
			return fmt.Errorf("invest %s of %s available, amount must equal the pool: %w",
				amount, pool.TotalAvailable, core.ErrInvalidAmount)
		}

		result, err := roundup.Invest(&pool, ledger.Allocation, req.FundID, amount, s.now())
		if err != nil {
			return err
		}
		if ledger.Invested == nil {
			ledger.Invested = make(map[string]roundup.Entry, len(result.Entries))
		}
		for _, e := range result.Entries {
			ledger.Invested[e.TransactionID] = e
		}
		ledger.Allocation = result.Allocation
		ledger.UpdatedAt = result.At
		if err := store.TxSetJSON(tx, key, ledger); err != nil {
			return err
		}
		inv = result
		return nil
	})
	if err != nil {
		return roundup.Investment{}, err
	}

	slog.InfoContext(ctx, "Invested round-ups",
		"user_id", sess.UserID, "fund_id", inv.FundID,
		"amount", inv.Amount.StringFixed(2), "entries", len(inv.Entries))

	s.publish(ctx, core.NewLedgerEvent(core.EventRoundUpInvested, sess.UserID, string(inv.FundID), inv.Amount, inv.At))
	return inv, nil
}

// EmergencyFundView is the dashboard view of the emergency fund.
type EmergencyFundView struct {
	State           emergency.State           `json:"state"`
	Progress        int                       `json:"progress"`
	Exceeded        bool                      `json:"exceeded"`
	Remaining       decimal.Decimal           `json:"remaining"`
	MonthsCovered   decimal.Decimal           `json:"months_covered"`
	Milestones      roundup.MilestoneStatus   `json:"milestones"`
	MilestoneDates  []emergency.MilestoneDate `json:"milestone_dates"`
	MonthlyProgress []emergency.MonthTotal    `json:"monthly_progress"`
	Contributions   []emergency.Contribution  `json:"contributions"`
	Version         int64                     `json:"version"`
}

// EmergencyFund returns core.ErrNotFound until the fund has been set up.
func (s *DashboardService) EmergencyFund(ctx context.Context, userID string) (EmergencyFundView, error) {
	if userID == "" {
		return EmergencyFundView{}, banking.ErrNoSession
	}
	doc, err := s.store.Get(ctx, emergencyKey(userID))
	if err != nil {
		return EmergencyFundView{}, fmt.Errorf("load emergency fund: %w", err)
	}
	var state emergency.State
	if err := decodeDoc(doc, &state); err != nil {
		return EmergencyFundView{}, err
	}
	var contribs []emergency.Contribution
	if _, err := store.GetJSON(ctx, s.store, contributionsKey(userID), &contribs); err != nil {
		return EmergencyFundView{}, fmt.Errorf("load contributions: %w", err)
	}
	if contribs == nil {
		contribs = []emergency.Contribution{}
	}

	milestones := state.Milestones()
	monthly := decimal.Zero
	if state.TargetMonths > 0 {
		monthly = state.TargetAmount.Div(decimal.NewFromInt(int64(state.TargetMonths)))
	}
	return EmergencyFundView{
		State:           state,
		Progress:        state.Progress(),
		Exceeded:        state.Exceeded(),
		Remaining:       state.Remaining(),
		MonthsCovered:   state.MonthsCovered(monthly),
		Milestones:      roundup.GetMilestoneStatus(state.CurrentAmount, milestones),
		MilestoneDates:  emergency.MilestoneDates(contribs, milestones),
		MonthlyProgress: emergency.MonthlyProgress(contribs),
		Contributions:   contribs,
		Version:         doc.Version,
	}, nil
}

// SetupEmergencyFund creates the fund or resizes an existing one, keeping
// the amount already saved.
func (s *DashboardService) SetupEmergencyFund(ctx context.Context, userID string, monthlyExpenses decimal.Decimal, months int) (emergency.State, error) {
	if userID == "" {
		return emergency.State{}, banking.ErrNoSession
	}
	if months == 0 {
		months = emergency.DefaultTargetMonths
	}
	fresh, err := emergency.NewState(monthlyExpenses, months, s.now())
	if err != nil {
		return emergency.State{}, err
	}

	key := emergencyKey(userID)
	var out emergency.State
	err = s.retry(ctx, func(ctx context.Context, tx store.Tx) error {
		next := fresh
		var existing emergency.State
		version, err := store.TxGetJSON(tx, key, &existing)
		if err != nil {
			return err
		}
		if version > 0 {
			next.CurrentAmount = existing.CurrentAmount
			next.CreatedAt = existing.CreatedAt
		}
		if err := store.TxSetJSON(tx, key, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return emergency.State{}, err
	}
	slog.InfoContext(ctx, "Emergency fund configured",
		"user_id", userID, "target", out.TargetAmount.StringFixed(2), "months", out.TargetMonths)
	return out, nil
}

// Contribute adds amount to the fund and appends the contribution record
// in the same transaction.
func (s *DashboardService) Contribute(ctx context.Context, userID string, amount decimal.Decimal) (emergency.State, emergency.Contribution, error) {
	if err := core.RequirePositive(amount); err != nil {
		return emergency.State{}, emergency.Contribution{}, fmt.Errorf("contribute %s: %w", amount, err)
	}
	if userID == "" {
		return emergency.State{}, emergency.Contribution{}, banking.ErrNoSession
	}
	amount = core.RoundMoney(amount)

	unlock := s.locks.Lock(emergencyKey(userID))
	defer unlock()

	var (
		state   emergency.State
		contrib emergency.Contribution
	)
	err := s.retry(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(emergencyKey(userID))
		if err != nil {
			return err
		}
		var current emergency.State
		if err := decodeDoc(doc, &current); err != nil {
			return err
		}
		next, c, err := emergency.Contribute(current, amount, s.now())
		if err != nil {
			return err
		}
		var contribs []emergency.Contribution
		if _, err := store.TxGetJSON(tx, contributionsKey(userID), &contribs); err != nil {
			return err
		}
		contribs = append(contribs, c)
		if err := store.TxSetJSON(tx, emergencyKey(userID), next); err != nil {
			return err
		}
		if err := store.TxSetJSON(tx, contributionsKey(userID), contribs); err != nil {
			return err
		}
		state, contrib = next, c
		return nil
	})
	if err != nil {
		return emergency.State{}, emergency.Contribution{}, err
	}

	slog.InfoContext(ctx, "Emergency fund contribution recorded",
		"user_id", userID, "amount", amount.StringFixed(2), "current", state.CurrentAmount.StringFixed(2))

	s.publish(ctx, core.NewLedgerEvent(core.EventEmergencyContribution, userID, "", contrib.Amount, contrib.Date))
	return state, contrib, nil
}

// Recommendations asks the configured advisor about spending in period.
func (s *DashboardService) Recommendations(ctx context.Context, sess banking.Session, period aggregate.Period) ([]advisor.Recommendation, error) {
	if s.advisor == nil {
		return []advisor.Recommendation{}, nil
	}
	txs, err := s.transactions(ctx, sess)
	if err != nil {
		return nil, err
	}
	spend := summarize(s.aggregator.ByCategory(txs, period))
	income := summarize(s.aggregator.IncomeByCategory(txs, period))
	label := "all time"
	if mp, ok := period.(aggregate.MonthPeriod); ok {
		label = fmt.Sprintf("%04d-%02d", mp.Year, int(mp.Month))
	}
	recs, err := s.advisor.Recommend(ctx, advisor.Summary{
		Period:     label,
		Categories: spend.Categories,
		TotalSpend: spend.Total,
		Income:     income.Total,
	})
	if errors.Is(err, advisor.ErrEmptySummary) {
		return []advisor.Recommendation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	return recs, nil
}

// Ping reports whether the store is reachable.
func (s *DashboardService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the store.
func (s *DashboardService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing dashboard service: %v", errs)
	}
	return nil
}

// retry runs fn in a store transaction, replaying it on conflicts.
func (s *DashboardService) retry(ctx context.Context, fn store.TxFunc) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.store.RunTransaction(ctx, fn)
		if err == nil || !errors.Is(err, core.ErrStaleState) || errors.Is(err, errVersionMismatch) {
			return err
		}
		slog.DebugContext(ctx, "Store conflict, retrying", "attempt", attempt, "error", err)
	}
	return err
}

// publish is best-effort: the ledger is already committed.
func (s *DashboardService) publish(ctx context.Context, ev core.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", "type", ev.Type)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"event_id", ev.ID, "type", ev.Type, "error", err)
	}
}

func decodeDoc(doc store.Document, v any) error {
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", doc.Key, err)
	}
	return nil
}
