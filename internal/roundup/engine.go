// Package roundup computes spare-change round-ups on debit transactions,
// pools the uninvested ones and moves the whole pool into a fund.
package roundup

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/categorize"
	"finboard/internal/core"
)

// Entry is the round-up derived from one debit transaction.
// Invested flips from false to true exactly once.
type Entry struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Merchant      string          `json:"merchant"`
	AmountSpent   decimal.Decimal `json:"amount_spent"`
	RoundUp       decimal.Decimal `json:"round_up"`
	Category      core.Category   `json:"category"`
	Date          time.Time       `json:"date"`
	Invested      bool            `json:"invested"`
	InvestedAt    *time.Time      `json:"invested_at,omitempty"`
	FundID        FundID          `json:"fund_id,omitempty"`
}

// Pool is the set of uninvested round-ups.
type Pool struct {
	TotalAvailable decimal.Decimal `json:"total_available"`
	Entries        []Entry         `json:"entries"`
}

// Investment is the outcome of a successful Invest call.
type Investment struct {
	FundID     FundID         `json:"fund_id"`
	Amount     decimal.Decimal `json:"amount"`
	Entries    []Entry        `json:"entries"`
	Allocation FundAllocation `json:"allocation"`
	At         time.Time      `json:"at"`
}

// InvestedSet holds the transaction ids whose round-ups were already invested.
type InvestedSet map[string]bool

func (s InvestedSet) Has(txID string) bool {
	return s[txID]
}

// Engine builds round-up pools. It holds no state besides its categorizer.
type Engine struct {
	categorizer *categorize.Categorizer
}

// NewEngine creates an engine. A nil categorizer uses the default rules.
func NewEngine(c *categorize.Categorizer) *Engine {
	if c == nil {
		c = categorize.New()
	}
	return &Engine{categorizer: c}
}

// ComputeRoundUp returns ceil(|amount|) - |amount| for a debit, in [0, 1).
// Credits and whole amounts round up by zero.
func ComputeRoundUp(tx core.Transaction) decimal.Decimal {
	if !tx.IsDebit() {
		return decimal.Zero
	}
	spent := tx.Magnitude()
	return spent.Ceil().Sub(spent)
}

// AccumulatePool projects debits not in invested into a pool. Entries are
// ordered by date then transaction id, so the result depends only on input.
func (e *Engine) AccumulatePool(txs []core.Transaction, invested InvestedSet) Pool {
	entries := make([]Entry, 0)
	total := decimal.Zero
	for _, tx := range txs {
		if !tx.IsDebit() || invested.Has(tx.ID) {
			continue
		}
		ru := ComputeRoundUp(tx)
		entries = append(entries, Entry{
			ID:            tx.ID,
			TransactionID: tx.ID,
			Merchant:      merchant(tx),
			AmountSpent:   tx.Magnitude(),
			RoundUp:       ru,
			Category:      e.categorizer.Resolve(tx),
			Date:          tx.Timestamp,
		})
		total = total.Add(ru)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
	return Pool{TotalAvailable: core.RoundMoney(total), Entries: entries}
}

// Invest moves the entire pool into fundID. amount must be positive and no
// larger than the pool total. Validation happens before anything changes:
// on error the pool is untouched; on success every entry is marked invested,
// the pool total drops to zero and the returned allocation is alloc plus
// amount. alloc itself is never modified.
func Invest(pool *Pool, alloc FundAllocation, fundID FundID, amount decimal.Decimal, at time.Time) (Investment, error) {
	if err := core.RequirePositive(amount); err != nil {
		return Investment{}, fmt.Errorf("invest %s: %w", amount, err)
	}
	if _, err := ParseFund(string(fundID)); err != nil {
		return Investment{}, err
	}
	available := decimal.Zero
	if pool != nil {
		available = pool.TotalAvailable
	}
	if amount.GreaterThan(available) {
		return Investment{}, &core.InsufficientFundsError{Requested: amount, Available: available}
	}

	investedAt := at.UTC()
	entries := make([]Entry, len(pool.Entries))
	for i, entry := range pool.Entries {
		entry.Invested = true
		entry.InvestedAt = &investedAt
		entry.FundID = fundID
		entries[i] = entry
	}
	next := alloc.Clone()
	next[fundID] = next[fundID].Add(amount)

	pool.Entries = entries
	pool.TotalAvailable = decimal.Zero

	out := make([]Entry, len(entries))
	copy(out, entries)
	return Investment{
		FundID:     fundID,
		Amount:     amount,
		Entries:    out,
		Allocation: next,
		At:         investedAt,
	}, nil
}

func merchant(tx core.Transaction) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	return tx.Description
}
