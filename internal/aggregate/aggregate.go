// Package aggregate turns a transaction list into per-category, per-month
// and per-account totals with percentage-of-total shares.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"finboard/internal/categorize"
	"finboard/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Aggregator is stateless apart from its categorizer and safe for concurrent use.
type Aggregator struct {
	categorizer *categorize.Categorizer
}

// New creates an aggregator. A nil categorizer uses the default rules.
func New(c *categorize.Categorizer) *Aggregator {
	if c == nil {
		c = categorize.New()
	}
	return &Aggregator{categorizer: c}
}

// ByCategory totals debit transactions in period (nil = all time) per spend
// category. An income category set on a debit is ignored. Only non-empty categories appear; the result is sorted by total
// descending with ties in category declaration order.
func (a *Aggregator) ByCategory(txs []core.Transaction, period Period) []core.CategoryTotal {
	return a.byCategory(txs, period, core.Transaction.IsDebit, a.categorizer.Resolve)
}

// IncomeByCategory is ByCategory for credits, using the income taxonomy.
func (a *Aggregator) IncomeByCategory(txs []core.Transaction, period Period) []core.CategoryTotal {
	return a.byCategory(txs, period, core.Transaction.IsCredit, a.categorizer.Resolve)
}

// ByMonth totals debits per calendar month ("2006-01"), oldest first.
func (a *Aggregator) ByMonth(txs []core.Transaction, period Period) []core.GroupTotal {
	groups := groupBy(txs, period, func(tx core.Transaction) string {
		return tx.Timestamp.Format("2006-01")
	})
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// ByAccount totals debits per account, largest first.
func (a *Aggregator) ByAccount(txs []core.Transaction, period Period) []core.GroupTotal {
	groups := groupBy(txs, period, func(tx core.Transaction) string { return tx.AccountID })
	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].TotalAmount.Cmp(groups[j].TotalAmount); c != 0 {
			return c > 0
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// TotalSpend sums debit magnitudes in period.
func TotalSpend(txs []core.Transaction, period Period) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.IsDebit() && inPeriod(tx, period) {
			total = total.Add(tx.Magnitude())
		}
	}
	return total
}

// Percentage returns round-half-up(100*part/total), or 0 when total is zero.
func Percentage(part, total decimal.Decimal) int {
	if total.IsZero() {
		return 0
	}
	return int(part.Mul(hundred).Div(total).Round(0).IntPart())
}

func (a *Aggregator) byCategory(
	txs []core.Transaction,
	period Period,
	keep func(core.Transaction) bool,
	resolve func(core.Transaction) core.Category,
) []core.CategoryTotal {
	index := make(map[core.Category]int)
	out := make([]core.CategoryTotal, 0)
	total := decimal.Zero

	for _, tx := range txs {
		if !keep(tx) || !inPeriod(tx, period) {
			continue
		}
		cat := resolve(tx)
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, core.CategoryTotal{Category: cat, TotalAmount: decimal.Zero})
		}
		amount := tx.Magnitude()
		out[i].TotalAmount = out[i].TotalAmount.Add(amount)
		out[i].TransactionCount++
		total = total.Add(amount)
	}

	for i := range out {
		out[i].PercentageOfTotal = Percentage(out[i].TotalAmount, total)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func groupBy(txs []core.Transaction, period Period, key func(core.Transaction) string) []core.GroupTotal {
	index := make(map[string]int)
	out := make([]core.GroupTotal, 0)
	total := decimal.Zero

	for _, tx := range txs {
		if !tx.IsDebit() || !inPeriod(tx, period) {
			continue
		}
		k := key(tx)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, core.GroupTotal{Key: k, TotalAmount: decimal.Zero})
		}
		out[i].TotalAmount = out[i].TotalAmount.Add(tx.Magnitude())
		out[i].TransactionCount++
		total = total.Add(tx.Magnitude())
	}
	for i := range out {
		out[i].PercentageOfTotal = Percentage(out[i].TotalAmount, total)
	}
	return out
}

func inPeriod(tx core.Transaction, period Period) bool {
	return period == nil || period.Contains(tx.Timestamp)
}
