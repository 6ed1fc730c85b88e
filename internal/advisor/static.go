package advisor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Static is the rule-based advisor used when no model is configured.
type Static struct {
	// ShareThreshold is the percentage of total spend above which a
	// discretionary category gets flagged.
	ShareThreshold int
}

func NewStatic() *Static {
	return &Static{ShareThreshold: 30}
}

var discretionary = map[core.Category]bool{
	core.Dining:        true,
	core.Shopping:      true,
	core.Subscriptions: true,
	core.Other:         true,
}

func (a *Static) Recommend(_ context.Context, s Summary) ([]Recommendation, error) {
	if len(s.Categories) == 0 {
		return nil, ErrEmptySummary
	}

	var recs []Recommendation
	if s.Income.IsPositive() && s.TotalSpend.GreaterThan(s.Income) {
		over := core.RoundMoney(s.TotalSpend.Sub(s.Income))
		recs = append(recs, Recommendation{
			Title:    "Spending exceeds income",
			Detail:   fmt.Sprintf("You spent %s more than you earned this period.", over.StringFixed(2)),
			Priority: PriorityHigh,
		})
	}

	for _, ct := range s.Categories {
		if !discretionary[ct.Category] || ct.PercentageOfTotal < a.ShareThreshold {
			continue
		}
		target := core.RoundMoney(ct.TotalAmount.Mul(decimal.NewFromFloat(0.1)))
		recs = append(recs, Recommendation{
			Title:    fmt.Sprintf("Trim %s", ct.Category),
			Detail:   fmt.Sprintf("%s takes %d%% of your spending. Cutting it by 10%% frees %s.", ct.Category, ct.PercentageOfTotal, target.StringFixed(2)),
			Category: ct.Category,
			Priority: PriorityMedium,
		})
	}

	for _, ct := range s.Categories {
		if ct.Category == core.Subscriptions && ct.TransactionCount >= 3 {
			recs = append(recs, Recommendation{
				Title:    "Review subscriptions",
				Detail:   fmt.Sprintf("%d subscription payments this period. Cancel the ones you no longer use.", ct.TransactionCount),
				Category: core.Subscriptions,
				Priority: PriorityLow,
			})
		}
	}

	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Title:    "Keep it up",
			Detail:   "No category stands out. Consider moving your round-ups into a fund.",
			Priority: PriorityLow,
		})
	}
	return recs, nil
}
