// Package advisor turns a spending summary into a short list of
// recommendations. The LLM-backed advisor and the rule-based one share the
// same interface; callers never see which one answered.
package advisor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

var ErrEmptySummary = errors.New("advisor: empty summary")

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Recommendation struct {
	Title    string        `json:"title"`
	Detail   string        `json:"detail"`
	Category core.Category `json:"category,omitempty"`
	Priority Priority      `json:"priority"`
}

// Summary is what an advisor gets to see: aggregates only, no raw
// transactions.
type Summary struct {
	Period     string               `json:"period"`
	Categories []core.CategoryTotal `json:"categories"`
	TotalSpend decimal.Decimal      `json:"total_spend"`
	Income     decimal.Decimal      `json:"income"`
}

type Advisor interface {
	Recommend(ctx context.Context, s Summary) ([]Recommendation, error)
}
