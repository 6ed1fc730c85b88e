// Package emergency tracks an emergency savings fund: its target, the
// contributions towards it and the milestones reached along the way.
package emergency

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/roundup"
)

// DefaultTargetMonths is the number of months of expenses the fund covers
// when the user does not choose.
const DefaultTargetMonths = 6

// State is the single per-user fund record.
type State struct {
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	TargetMonths  int             `json:"target_months"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Contribution is an immutable append-only deposit record.
type Contribution struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

// MonthTotal is the sum of contributions made in one calendar month.
type MonthTotal struct {
	Month  string          `json:"month"` // 2006-01
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// MilestoneDate records when the running total first reached a milestone.
type MilestoneDate struct {
	Milestone roundup.Milestone `json:"milestone"`
	Date      time.Time         `json:"date"`
}

var (
	ErrInvalidTarget = errors.New("invalid emergency fund target")
	ErrInvalidMonths = errors.New("invalid target months")
)

// NewState sizes a fund at monthlyExpenses * months, starting empty.
func NewState(monthlyExpenses decimal.Decimal, months int, now time.Time) (State, error) {
	if err := core.RequirePositive(monthlyExpenses); err != nil {
		return State{}, fmt.Errorf("monthly expenses: %w", err)
	}
	if months <= 0 {
		return State{}, ErrInvalidMonths
	}
	s := State{
		CurrentAmount: decimal.Zero,
		TargetAmount:  core.RoundMoney(monthlyExpenses.Mul(decimal.NewFromInt(int64(months)))),
		TargetMonths:  months,
		CreatedAt:     now.UTC(),
	}
	return s, s.Validate()
}

func (s State) Validate() error {
	if s.CurrentAmount.IsNegative() {
		return fmt.Errorf("current amount %s: %w", s.CurrentAmount, core.ErrInvalidAmount)
	}
	if !s.TargetAmount.IsPositive() {
		return ErrInvalidTarget
	}
	if s.TargetMonths <= 0 {
		return ErrInvalidMonths
	}
	return nil
}

// Contribute returns s with amount added and the matching contribution
// record. Non-positive amounts fail with core.ErrInvalidAmount and s is
// returned unchanged. There is no cap: the target may be exceeded.
func Contribute(s State, amount decimal.Decimal, now time.Time) (State, Contribution, error) {
	if err := core.RequirePositive(amount); err != nil {
		return s, Contribution{}, fmt.Errorf("contribute %s: %w", amount, err)
	}
	next := s
	next.CurrentAmount = s.CurrentAmount.Add(amount)
	c := Contribution{
		ID:     uuid.NewString(),
		Amount: amount,
		Date:   now.UTC(),
	}
	return next, c, nil
}

// Progress is the percentage of target saved, rounded half-up. It exceeds
// 100 once the goal is passed.
func (s State) Progress() int {
	if !s.TargetAmount.IsPositive() {
		return 0
	}
	return int(s.CurrentAmount.Mul(decimal.NewFromInt(100)).Div(s.TargetAmount).Round(0).IntPart())
}

// Exceeded reports whether the fund is above target.
func (s State) Exceeded() bool {
	return s.CurrentAmount.GreaterThan(s.TargetAmount)
}

// Remaining is the amount still needed, never negative.
func (s State) Remaining() decimal.Decimal {
	r := s.TargetAmount.Sub(s.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// MonthsCovered is how many months of monthlyExpenses the fund would cover,
// to one decimal place.
func (s State) MonthsCovered(monthlyExpenses decimal.Decimal) decimal.Decimal {
	if !monthlyExpenses.IsPositive() {
		return decimal.Zero
	}
	return s.CurrentAmount.Div(monthlyExpenses).Round(1)
}

// Milestones returns the default milestone ladder for this fund's target.
func (s State) Milestones() []roundup.Milestone {
	return roundup.DefaultMilestones(s.TargetAmount)
}

// Total sums contribution amounts.
func Total(contribs []Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range contribs {
		total = total.Add(c.Amount)
	}
	return total
}

// MonthlyProgress groups contributions by calendar month (UTC), oldest first.
func MonthlyProgress(contribs []Contribution) []MonthTotal {
	index := make(map[string]int)
	out := make([]MonthTotal, 0)
	for _, c := range contribs {
		key := c.Date.UTC().Format("2006-01")
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MonthTotal{Month: key, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(c.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// MilestoneDates replays contributions in date order and records the date
// each milestone was first reached. Unreached milestones are omitted.
func MilestoneDates(contribs []Contribution, milestones []roundup.Milestone) []MilestoneDate {
	ordered := make([]Contribution, len(contribs))
	copy(ordered, contribs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	remaining := make([]roundup.Milestone, 0, len(milestones))
	for _, m := range roundup.SortMilestones(milestones) {
		if m.Threshold.IsPositive() {
			remaining = append(remaining, m)
		}
	}

	out := make([]MilestoneDate, 0)
	running := decimal.Zero
	for _, c := range ordered {
		running = running.Add(c.Amount)
		for len(remaining) > 0 && running.GreaterThanOrEqual(remaining[0].Threshold) {
			out = append(out, MilestoneDate{Milestone: remaining[0], Date: c.Date})
			remaining = remaining[1:]
		}
	}
	return out
}
