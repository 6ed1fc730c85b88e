package roundup

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Milestone is a savings threshold.
type Milestone struct {
	Threshold decimal.Decimal `json:"threshold"`
	Label     string          `json:"label"`
}

// MilestoneStatus partitions milestones around a current amount.
type MilestoneStatus struct {
	Achieved []Milestone `json:"achieved"`
	Next     *Milestone  `json:"next"`
}

var defaultThresholds = []int64{500, 1000, 2500, 5000, 7500}

// DefaultMilestones returns the fixed thresholds plus target, ascending and
// without duplicates.
func DefaultMilestones(target decimal.Decimal) []Milestone {
	out := make([]Milestone, 0, len(defaultThresholds)+1)
	for _, v := range defaultThresholds {
		out = append(out, Milestone{Threshold: decimal.NewFromInt(v), Label: "£" + decimal.NewFromInt(v).String()})
	}
	if target.IsPositive() {
		out = append(out, Milestone{Threshold: target, Label: "Target"})
	}
	return normalize(out)
}

// GetMilestoneStatus marks every threshold <= current as achieved and returns
// the lowest unmet one as Next, or nil once all are met.
func GetMilestoneStatus(current decimal.Decimal, milestones []Milestone) MilestoneStatus {
	status := MilestoneStatus{Achieved: make([]Milestone, 0)}
	for _, m := range normalize(milestones) {
		if current.GreaterThanOrEqual(m.Threshold) {
			status.Achieved = append(status.Achieved, m)
			continue
		}
		if status.Next == nil {
			next := m
			status.Next = &next
		}
	}
	return status
}

// MilestonesFromThresholds labels plain threshold values.
func MilestonesFromThresholds(thresholds ...decimal.Decimal) []Milestone {
	out := make([]Milestone, 0, len(thresholds))
	for _, t := range thresholds {
		out = append(out, Milestone{Threshold: t, Label: "£" + t.String()})
	}
	return normalize(out)
}

// SortMilestones returns an ascending copy of ms with duplicate thresholds
// collapsed. The later label wins, so an explicit target overrides a fixed step.
func SortMilestones(ms []Milestone) []Milestone {
	return normalize(ms)
}

func normalize(ms []Milestone) []Milestone {
	out := make([]Milestone, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold.LessThan(out[j].Threshold) })

	deduped := out[:0]
	for i, m := range out {
		if i > 0 && m.Threshold.Equal(deduped[len(deduped)-1].Threshold) {
			deduped[len(deduped)-1] = m
			continue
		}
		deduped = append(deduped, m)
	}
	return deduped
}
