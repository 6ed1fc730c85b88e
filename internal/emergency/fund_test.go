package emergency

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/roundup"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var created = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func TestNewState(t *testing.T) {
	s, err := NewState(d("2500"), 6, created)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if !s.TargetAmount.Equal(d("15000")) || !s.CurrentAmount.IsZero() || s.TargetMonths != 6 {
		t.Fatalf("unexpected state %+v", s)
	}

	tests := []struct {
		name    string
		monthly string
		months  int
		wantErr error
	}{
		{"zero expenses", "0", 6, core.ErrInvalidAmount},
		{"negative expenses", "-1", 6, core.ErrInvalidAmount},
		{"zero months", "100", 0, ErrInvalidMonths},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewState(d(tt.monthly), tt.months, created); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		state State
		ok    bool
	}{
		{"valid", State{CurrentAmount: d("0"), TargetAmount: d("100"), TargetMonths: 3}, true},
		{"negative current", State{CurrentAmount: d("-1"), TargetAmount: d("100"), TargetMonths: 3}, false},
		{"zero target", State{CurrentAmount: d("0"), TargetAmount: d("0"), TargetMonths: 3}, false},
		{"zero months", State{CurrentAmount: d("0"), TargetAmount: d("100"), TargetMonths: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestContributeSumsContributions(t *testing.T) {
	s, _ := NewState(d("1000"), 3, created)
	var contribs []Contribution
	for i, amount := range []string{"100", "250.50", "0.01", "5000"} {
		next, c, err := Contribute(s, d(amount), created.AddDate(0, i, 0))
		if err != nil {
			t.Fatalf("Contribute(%s): %v", amount, err)
		}
		if c.ID == "" || !c.Amount.Equal(d(amount)) {
			t.Fatalf("bad contribution record %+v", c)
		}
		s = next
		contribs = append(contribs, c)
	}
	if !s.CurrentAmount.Equal(Total(contribs)) {
		t.Fatalf("current %s != sum of contributions %s", s.CurrentAmount, Total(contribs))
	}
	if !s.Exceeded() || s.Progress() <= 100 || !s.Remaining().IsZero() {
		t.Fatalf("fund above target should report exceeded: %+v progress=%d", s, s.Progress())
	}
}

func TestContributeRejectsNonPositive(t *testing.T) {
	s, _ := NewState(d("1000"), 3, created)
	s.CurrentAmount = d("42")
	for _, amount := range []string{"-5", "0"} {
		next, _, err := Contribute(s, d(amount), created)
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("Contribute(%s) expected ErrInvalidAmount, got %v", amount, err)
		}
		if !next.CurrentAmount.Equal(d("42")) {
			t.Fatalf("Contribute(%s) changed current amount to %s", amount, next.CurrentAmount)
		}
	}
}

func TestProgressAndCoverage(t *testing.T) {
	s := State{CurrentAmount: d("3750"), TargetAmount: d("15000"), TargetMonths: 6}
	if got := s.Progress(); got != 25 {
		t.Errorf("Progress = %d, want 25", got)
	}
	if got := s.MonthsCovered(d("2500")); !got.Equal(d("1.5")) {
		t.Errorf("MonthsCovered = %s, want 1.5", got)
	}
	if got := s.MonthsCovered(decimal.Zero); !got.IsZero() {
		t.Errorf("MonthsCovered with zero expenses = %s", got)
	}
	if !s.Remaining().Equal(d("11250")) {
		t.Errorf("Remaining = %s", s.Remaining())
	}
	if len(s.Milestones()) != 6 {
		t.Errorf("expected 6 default milestones, got %d", len(s.Milestones()))
	}
}

func TestMonthlyProgress(t *testing.T) {
	contribs := []Contribution{
		{Amount: d("100"), Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Amount: d("50"), Date: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{Amount: d("25"), Date: time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)},
	}
	got := MonthlyProgress(contribs)
	if len(got) != 2 {
		t.Fatalf("expected 2 months, got %+v", got)
	}
	if got[0].Month != "2025-01" || !got[0].Amount.Equal(d("50")) {
		t.Errorf("first month = %+v", got[0])
	}
	if got[1].Month != "2025-03" || !got[1].Amount.Equal(d("125")) || got[1].Count != 2 {
		t.Errorf("second month = %+v", got[1])
	}
	if len(MonthlyProgress(nil)) != 0 {
		t.Error("expected no months for no contributions")
	}
}

func TestMilestoneDates(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC) }
	contribs := []Contribution{
		{Amount: d("600"), Date: day(3)},
		{Amount: d("300"), Date: day(1)},
		{Amount: d("2000"), Date: day(9)},
	}
	ms := roundup.MilestonesFromThresholds(d("500"), d("1000"), d("2500"), d("5000"))
	got := MilestoneDates(contribs, ms)

	want := []struct {
		threshold string
		date      time.Time
	}{
		{"500", day(3)},
		{"1000", day(9)},
		{"2500", day(9)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %+v", len(want), got)
	}
	for i, w := range want {
		if !got[i].Milestone.Threshold.Equal(d(w.threshold)) || !got[i].Date.Equal(w.date) {
			t.Errorf("milestone %d = %+v, want %s on %s", i, got[i], w.threshold, w.date)
		}
	}
}
