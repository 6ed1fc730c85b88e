package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(id, amount, desc string, at time.Time) core.Transaction {
	return core.Transaction{ID: id, Amount: d(amount), Description: desc, Timestamp: at, AccountID: "acc-1"}
}

var march = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestByCategoryEndToEnd(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "-4.23", "Costa Coffee", march),
		tx("2", "-32.50", "Tesco", march),
		tx("3", "2500", "Salary", march),
	}
	got := New(nil).ByCategory(txs, nil)

	want := []core.CategoryTotal{
		{Category: core.Groceries, TotalAmount: d("32.50"), TransactionCount: 1, PercentageOfTotal: 88},
		{Category: core.Dining, TotalAmount: d("4.23"), TransactionCount: 1, PercentageOfTotal: 12},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Category != want[i].Category ||
			!got[i].TotalAmount.Equal(want[i].TotalAmount) ||
			got[i].TransactionCount != want[i].TransactionCount ||
			got[i].PercentageOfTotal != want[i].PercentageOfTotal {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestByCategoryEmpty(t *testing.T) {
	got := New(nil).ByCategory(nil, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	onlyIncome := []core.Transaction{tx("1", "10", "Salary", march)}
	if got := New(nil).ByCategory(onlyIncome, nil); len(got) != 0 {
		t.Fatalf("credits must not appear in spend, got %+v", got)
	}
}

func TestByCategorySingleCategory(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "-3", "Tesco", march),
		tx("2", "-7", "ASDA", march),
	}
	got := New(nil).ByCategory(txs, nil)
	if len(got) != 1 || got[0].PercentageOfTotal != 100 || got[0].TransactionCount != 2 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestByCategoryZeroTotal(t *testing.T) {
	// a zero-amount row is neither debit nor credit, so nothing is spend
	if got := New(nil).ByCategory([]core.Transaction{tx("1", "0", "Tesco", march)}, nil); len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
	if got := Percentage(decimal.Zero, decimal.Zero); got != 0 {
		t.Fatalf("Percentage with zero total = %d", got)
	}
}

func TestByCategoryTieBreak(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "-5", "Netflix", march),      // Subscriptions
		tx("2", "-5", "Amazon", march),       // Shopping
		tx("3", "-5", "Shell", march),        // Transport
		tx("4", "-5", "mystery shop", march), // Other
	}
	got := New(nil).ByCategory(txs, nil)
	order := []core.Category{core.Transport, core.Shopping, core.Subscriptions, core.Other}
	for i, c := range order {
		if got[i].Category != c {
			t.Fatalf("position %d = %v, want %v (%+v)", i, got[i].Category, c, got)
		}
		if got[i].PercentageOfTotal != 25 {
			t.Errorf("%v percentage = %d", c, got[i].PercentageOfTotal)
		}
	}
}

func TestByCategoryExplicitCategoryWins(t *testing.T) {
	labelled := tx("1", "-20", "Tesco", march)
	labelled.Category = core.Bills
	got := New(nil).ByCategory([]core.Transaction{labelled}, nil)
	if len(got) != 1 || got[0].Category != core.Bills {
		t.Fatalf("expected bills, got %+v", got)
	}
}

func TestByCategoryIgnoresIncomeCategoryOnDebit(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want core.Category
	}{
		{name: "keyword match", desc: "Tesco", want: core.Groceries},
		{name: "no match", desc: "Unknown shop", want: core.Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labelled := tx("1", "-20", tt.desc, march)
			labelled.Category = core.Salary
			got := New(nil).ByCategory([]core.Transaction{labelled}, nil)
			if len(got) != 1 || got[0].Category != tt.want {
				t.Fatalf("ByCategory() = %+v, want %v", got, tt.want)
			}
		})
	}
}

func TestIncomeByCategoryIgnoresSpendCategoryOnCredit(t *testing.T) {
	refund := tx("1", "15", "Tesco refund", march)
	refund.Category = core.Groceries
	got := New(nil).IncomeByCategory([]core.Transaction{refund}, nil)
	if len(got) != 1 || got[0].Category != core.OtherIncome {
		t.Fatalf("IncomeByCategory() = %+v", got)
	}
}

func TestPercentagesSumNearHundred(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "-1", "Tesco", march),
		tx("2", "-1", "Shell", march),
		tx("3", "-1", "Costa", march),
		tx("4", "-0.01", "Amazon", march),
		tx("5", "-13.37", "Rent", march),
	}
	got := New(nil).ByCategory(txs, nil)
	sum := 0
	for _, row := range got {
		sum += row.PercentageOfTotal
	}
	if diff := sum - 100; diff > len(got) || diff < -len(got) {
		t.Fatalf("percentages sum to %d over %d rows", sum, len(got))
	}
}

func TestPercentageRoundHalfUp(t *testing.T) {
	tests := []struct {
		part, total string
		want        int
	}{
		{"1", "8", 13}, // 12.5
		{"3", "8", 38}, // 37.5
		{"1", "3", 33}, // 33.33
		{"2", "3", 67}, // 66.67
		{"4.23", "36.73", 12},
		{"36.73", "36.73", 100},
	}
	for _, tt := range tests {
		if got := Percentage(d(tt.part), d(tt.total)); got != tt.want {
			t.Errorf("Percentage(%s, %s) = %d, want %d", tt.part, tt.total, got, tt.want)
		}
	}
}

func TestByCategoryPeriodFilter(t *testing.T) {
	feb := time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)
	lastYear := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		tx("1", "-10", "Tesco", march),
		tx("2", "-20", "Tesco", feb),
		tx("3", "-40", "Tesco", lastYear),
	}
	agg := New(nil)

	tests := []struct {
		name   string
		period Period
		want   string
	}{
		{"this month", ThisMonth(march), "10"},
		{"previous month", PreviousMonth(march), "20"},
		{"same month other year excluded", MonthPeriod{Year: 2024, Month: time.March}, "40"},
		{"range inclusive start", RangePeriod{Start: feb, End: march}, "20"},
		{"range exclusive end", RangePeriod{Start: feb, End: march.Add(time.Nanosecond)}, "30"},
		{"all", nil, "70"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := agg.ByCategory(txs, tt.period)
			if len(got) != 1 || !got[0].TotalAmount.Equal(d(tt.want)) {
				t.Fatalf("got %+v, want total %s", got, tt.want)
			}
			if !TotalSpend(txs, tt.period).Equal(d(tt.want)) {
				t.Fatalf("TotalSpend mismatch")
			}
		})
	}
}

func TestMonthPeriodLocation(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 23:30 UTC on 31 May is 00:30 on 1 June in London (BST)
	at := time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC)
	if !(MonthPeriod{Year: 2025, Month: time.June, Location: london}).Contains(at) {
		t.Error("expected June in London")
	}
	if !(MonthPeriod{Year: 2025, Month: time.May}).Contains(at) {
		t.Error("expected May in UTC")
	}
}

func TestPreviousMonthWrapsYear(t *testing.T) {
	p := PreviousMonth(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	if p.Year != 2024 || p.Month != time.December {
		t.Fatalf("got %d-%d", p.Year, p.Month)
	}
}

func TestIncomeByCategory(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "2500", "ACME SALARY", march),
		tx("2", "500", "Gift from mum", march),
		tx("3", "-10", "Tesco", march),
	}
	got := New(nil).IncomeByCategory(txs, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %+v", got)
	}
	if got[0].Category != core.Salary || got[0].PercentageOfTotal != 83 {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].Category != core.OtherIncome || got[1].PercentageOfTotal != 17 {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestByMonthAndAccount(t *testing.T) {
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	a := tx("1", "-10", "Tesco", march)
	b := tx("2", "-30", "Tesco", feb)
	b.AccountID = "acc-2"
	c := tx("3", "-10", "Shell", march)
	txs := []core.Transaction{a, b, c, tx("4", "100", "Salary", march)}
	agg := New(nil)

	months := agg.ByMonth(txs, nil)
	if len(months) != 2 || months[0].Key != "2025-02" || months[1].Key != "2025-03" {
		t.Fatalf("unexpected months %+v", months)
	}
	if !months[1].TotalAmount.Equal(d("20")) || months[1].TransactionCount != 2 || months[1].PercentageOfTotal != 40 {
		t.Errorf("march = %+v", months[1])
	}

	accounts := agg.ByAccount(txs, nil)
	if len(accounts) != 2 || accounts[0].Key != "acc-2" || accounts[0].PercentageOfTotal != 60 {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
}
