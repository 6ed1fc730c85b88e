package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:          "tx-1",
		Timestamp:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("-4.23"),
		Description: "Costa Coffee",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	merchantOnly := good
	merchantOnly.Description = ""
	merchantOnly.MerchantName = "Costa"
	if err := merchantOnly.Validate(); err != nil {
		t.Fatalf("merchant name alone should be enough, got %v", err)
	}

	bads := []Transaction{
		{Timestamp: good.Timestamp, Description: "a"},
		{ID: "x", Description: "a"},
		{ID: "x", Timestamp: good.Timestamp},
		{ID: "x", Timestamp: good.Timestamp, Description: "a", Category: Category(42)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionDirection(t *testing.T) {
	tests := []struct {
		amount string
		debit  bool
		credit bool
	}{
		{"-4.23", true, false},
		{"2500", false, true},
		{"0", false, false},
	}
	for _, tt := range tests {
		tx := Transaction{Amount: decimal.RequireFromString(tt.amount)}
		if tx.IsDebit() != tt.debit || tx.IsCredit() != tt.credit {
			t.Errorf("amount %s: debit=%v credit=%v", tt.amount, tx.IsDebit(), tx.IsCredit())
		}
	}
}

func TestCategoryOrder(t *testing.T) {
	spend := SpendCategories()
	for i := 1; i < len(spend); i++ {
		if spend[i-1] >= spend[i] {
			t.Fatalf("spend categories out of declaration order at %d", i)
		}
	}
	for _, c := range spend {
		if c.IsIncome() {
			t.Errorf("%s should not be income", c)
		}
	}
	for _, c := range IncomeCategories() {
		if !c.IsIncome() {
			t.Errorf("%s should be income", c)
		}
	}
}

func TestCategoryJSON(t *testing.T) {
	tx := Transaction{ID: "1", Category: Dining}
	b, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Transaction
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Category != Dining {
		t.Fatalf("expected dining, got %v", back.Category)
	}

	var bad Transaction
	err = json.Unmarshal([]byte(`{"id":"1","category":"holidays"}`), &bad)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range append(SpendCategories(), IncomeCategories()...) {
		got, err := ParseCategory(" " + c.String() + " ")
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCategory(""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestInsufficientFundsError(t *testing.T) {
	var err error = &InsufficientFundsError{
		Requested: decimal.RequireFromString("12.51"),
		Available: decimal.RequireFromString("12.5"),
	}
	wrapped := fmt.Errorf("invest: %w", err)
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		t.Fatal("expected errors.Is to match ErrInsufficientFunds")
	}
	var target *InsufficientFundsError
	if !errors.As(wrapped, &target) || !target.Available.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected typed error with available amount, got %v", wrapped)
	}
	if got := err.Error(); got != "insufficient funds: requested 12.51, available 12.50" {
		t.Fatalf("unexpected message %q", got)
	}
}
