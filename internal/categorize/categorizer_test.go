package categorize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func debit(desc, merchant string) core.Transaction {
	return core.Transaction{
		ID:           "t",
		Description:  desc,
		MerchantName: merchant,
		Amount:       decimal.RequireFromString("-1.00"),
	}
}

func TestCategorize(t *testing.T) {
	c := New()
	tests := []struct {
		name     string
		desc     string
		merchant string
		want     core.Category
	}{
		{"groceries", "TESCO STORES 2231", "", core.Groceries},
		{"rule order groceries before shopping", "TESCO EXPRESS AMAZON PRIME", "", core.Groceries},
		{"fuel", "Shell Petrol Station", "", core.Transport},
		{"subscription", "NETFLIX.COM", "", core.Subscriptions},
		{"dining", "Costa Coffee", "", core.Dining},
		{"shopping", "AMAZON MARKETPLACE", "", core.Shopping},
		{"bills", "British Gas", "", core.Bills},
		{"public transport", "TFL TRAVEL CH", "", core.Transport},
		{"merchant field only", "CARD PAYMENT", "Sainsbury's", core.Groceries},
		{"subscriptions before dining", "Disney coffee mug", "", core.Subscriptions},
		{"bills before public transport", "council bus pass", "", core.Bills},
		{"no match", "Unknown Vendor", "", core.Other},
		{"empty", "", "", core.Other},
		{"non-ascii untouched", "CAFÉ ÉCLAIR", "", core.Other},
		{"non-ascii with keyword", "Crème Costa", "", core.Dining},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Categorize(debit(tt.desc, tt.merchant)); got != tt.want {
				t.Errorf("Categorize(%q, %q) = %v, want %v", tt.desc, tt.merchant, got, tt.want)
			}
		})
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	c := New()
	tx := debit("Spotify P1234", "")
	first := c.Categorize(tx)
	for i := 0; i < 10; i++ {
		if got := c.Categorize(tx); got != first {
			t.Fatalf("call %d returned %v, first returned %v", i, got, first)
		}
	}
}

func TestResolve(t *testing.T) {
	c := New()
	tx := debit("Tesco", "")
	tx.Category = core.Bills
	if got := c.Resolve(tx); got != core.Bills {
		t.Errorf("explicit category should win, got %v", got)
	}

	salary := core.Transaction{Description: "ACME LTD SALARY", Amount: decimal.NewFromInt(2500)}
	if got := c.Resolve(salary); got != core.Salary {
		t.Errorf("expected salary, got %v", got)
	}
	refund := core.Transaction{Description: "Tesco refund", Amount: decimal.NewFromInt(5)}
	if got := c.Resolve(refund); got != core.OtherIncome {
		t.Errorf("credits never use the spend taxonomy, got %v", got)
	}
}

func TestResolveIgnoresCategoryFromOtherTaxonomy(t *testing.T) {
	c := New()
	tests := []struct {
		name     string
		tx       core.Transaction
		category core.Category
		want     core.Category
	}{
		{name: "salary on debit", tx: debit("Tesco", ""), category: core.Salary, want: core.Groceries},
		{name: "other income on debit", tx: debit("Mystery", ""), category: core.OtherIncome, want: core.Other},
		{
			name:     "spend category on credit",
			tx:       core.Transaction{Description: "ACME payroll", Amount: decimal.NewFromInt(100)},
			category: core.Bills,
			want:     core.Salary,
		},
		{
			name:     "income category on credit",
			tx:       core.Transaction{Description: "Tesco refund", Amount: decimal.NewFromInt(5)},
			category: core.Salary,
			want:     core.Salary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx
			tx.Category = tt.category
			if got := c.Resolve(tx); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsciiLower(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ABC", "abc"},
		{"already", "already"},
		{"ÀBC", "Àbc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := asciiLower(tt.in); got != tt.want {
			t.Errorf("asciiLower(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRules(t *testing.T) {
	data := []byte(`
categories:
  - name: groceries
    keywords: [" LIDL ", aldi, ""]
  - name: dining
    keywords: []
`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Category != core.Groceries {
		t.Fatalf("unexpected rules %+v", rules)
	}
	if rules[0].Keywords[0] != "lidl" || rules[0].Keywords[1] != "aldi" {
		t.Fatalf("keywords not normalized: %v", rules[0].Keywords)
	}

	c := WithExtraRules(rules)
	if got := c.Categorize(debit("LIDL GB", "")); got != core.Groceries {
		t.Errorf("extra keyword not applied, got %v", got)
	}
	// canonical rules still win over appended ones
	if got := c.Categorize(debit("aldi amazon", "")); got != core.Shopping {
		t.Errorf("canonical rule should fire first, got %v", got)
	}
}

func TestParseRulesRejectsUnknownCategories(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown", "categories:\n  - name: holidays\n    keywords: [ryanair]\n"},
		{"income", "categories:\n  - name: salary\n    keywords: [bonus]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.data)); !errors.Is(err, core.ErrInvalidCategory) {
				t.Fatalf("expected ErrInvalidCategory, got %v", err)
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	c, err := FromFile("")
	if err != nil || len(c.Rules()) != len(DefaultRules()) {
		t.Fatalf("empty path should give defaults, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("categories:\n  - name: shopping\n    keywords: [ebay]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got := c.Categorize(debit("EBAY O*123", "")); got != core.Shopping {
		t.Errorf("expected shopping, got %v", got)
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
