// Package categorize maps transactions onto the closed category taxonomy
// using ordered keyword rules. First match wins.
package categorize

import (
	"strings"

	"finboard/internal/core"
)

// Rule assigns Category when either the description or the merchant name
// contains one of Keywords. Keywords must already be lower-case.
type Rule struct {
	Category core.Category
	Keywords []string
}

// Categorizer is immutable after construction and safe for concurrent use.
type Categorizer struct {
	rules  []Rule
	income []Rule
}

// DefaultRules returns the canonical spend rule table. Order matters.
func DefaultRules() []Rule {
	return []Rule{
		{Category: core.Groceries, Keywords: []string{"tesco", "sainsbury", "asda"}},
		{Category: core.Transport, Keywords: []string{"shell", "petrol", "fuel"}},
		{Category: core.Subscriptions, Keywords: []string{"netflix", "spotify", "disney"}},
		{Category: core.Dining, Keywords: []string{"coffee", "starbucks", "costa"}},
		{Category: core.Shopping, Keywords: []string{"amazon"}},
		{Category: core.Bills, Keywords: []string{"rent", "council", "gas", "electric", "internet"}},
		{Category: core.Transport, Keywords: []string{"bus", "tfl"}},
	}
}

// DefaultIncomeRules returns the income rule table.
func DefaultIncomeRules() []Rule {
	return []Rule{
		{Category: core.Salary, Keywords: []string{"salary", "payroll", "wages"}},
	}
}

// New creates a categorizer with the default rule tables.
func New() *Categorizer {
	return &Categorizer{rules: DefaultRules(), income: DefaultIncomeRules()}
}

// NewWithRules creates a categorizer with custom spend rules.
func NewWithRules(rules []Rule) *Categorizer {
	return &Categorizer{rules: rules, income: DefaultIncomeRules()}
}

// Categorize returns the spend category for tx. Unmatched input is Other.
func (c *Categorizer) Categorize(tx core.Transaction) core.Category {
	return match(c.rules, tx, core.Other)
}

// CategorizeIncome returns the income category for tx. Unmatched input is OtherIncome.
func (c *Categorizer) CategorizeIncome(tx core.Transaction) core.Category {
	return match(c.income, tx, core.OtherIncome)
}

// Resolve prefers an explicit category on the transaction over the rule
// tables. The explicit category is ignored when it belongs to the other
// taxonomy, so a debit never resolves to an income category and a credit
// never resolves to a spend category.
func (c *Categorizer) Resolve(tx core.Transaction) core.Category {
	income := tx.IsCredit()
	if tx.Category.IsValid() && tx.Category.IsIncome() == income {
		return tx.Category
	}
	if income {
		return c.CategorizeIncome(tx)
	}
	return c.Categorize(tx)
}

// Rules returns a copy of the spend rule table.
func (c *Categorizer) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func match(rules []Rule, tx core.Transaction, fallback core.Category) core.Category {
	desc := asciiLower(tx.Description)
	merchant := asciiLower(tx.MerchantName)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(desc, kw) || strings.Contains(merchant, kw) {
				return rule.Category
			}
		}
	}
	return fallback
}

// asciiLower folds A-Z only. Other bytes, including multi-byte UTF-8
// sequences, are left as-is so "ÉCLAIR" does not become "éclair".
func asciiLower(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
