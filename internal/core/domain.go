package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Category is a closed taxonomy label. Declaration order is significant:
	// aggregations break ties by it.
	Category int

	Transaction struct {
		ID           string          `json:"id"`
		Timestamp    time.Time       `json:"timestamp"`
		Amount       decimal.Decimal `json:"amount"` // negative = debit
		Description  string          `json:"description"`
		MerchantName string          `json:"merchant_name,omitempty"`
		AccountID    string          `json:"account_id"`
		Category     Category        `json:"category,omitempty"` // optional, overrides rule-based categorization
	}
)

const (
	CategoryNone Category = iota

	// Spend taxonomy
	Groceries
	Transport
	Dining
	Shopping
	Bills
	Subscriptions
	Other

	// Income taxonomy
	Salary
	OtherIncome
)

var categoryNames = map[Category]string{
	Groceries:     "groceries",
	Transport:     "transport",
	Dining:        "dining",
	Shopping:      "shopping",
	Bills:         "bills",
	Subscriptions: "subscriptions",
	Other:         "other",
	Salary:        "salary",
	OtherIncome:   "other_income",
}

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStaleState        = errors.New("stale state")
	ErrUnknownFund       = errors.New("unknown fund")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrEmptyDescription  = errors.New("empty description")
)

// InsufficientFundsError reports an investment larger than the uninvested pool.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// SpendCategories lists the spend taxonomy in declaration order.
func SpendCategories() []Category {
	return []Category{Groceries, Transport, Dining, Shopping, Bills, Subscriptions, Other}
}

// IncomeCategories lists the income taxonomy in declaration order.
func IncomeCategories() []Category {
	return []Category{Salary, OtherIncome}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return ""
}

// IsIncome reports whether c belongs to the income taxonomy.
func (c Category) IsIncome() bool {
	return c == Salary || c == OtherIncome
}

// IsValid reports whether c is a declared category (CategoryNone is not).
func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory maps a category name back to its enum value.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if c == CategoryNone {
		return []byte{}, nil
	}
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = CategoryNone
		return nil
	}
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsDebit reports whether the transaction is spend.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// IsCredit reports whether the transaction is income.
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// Magnitude returns the absolute transaction amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("transaction id cannot be empty")
	}
	if t.Timestamp.IsZero() {
		return errors.New("transaction timestamp cannot be zero")
	}
	if strings.TrimSpace(t.Description) == "" && strings.TrimSpace(t.MerchantName) == "" {
		return ErrEmptyDescription
	}
	if t.Category != CategoryNone && !t.Category.IsValid() {
		return ErrInvalidCategory
	}
	return nil
}
