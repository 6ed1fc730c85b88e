package roundup

import (
	"fmt"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// FundID identifies one of the fixed investment funds.
type FundID string

const (
	FundFTSE100 FundID = "ftse100"
	FundGlobal  FundID = "global"
	FundTech    FundID = "tech"
)

// Fund describes an investable fund.
type Fund struct {
	ID   FundID `json:"id"`
	Name string `json:"name"`
}

var funds = []Fund{
	{ID: FundFTSE100, Name: "FTSE 100 Tracker"},
	{ID: FundGlobal, Name: "Global Equity"},
	{ID: FundTech, Name: "Technology Growth"},
}

// Funds returns the fixed fund list.
func Funds() []Fund {
	out := make([]Fund, len(funds))
	copy(out, funds)
	return out
}

// ParseFund validates a fund identifier.
func ParseFund(id string) (FundID, error) {
	for _, f := range funds {
		if string(f.ID) == id {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownFund, id)
}

// FundAllocation maps a fund to its cumulative invested amount.
// Amounts only ever grow.
type FundAllocation map[FundID]decimal.Decimal

// Total sums every fund.
func (a FundAllocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a {
		total = total.Add(v)
	}
	return total
}

func (a FundAllocation) Clone() FundAllocation {
	out := make(FundAllocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Sorted returns the allocation in fund declaration order, zero funds included.
func (a FundAllocation) Sorted() []FundBalance {
	out := make([]FundBalance, 0, len(funds))
	for _, f := range funds {
		amount, ok := a[f.ID]
		if !ok {
			amount = decimal.Zero
		}
		out = append(out, FundBalance{Fund: f, Amount: amount})
	}
	return out
}

type FundBalance struct {
	Fund
	Amount decimal.Decimal `json:"amount"`
}
