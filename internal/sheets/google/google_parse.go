package google

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ledgerRow is one exported event as read back from a sheet.
type ledgerRow struct {
	Date    string
	Type    string
	UserID  string
	FundID  string
	Amount  decimal.Decimal
	EventID string
}

// parseLedgerRows converts a values matrix (as returned by Sheets API) into
// ledger rows. A header row, blank rows and rows without an event id or a
// parseable amount are skipped.
func parseLedgerRows(values [][]interface{}) []ledgerRow {
	out := make([]ledgerRow, 0, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 6 {
			continue
		}
		if i == 0 && strings.EqualFold(cols[0], "date") {
			continue
		}
		id := cols[5]
		if id == "" {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(cols[4], ",", "."))
		if err != nil {
			continue
		}
		out = append(out, ledgerRow{
			Date:    cols[0],
			Type:    cols[1],
			UserID:  cols[2],
			FundID:  cols[3],
			Amount:  amount,
			EventID: id,
		})
	}
	return out
}
