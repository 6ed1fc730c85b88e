package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryTotal is a per-category aggregate. Derived on every call, never stored.
type CategoryTotal struct {
	Category          Category        `json:"category"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TransactionCount  int             `json:"transaction_count"`
	PercentageOfTotal int             `json:"percentage_of_total"`
}

// GroupTotal is the same aggregate keyed by month ("2025-01") or account id.
type GroupTotal struct {
	Key               string          `json:"key"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TransactionCount  int             `json:"transaction_count"`
	PercentageOfTotal int             `json:"percentage_of_total"`
}

type LedgerEventType string

const (
	EventRoundUpInvested       LedgerEventType = "roundup.invested"
	EventEmergencyContribution LedgerEventType = "emergency.contributed"
)

// LedgerEvent records a committed ledger mutation for downstream export.
type LedgerEvent struct {
	ID         string          `json:"id"`
	Type       LedgerEventType `json:"type"`
	UserID     string          `json:"user_id"`
	FundID     string          `json:"fund_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewLedgerEvent stamps a fresh event id.
func NewLedgerEvent(typ LedgerEventType, userID, fundID string, amount decimal.Decimal, at time.Time) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		FundID:     fundID,
		Amount:     amount,
		OccurredAt: at.UTC(),
	}
}

func (e LedgerEvent) Validate() error {
	if e.ID == "" {
		return errors.New("ledger event id cannot be empty")
	}
	switch e.Type {
	case EventRoundUpInvested, EventEmergencyContribution:
	default:
		return errors.New("unknown ledger event type")
	}
	if e.UserID == "" {
		return errors.New("ledger event user id cannot be empty")
	}
	return RequirePositive(e.Amount)
}
