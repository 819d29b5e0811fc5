package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTransferCommitted  EventType = "transfer_committed"
	EventDepositApproved    EventType = "deposit_approved"
	EventDepositRejected    EventType = "deposit_rejected"
	EventWithdrawalReserved EventType = "withdrawal_reserved"
	EventWithdrawalResolved EventType = "withdrawal_resolved"
	EventPurchaseCreated    EventType = "purchase_created"
	EventAccountRegistered  EventType = "account_registered"
)

// LedgerEvent is published after a committed state change. AccountIDs
// lists every account whose balances changed.
type LedgerEvent struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	AccountIDs []int64         `json:"account_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	OccurredAt time.Time       `json:"occurred_at"`
}
