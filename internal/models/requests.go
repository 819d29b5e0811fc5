package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle of deposit and withdrawal requests.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type DepositRequest struct {
	ID               int64           `json:"id"`
	AccountID        int64           `json:"account_id"`
	TxHash           string          `json:"tx_hash"`
	ClaimedAmount    decimal.Decimal `json:"claimed_amount"`
	ApprovedAmount   decimal.Decimal `json:"approved_amount"`
	ReferrerOverride string          `json:"referrer_override,omitempty"`
	Status           RequestStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

type DepositClaim struct {
	AccountID        int64           `json:"-"`
	TxHash           string          `json:"tx_hash"`
	ClaimedAmount    decimal.Decimal `json:"amount"`
	ReferrerOverride string          `json:"referrer_account_number"`
}

type WithdrawalRequest struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Wallet      string          `json:"wallet"`
	Amount      decimal.Decimal `json:"amount"`
	Status      RequestStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

type WithdrawalClaim struct {
	AccountID      int64           `json:"-"`
	Wallet         string          `json:"wallet"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"-"`
}
