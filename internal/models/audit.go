package models

import (
	"encoding/json"
	"time"
)

const (
	EntityAccount     = "account"
	EntityTransaction = "transaction"
	EntityDeposit     = "deposit"
	EntityWithdrawal  = "withdrawal"
	EntityPurchase    = "purchase"
)

const (
	AuditCreate         = "create"
	AuditDebit          = "debit"
	AuditCredit         = "credit"
	AuditApprove        = "approve"
	AuditReject         = "reject"
	AuditStatus         = "status"
	AuditReferralCredit = "referral_credit"
)

// AuditEntry is one append-only row of the request log.
type AuditEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	AccountID  int64           `json:"account_id"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type IdempotencyRecord struct {
	Key         string          `json:"key"`
	AccountID   int64           `json:"account_id"`
	Operation   string          `json:"operation"`
	RequestHash string          `json:"request_hash"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
