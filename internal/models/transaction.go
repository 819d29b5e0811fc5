package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable peer transfer record.
type Transaction struct {
	ID                    int64           `json:"id"`
	Reference             string          `json:"reference"`
	SenderAccountNumber   string          `json:"sender_account_number"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	CreatedAt             time.Time       `json:"created_at"`
}

type TransferRequest struct {
	SenderAccountNumber   string          `json:"sender_acc"`
	ReceiverAccountNumber string          `json:"receiver_acc"`
	Amount                decimal.Decimal `json:"amount"`
	IdempotencyKey        string          `json:"-"`
}
