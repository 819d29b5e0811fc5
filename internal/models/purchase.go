package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	Active   bool            `json:"active"`
}

type PurchaseStatus string

const (
	PurchasePending        PurchaseStatus = "pending"
	PurchasePacked         PurchaseStatus = "packed"
	PurchaseOutForDelivery PurchaseStatus = "out_for_delivery"
	PurchaseDelivered      PurchaseStatus = "delivered"
)

var purchaseFlow = map[PurchaseStatus]PurchaseStatus{
	PurchasePending:        PurchasePacked,
	PurchasePacked:         PurchaseOutForDelivery,
	PurchaseOutForDelivery: PurchaseDelivered,
}

// CanAdvanceTo reports whether next is the immediate successor of s.
func (s PurchaseStatus) CanAdvanceTo(next PurchaseStatus) bool {
	succ, ok := purchaseFlow[s]
	return ok && succ == next
}

type Purchase struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	ProductID   int64           `json:"product_id"`
	Price       decimal.Decimal `json:"price"`
	ContactName string          `json:"contact_name"`
	Phone       string          `json:"phone"`
	Address     string          `json:"address"`
	Status      PurchaseStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PurchaseOrder struct {
	AccountID      int64  `json:"-"`
	ProductID      int64  `json:"product_id"`
	ContactName    string `json:"contact_name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	IdempotencyKey string `json:"-"`
}
