package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPurchaseStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to PurchaseStatus
		want     bool
	}{
		{PurchasePending, PurchasePacked, true},
		{PurchasePacked, PurchaseOutForDelivery, true},
		{PurchaseOutForDelivery, PurchaseDelivered, true},
		{PurchasePending, PurchaseDelivered, false},
		{PurchasePacked, PurchasePending, false},
		{PurchaseDelivered, PurchasePending, false},
		{PurchasePending, "lost", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestRequestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusApproved.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, RequestStatus("cancelled").Valid())
}

func TestAccountStatus(t *testing.T) {
	assert.True(t, AccountStatusActive.Valid())
	assert.True(t, AccountStatusSuspended.Valid())
	assert.False(t, AccountStatus("frozen").Valid())

	acc := &Account{Status: AccountStatusActive}
	assert.True(t, acc.CanTransact())
	acc.Status = AccountStatusSuspended
	assert.False(t, acc.CanTransact())
}

func TestBalances_Equal(t *testing.T) {
	a := Balances{AccountNumber: "1000000001", Balance: decimal.RequireFromString("300"), WithdrawalAmount: decimal.Zero}
	b := Balances{AccountNumber: "1000000001", Balance: decimal.RequireFromString("300.00"), WithdrawalAmount: decimal.Zero}
	assert.True(t, a.Equal(b))

	b.Balance = decimal.RequireFromString("500")
	assert.False(t, a.Equal(b))
}
