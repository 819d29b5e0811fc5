package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

func (s AccountStatus) Valid() bool {
	return s == AccountStatusActive || s == AccountStatusSuspended
}

type Account struct {
	ID                    int64           `json:"id"`
	AccountNumber         string          `json:"account_number"`
	Username              string          `json:"username"`
	Email                 string          `json:"email,omitempty"`
	Phone                 string          `json:"phone,omitempty"`
	PasswordHash          string          `json:"-"`
	Balance               decimal.Decimal `json:"balance"`
	WithdrawalAmount      decimal.Decimal `json:"withdrawal_amount"`
	DirectBusiness        decimal.Decimal `json:"direct_business"`
	ReferrerAccountNumber string          `json:"referrer_account_number,omitempty"`
	Status                AccountStatus   `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CanTransact reports whether the account may start balance-moving
// operations. Suspended accounts still receive credits.
func (a *Account) CanTransact() bool {
	return a.Status != AccountStatusSuspended
}

// Balances is the client-visible view of an account's funds.
type Balances struct {
	AccountNumber    string          `json:"account_number"`
	Balance          decimal.Decimal `json:"balance"`
	WithdrawalAmount decimal.Decimal `json:"withdrawal_amount"`
	DirectBusiness   decimal.Decimal `json:"direct_business"`
}

func (b Balances) Equal(o Balances) bool {
	return b.AccountNumber == o.AccountNumber &&
		b.Balance.Equal(o.Balance) &&
		b.WithdrawalAmount.Equal(o.WithdrawalAmount) &&
		b.DirectBusiness.Equal(o.DirectBusiness)
}

func (a *Account) Balances() Balances {
	return Balances{
		AccountNumber:    a.AccountNumber,
		Balance:          a.Balance,
		WithdrawalAmount: a.WithdrawalAmount,
		DirectBusiness:   a.DirectBusiness,
	}
}

// BalanceDelta is a signed change applied to each balance field at once.
type BalanceDelta struct {
	Balance          decimal.Decimal
	WithdrawalAmount decimal.Decimal
	DirectBusiness   decimal.Decimal
}

type RegistrationRequest struct {
	Username              string `json:"username"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	Password              string `json:"password"`
	ReferrerAccountNumber string `json:"referrer_account_number"`
}

// ReferralNode is one account in a referral network tree.
type ReferralNode struct {
	AccountNumber  string          `json:"account_number"`
	Username       string          `json:"username"`
	Level          int             `json:"level"`
	DirectBusiness decimal.Decimal `json:"direct_business"`
	JoinedAt       time.Time       `json:"joined_at"`
	Referrals      []*ReferralNode `json:"referrals,omitempty"`
}
