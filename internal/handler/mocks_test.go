package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/EricDistort/QuberX/internal/models"
)

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) Register(ctx context.Context, req models.RegistrationRequest) (*models.Account, error) {
	args := m.Called(ctx, req)
	acc, _ := args.Get(0).(*models.Account)
	return acc, args.Error(1)
}

func (m *mockAccounts) Login(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

func (m *mockAccounts) Logout(ctx context.Context, accountID int64) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *mockAccounts) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	return m.Called(ctx, accountID, oldPassword, newPassword).Error(0)
}

func (m *mockAccounts) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	acc, _ := args.Get(0).(*models.Account)
	return acc, args.Error(1)
}

func (m *mockAccounts) SetStatus(ctx context.Context, accountID int64, status models.AccountStatus) (*models.Account, error) {
	args := m.Called(ctx, accountID, status)
	acc, _ := args.Get(0).(*models.Account)
	return acc, args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) RecordDeposit(ctx context.Context, claim models.DepositClaim) (*models.DepositRequest, error) {
	args := m.Called(ctx, claim)
	d, _ := args.Get(0).(*models.DepositRequest)
	return d, args.Error(1)
}

func (m *mockLedger) ApproveDeposit(ctx context.Context, requestID int64, finalAmount decimal.Decimal) (*models.DepositRequest, error) {
	args := m.Called(ctx, requestID, finalAmount.String())
	d, _ := args.Get(0).(*models.DepositRequest)
	return d, args.Error(1)
}

func (m *mockLedger) RejectDeposit(ctx context.Context, requestID int64) (*models.DepositRequest, error) {
	args := m.Called(ctx, requestID)
	d, _ := args.Get(0).(*models.DepositRequest)
	return d, args.Error(1)
}

func (m *mockLedger) RequestWithdrawal(ctx context.Context, claim models.WithdrawalClaim) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, claim)
	w, _ := args.Get(0).(*models.WithdrawalRequest)
	return w, args.Error(1)
}

func (m *mockLedger) ResolveWithdrawal(ctx context.Context, requestID int64, outcome models.RequestStatus) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, requestID, outcome)
	w, _ := args.Get(0).(*models.WithdrawalRequest)
	return w, args.Error(1)
}

func (m *mockLedger) Transfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func (m *mockLedger) Purchase(ctx context.Context, order models.PurchaseOrder) (*models.Purchase, error) {
	args := m.Called(ctx, order)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (m *mockLedger) AdvancePurchase(ctx context.Context, purchaseID int64, next models.PurchaseStatus) (*models.Purchase, error) {
	args := m.Called(ctx, purchaseID, next)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (m *mockLedger) GetBalances(ctx context.Context, accountID int64) (*models.Balances, error) {
	args := m.Called(ctx, accountID)
	b, _ := args.Get(0).(*models.Balances)
	return b, args.Error(1)
}

func (m *mockLedger) GetTransactionHistory(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	args := m.Called(ctx, accountID)
	txs, _ := args.Get(0).([]models.Transaction)
	return txs, args.Error(1)
}

func (m *mockLedger) ListDeposits(ctx context.Context, accountID int64) ([]models.DepositRequest, error) {
	args := m.Called(ctx, accountID)
	out, _ := args.Get(0).([]models.DepositRequest)
	return out, args.Error(1)
}

func (m *mockLedger) ListWithdrawals(ctx context.Context, accountID int64) ([]models.WithdrawalRequest, error) {
	args := m.Called(ctx, accountID)
	out, _ := args.Get(0).([]models.WithdrawalRequest)
	return out, args.Error(1)
}

func (m *mockLedger) ListPurchases(ctx context.Context, accountID int64) ([]models.Purchase, error) {
	args := m.Called(ctx, accountID)
	out, _ := args.Get(0).([]models.Purchase)
	return out, args.Error(1)
}

func (m *mockLedger) ListProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]models.Product)
	return out, args.Error(1)
}

func (m *mockLedger) GetAuditTrail(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	out, _ := args.Get(0).([]models.AuditEntry)
	return out, args.Error(1)
}

func (m *mockLedger) GetReferralNetwork(ctx context.Context, accountID int64, depth int) ([]*models.ReferralNode, error) {
	args := m.Called(ctx, accountID, depth)
	out, _ := args.Get(0).([]*models.ReferralNode)
	return out, args.Error(1)
}
