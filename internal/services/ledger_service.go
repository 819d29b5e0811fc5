package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/money"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

// LedgerService is the only writer of account balances. Every mutating
// method runs as one store transaction.
type LedgerService interface {
	RecordDeposit(ctx context.Context, claim models.DepositClaim) (*models.DepositRequest, error)
	ApproveDeposit(ctx context.Context, requestID int64, finalAmount decimal.Decimal) (*models.DepositRequest, error)
	RejectDeposit(ctx context.Context, requestID int64) (*models.DepositRequest, error)
	RequestWithdrawal(ctx context.Context, claim models.WithdrawalClaim) (*models.WithdrawalRequest, error)
	ResolveWithdrawal(ctx context.Context, requestID int64, outcome models.RequestStatus) (*models.WithdrawalRequest, error)
	Transfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error)
	Purchase(ctx context.Context, order models.PurchaseOrder) (*models.Purchase, error)
	AdvancePurchase(ctx context.Context, purchaseID int64, next models.PurchaseStatus) (*models.Purchase, error)

	GetBalances(ctx context.Context, accountID int64) (*models.Balances, error)
	GetTransactionHistory(ctx context.Context, accountID int64) ([]models.Transaction, error)
	ListDeposits(ctx context.Context, accountID int64) ([]models.DepositRequest, error)
	ListWithdrawals(ctx context.Context, accountID int64) ([]models.WithdrawalRequest, error)
	ListPurchases(ctx context.Context, accountID int64) ([]models.Purchase, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetAuditTrail(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
	GetReferralNetwork(ctx context.Context, accountID int64, depth int) ([]*models.ReferralNode, error)
}

type ledgerService struct {
	store  repository.Store
	cache  *BalanceCache
	events *EventPublisher
	policy Policy
	now    func() time.Time
}

func NewLedgerService(store repository.Store, cache *BalanceCache, events *EventPublisher, policy Policy) *ledgerService {
	return &ledgerService{
		store:  store,
		cache:  cache,
		events: events,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// committed runs the post-commit side effects of a mutation.
func (s *ledgerService) committed(ctx context.Context, eventType models.EventType, amount decimal.Decimal, reference string, accountIDs ...int64) {
	s.cache.invalidate(ctx, accountIDs...)
	s.events.Publish(eventType, amount, reference, accountIDs...)
}

func (s *ledgerService) RecordDeposit(ctx context.Context, claim models.DepositClaim) (d *models.DepositRequest, err error) {
	ctx, span := tracer.Start(ctx, "RecordDeposit")
	defer func() { finish(span, "record_deposit", err) }()

	amount, err := money.Positive(claim.ClaimedAmount)
	if err != nil {
		return nil, err
	}
	txHash := strings.TrimSpace(claim.TxHash)
	if txHash == "" {
		return nil, pkgerrors.NewValidationError("tx_hash", "transaction hash is required")
	}
	if err := checkLengths(fieldLimit{"tx_hash", txHash, maxNameLength}); err != nil {
		return nil, err
	}
	override := strings.TrimSpace(claim.ReferrerOverride)

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		acc, err := r.Accounts.GetByID(ctx, claim.AccountID)
		if err != nil {
			return err
		}
		if override != "" {
			if override == acc.AccountNumber {
				return pkgerrors.NewValidationError("referrer_account_number", "an account cannot refer itself")
			}
			if _, err := r.Accounts.GetByAccountNumber(ctx, override); err != nil {
				if pkgerrors.IsNotFound(err) {
					return pkgerrors.ErrReferrerNotFound
				}
				return err
			}
		}

		d = &models.DepositRequest{
			AccountID:        acc.ID,
			TxHash:           txHash,
			ClaimedAmount:    amount,
			ReferrerOverride: override,
		}
		if err := r.Deposits.Create(ctx, d); err != nil {
			return err
		}
		return audit(ctx, r, models.EntityDeposit, d.ID, models.AuditCreate, acc.ID, nil, d)
	})
	if err != nil {
		slog.Warn("deposit claim rejected", "account_id", claim.AccountID, "tx_hash", txHash, "error", err)
		return nil, err
	}

	slog.Info("deposit recorded", "deposit_id", d.ID, "account_id", d.AccountID, "amount", amount)
	return d, nil
}

// ApproveDeposit credits the account and its referrer chain. A zero
// finalAmount approves the claimed amount.
func (s *ledgerService) ApproveDeposit(ctx context.Context, requestID int64, finalAmount decimal.Decimal) (d *models.DepositRequest, err error) {
	ctx, span := tracer.Start(ctx, "ApproveDeposit")
	span.SetAttributes(attribute.Int64("deposit_id", requestID))
	defer func() { finish(span, "approve_deposit", err) }()

	if finalAmount.IsNegative() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	var affected []int64
	var amount decimal.Decimal
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		affected = affected[:0]

		pending, err := r.Deposits.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if pending.Status != models.StatusPending {
			return pkgerrors.ErrAlreadyProcessed
		}

		amount = finalAmount
		if amount.IsZero() {
			amount = pending.ClaimedAmount
		}
		if amount, err = money.Positive(amount); err != nil {
			return err
		}

		acc, err := r.Accounts.GetForUpdate(ctx, pending.AccountID)
		if err != nil {
			return err
		}

		toBalance, toWithdrawal := money.Split(amount, s.policy.DepositBalanceShare)
		credited, err := r.Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{
			Balance:          toBalance,
			WithdrawalAmount: toWithdrawal,
		})
		if err != nil {
			return err
		}
		affected = append(affected, acc.ID)

		if d, err = r.Deposits.Resolve(ctx, requestID, models.StatusApproved, amount); err != nil {
			return err
		}
		if err := audit(ctx, r, models.EntityDeposit, d.ID, models.AuditApprove, acc.ID, pending, d); err != nil {
			return err
		}
		if err := audit(ctx, r, models.EntityAccount, acc.ID, models.AuditCredit, acc.ID, acc.Balances(), credited.Balances()); err != nil {
			return err
		}

		credits, err := s.accumulateReferral(ctx, r, acc, pending.ReferrerOverride, amount)
		if err != nil {
			return err
		}
		for _, c := range credits {
			affected = append(affected, c.AccountID)
		}
		return nil
	})
	if err != nil {
		slog.Warn("deposit approval failed", "deposit_id", requestID, "error", err)
		return nil, err
	}

	s.committed(ctx, models.EventDepositApproved, amount, d.TxHash, affected...)
	slog.Info("deposit approved", "deposit_id", d.ID, "account_id", d.AccountID, "amount", amount, "referral_credits", len(affected)-1)
	return d, nil
}

func (s *ledgerService) RejectDeposit(ctx context.Context, requestID int64) (d *models.DepositRequest, err error) {
	ctx, span := tracer.Start(ctx, "RejectDeposit")
	span.SetAttributes(attribute.Int64("deposit_id", requestID))
	defer func() { finish(span, "reject_deposit", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		pending, err := r.Deposits.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if pending.Status != models.StatusPending {
			return pkgerrors.ErrAlreadyProcessed
		}
		if d, err = r.Deposits.Resolve(ctx, requestID, models.StatusRejected, decimal.Zero); err != nil {
			return err
		}
		return audit(ctx, r, models.EntityDeposit, d.ID, models.AuditReject, d.AccountID, pending, d)
	})
	if err != nil {
		slog.Warn("deposit rejection failed", "deposit_id", requestID, "error", err)
		return nil, err
	}

	s.events.Publish(models.EventDepositRejected, d.ClaimedAmount, d.TxHash, d.AccountID)
	slog.Info("deposit rejected", "deposit_id", d.ID, "account_id", d.AccountID)
	return d, nil
}

// RequestWithdrawal reserves the amount by debiting withdrawal_amount
// when the request is created.
func (s *ledgerService) RequestWithdrawal(ctx context.Context, claim models.WithdrawalClaim) (w *models.WithdrawalRequest, err error) {
	ctx, span := tracer.Start(ctx, "RequestWithdrawal")
	span.SetAttributes(attribute.Int64("account_id", claim.AccountID))
	defer func() { finish(span, "request_withdrawal", err) }()

	amount, err := money.Positive(claim.Amount)
	if err != nil {
		return nil, err
	}
	wallet := strings.TrimSpace(claim.Wallet)
	if wallet == "" {
		return nil, pkgerrors.NewValidationError("wallet", "wallet address is required")
	}
	if err := checkLengths(fieldLimit{"wallet", wallet, maxNameLength}); err != nil {
		return nil, err
	}
	call, err := newIdempotentCall(claim.IdempotencyKey, claim.AccountID, opWithdrawal, wallet, amount)
	if err != nil {
		return nil, err
	}

	var replayed bool
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		w, replayed, err = runIdempotent(ctx, r, call, s.now().Add(-s.policy.IdempotencyRetention), func() (*models.WithdrawalRequest, error) {
			acc, err := r.Accounts.GetForUpdate(ctx, claim.AccountID)
			if err != nil {
				return nil, err
			}
			if err := requireActive(acc); err != nil {
				return nil, err
			}
			if acc.WithdrawalAmount.LessThan(amount) {
				return nil, pkgerrors.ErrInsufficientFunds
			}
			debited, err := r.Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{WithdrawalAmount: amount.Neg()})
			if err != nil {
				return nil, err
			}

			req := &models.WithdrawalRequest{AccountID: acc.ID, Wallet: wallet, Amount: amount}
			if err := r.Withdrawals.Create(ctx, req); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityWithdrawal, req.ID, models.AuditCreate, acc.ID, nil, req); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityAccount, acc.ID, models.AuditDebit, acc.ID, acc.Balances(), debited.Balances()); err != nil {
				return nil, err
			}
			return req, nil
		})
		return err
	})
	if err != nil {
		slog.Warn("withdrawal request rejected", "account_id", claim.AccountID, "amount", amount, "error", err)
		return nil, err
	}

	if !replayed {
		s.committed(ctx, models.EventWithdrawalReserved, amount, wallet, w.AccountID)
		slog.Info("withdrawal reserved", "withdrawal_id", w.ID, "account_id", w.AccountID, "amount", amount)
	}
	return w, nil
}

// ResolveWithdrawal finalizes a pending withdrawal. Rejection returns the
// reserved amount to withdrawal_amount.
func (s *ledgerService) ResolveWithdrawal(ctx context.Context, requestID int64, outcome models.RequestStatus) (w *models.WithdrawalRequest, err error) {
	ctx, span := tracer.Start(ctx, "ResolveWithdrawal")
	span.SetAttributes(attribute.Int64("withdrawal_id", requestID), attribute.String("outcome", string(outcome)))
	defer func() { finish(span, "resolve_withdrawal", err) }()

	if outcome != models.StatusApproved && outcome != models.StatusRejected {
		return nil, pkgerrors.NewValidationError("status", "must be approved or rejected")
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		pending, err := r.Withdrawals.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if pending.Status != models.StatusPending {
			return pkgerrors.ErrAlreadyProcessed
		}
		if w, err = r.Withdrawals.Resolve(ctx, requestID, outcome); err != nil {
			return err
		}

		action := models.AuditApprove
		if outcome == models.StatusRejected {
			action = models.AuditReject
			acc, err := r.Accounts.GetForUpdate(ctx, w.AccountID)
			if err != nil {
				return err
			}
			refunded, err := r.Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{WithdrawalAmount: w.Amount})
			if err != nil {
				return err
			}
			if err := audit(ctx, r, models.EntityAccount, acc.ID, models.AuditCredit, acc.ID, acc.Balances(), refunded.Balances()); err != nil {
				return err
			}
		}
		return audit(ctx, r, models.EntityWithdrawal, w.ID, action, w.AccountID, pending, w)
	})
	if err != nil {
		slog.Warn("withdrawal resolution failed", "withdrawal_id", requestID, "error", err)
		return nil, err
	}

	s.committed(ctx, models.EventWithdrawalResolved, w.Amount, string(outcome), w.AccountID)
	slog.Info("withdrawal resolved", "withdrawal_id", w.ID, "account_id", w.AccountID, "status", w.Status)
	return w, nil
}

// Purchase debits the product price from withdrawal_amount when the
// order is placed.
func (s *ledgerService) Purchase(ctx context.Context, order models.PurchaseOrder) (p *models.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "Purchase")
	span.SetAttributes(attribute.Int64("account_id", order.AccountID), attribute.Int64("product_id", order.ProductID))
	defer func() { finish(span, "purchase", err) }()

	contact := strings.TrimSpace(order.ContactName)
	phone := strings.TrimSpace(order.Phone)
	address := strings.TrimSpace(order.Address)
	switch {
	case contact == "":
		return nil, pkgerrors.NewValidationError("contact_name", "contact name is required")
	case phone == "":
		return nil, pkgerrors.NewValidationError("phone", "phone is required")
	case address == "":
		return nil, pkgerrors.NewValidationError("address", "delivery address is required")
	}
	if err := checkLengths(
		fieldLimit{"contact_name", contact, maxNameLength},
		fieldLimit{"phone", phone, maxPhoneLength},
		fieldLimit{"address", address, maxAddressLength},
	); err != nil {
		return nil, err
	}
	call, err := newIdempotentCall(order.IdempotencyKey, order.AccountID, opPurchase, order.ProductID, contact, phone, address)
	if err != nil {
		return nil, err
	}

	var replayed bool
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		p, replayed, err = runIdempotent(ctx, r, call, s.now().Add(-s.policy.IdempotencyRetention), func() (*models.Purchase, error) {
			product, err := r.Products.GetByID(ctx, order.ProductID)
			if err != nil {
				return nil, err
			}
			if !product.Active {
				return nil, pkgerrors.ErrProductNotFound
			}
			price, err := money.Positive(product.Price)
			if err != nil {
				return nil, err
			}

			acc, err := r.Accounts.GetForUpdate(ctx, order.AccountID)
			if err != nil {
				return nil, err
			}
			if err := requireActive(acc); err != nil {
				return nil, err
			}
			if acc.WithdrawalAmount.LessThan(price) {
				return nil, pkgerrors.ErrInsufficientFunds
			}
			debited, err := r.Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{WithdrawalAmount: price.Neg()})
			if err != nil {
				return nil, err
			}

			purchase := &models.Purchase{
				AccountID:   acc.ID,
				ProductID:   product.ID,
				Price:       price,
				ContactName: contact,
				Phone:       phone,
				Address:     address,
			}
			if err := r.Purchases.Create(ctx, purchase); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityPurchase, purchase.ID, models.AuditCreate, acc.ID, nil, purchase); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityAccount, acc.ID, models.AuditDebit, acc.ID, acc.Balances(), debited.Balances()); err != nil {
				return nil, err
			}
			return purchase, nil
		})
		return err
	})
	if err != nil {
		slog.Warn("purchase rejected", "account_id", order.AccountID, "product_id", order.ProductID, "error", err)
		return nil, err
	}

	if !replayed {
		s.committed(ctx, models.EventPurchaseCreated, p.Price, "", p.AccountID)
		slog.Info("purchase created", "purchase_id", p.ID, "account_id", p.AccountID, "price", p.Price)
	}
	return p, nil
}

func (s *ledgerService) AdvancePurchase(ctx context.Context, purchaseID int64, next models.PurchaseStatus) (p *models.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "AdvancePurchase")
	span.SetAttributes(attribute.Int64("purchase_id", purchaseID), attribute.String("status", string(next)))
	defer func() { finish(span, "advance_purchase", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		current, err := r.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if !current.Status.CanAdvanceTo(next) {
			return pkgerrors.ErrInvalidStatusTransition
		}
		if p, err = r.Purchases.UpdateStatus(ctx, purchaseID, current.Status, next); err != nil {
			return err
		}
		return audit(ctx, r, models.EntityPurchase, p.ID, models.AuditStatus, p.AccountID,
			map[string]models.PurchaseStatus{"status": current.Status},
			map[string]models.PurchaseStatus{"status": p.Status})
	})
	if err != nil {
		slog.Warn("purchase status change rejected", "purchase_id", purchaseID, "next", next, "error", err)
		return nil, err
	}

	slog.Info("purchase advanced", "purchase_id", p.ID, "status", p.Status)
	return p, nil
}

// GetBalances serves from cache when possible and repopulates it from the
// store otherwise.
func (s *ledgerService) GetBalances(ctx context.Context, accountID int64) (*models.Balances, error) {
	ctx, span := tracer.Start(ctx, "GetBalances")
	defer span.End()

	if b, ok := s.cache.Get(ctx, accountID); ok {
		return b, nil
	}
	acc, err := s.store.Repos().Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	b := acc.Balances()
	s.cache.Set(ctx, accountID, b)

	// A mutation committed between the read and the fill has already
	// invalidated, so the entry just written may be stale. Re-read and
	// drop it if so.
	fresh, err := s.store.Repos().Accounts.GetByID(ctx, accountID)
	if err != nil {
		s.cache.invalidate(ctx, accountID)
		return &b, nil
	}
	if fb := fresh.Balances(); !fb.Equal(b) {
		s.cache.invalidate(ctx, accountID)
		return &fb, nil
	}
	return &b, nil
}

func (s *ledgerService) GetTransactionHistory(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "GetTransactionHistory")
	defer span.End()

	repos := s.store.Repos()
	acc, err := repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return repos.Transactions.ListByAccount(ctx, acc.AccountNumber, s.policy.HistoryLimit)
}

func (s *ledgerService) ListDeposits(ctx context.Context, accountID int64) ([]models.DepositRequest, error) {
	return s.store.Repos().Deposits.ListByAccount(ctx, accountID)
}

func (s *ledgerService) ListWithdrawals(ctx context.Context, accountID int64) ([]models.WithdrawalRequest, error) {
	return s.store.Repos().Withdrawals.ListByAccount(ctx, accountID)
}

func (s *ledgerService) ListPurchases(ctx context.Context, accountID int64) ([]models.Purchase, error) {
	return s.store.Repos().Purchases.ListByAccount(ctx, accountID)
}

func (s *ledgerService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.Repos().Products.ListActive(ctx)
}

func (s *ledgerService) GetAuditTrail(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	switch entityType {
	case models.EntityAccount, models.EntityTransaction, models.EntityDeposit, models.EntityWithdrawal, models.EntityPurchase:
	default:
		return nil, pkgerrors.NewValidationError("entity", "unknown entity type")
	}
	return s.store.Repos().Audit.ListByEntity(ctx, entityType, entityID)
}
