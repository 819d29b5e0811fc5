package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/money"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

// Transfer moves funds between the balance fields of two accounts. The
// debit, the credit and the transaction record commit together.
func (s *ledgerService) Transfer(ctx context.Context, req models.TransferRequest) (tx *models.Transaction, err error) {
	ctx, span := tracer.Start(ctx, "Transfer")
	defer func() { finish(span, "transfer", err) }()

	senderNumber := strings.TrimSpace(req.SenderAccountNumber)
	receiverNumber := strings.TrimSpace(req.ReceiverAccountNumber)
	span.SetAttributes(attribute.String("sender", senderNumber), attribute.String("receiver", receiverNumber))

	if senderNumber == "" || receiverNumber == "" {
		return nil, pkgerrors.NewValidationError("account_number", "sender and receiver are required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, pkgerrors.NewValidationError("idempotency_key", "Idempotency-Key is required")
	}

	// Rejections are reported in a fixed order: unknown account, then
	// self transfer, then a bad amount, then insufficient funds.
	var amount decimal.Decimal
	var replayed bool
	var senderID, receiverID int64
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		sender, err := r.Accounts.GetByAccountNumber(ctx, senderNumber)
		if err != nil {
			return fmt.Errorf("sender %s: %w", senderNumber, err)
		}
		receiver, err := r.Accounts.GetByAccountNumber(ctx, receiverNumber)
		if err != nil {
			return fmt.Errorf("receiver %s: %w", receiverNumber, err)
		}
		if sender.ID == receiver.ID {
			return pkgerrors.ErrSelfTransfer
		}
		if amount, err = money.Positive(req.Amount); err != nil {
			return err
		}
		call, err := newIdempotentCall(req.IdempotencyKey, sender.ID, opTransfer, senderNumber, receiverNumber, amount)
		if err != nil {
			return err
		}

		tx, replayed, err = runIdempotent(ctx, r, call, s.now().Add(-s.policy.IdempotencyRetention), func() (*models.Transaction, error) {
			senderID, receiverID = sender.ID, receiver.ID

			locked, err := lockInOrder(ctx, r, sender.ID, receiver.ID)
			if err != nil {
				return nil, err
			}
			senderBefore, receiverBefore := locked[sender.ID], locked[receiver.ID]
			if err := requireActive(senderBefore); err != nil {
				return nil, err
			}
			if senderBefore.Balance.LessThan(amount) {
				return nil, pkgerrors.ErrInsufficientFunds
			}

			debited, err := r.Accounts.ApplyDelta(ctx, sender.ID, models.BalanceDelta{Balance: amount.Neg()})
			if err != nil {
				return nil, err
			}
			credited, err := r.Accounts.ApplyDelta(ctx, receiver.ID, models.BalanceDelta{Balance: amount})
			if err != nil {
				return nil, err
			}

			record := &models.Transaction{
				Reference:             uuid.NewString(),
				SenderAccountNumber:   sender.AccountNumber,
				ReceiverAccountNumber: receiver.AccountNumber,
				Amount:                amount,
			}
			if _, err := r.Transactions.Create(ctx, record); err != nil {
				return nil, err
			}

			if err := audit(ctx, r, models.EntityTransaction, record.ID, models.AuditCreate, sender.ID, nil, record); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityAccount, sender.ID, models.AuditDebit, sender.ID, senderBefore.Balances(), debited.Balances()); err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityAccount, receiver.ID, models.AuditCredit, receiver.ID, receiverBefore.Balances(), credited.Balances()); err != nil {
				return nil, err
			}
			return record, nil
		})
		return err
	})
	if err != nil {
		slog.Warn("transfer rejected", "sender", senderNumber, "receiver", receiverNumber, "amount", amount, "error", err)
		return nil, err
	}

	if !replayed {
		s.committed(ctx, models.EventTransferCommitted, amount, tx.Reference, senderID, receiverID)
		slog.Info("transfer committed", "transaction_id", tx.ID, "reference", tx.Reference,
			"sender", senderNumber, "receiver", receiverNumber, "amount", amount)
	}
	return tx, nil
}

// lockInOrder takes row locks in ascending id order so two transfers
// between the same pair cannot deadlock.
func lockInOrder(ctx context.Context, r repository.Repositories, ids ...int64) (map[int64]*models.Account, error) {
	ordered := append([]int64(nil), ids...)
	if len(ordered) == 2 && ordered[0] > ordered[1] {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}
	locked := make(map[int64]*models.Account, len(ordered))
	for _, id := range ordered {
		acc, err := r.Accounts.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = acc
	}
	return locked, nil
}
