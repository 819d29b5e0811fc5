package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

// Policy holds the tunable ledger rules.
type Policy struct {
	// DepositBalanceShare is the fraction of an approved deposit credited
	// to balance; the remainder goes to withdrawal_amount.
	DepositBalanceShare decimal.Decimal
	// ReferralLevels[n] is the rate credited to the (n+1)th ancestor.
	ReferralLevels       []decimal.Decimal
	ReferralMaxDepth     int
	IdempotencyRetention time.Duration
	HistoryLimit         int
}

// PolicyFromConfig extracts the ledger rules from the loaded policy file.
func PolicyFromConfig(p config.Policy) Policy {
	return Policy{
		DepositBalanceShare:  p.DepositBalanceShare,
		ReferralLevels:       append([]decimal.Decimal(nil), p.ReferralLevels...),
		ReferralMaxDepth:     p.ReferralMaxDepth,
		IdempotencyRetention: p.IdempotencyRetention,
		HistoryLimit:         p.HistoryLimit,
	}
}

var tracer = otel.Tracer("ledger-service")

// Column widths of the free-text fields.
const (
	maxNameLength     = 255
	maxPhoneLength    = 32
	maxAddressLength  = 1024
	maxPasswordLength = 72 // bcrypt input limit, in bytes
)

// checkLengths returns a validation error for the first field longer
// than its limit, counted in characters.
func checkLengths(fields ...fieldLimit) error {
	for _, f := range fields {
		if utf8.RuneCountInString(f.value) > f.max {
			return pkgerrors.NewValidationError(f.name, fmt.Sprintf("must be at most %d characters", f.max))
		}
	}
	return nil
}

type fieldLimit struct {
	name  string
	value string
	max   int
}

// expected reports errors that are normal business outcomes rather than
// faults.
func expected(err error) bool {
	for _, target := range []error{
		pkgerrors.ErrInsufficientFunds,
		pkgerrors.ErrInvalidAmount,
		pkgerrors.ErrInvalidInput,
		pkgerrors.ErrSelfTransfer,
		pkgerrors.ErrDuplicateTxHash,
		pkgerrors.ErrDuplicateContact,
		pkgerrors.ErrAlreadyProcessed,
		pkgerrors.ErrInvalidStatusTransition,
		pkgerrors.ErrIdempotencyMismatch,
		pkgerrors.ErrRequestInProgress,
		pkgerrors.ErrInvalidCredentials,
		pkgerrors.ErrReferrerCycle,
		pkgerrors.ErrAccountSuspended,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return pkgerrors.IsNotFound(err)
}

// finish closes span and counts the operation outcome.
func finish(span trace.Span, operation string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case expected(err):
		outcome = "rejected"
		span.SetStatus(codes.Error, err.Error())
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.LedgerOperations.WithLabelValues(operation, outcome).Inc()
	span.End()
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// requireActive rejects debits started by a suspended account.
func requireActive(acc *models.Account) error {
	if !acc.CanTransact() {
		return fmt.Errorf("account %s: %w", acc.AccountNumber, pkgerrors.ErrAccountSuspended)
	}
	return nil
}

func audit(ctx context.Context, r repository.Repositories, entityType string, entityID any, action string, accountID int64, oldValue, newValue any) error {
	entry := &models.AuditEntry{
		EntityType: entityType,
		EntityID:   fmt.Sprint(entityID),
		Action:     action,
		AccountID:  accountID,
		OldValue:   snapshot(oldValue),
		NewValue:   snapshot(newValue),
	}
	if err := r.Audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
