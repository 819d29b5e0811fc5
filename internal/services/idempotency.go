package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const (
	opTransfer   = "transfer"
	opWithdrawal = "withdrawal"
	opPurchase   = "purchase"
)

// idempotentCall identifies one client request for deduplication.
type idempotentCall struct {
	key       string
	accountID int64
	operation string
	hash      string
}

func newIdempotentCall(key string, accountID int64, operation string, params ...any) (idempotentCall, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return idempotentCall{}, pkgerrors.NewValidationError("idempotency_key", "Idempotency-Key is required")
	}
	if len(key) > 128 {
		return idempotentCall{}, pkgerrors.NewValidationError("idempotency_key", "must be at most 128 characters")
	}
	return idempotentCall{
		key:       fmt.Sprintf("%d:%s", accountID, key),
		accountID: accountID,
		operation: operation,
		hash:      requestHash(operation, params...),
	}, nil
}

// requestHash is the SHA-256 of the operation name and its parameters.
func requestHash(operation string, params ...any) string {
	h := sha256.New()
	h.Write([]byte(operation))
	for _, p := range params {
		h.Write([]byte{0})
		fmt.Fprint(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// runIdempotent executes fn at most once per key within the retention
// window. It must run inside the transaction that fn writes through, so
// the reservation and the result commit or roll back together. The
// second return value reports a replayed result.
func runIdempotent[T any](ctx context.Context, r repository.Repositories, call idempotentCall, cutoff time.Time, fn func() (*T, error)) (*T, bool, error) {
	rec, err := r.Idempotency.Get(ctx, call.key)
	switch {
	case err == nil:
		if rec.CreatedAt.Before(cutoff) {
			if err := r.Idempotency.Delete(ctx, call.key); err != nil {
				return nil, false, err
			}
			slog.Info("expired idempotency key reused", "key", call.key, "operation", call.operation)
			break
		}
		if rec.Operation != call.operation || rec.RequestHash != call.hash {
			return nil, false, pkgerrors.ErrIdempotencyMismatch
		}
		if len(rec.Response) == 0 {
			return nil, false, pkgerrors.ErrRequestInProgress
		}
		var out T
		if err := json.Unmarshal(rec.Response, &out); err != nil {
			return nil, false, fmt.Errorf("failed to decode stored response: %w", err)
		}
		slog.Info("idempotent replay", "key", call.key, "operation", call.operation)
		return &out, true, nil
	case !errors.Is(err, pkgerrors.ErrIdempotencyKeyNotFound):
		return nil, false, err
	}

	if err := r.Idempotency.Reserve(ctx, &models.IdempotencyRecord{
		Key:         call.key,
		AccountID:   call.accountID,
		Operation:   call.operation,
		RequestHash: call.hash,
	}); err != nil {
		return nil, false, err
	}

	out, err := fn()
	if err != nil {
		return nil, false, err
	}

	response, err := json.Marshal(out)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode response: %w", err)
	}
	if err := r.Idempotency.Complete(ctx, call.key, response); err != nil {
		return nil, false, err
	}
	return out, false, nil
}
