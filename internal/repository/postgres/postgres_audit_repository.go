package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

type PostgresAuditRepository struct {
	db querier
}

func NewPostgresAuditRepository(db querier) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Append(ctx context.Context, e *models.AuditEntry) (err error) {
	ctx, done := observe(ctx, "audit-repository", "AppendAudit")
	defer done(&err)

	query := `
		INSERT INTO audit_log (entity_type, entity_id, action, user_id, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query, e.EntityType, e.EntityID, e.Action, e.AccountID, nullJSON(e.OldValue), nullJSON(e.NewValue)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		slog.Error("failed to append audit entry", "method", "Append", "entity_type", e.EntityType, "entity_id", e.EntityID, "error", err)
		return wrapErr("append audit entry", err)
	}
	return nil
}

func (r *PostgresAuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) (out []models.AuditEntry, err error) {
	ctx, done := observe(ctx, "audit-repository", "ListAudit")
	defer done(&err)

	query := `
		SELECT id, entity_type, entity_id, action, user_id, old_value, new_value, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, wrapErr("list audit entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.AuditEntry
		var oldV, newV []byte
		if err = rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.AccountID, &oldV, &newV, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan audit entry", err)
		}
		e.OldValue, e.NewValue = oldV, newV
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate audit entries", err)
	}
	return out, nil
}

type PostgresIdempotencyRepository struct {
	db querier
}

func NewPostgresIdempotencyRepository(db querier) *PostgresIdempotencyRepository {
	return &PostgresIdempotencyRepository{db: db}
}

func (r *PostgresIdempotencyRepository) Get(ctx context.Context, key string) (rec *models.IdempotencyRecord, err error) {
	ctx, done := observe(ctx, "idempotency-repository", "GetIdempotencyKey")
	defer done(&err)

	var out models.IdempotencyRecord
	var resp []byte
	query := `SELECT key, user_id, operation, request_hash, response, created_at FROM idempotency_keys WHERE key = $1`
	err = r.db.QueryRowContext(ctx, query, key).Scan(&out.Key, &out.AccountID, &out.Operation, &out.RequestHash, &resp, &out.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, wrapErr("get idempotency key", err)
	}
	out.Response = resp
	return &out, nil
}

func (r *PostgresIdempotencyRepository) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (err error) {
	ctx, done := observe(ctx, "idempotency-repository", "ReserveIdempotencyKey")
	defer done(&err)

	query := `INSERT INTO idempotency_keys (key, user_id, operation, request_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, rec.Key, rec.AccountID, rec.Operation, rec.RequestHash).Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrRequestInProgress
		}
		return wrapErr("reserve idempotency key", err)
	}
	return nil
}

func (r *PostgresIdempotencyRepository) Complete(ctx context.Context, key string, response []byte) (err error) {
	ctx, done := observe(ctx, "idempotency-repository", "CompleteIdempotencyKey")
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `UPDATE idempotency_keys SET response = $2 WHERE key = $1`, key, response)
	if err != nil {
		return wrapErr("complete idempotency key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *PostgresIdempotencyRepository) Delete(ctx context.Context, key string) (err error) {
	ctx, done := observe(ctx, "idempotency-repository", "DeleteIdempotencyKey")
	defer done(&err)

	if _, err = r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return wrapErr("delete idempotency key", err)
	}
	return nil
}

func (r *PostgresIdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, done := observe(ctx, "idempotency-repository", "PruneIdempotencyKeys")
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, wrapErr("prune idempotency keys", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, wrapErr("prune idempotency keys", err)
	}
	return n, nil
}
