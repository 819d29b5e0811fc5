package postgres_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository/postgres"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

func TestPostgresAuditRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresAuditRepository(db)
	ctx := context.Background()

	t.Run("Append", func(t *testing.T) {
		entry := &models.AuditEntry{
			EntityType: models.EntityDeposit,
			EntityID:   "11",
			Action:     models.AuditApprove,
			AccountID:  1,
			NewValue:   json.RawMessage(`{"status":"approved"}`),
		}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO audit_log`)).
			WithArgs("deposit", "11", "approve", int64(1), nil, []byte(`{"status":"approved"}`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

		require.NoError(t, repo.Append(ctx, entry))
		assert.Equal(t, int64(1), entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListByEntity", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_log`)).
			WithArgs("deposit", "11").
			WillReturnRows(sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "action", "user_id", "old_value", "new_value", "created_at"}).
				AddRow(1, "deposit", "11", "create", 1, nil, []byte(`{}`), time.Now()).
				AddRow(2, "deposit", "11", "approve", 1, []byte(`{}`), []byte(`{}`), time.Now()))

		entries, err := repo.ListByEntity(ctx, "deposit", "11")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Nil(t, entries[0].OldValue)
		assert.Equal(t, models.AuditApprove, entries[1].Action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresIdempotencyRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresIdempotencyRepository(db)
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM idempotency_keys WHERE key = $1`)).
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows([]string{"key", "user_id", "operation", "request_hash", "response", "created_at"}))

		_, err := repo.Get(ctx, "k1")
		assert.ErrorIs(t, err, pkgerrors.ErrIdempotencyKeyNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReserveConflict", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO idempotency_keys`)).
			WithArgs("k1", int64(1), "transfer", "hash").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Reserve(ctx, &models.IdempotencyRecord{Key: "k1", AccountID: 1, Operation: "transfer", RequestHash: "hash"})
		assert.ErrorIs(t, err, pkgerrors.ErrRequestInProgress)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Complete", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE idempotency_keys SET response`)).
			WithArgs("k1", []byte(`{"id":1}`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Complete(ctx, "k1", []byte(`{"id":1}`)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Prune", func(t *testing.T) {
		cutoff := time.Now().Add(-24 * time.Hour)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM idempotency_keys WHERE created_at < $1`)).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 4))

		n, err := repo.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
