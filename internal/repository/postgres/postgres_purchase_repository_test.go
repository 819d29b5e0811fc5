package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository/postgres"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

var purchaseRowColumns = []string{"id", "user_id", "product_id", "price", "contact_name", "phone", "address", "status", "created_at", "updated_at"}

func TestPostgresPurchaseRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresPurchaseRepository(db)

	p := &models.Purchase{AccountID: 1, ProductID: 3, Price: decimal.NewFromInt(40), ContactName: "Ann", Phone: "555", Address: "Main st"}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO purchases`)).
		WithArgs(int64(1), int64(3), p.Price, "Ann", "555", "Main st", models.PurchasePending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))

	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, models.PurchasePending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPurchaseRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresPurchaseRepository(db)
	ctx := context.Background()

	t.Run("Advances", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
			WithArgs(int64(9), models.PurchasePending, models.PurchasePacked).
			WillReturnRows(sqlmock.NewRows(purchaseRowColumns).
				AddRow(9, 1, 3, "40", "Ann", "555", "Main st", "packed", now, now))

		p, err := repo.UpdateStatus(ctx, 9, models.PurchasePending, models.PurchasePacked)
		require.NoError(t, err)
		assert.Equal(t, models.PurchasePacked, p.Status)
		assert.True(t, p.Price.Equal(decimal.NewFromInt(40)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StatusMoved", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
			WithArgs(int64(9), models.PurchasePending, models.PurchasePacked).
			WillReturnRows(sqlmock.NewRows(purchaseRowColumns))

		_, err := repo.UpdateStatus(ctx, 9, models.PurchasePending, models.PurchasePacked)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidStatusTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresProductRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresProductRepository(db)
	ctx := context.Background()
	productColumns := []string{"id", "name", "price", "image_url", "active"}

	t.Run("ListActive", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE active`)).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(1, "t-shirt", "80", "", true).
				AddRow(2, "cup", "20.50", "https://img/cup.png", true))

		products, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "20.50", products[1].Price.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(productColumns))

		_, err := repo.GetByID(ctx, 7)
		assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryFails", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1`)).
			WithArgs(int64(7)).
			WillReturnError(errors.New("syntax error"))

		_, err := repo.GetByID(ctx, 7)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
