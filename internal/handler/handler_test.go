package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

func newTestRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterPublicRoutes(r)
	h.RegisterProtectedRoutes(r)
	h.RegisterAdminRoutes(r.PathPrefix("/admin").Subrouter())
	return r
}

func authed(req *http.Request, id int64, number string) *http.Request {
	return req.WithContext(auth.WithAccount(req.Context(), id, number))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{pkgerrors.ErrAccountNotFound, http.StatusNotFound},
		{fmt.Errorf("receiver 1: %w", pkgerrors.ErrAccountNotFound), http.StatusNotFound},
		{pkgerrors.ErrDepositNotFound, http.StatusNotFound},
		{pkgerrors.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{pkgerrors.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{pkgerrors.ErrSelfTransfer, http.StatusUnprocessableEntity},
		{pkgerrors.ErrIdempotencyMismatch, http.StatusUnprocessableEntity},
		{pkgerrors.ErrReferrerNotFound, http.StatusUnprocessableEntity},
		{pkgerrors.NewValidationError("amount", "bad"), http.StatusBadRequest},
		{pkgerrors.ErrDuplicateTxHash, http.StatusConflict},
		{pkgerrors.ErrDuplicateContact, http.StatusConflict},
		{pkgerrors.ErrAlreadyProcessed, http.StatusConflict},
		{pkgerrors.ErrRequestInProgress, http.StatusConflict},
		{pkgerrors.ErrInvalidStatusTransition, http.StatusConflict},
		{pkgerrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("account 1000000001: %w", pkgerrors.ErrAccountSuspended), http.StatusForbidden},
		{pkgerrors.NewStorageError("commit", errors.New("eof")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestTransfer_SenderFromContext(t *testing.T) {
	for _, tt := range []struct {
		path string
		body string
	}{
		{"/transfer", `{"receiver_acc":"1000000002","amount":"12.50"}`},
		{"/rpc/transfer_amount", `{"sender_acc":"1000000001","receiver_acc":"1000000002","amount":12.50}`},
	} {
		t.Run(tt.path, func(t *testing.T) {
			ledger := new(mockLedger)
			r := newTestRouter(NewHandler(new(mockAccounts), ledger))
			ledger.On("Transfer", mock.Anything, mock.MatchedBy(func(req models.TransferRequest) bool {
				return req.SenderAccountNumber == "1000000001" &&
					req.ReceiverAccountNumber == "1000000002" &&
					req.Amount.Equal(decimal.RequireFromString("12.5")) &&
					req.IdempotencyKey == "abc"
			})).Return(&models.Transaction{ID: 7, Reference: "ref-1"}, nil).Once()

			req := authed(httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)), 1, "1000000001")
			req.Header.Set(IdempotencyHeader, "abc")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var tx models.Transaction
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&tx))
			assert.Equal(t, "ref-1", tx.Reference)
			ledger.AssertExpectations(t)
		})
	}
}

func TestTransfer_ForeignSenderForbidden(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))

	body := `{"sender_acc":"1000000009","receiver_acc":"1000000002","amount":"1"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/rpc/transfer_amount", strings.NewReader(body)), 1, "1000000001")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestTransfer_ErrorMapping(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))
	ledger.On("Transfer", mock.Anything, mock.Anything).Return(nil, pkgerrors.ErrInsufficientFunds).Once()
	ledger.On("Transfer", mock.Anything, mock.Anything).Return(nil, errors.New("pq: something odd")).Once()

	req := authed(httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(`{"receiver_acc":"2","amount":"600"}`)), 1, "1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient funds")

	req = authed(httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(`{"receiver_acc":"2","amount":"6"}`)), 1, "1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestTransfer_MalformedBody(t *testing.T) {
	r := newTestRouter(NewHandler(new(mockAccounts), new(mockLedger)))
	req := authed(httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(`{"amount":`)), 1, "1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransfer_OversizedBody(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))

	body := `{"receiver_acc":"1000000002","amount":"1","pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(body)), 1, "1000000001")
	req.Header.Set(IdempotencyHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be at most")
	ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestSetAccountStatus(t *testing.T) {
	accounts := new(mockAccounts)
	r := newTestRouter(NewHandler(accounts, new(mockLedger)))
	accounts.On("SetStatus", mock.Anything, int64(4), models.AccountStatusSuspended).
		Return(&models.Account{ID: 4, Status: models.AccountStatusSuspended}, nil).Once()
	accounts.On("SetStatus", mock.Anything, int64(5), models.AccountStatus("frozen")).
		Return(nil, pkgerrors.NewValidationError("status", "unknown account status")).Once()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/accounts/4/status", strings.NewReader(`{"status":"suspended"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var acc models.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&acc))
	assert.Equal(t, models.AccountStatusSuspended, acc.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/accounts/5/status", strings.NewReader(`{"status":"frozen"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	accounts.AssertExpectations(t)
}

func TestApproveDeposit(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))
	ledger.On("ApproveDeposit", mock.Anything, int64(5), "0").Return(&models.DepositRequest{ID: 5, Status: models.StatusApproved}, nil).Once()
	ledger.On("ApproveDeposit", mock.Anything, int64(6), "80").Return(&models.DepositRequest{ID: 6, Status: models.StatusApproved}, nil).Once()
	ledger.On("ApproveDeposit", mock.Anything, int64(7), "0").Return(nil, pkgerrors.ErrAlreadyProcessed).Once()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/deposits/5/approve", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/deposits/6/approve", strings.NewReader(`{"amount":"80"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/deposits/7/approve", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	ledger.AssertExpectations(t)
}

func TestRequestWithdrawal_PassesIdempotencyKey(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))
	ledger.On("RequestWithdrawal", mock.Anything, mock.MatchedBy(func(c models.WithdrawalClaim) bool {
		return c.AccountID == 3 && c.Wallet == "TXabc" && c.Amount.Equal(decimal.NewFromInt(25)) && c.IdempotencyKey == "w-1"
	})).Return(&models.WithdrawalRequest{ID: 1, Status: models.StatusPending}, nil).Once()

	req := authed(httptest.NewRequest(http.MethodPost, "/withdrawals", strings.NewReader(`{"wallet":"TXabc","amount":"25"}`)), 3, "1000000003")
	req.Header.Set(IdempotencyHeader, "w-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	ledger.AssertExpectations(t)
}

func TestRegisterAndLogin(t *testing.T) {
	accounts := new(mockAccounts)
	r := newTestRouter(NewHandler(accounts, new(mockLedger)))

	accounts.On("Register", mock.Anything, models.RegistrationRequest{Username: "alice", Password: "secret1"}).
		Return(&models.Account{ID: 1, AccountNumber: "1000000001", Username: "alice", PasswordHash: "hash"}, nil).Once()
	accounts.On("Login", mock.Anything, "alice", "bad").Return("", pkgerrors.ErrInvalidCredentials).Once()
	accounts.On("Login", mock.Anything, "alice", "secret1").Return("jwt-token", nil).Once()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice","password":"secret1"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"account_number":"1000000001"`)
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"bad"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"secret1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"token":"jwt-token"}`, rec.Body.String())

	accounts.AssertExpectations(t)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))
	ledger.On("GetTransactionHistory", mock.Anything, int64(1)).Return(nil, nil).Once()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/history", nil), 1, "1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestReferrals_DepthParam(t *testing.T) {
	ledger := new(mockLedger)
	r := newTestRouter(NewHandler(new(mockAccounts), ledger))
	ledger.On("GetReferralNetwork", mock.Anything, int64(1), 2).Return([]*models.ReferralNode{{AccountNumber: "2", Level: 1}}, nil).Once()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/referrals?depth=2", nil), 1, "1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/referrals?depth=x", nil), 1, "1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ledger.AssertExpectations(t)
}

func TestProtectedRouteWithoutAccount(t *testing.T) {
	r := newTestRouter(NewHandler(new(mockAccounts), new(mockLedger)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	healthy := NewHandler(new(mockAccounts), new(mockLedger), Check{Name: "store", Ping: func(context.Context) error { return nil }})
	rec := httptest.NewRecorder()
	newTestRouter(healthy).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	degraded := NewHandler(new(mockAccounts), new(mockLedger),
		Check{Name: "store", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec = httptest.NewRecorder()
	newTestRouter(degraded).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "degraded", report["status"])
	assert.Equal(t, "ok", report["store"])
}
