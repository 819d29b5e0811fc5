package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/EricDistort/QuberX/internal/models"
	service "github.com/EricDistort/QuberX/internal/services"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	maxBodyBytes      = 1 << 20
)

// Check is a named dependency ping reported by /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Handler struct {
	accounts service.AccountService
	ledger   service.LedgerService
	checks   []Check
}

func NewHandler(accounts service.AccountService, ledger service.LedgerService, checks ...Check) *Handler {
	return &Handler{accounts: accounts, ledger: ledger, checks: checks}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrAccountSuspended):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrReferrerNotFound),
		errors.Is(err, pkgerrors.ErrReferrerCycle),
		errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrSelfTransfer),
		errors.Is(err, pkgerrors.ErrIdempotencyMismatch):
		return http.StatusUnprocessableEntity
	case pkgerrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrDuplicateTxHash),
		errors.Is(err, pkgerrors.ErrDuplicateContact),
		errors.Is(err, pkgerrors.ErrAlreadyProcessed),
		errors.Is(err, pkgerrors.ErrRequestInProgress),
		errors.Is(err, pkgerrors.ErrInvalidStatusTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		slog.Error("storage unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = pkgerrors.ErrStorageUnavailable.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.NewValidationError("body", fmt.Sprintf("must be at most %d bytes", tooLarge.Limit))
		}
		return pkgerrors.NewValidationError("body", err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/account", h.GetAccount).Methods(http.MethodGet)
	r.HandleFunc("/account/password", h.ChangePassword).Methods(http.MethodPut)
	r.HandleFunc("/balance", h.GetBalance).Methods(http.MethodGet)
	r.HandleFunc("/history", h.GetTransactionHistory).Methods(http.MethodGet)
	r.HandleFunc("/transfer", h.Transfer).Methods(http.MethodPost)
	r.HandleFunc("/rpc/transfer_amount", h.Transfer).Methods(http.MethodPost)
	r.HandleFunc("/deposits", h.RecordDeposit).Methods(http.MethodPost)
	r.HandleFunc("/deposits", h.ListDeposits).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals", h.RequestWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals", h.ListWithdrawals).Methods(http.MethodGet)
	r.HandleFunc("/purchases", h.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/purchases", h.ListPurchases).Methods(http.MethodGet)
	r.HandleFunc("/referrals", h.GetReferralNetwork).Methods(http.MethodGet)
}

func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/deposits/{id:[0-9]+}/approve", h.ApproveDeposit).Methods(http.MethodPost)
	r.HandleFunc("/deposits/{id:[0-9]+}/reject", h.RejectDeposit).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id:[0-9]+}/resolve", h.ResolveWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/purchases/{id:[0-9]+}/status", h.AdvancePurchase).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/status", h.SetAccountStatus).Methods(http.MethodPost)
	r.HandleFunc("/audit/{entity}/{id}", h.GetAuditTrail).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{"status": "ok"}
	for _, c := range h.checks {
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", c.Name, "error", err)
			status = http.StatusServiceUnavailable
			report["status"] = "degraded"
			report[c.Name] = err.Error()
			continue
		}
		report[c.Name] = "ok"
	}
	writeJSON(w, status, report)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}
