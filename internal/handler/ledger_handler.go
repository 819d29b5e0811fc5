package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/models"
)

// Transfer serves both /transfer and the legacy /rpc/transfer_amount
// body. The sender is always the authenticated account.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	number, ok := auth.AccountNumberFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "account not authenticated"})
		return
	}
	var req models.TransferRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SenderAccountNumber != "" && req.SenderAccountNumber != number {
		slog.Warn("transfer from foreign account refused", "authenticated", number, "requested", req.SenderAccountNumber)
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "sender must be the authenticated account"})
		return
	}
	req.SenderAccountNumber = number
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)

	tx, err := h.ledger.Transfer(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var claim models.DepositClaim
	if err := decode(w, r, &claim); err != nil {
		h.writeError(w, r, err)
		return
	}
	claim.AccountID = id
	d, err := h.ledger.RecordDeposit(r.Context(), claim)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	deposits, err := h.ledger.ListDeposits(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if deposits == nil {
		deposits = []models.DepositRequest{}
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var claim models.WithdrawalClaim
	if err := decode(w, r, &claim); err != nil {
		h.writeError(w, r, err)
		return
	}
	claim.AccountID = id
	claim.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	req, err := h.ledger.RequestWithdrawal(r.Context(), claim)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	withdrawals, err := h.ledger.ListWithdrawals(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if withdrawals == nil {
		withdrawals = []models.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var order models.PurchaseOrder
	if err := decode(w, r, &order); err != nil {
		h.writeError(w, r, err)
		return
	}
	order.AccountID = id
	order.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	p, err := h.ledger.Purchase(r.Context(), order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	purchases, err := h.ledger.ListPurchases(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if purchases == nil {
		purchases = []models.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchases)
}

// ApproveDeposit accepts an optional "amount"; without it the claimed
// amount is approved.
func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Amount decimal.NullDecimal `json:"amount"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	amount := decimal.Zero
	if req.Amount.Valid {
		amount = req.Amount.Decimal
	}
	d, err := h.ledger.ApproveDeposit(r.Context(), id, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.ledger.RejectDeposit(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Status models.RequestStatus `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.ledger.ResolveWithdrawal(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) AdvancePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Status models.PurchaseStatus `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.ledger.AdvancePurchase(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entries, err := h.ledger.GetAuditTrail(r.Context(), vars["entity"], vars["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
