package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

// begin checks the injected fault for method and takes the lock. The
// returned state is valid until unlock is called.
func (v *lockedView) begin(method string) (*state, func(), error) {
	if err := v.store.fault(method); err != nil {
		return nil, nil, err
	}
	unlock := v.lock()
	return v.st(), unlock, nil
}

type accountRepo struct{ v *lockedView }

func (r *accountRepo) Create(_ context.Context, a *models.Account) error {
	if a == nil {
		return pkgerrors.ErrNilAccount
	}
	if a.Username == "" || a.PasswordHash == "" || a.AccountNumber == "" {
		return pkgerrors.NewValidationError("account", "account number, username and password are required")
	}
	st, unlock, err := r.v.begin("accounts.Create")
	if err != nil {
		return err
	}
	defer unlock()

	for _, existing := range st.accounts {
		if existing.AccountNumber == a.AccountNumber {
			return pkgerrors.ErrAccountNumberTaken
		}
		if existing.Username == a.Username ||
			(a.Email != "" && existing.Email == a.Email) ||
			(a.Phone != "" && existing.Phone == a.Phone) {
			return pkgerrors.ErrDuplicateContact
		}
	}

	st.accountSeq++
	now := r.v.store.now()
	a.ID = st.accountSeq
	a.Balance, a.WithdrawalAmount, a.DirectBusiness = decimal.Zero, decimal.Zero, decimal.Zero
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	a.CreatedAt, a.UpdatedAt = now, now
	c := *a
	st.accounts[a.ID] = &c
	return nil
}

func (r *accountRepo) find(method string, match func(*models.Account) bool) (*models.Account, error) {
	st, unlock, err := r.v.begin(method)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, a := range st.accounts {
		if match(a) {
			c := *a
			return &c, nil
		}
	}
	return nil, pkgerrors.ErrAccountNotFound
}

func (r *accountRepo) GetByID(_ context.Context, id int64) (*models.Account, error) {
	return r.find("accounts.GetByID", func(a *models.Account) bool { return a.ID == id })
}

func (r *accountRepo) GetByAccountNumber(_ context.Context, accountNumber string) (*models.Account, error) {
	if accountNumber == "" {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return r.find("accounts.GetByAccountNumber", func(a *models.Account) bool { return a.AccountNumber == accountNumber })
}

func (r *accountRepo) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	if username == "" {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return r.find("accounts.GetByUsername", func(a *models.Account) bool { return a.Username == username })
}

func (r *accountRepo) GetForUpdate(_ context.Context, id int64) (*models.Account, error) {
	return r.find("accounts.GetForUpdate", func(a *models.Account) bool { return a.ID == id })
}

func (r *accountRepo) ApplyDelta(_ context.Context, id int64, delta models.BalanceDelta) (*models.Account, error) {
	st, unlock, err := r.v.begin("accounts.ApplyDelta")
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, ok := st.accounts[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	balance := a.Balance.Add(delta.Balance)
	withdrawal := a.WithdrawalAmount.Add(delta.WithdrawalAmount)
	business := a.DirectBusiness.Add(delta.DirectBusiness)
	if balance.IsNegative() || withdrawal.IsNegative() || business.IsNegative() {
		return nil, pkgerrors.ErrInsufficientFunds
	}
	a.Balance, a.WithdrawalAmount, a.DirectBusiness = balance, withdrawal, business
	a.UpdatedAt = r.v.store.now()
	c := *a
	return &c, nil
}

func (r *accountRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	st, unlock, err := r.v.begin("accounts.UpdatePassword")
	if err != nil {
		return err
	}
	defer unlock()
	a, ok := st.accounts[id]
	if !ok {
		return pkgerrors.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = r.v.store.now()
	return nil
}

func (r *accountRepo) UpdateStatus(_ context.Context, id int64, status models.AccountStatus) error {
	st, unlock, err := r.v.begin("accounts.UpdateStatus")
	if err != nil {
		return err
	}
	defer unlock()
	a, ok := st.accounts[id]
	if !ok {
		return pkgerrors.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = r.v.store.now()
	return nil
}

func (r *accountRepo) filter(method string, match func(*models.Account) bool) ([]models.Account, error) {
	st, unlock, err := r.v.begin(method)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.Account
	for _, a := range st.accounts {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *accountRepo) ListReferrals(_ context.Context, referrerAccountNumber string) ([]models.Account, error) {
	return r.filter("accounts.ListReferrals", func(a *models.Account) bool {
		return a.ReferrerAccountNumber != "" && a.ReferrerAccountNumber == referrerAccountNumber
	})
}

func (r *accountRepo) ListNegativeBalances(_ context.Context) ([]models.Account, error) {
	return r.filter("accounts.ListNegativeBalances", func(a *models.Account) bool {
		return a.Balance.IsNegative() || a.WithdrawalAmount.IsNegative() || a.DirectBusiness.IsNegative()
	})
}

type transactionRepo struct{ v *lockedView }

func (r *transactionRepo) Create(_ context.Context, tx *models.Transaction) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.ErrNilTransaction
	}
	if !tx.Amount.IsPositive() {
		return 0, pkgerrors.ErrInvalidAmount
	}
	st, unlock, err := r.v.begin("transactions.Create")
	if err != nil {
		return 0, err
	}
	defer unlock()

	st.transactionSeq++
	tx.ID = st.transactionSeq
	tx.CreatedAt = r.v.store.now()
	c := *tx
	st.transactions[tx.ID] = &c
	return tx.ID, nil
}

func (r *transactionRepo) GetByID(_ context.Context, id int64) (*models.Transaction, error) {
	st, unlock, err := r.v.begin("transactions.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	tx, ok := st.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	c := *tx
	return &c, nil
}

func (r *transactionRepo) ListByAccount(_ context.Context, accountNumber string, limit int) ([]models.Transaction, error) {
	st, unlock, err := r.v.begin("transactions.ListByAccount")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.Transaction
	for _, tx := range st.transactions {
		if tx.SenderAccountNumber == accountNumber || tx.ReceiverAccountNumber == accountNumber {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type depositRepo struct{ v *lockedView }

func (r *depositRepo) Create(_ context.Context, d *models.DepositRequest) error {
	st, unlock, err := r.v.begin("deposits.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range st.deposits {
		if existing.TxHash == d.TxHash {
			return pkgerrors.ErrDuplicateTxHash
		}
	}
	st.depositSeq++
	d.ID = st.depositSeq
	d.Status = models.StatusPending
	d.ApprovedAmount = decimal.Zero
	d.CreatedAt = r.v.store.now()
	c := *d
	st.deposits[d.ID] = &c
	return nil
}

func (r *depositRepo) GetForUpdate(_ context.Context, id int64) (*models.DepositRequest, error) {
	st, unlock, err := r.v.begin("deposits.GetForUpdate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	d, ok := st.deposits[id]
	if !ok {
		return nil, pkgerrors.ErrDepositNotFound
	}
	c := *d
	return &c, nil
}

func (r *depositRepo) Resolve(_ context.Context, id int64, status models.RequestStatus, approvedAmount decimal.Decimal) (*models.DepositRequest, error) {
	st, unlock, err := r.v.begin("deposits.Resolve")
	if err != nil {
		return nil, err
	}
	defer unlock()
	d, ok := st.deposits[id]
	if !ok || d.Status != models.StatusPending {
		return nil, pkgerrors.ErrAlreadyProcessed
	}
	now := r.v.store.now()
	d.Status = status
	d.ApprovedAmount = approvedAmount
	d.ProcessedAt = &now
	c := *d
	return &c, nil
}

func (r *depositRepo) ListByAccount(_ context.Context, accountID int64) ([]models.DepositRequest, error) {
	st, unlock, err := r.v.begin("deposits.ListByAccount")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.DepositRequest
	for _, d := range st.deposits {
		if d.AccountID == accountID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *depositRepo) CountPendingBefore(_ context.Context, before time.Time) (int, error) {
	st, unlock, err := r.v.begin("deposits.CountPendingBefore")
	if err != nil {
		return 0, err
	}
	defer unlock()
	n := 0
	for _, d := range st.deposits {
		if d.Status == models.StatusPending && d.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type withdrawalRepo struct{ v *lockedView }

func (r *withdrawalRepo) Create(_ context.Context, w *models.WithdrawalRequest) error {
	st, unlock, err := r.v.begin("withdrawals.Create")
	if err != nil {
		return err
	}
	defer unlock()
	st.withdrawalSeq++
	w.ID = st.withdrawalSeq
	w.Status = models.StatusPending
	w.CreatedAt = r.v.store.now()
	c := *w
	st.withdrawals[w.ID] = &c
	return nil
}

func (r *withdrawalRepo) GetForUpdate(_ context.Context, id int64) (*models.WithdrawalRequest, error) {
	st, unlock, err := r.v.begin("withdrawals.GetForUpdate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	w, ok := st.withdrawals[id]
	if !ok {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	c := *w
	return &c, nil
}

func (r *withdrawalRepo) Resolve(_ context.Context, id int64, status models.RequestStatus) (*models.WithdrawalRequest, error) {
	st, unlock, err := r.v.begin("withdrawals.Resolve")
	if err != nil {
		return nil, err
	}
	defer unlock()
	w, ok := st.withdrawals[id]
	if !ok || w.Status != models.StatusPending {
		return nil, pkgerrors.ErrAlreadyProcessed
	}
	now := r.v.store.now()
	w.Status = status
	w.ProcessedAt = &now
	c := *w
	return &c, nil
}

func (r *withdrawalRepo) ListByAccount(_ context.Context, accountID int64) ([]models.WithdrawalRequest, error) {
	st, unlock, err := r.v.begin("withdrawals.ListByAccount")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.WithdrawalRequest
	for _, w := range st.withdrawals {
		if w.AccountID == accountID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *withdrawalRepo) CountPendingBefore(_ context.Context, before time.Time) (int, error) {
	st, unlock, err := r.v.begin("withdrawals.CountPendingBefore")
	if err != nil {
		return 0, err
	}
	defer unlock()
	n := 0
	for _, w := range st.withdrawals {
		if w.Status == models.StatusPending && w.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type purchaseRepo struct{ v *lockedView }

func (r *purchaseRepo) Create(_ context.Context, p *models.Purchase) error {
	st, unlock, err := r.v.begin("purchases.Create")
	if err != nil {
		return err
	}
	defer unlock()
	st.purchaseSeq++
	now := r.v.store.now()
	p.ID = st.purchaseSeq
	p.Status = models.PurchasePending
	p.CreatedAt, p.UpdatedAt = now, now
	c := *p
	st.purchases[p.ID] = &c
	return nil
}

func (r *purchaseRepo) GetForUpdate(_ context.Context, id int64) (*models.Purchase, error) {
	st, unlock, err := r.v.begin("purchases.GetForUpdate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := st.purchases[id]
	if !ok {
		return nil, pkgerrors.ErrPurchaseNotFound
	}
	c := *p
	return &c, nil
}

func (r *purchaseRepo) UpdateStatus(_ context.Context, id int64, from, to models.PurchaseStatus) (*models.Purchase, error) {
	st, unlock, err := r.v.begin("purchases.UpdateStatus")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := st.purchases[id]
	if !ok || p.Status != from {
		return nil, pkgerrors.ErrInvalidStatusTransition
	}
	p.Status = to
	p.UpdatedAt = r.v.store.now()
	c := *p
	return &c, nil
}

func (r *purchaseRepo) ListByAccount(_ context.Context, accountID int64) ([]models.Purchase, error) {
	st, unlock, err := r.v.begin("purchases.ListByAccount")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.Purchase
	for _, p := range st.purchases {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type productRepo struct{ v *lockedView }

func (r *productRepo) GetByID(_ context.Context, id int64) (*models.Product, error) {
	st, unlock, err := r.v.begin("products.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := st.products[id]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (r *productRepo) ListActive(_ context.Context) ([]models.Product, error) {
	st, unlock, err := r.v.begin("products.ListActive")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.Product
	for _, p := range st.products {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type auditRepo struct{ v *lockedView }

func (r *auditRepo) Append(_ context.Context, e *models.AuditEntry) error {
	st, unlock, err := r.v.begin("audit.Append")
	if err != nil {
		return err
	}
	defer unlock()
	st.auditSeq++
	e.ID = st.auditSeq
	e.CreatedAt = r.v.store.now()
	st.audit = append(st.audit, *e)
	return nil
}

func (r *auditRepo) ListByEntity(_ context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	st, unlock, err := r.v.begin("audit.ListByEntity")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []models.AuditEntry
	for _, e := range st.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type idempotencyRepo struct{ v *lockedView }

func (r *idempotencyRepo) Get(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	st, unlock, err := r.v.begin("idempotency.Get")
	if err != nil {
		return nil, err
	}
	defer unlock()
	rec, ok := st.idempotency[key]
	if !ok {
		return nil, pkgerrors.ErrIdempotencyKeyNotFound
	}
	c := *rec
	return &c, nil
}

func (r *idempotencyRepo) Reserve(_ context.Context, rec *models.IdempotencyRecord) error {
	st, unlock, err := r.v.begin("idempotency.Reserve")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := st.idempotency[rec.Key]; ok {
		return pkgerrors.ErrRequestInProgress
	}
	rec.CreatedAt = r.v.store.now()
	c := *rec
	st.idempotency[rec.Key] = &c
	return nil
}

func (r *idempotencyRepo) Complete(_ context.Context, key string, response []byte) error {
	st, unlock, err := r.v.begin("idempotency.Complete")
	if err != nil {
		return err
	}
	defer unlock()
	rec, ok := st.idempotency[key]
	if !ok {
		return pkgerrors.ErrIdempotencyKeyNotFound
	}
	rec.Response = append([]byte(nil), response...)
	return nil
}

func (r *idempotencyRepo) Delete(_ context.Context, key string) error {
	st, unlock, err := r.v.begin("idempotency.Delete")
	if err != nil {
		return err
	}
	defer unlock()
	delete(st.idempotency, key)
	return nil
}

func (r *idempotencyRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	st, unlock, err := r.v.begin("idempotency.DeleteOlderThan")
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for k, rec := range st.idempotency {
		if rec.CreatedAt.Before(cutoff) {
			delete(st.idempotency, k)
			n++
		}
	}
	return n, nil
}
