// Package memory is a process-local implementation of repository.Store.
// Transactions run one at a time against a copy of the state that
// replaces the live state only when the callback succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository"
)

type state struct {
	accounts     map[int64]*models.Account
	transactions map[int64]*models.Transaction
	deposits     map[int64]*models.DepositRequest
	withdrawals  map[int64]*models.WithdrawalRequest
	purchases    map[int64]*models.Purchase
	products     map[int64]*models.Product
	audit        []models.AuditEntry
	idempotency  map[string]*models.IdempotencyRecord

	accountSeq     int64
	transactionSeq int64
	depositSeq     int64
	withdrawalSeq  int64
	purchaseSeq    int64
	auditSeq       int64
}

func newState() *state {
	return &state{
		accounts:     make(map[int64]*models.Account),
		transactions: make(map[int64]*models.Transaction),
		deposits:     make(map[int64]*models.DepositRequest),
		withdrawals:  make(map[int64]*models.WithdrawalRequest),
		purchases:    make(map[int64]*models.Purchase),
		products:     make(map[int64]*models.Product),
		idempotency:  make(map[string]*models.IdempotencyRecord),
	}
}

func copyMap[K comparable, V any](src map[K]*V) map[K]*V {
	dst := make(map[K]*V, len(src))
	for k, v := range src {
		c := *v
		dst[k] = &c
	}
	return dst
}

func (s *state) clone() *state {
	c := *s
	c.accounts = copyMap(s.accounts)
	c.transactions = copyMap(s.transactions)
	c.deposits = copyMap(s.deposits)
	c.withdrawals = copyMap(s.withdrawals)
	c.purchases = copyMap(s.purchases)
	c.products = copyMap(s.products)
	c.idempotency = copyMap(s.idempotency)
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	return &c
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu    sync.Mutex
	state *state

	faultMu sync.Mutex
	faults  map[string]error

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		state:  newState(),
		faults: make(map[string]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created/processed stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InjectFault makes the named method fail with err until cleared with a
// nil err. Methods are named "<table>.<Method>", e.g.
// "transactions.Create" or "accounts.ApplyDelta".
func (s *Store) InjectFault(method string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[method]
}

// SeedProduct adds or replaces a catalog entry.
func (s *Store) SeedProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p
	s.state.products[p.ID] = &c
}

type lockedView struct {
	store *Store
	st    func() *state
	lock  func() func()
}

func (s *Store) repos(v *lockedView) repository.Repositories {
	return repository.Repositories{
		Accounts:     &accountRepo{v},
		Transactions: &transactionRepo{v},
		Deposits:     &depositRepo{v},
		Withdrawals:  &withdrawalRepo{v},
		Purchases:    &purchaseRepo{v},
		Products:     &productRepo{v},
		Audit:        &auditRepo{v},
		Idempotency:  &idempotencyRepo{v},
	}
}

// Repos returns repositories that lock the store for each call.
func (s *Store) Repos() repository.Repositories {
	return s.repos(&lockedView{
		store: s,
		st:    func() *state { return s.state },
		lock: func() func() {
			s.mu.Lock()
			return s.mu.Unlock
		},
	})
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	view := &lockedView{
		store: s,
		st:    func() *state { return work },
		lock:  func() func() { return func() {} },
	}
	if err := fn(ctx, s.repos(view)); err != nil {
		return err
	}
	if err := s.fault("store.Commit"); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.fault("store.Ping"); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Store) Close() error { return nil }
