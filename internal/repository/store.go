package repository

import "context"

// Repositories groups the repositories bound to one connection or
// transaction.
type Repositories struct {
	Accounts     AccountRepository
	Transactions TransactionRepository
	Deposits     DepositRepository
	Withdrawals  WithdrawalRepository
	Purchases    PurchaseRepository
	Products     ProductRepository
	Audit        AuditRepository
	Idempotency  IdempotencyRepository
}

// Store is the single durable store behind the ledger.
type Store interface {
	// Repos returns repositories outside any transaction, for reads.
	Repos() Repositories
	// WithinTx runs fn in one serializable transaction. Every write made
	// through r commits together or not at all. fn may be re-run when the
	// database reports a serialization conflict, so it must not have side
	// effects outside r.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
