package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
)

// ReconcileReport is the outcome of one reconciliation pass.
type ReconcileReport struct {
	NegativeAccounts []string
	StaleDeposits    int
	StaleWithdrawals int
}

func (r ReconcileReport) Clean() bool {
	return len(r.NegativeAccounts) == 0 && r.StaleDeposits == 0 && r.StaleWithdrawals == 0
}

// PruneIdempotencyKeys drops idempotency records past the retention
// window, after which their keys may be reused.
func (jr *JobRunner) PruneIdempotencyKeys() {
	jr.runWithRecovery("PruneIdempotencyKeys", func(ctx context.Context) error {
		_, err := jr.pruneIdempotencyKeys(ctx)
		return err
	})
}

func (jr *JobRunner) pruneIdempotencyKeys(ctx context.Context) (int64, error) {
	cutoff := jr.now().Add(-jr.policy.IdempotencyRetention)
	n, err := jr.store.Repos().Idempotency.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency keys: %w", err)
	}
	slog.Info("pruned idempotency keys", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Reconcile checks the ledger for states that must never occur and for
// requests left pending too long. It reports, it never repairs.
func (jr *JobRunner) Reconcile() {
	jr.runWithRecovery("Reconcile", func(ctx context.Context) error {
		_, err := jr.reconcile(ctx)
		return err
	})
}

func (jr *JobRunner) reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	repos := jr.store.Repos()

	negative, err := repos.Accounts.ListNegativeBalances(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list negative balances: %w", err)
	}
	for _, acc := range negative {
		report.NegativeAccounts = append(report.NegativeAccounts, acc.AccountNumber)
		slog.Error("account has a negative balance field",
			"account_number", acc.AccountNumber,
			"balance", acc.Balance.String(),
			"withdrawal_amount", acc.WithdrawalAmount.String(),
			"direct_business", acc.DirectBusiness.String())
	}

	before := jr.now().Add(-jr.policy.StalePendingAfter)
	if report.StaleDeposits, err = repos.Deposits.CountPendingBefore(ctx, before); err != nil {
		return report, fmt.Errorf("failed to count stale deposits: %w", err)
	}
	if report.StaleWithdrawals, err = repos.Withdrawals.CountPendingBefore(ctx, before); err != nil {
		return report, fmt.Errorf("failed to count stale withdrawals: %w", err)
	}

	observability.ReconcileFindings.WithLabelValues("negative_accounts").Set(float64(len(report.NegativeAccounts)))
	observability.ReconcileFindings.WithLabelValues("stale_deposits").Set(float64(report.StaleDeposits))
	observability.ReconcileFindings.WithLabelValues("stale_withdrawals").Set(float64(report.StaleWithdrawals))

	if report.Clean() {
		slog.Info("reconciliation clean")
	} else {
		slog.Warn("reconciliation found issues",
			"negative_accounts", len(report.NegativeAccounts),
			"stale_deposits", report.StaleDeposits,
			"stale_withdrawals", report.StaleWithdrawals,
			"pending_before", before)
	}
	return report, nil
}
