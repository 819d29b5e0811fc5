package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/money"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const (
	defaultNetworkDepth = 3
	maxNetworkDepth     = 10
)

type referralCredit struct {
	AccountID     int64
	AccountNumber string
	Level         int
	Amount        decimal.Decimal
}

// accumulateReferral credits direct_business up the referrer chain of acc.
// The override only applies to accounts without a referrer of their own.
func (s *ledgerService) accumulateReferral(ctx context.Context, r repository.Repositories, acc *models.Account, override string, amount decimal.Decimal) ([]referralCredit, error) {
	next := acc.ReferrerAccountNumber
	if next == "" {
		next = override
	}

	depth := len(s.policy.ReferralLevels)
	if s.policy.ReferralMaxDepth < depth {
		depth = s.policy.ReferralMaxDepth
	}

	visited := map[string]bool{acc.AccountNumber: true}
	var credits []referralCredit
	for level := 1; level <= depth && next != ""; level++ {
		if visited[next] {
			slog.Warn("referral chain repeats, stopping", "account_number", acc.AccountNumber, "repeated", next)
			break
		}
		visited[next] = true

		ancestor, err := r.Accounts.GetByAccountNumber(ctx, next)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				slog.Warn("referrer missing, stopping referral walk", "referrer", next)
				break
			}
			return nil, err
		}

		credit := money.Fraction(amount, s.policy.ReferralLevels[level-1])
		if credit.IsPositive() {
			before, err := r.Accounts.GetForUpdate(ctx, ancestor.ID)
			if err != nil {
				return nil, err
			}
			after, err := r.Accounts.ApplyDelta(ctx, ancestor.ID, models.BalanceDelta{DirectBusiness: credit})
			if err != nil {
				return nil, err
			}
			if err := audit(ctx, r, models.EntityAccount, ancestor.ID, models.AuditReferralCredit, ancestor.ID, before.Balances(), after.Balances()); err != nil {
				return nil, err
			}
			credits = append(credits, referralCredit{
				AccountID:     ancestor.ID,
				AccountNumber: ancestor.AccountNumber,
				Level:         level,
				Amount:        credit,
			})
		}
		next = ancestor.ReferrerAccountNumber
	}
	return credits, nil
}

// GetReferralNetwork returns the downline of an account, level by level.
func (s *ledgerService) GetReferralNetwork(ctx context.Context, accountID int64, depth int) ([]*models.ReferralNode, error) {
	ctx, span := tracer.Start(ctx, "GetReferralNetwork")
	defer span.End()

	if depth <= 0 {
		depth = defaultNetworkDepth
	}
	if depth > maxNetworkDepth {
		depth = maxNetworkDepth
	}
	span.SetAttributes(attribute.Int("depth", depth))

	repos := s.store.Repos()
	root, err := repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{root.AccountNumber: true}
	var walk func(number string, level int) ([]*models.ReferralNode, error)
	walk = func(number string, level int) ([]*models.ReferralNode, error) {
		if level > depth {
			return nil, nil
		}
		downline, err := repos.Accounts.ListReferrals(ctx, number)
		if err != nil {
			return nil, err
		}
		nodes := make([]*models.ReferralNode, 0, len(downline))
		for _, a := range downline {
			if visited[a.AccountNumber] {
				continue
			}
			visited[a.AccountNumber] = true
			node := &models.ReferralNode{
				AccountNumber:  a.AccountNumber,
				Username:       a.Username,
				Level:          level,
				DirectBusiness: a.DirectBusiness,
				JoinedAt:       a.CreatedAt,
			}
			if node.Referrals, err = walk(a.AccountNumber, level+1); err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		return nodes, nil
	}
	return walk(root.AccountNumber, 1)
}
