package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
	"github.com/EricDistort/QuberX/internal/models"
)

// BalanceCache is the read-through cache of client-visible balances.
// Entries are dropped after every committed mutation; a stale entry lives
// at most ttl.
type BalanceCache struct {
	client redis.RedisClient
	ttl    time.Duration
}

func NewBalanceCache(client redis.RedisClient, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balancesKey(accountID int64) string {
	return fmt.Sprintf("account:%d:balances", accountID)
}

func (c *BalanceCache) Get(ctx context.Context, accountID int64) (*models.Balances, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, balancesKey(accountID))
	if err != nil {
		if !errors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("balance cache read failed", "account_id", accountID, "error", err)
		}
		return nil, false
	}
	var b models.Balances
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		slog.Warn("corrupt balance cache entry", "account_id", accountID, "error", err)
		return nil, false
	}
	return &b, true
}

func (c *BalanceCache) Set(ctx context.Context, accountID int64, b models.Balances) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, balancesKey(accountID), string(raw), c.ttl); err != nil {
		slog.Warn("balance cache write failed", "account_id", accountID, "error", err)
	}
}

func (c *BalanceCache) InvalidateBalances(ctx context.Context, accountID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balancesKey(accountID))
}

func (c *BalanceCache) invalidate(ctx context.Context, accountIDs ...int64) {
	for _, id := range accountIDs {
		if err := c.InvalidateBalances(ctx, id); err != nil {
			slog.Warn("balance cache invalidation failed", "account_id", id, "error", err)
		}
	}
}
