package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/EricDistort/QuberX/internal/models"
)

// BalanceInvalidator drops cached balances for an account.
type BalanceInvalidator interface {
	InvalidateBalances(ctx context.Context, accountID int64) error
}

// Consumer reads committed ledger events and evicts the balance cache of
// every account they touch, so replicas that did not run the write stop
// serving stale balances. It never writes to the ledger.
type Consumer struct {
	reader      *kafka.Reader
	invalidator BalanceInvalidator
}

func NewConsumer(brokers []string, topic, groupID string, invalidator BalanceInvalidator) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		invalidator: invalidator,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer stopped", "topic", c.reader.Config().Topic)
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		if err := c.handle(ctx, msg.Value); err != nil {
			slog.Error("failed to handle ledger event", "topic", msg.Topic, "key", string(msg.Key), "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event models.LedgerEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal ledger event: %w", err)
	}

	slog.Debug("ledger event received", "event_id", event.ID, "type", event.Type, "accounts", event.AccountIDs)

	var firstErr error
	for _, id := range event.AccountIDs {
		if err := c.invalidator.InvalidateBalances(ctx, id); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to invalidate account %d: %w", id, err)
		}
	}
	return firstErr
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
