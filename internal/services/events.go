package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EricDistort/QuberX/internal/infrastructure/kafka"
	"github.com/EricDistort/QuberX/internal/models"
)

// EventPublisher sends ledger events after commit. Delivery is best
// effort; the database is the source of truth.
type EventPublisher struct {
	producer kafka.KafkaProducer
	topic    string
	retries  int
	backoff  time.Duration
	wg       sync.WaitGroup
}

func NewEventPublisher(producer kafka.KafkaProducer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic, retries: 3, backoff: time.Second}
}

func (p *EventPublisher) Publish(eventType models.EventType, amount decimal.Decimal, reference string, accountIDs ...int64) {
	if p == nil || p.producer == nil {
		return
	}
	event := models.LedgerEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		AccountIDs: accountIDs,
		Amount:     amount,
		Reference:  reference,
		OccurredAt: time.Now().UTC(),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal ledger event", "type", eventType, "error", err)
		return
	}
	var key int64
	if len(accountIDs) > 0 {
		key = accountIDs[0]
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for i := 0; i < p.retries; i++ {
			if err := p.producer.Send(context.Background(), p.topic, key, eventBytes); err == nil {
				slog.Info("ledger event sent", "event_id", event.ID, "type", eventType)
				return
			}
			time.Sleep(p.backoff * time.Duration(i+1))
		}
		slog.Error("failed to send ledger event after retries", "event_id", event.ID, "type", eventType)
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *EventPublisher) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}
