package events

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
)

const outboxSinkName = "outbox"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxSink records events in outbox_events for the Pub/Sub relay.
type OutboxSink struct {
	tx     txRunner
	outbox outboxEmitter
}

func NewOutboxSink(tx txRunner, svc outboxEmitter) (*OutboxSink, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if svc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &OutboxSink{tx: tx, outbox: svc}, nil
}

func (s *OutboxSink) Name() string { return outboxSinkName }

func (s *OutboxSink) Deliver(ctx context.Context, event Event) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventID:       event.ID,
			EventType:     event.Type,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			OrderID:       event.OrderID,
			Actor:         event.Actor,
			Data:          event.Payload,
			OccurredAt:    event.OccurredAt,
		})
	})
}
