package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
)

// Event is an order notification produced after a committed change.
// Audience lists the users who should hear about it in realtime.
type Event struct {
	ID            uuid.UUID
	Type          enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OrderID       uuid.UUID
	Audience      []uuid.UUID
	Actor         *outbox.ActorRef
	Payload       any
	OccurredAt    time.Time
}

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Emitter accepts events without blocking the caller. Delivery failures
// never surface to the emitter.
type Emitter interface {
	Emit(ctx context.Context, events ...Event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, ...Event) {}
