// Package registry maps outbox event types to the topic they are relayed on
// and the payload schema their envelope carries.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish successfully. The
// relay dead-letters it instead of scheduling another attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// NewEventRegistry routes every order and sub-order event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.OrdersTopic
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}

	descriptors := []EventDescriptor{
		orderEvent(enums.EventOrderCreated, topic, func() any { return &payloads.OrderCreatedEvent{} }),
		orderEvent(enums.EventOrderStatusChanged, topic, func() any { return &payloads.OrderStatusChangedEvent{} }),
		subOrderEvent(enums.EventSubOrderCreated, topic, func() any { return &payloads.SubOrderCreatedEvent{} }),
		subOrderEvent(enums.EventSubOrderStatusChanged, topic, func() any { return &payloads.SubOrderStatusChangedEvent{} }),
	}

	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.byType[desc.EventType] = desc
	}
	return reg, nil
}

func orderEvent(eventType enums.OutboxEventType, topic string, newPayload func() any) EventDescriptor {
	return EventDescriptor{EventType: eventType, AggregateType: enums.AggregateOrder, Topic: topic, newPayload: newPayload}
}

func subOrderEvent(eventType enums.OutboxEventType, topic string, newPayload func() any) EventDescriptor {
	return EventDescriptor{EventType: eventType, AggregateType: enums.AggregateSubOrder, Topic: topic, newPayload: newPayload}
}

// Resolve checks the row's routing columns and decodes its payload. Every
// failure is non-retryable since the row itself is malformed.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("event %s belongs to aggregate %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("event %s has no aggregate_id", row.EventType)
	case row.OrderID == uuid.Nil:
		return nil, permanent("event %s has no order_id", row.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("event %s has an empty payload", row.EventType)
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
