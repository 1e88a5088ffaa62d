package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/payloads"
)

func TestResolveOrderCreated(t *testing.T) {
	reg := testRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		OrderID:       orderID,
		Payload: envelopeFor(t, payloads.OrderCreatedEvent{
			Order: models.OrderSnapshot{
				OrderID:    orderID,
				BuyerID:    uuid.New(),
				Status:     enums.OrderStatusPending,
				GrandTotal: decimal.NewFromInt(20),
				Version:    1,
			},
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "agrimarket-orders" || resolved.Descriptor.EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected descriptor %+v", resolved.Descriptor)
	}
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("payload type %T", resolved.Payload)
	}
	if payload.Order.OrderID != orderID || !payload.Order.GrandTotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("payload mismatch %+v", payload.Order)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestResolveSubOrderStatusChanged(t *testing.T) {
	reg := testRegistry(t)
	orderID, subOrderID := uuid.New(), uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventSubOrderStatusChanged,
		AggregateType: enums.AggregateSubOrder,
		AggregateID:   subOrderID,
		OrderID:       orderID,
		Payload: envelopeFor(t, payloads.SubOrderStatusChangedEvent{
			OrderID:    orderID,
			SubOrderID: subOrderID,
			SellerID:   uuid.New(),
			From:       enums.SubOrderStatusPending,
			To:         enums.SubOrderStatusAccepted,
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	payload, ok := resolved.Payload.(*payloads.SubOrderStatusChangedEvent)
	if !ok || payload.To != enums.SubOrderStatusAccepted {
		t.Fatalf("unexpected payload %#v", resolved.Payload)
	}
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	reg := testRegistry(t)
	orderBody := rawEnvelope(t, []byte(`{"order":{}}`))

	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("listing_restocked"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			OrderID:       uuid.New(),
			Payload:       orderBody,
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateSubOrder,
			AggregateID:   uuid.New(),
			OrderID:       uuid.New(),
			Payload:       orderBody,
		},
		"missing order id": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       orderBody,
		},
		"null payload": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			OrderID:       uuid.New(),
			Payload:       rawEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			OrderID:       uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresOrdersTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error without orders topic")
	}
}

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "agrimarket-orders"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeFor(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return rawEnvelope(t, data)
}

func rawEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}
