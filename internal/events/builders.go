package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/payloads"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

// ActorFromPrincipal converts the caller into the actor recorded on events.
func ActorFromPrincipal(p visibility.Principal) *outbox.ActorRef {
	if p.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{
		UserID:  p.UserID,
		Role:    p.Role.String(),
		IsAdmin: p.IsAdmin,
	}
}

// OrderPlaced builds the order_created event followed by one
// sub_order_created event per seller, in sub-order position order.
func OrderPlaced(snapshot models.OrderSnapshot, actor *outbox.ActorRef, now time.Time) []Event {
	out := make([]Event, 0, len(snapshot.SubOrders)+1)
	out = append(out, Event{
		ID:            uuid.New(),
		Type:          enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   snapshot.OrderID,
		OrderID:       snapshot.OrderID,
		Audience:      orderAudience(snapshot),
		Actor:         actor,
		Payload:       payloads.OrderCreatedEvent{Order: snapshot},
		OccurredAt:    now,
	})
	for _, sub := range snapshot.SubOrders {
		out = append(out, Event{
			ID:            uuid.New(),
			Type:          enums.EventSubOrderCreated,
			AggregateType: enums.AggregateSubOrder,
			AggregateID:   sub.SubOrderID,
			OrderID:       snapshot.OrderID,
			Audience:      []uuid.UUID{snapshot.BuyerID, sub.SellerID},
			Actor:         actor,
			Payload: payloads.SubOrderCreatedEvent{
				OrderID:  snapshot.OrderID,
				BuyerID:  snapshot.BuyerID,
				SubOrder: sub,
			},
			OccurredAt: now,
		})
	}
	return out
}

// StatusChanges compares two snapshots of the same order. It returns one
// event per sub-order whose status moved, plus the targeted sub-order even
// when only one of its items changed, then one event for the order. The
// order event is always present; From equals To when the roll-up held still.
func StatusChanges(before, after models.OrderSnapshot, target uuid.UUID, actor *outbox.ActorRef, now time.Time) []Event {
	var changedBy *uuid.UUID
	if actor != nil {
		id := actor.UserID
		changedBy = &id
	}

	previous := make(map[uuid.UUID]enums.SubOrderStatus, len(before.SubOrders))
	for _, sub := range before.SubOrders {
		previous[sub.SubOrderID] = sub.Status
	}

	var out []Event
	for _, sub := range after.SubOrders {
		from, ok := previous[sub.SubOrderID]
		if !ok || (from == sub.Status && sub.SubOrderID != target) {
			continue
		}
		out = append(out, Event{
			ID:            uuid.New(),
			Type:          enums.EventSubOrderStatusChanged,
			AggregateType: enums.AggregateSubOrder,
			AggregateID:   sub.SubOrderID,
			OrderID:       after.OrderID,
			Audience:      []uuid.UUID{after.BuyerID, sub.SellerID},
			Actor:         actor,
			Payload: payloads.SubOrderStatusChangedEvent{
				OrderID:    after.OrderID,
				SubOrderID: sub.SubOrderID,
				SellerID:   sub.SellerID,
				From:       from,
				To:         sub.Status,
				ChangedBy:  changedBy,
				ChangedAt:  now,
				SubOrder:   sub,
			},
			OccurredAt: now,
		})
	}

	out = append(out, Event{
		ID:            uuid.New(),
		Type:          enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   after.OrderID,
		OrderID:       after.OrderID,
		Audience:      orderAudience(after),
		Actor:         actor,
		Payload: payloads.OrderStatusChangedEvent{
			OrderID:      after.OrderID,
			BuyerID:      after.BuyerID,
			From:         before.Status,
			To:           after.Status,
			ManualStatus: after.ManualStatus,
			GrandTotal:   after.GrandTotal,
			Version:      after.Version,
			ChangedBy:    changedBy,
			ChangedAt:    now,
			Order:        after,
		},
		OccurredAt: now,
	})
	return out
}

func orderAudience(snapshot models.OrderSnapshot) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(snapshot.SubOrders)+1)
	audience := make([]uuid.UUID, 0, len(snapshot.SubOrders)+1)
	add := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		audience = append(audience, id)
	}
	add(snapshot.BuyerID)
	for _, sub := range snapshot.SubOrders {
		add(sub.SellerID)
	}
	return audience
}
