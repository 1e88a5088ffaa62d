package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// OrderSnapshot is the immutable status view of an order captured before and
// after a mutation. It is the payload for audit entries and order events.
type OrderSnapshot struct {
	OrderID       uuid.UUID          `json:"orderId"`
	BuyerID       uuid.UUID          `json:"buyerId"`
	Status        enums.OrderStatus  `json:"status"`
	DerivedStatus enums.OrderStatus  `json:"derivedStatus"`
	ManualStatus  *enums.OrderStatus `json:"manualStatus,omitempty"`
	GrandTotal    decimal.Decimal    `json:"grandTotal"`
	Version       int                `json:"version"`
	LastUpdatedBy *uuid.UUID         `json:"lastUpdatedBy,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	SubOrders     []SubOrderSnapshot `json:"subOrders"`
}

type SubOrderSnapshot struct {
	SubOrderID     uuid.UUID            `json:"subOrderId"`
	SellerID       uuid.UUID            `json:"sellerId"`
	DeliveryMethod enums.DeliveryMethod `json:"deliveryMethod"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	Status         enums.SubOrderStatus `json:"status"`
	Items          []ItemSnapshot       `json:"items"`
}

type ItemSnapshot struct {
	ItemID     uuid.UUID        `json:"itemId"`
	ListingID  uuid.UUID        `json:"listingId"`
	Qty        int              `json:"qty"`
	ItemStatus enums.ItemStatus `json:"itemStatus"`
}

// Snapshot copies the status-bearing state of the aggregate. The result
// shares no memory with the order.
func (o *Order) Snapshot() OrderSnapshot {
	snap := OrderSnapshot{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		Status:        o.EffectiveStatus(),
		DerivedStatus: o.DerivedStatus,
		GrandTotal:    o.GrandTotal,
		Version:       o.Version,
		UpdatedAt:     o.UpdatedAt,
		SubOrders:     make([]SubOrderSnapshot, 0, len(o.SubOrders)),
	}
	if o.ManualStatus != nil {
		manual := *o.ManualStatus
		snap.ManualStatus = &manual
	}
	if o.LastUpdatedBy != nil {
		actor := *o.LastUpdatedBy
		snap.LastUpdatedBy = &actor
	}
	for _, sub := range o.SubOrders {
		snap.SubOrders = append(snap.SubOrders, sub.Snapshot())
	}
	return snap
}

func (s *SubOrder) Snapshot() SubOrderSnapshot {
	snap := SubOrderSnapshot{
		SubOrderID:     s.ID,
		SellerID:       s.SellerID,
		DeliveryMethod: s.Delivery.Method(),
		Subtotal:       s.Subtotal,
		Status:         s.Status,
		Items:          make([]ItemSnapshot, 0, len(s.Items)),
	}
	for _, item := range s.Items {
		snap.Items = append(snap.Items, ItemSnapshot{
			ItemID:     item.ID,
			ListingID:  item.ListingID,
			Qty:        item.Qty,
			ItemStatus: item.ItemStatus,
		})
	}
	return snap
}
