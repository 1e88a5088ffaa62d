package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// OrderCreatedEvent carries the whole order as placed.
type OrderCreatedEvent struct {
	Order models.OrderSnapshot `json:"order"`
}

// SubOrderCreatedEvent is fanned out once per seller after checkout.
type SubOrderCreatedEvent struct {
	OrderID  uuid.UUID               `json:"order_id"`
	BuyerID  uuid.UUID               `json:"buyer_id"`
	SubOrder models.SubOrderSnapshot `json:"sub_order"`
}

// OrderStatusChangedEvent reports a change of the effective order status,
// whether derived or set by an admin override.
type OrderStatusChangedEvent struct {
	OrderID      uuid.UUID            `json:"order_id"`
	BuyerID      uuid.UUID            `json:"buyer_id"`
	From         enums.OrderStatus    `json:"from"`
	To           enums.OrderStatus    `json:"to"`
	ManualStatus *enums.OrderStatus   `json:"manual_status,omitempty"`
	GrandTotal   decimal.Decimal      `json:"grand_total"`
	Version      int                  `json:"version"`
	ChangedBy    *uuid.UUID           `json:"changed_by,omitempty"`
	ChangedAt    time.Time            `json:"changed_at"`
	Order        models.OrderSnapshot `json:"order"`
}

// SubOrderStatusChangedEvent reports a sub-order status transition.
type SubOrderStatusChangedEvent struct {
	OrderID    uuid.UUID               `json:"order_id"`
	SubOrderID uuid.UUID               `json:"sub_order_id"`
	SellerID   uuid.UUID               `json:"seller_id"`
	From       enums.SubOrderStatus    `json:"from"`
	To         enums.SubOrderStatus    `json:"to"`
	ChangedBy  *uuid.UUID              `json:"changed_by,omitempty"`
	ChangedAt  time.Time               `json:"changed_at"`
	SubOrder   models.SubOrderSnapshot `json:"sub_order"`
}
