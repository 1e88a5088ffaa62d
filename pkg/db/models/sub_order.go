package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
)

// SubOrder is the slice of an order fulfilled by a single seller.
type SubOrder struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_sub_orders_order_seller,priority:1"`
	Position       int                  `gorm:"column:position;not null"`
	SellerID       uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_sub_orders_order_seller,priority:2;index"`
	Seller         *User                `gorm:"foreignKey:SellerID"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:delivery_method;not null"`
	Delivery       types.Delivery       `gorm:"column:delivery;type:jsonb;serializer:json;not null"`
	Subtotal       decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Status         enums.SubOrderStatus `gorm:"column:status;type:sub_order_status;not null;default:'pending'"`
	Items          []OrderItem          `gorm:"foreignKey:SubOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *SubOrder) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	s.DeliveryMethod = s.Delivery.Method()
	return nil
}

// ItemStatuses lists the status of every item in position order.
func (s *SubOrder) ItemStatuses() []enums.ItemStatus {
	statuses := make([]enums.ItemStatus, 0, len(s.Items))
	for _, item := range s.Items {
		statuses = append(statuses, item.ItemStatus)
	}
	return statuses
}

// ItemByID returns a pointer into Items so callers can mutate in place.
func (s *SubOrder) ItemByID(id uuid.UUID) *OrderItem {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}
