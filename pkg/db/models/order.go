package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
)

// Order is the root of the fulfillment aggregate: one buyer purchase split
// into one SubOrder per seller.
type Order struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index"`
	Buyer         *User              `gorm:"foreignKey:BuyerID"`
	Billing       types.Billing      `gorm:"embedded;embeddedPrefix:billing_"`
	GrandTotal    decimal.Decimal    `gorm:"column:grand_total;type:numeric(12,2);not null"`
	DerivedStatus enums.OrderStatus  `gorm:"column:derived_status;type:order_status;not null;default:'pending'"`
	ManualStatus  *enums.OrderStatus `gorm:"column:manual_status;type:order_status"`
	Version       int                `gorm:"column:version;not null;default:1"`
	LastUpdatedBy *uuid.UUID         `gorm:"column:last_updated_by;type:uuid"`
	SubOrders     []SubOrder         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	if o.Version == 0 {
		o.Version = 1
	}
	return nil
}

// EffectiveStatus is the admin override when set, otherwise the derived status.
func (o *Order) EffectiveStatus() enums.OrderStatus {
	if o.ManualStatus != nil {
		return *o.ManualStatus
	}
	return o.DerivedStatus
}

// SubOrderByID returns a pointer into SubOrders so callers can mutate in place.
func (o *Order) SubOrderByID(id uuid.UUID) *SubOrder {
	for i := range o.SubOrders {
		if o.SubOrders[i].ID == id {
			return &o.SubOrders[i]
		}
	}
	return nil
}

// SellerIDs lists the sellers of the order in sub-order position order.
func (o *Order) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.SubOrders))
	for _, sub := range o.SubOrders {
		ids = append(ids, sub.SellerID)
	}
	return ids
}

// SubOrderStatuses lists the current status of every sub-order.
func (o *Order) SubOrderStatuses() []enums.SubOrderStatus {
	statuses := make([]enums.SubOrderStatus, 0, len(o.SubOrders))
	for _, sub := range o.SubOrders {
		statuses = append(statuses, sub.Status)
	}
	return statuses
}
