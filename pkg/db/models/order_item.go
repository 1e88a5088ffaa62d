package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// OrderItem is one listing line inside a SubOrder with the price and product
// name captured at checkout.
type OrderItem struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SubOrderID   uuid.UUID        `gorm:"column:sub_order_id;type:uuid;not null;index"`
	Position     int              `gorm:"column:position;not null"`
	ListingID    uuid.UUID        `gorm:"column:listing_id;type:uuid;not null;index"`
	Listing      *Listing         `gorm:"foreignKey:ListingID"`
	ProductName  string           `gorm:"column:product_name;not null"`
	Qty          int              `gorm:"column:qty;not null;check:chk_order_items_qty_positive,qty >= 1"`
	PriceAtOrder decimal.Decimal  `gorm:"column:price_at_order;type:numeric(12,2);not null"`
	ItemStatus   enums.ItemStatus `gorm:"column:item_status;type:item_status;not null;default:'pending'"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotal is qty × priceAtOrder.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Qty)))
}
