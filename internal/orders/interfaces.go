package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

// Repository defines persistence operations for the order aggregate tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, scope visibility.ListScope) ([]models.Order, error)
	UpdateItemStatus(ctx context.Context, subOrderID, itemID uuid.UUID, status enums.ItemStatus) error
	UpdateItemStatusesBySubOrder(ctx context.Context, subOrderID uuid.UUID, status enums.ItemStatus) error
	UpdateSubOrderStatus(ctx context.Context, orderID, subOrderID uuid.UUID, status enums.SubOrderStatus) error
	UpdateOrderStatus(ctx context.Context, update OrderStatusUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// OrderStatusUpdate rewrites the order-level status columns and bumps the
// version when ExpectedVersion still matches.
type OrderStatusUpdate struct {
	OrderID         uuid.UUID
	ExpectedVersion int
	DerivedStatus   enums.OrderStatus
	ManualStatus    *enums.OrderStatus
	UpdatedBy       uuid.UUID
}
