package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/internal/repo"
	dbpkg "github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

type repository struct {
	base repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

// Create inserts the order, its sub-orders and their items. Callers run it
// inside the checkout transaction.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	db := r.base.DB(ctx)
	if err := db.Omit("Buyer", "SubOrders").Create(order).Error; err != nil {
		return translateWriteError(err, "create order")
	}
	for i := range order.SubOrders {
		sub := &order.SubOrders[i]
		sub.OrderID = order.ID
		if err := db.Omit("Seller", "Items").Create(sub).Error; err != nil {
			return translateWriteError(err, "create sub-order")
		}
		if len(sub.Items) == 0 {
			continue
		}
		for j := range sub.Items {
			sub.Items[j].SubOrderID = sub.ID
		}
		if err := db.Omit("Listing").Create(&sub.Items).Error; err != nil {
			return translateWriteError(err, "create order items")
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := preloadAggregate(r.base.DB(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, translateReadError(err, id)
	}
	return &order, nil
}

// FindByIDForUpdate locks the order row for the rest of the transaction and
// then loads the whole aggregate.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var locked models.Order
	err := r.base.LockForUpdate(ctx).
		Select("id").
		Where("id = ?", id).
		First(&locked).Error
	if err != nil {
		return nil, translateReadError(err, id)
	}
	return r.FindByID(ctx, id)
}

// List returns whole orders visible under scope, newest first.
func (r *repository) List(ctx context.Context, scope visibility.ListScope) ([]models.Order, error) {
	query := preloadAggregate(r.base.DB(ctx))
	switch {
	case scope.All:
	case scope.BuyerID != nil:
		query = query.Where("buyer_id = ?", *scope.BuyerID)
	case scope.SellerID != nil:
		query = query.Where("id IN (?)",
			r.base.DB(ctx).Model(&models.SubOrder{}).Select("order_id").Where("seller_id = ?", *scope.SellerID))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no listing scope")
	}
	var orders []models.Order
	if err := query.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return orders, nil
}

func (r *repository) UpdateItemStatus(ctx context.Context, subOrderID, itemID uuid.UUID, status enums.ItemStatus) error {
	res := r.base.DB(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND sub_order_id = ?", itemID, subOrderID).
		Updates(map[string]any{
			"item_status": status,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update item status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
			WithDetails(map[string]any{"itemId": itemID})
	}
	return nil
}

func (r *repository) UpdateItemStatusesBySubOrder(ctx context.Context, subOrderID uuid.UUID, status enums.ItemStatus) error {
	err := r.base.DB(ctx).
		Model(&models.OrderItem{}).
		Where("sub_order_id = ?", subOrderID).
		Updates(map[string]any{
			"item_status": status,
			"updated_at":  time.Now().UTC(),
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update sub-order items")
	}
	return nil
}

func (r *repository) UpdateSubOrderStatus(ctx context.Context, orderID, subOrderID uuid.UUID, status enums.SubOrderStatus) error {
	res := r.base.DB(ctx).
		Model(&models.SubOrder{}).
		Where("id = ? AND order_id = ?", subOrderID, orderID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update sub-order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found").
			WithDetails(map[string]any{"subOrderId": subOrderID})
	}
	return nil
}

// UpdateOrderStatus is a compare-and-swap on version. A stale version means
// another writer got there first and surfaces as Conflict.
func (r *repository) UpdateOrderStatus(ctx context.Context, update OrderStatusUpdate) error {
	values := map[string]any{
		"derived_status": update.DerivedStatus,
		"manual_status":  update.ManualStatus,
		"version":        gorm.Expr("version + 1"),
		"updated_at":     time.Now().UTC(),
	}
	if update.UpdatedBy != uuid.Nil {
		values["last_updated_by"] = update.UpdatedBy
	}
	res := r.base.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", update.OrderID, update.ExpectedVersion).
		Updates(values)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently, retry").
			WithDetails(map[string]any{"orderId": update.OrderID, "version": update.ExpectedVersion})
	}
	return nil
}

// Delete removes the aggregate children first so it does not depend on the
// driver enforcing ON DELETE CASCADE.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.base.DB(ctx)
	subOrderIDs := db.Model(&models.SubOrder{}).Select("id").Where("order_id = ?", id)
	if err := db.Where("sub_order_id IN (?)", subOrderIDs).Delete(&models.OrderItem{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order items")
	}
	if err := db.Where("order_id = ?", id).Delete(&models.SubOrder{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete sub-orders")
	}
	res := db.Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "delete order")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"orderId": id})
	}
	return nil
}

func preloadAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Buyer").
		Preload("SubOrders", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Preload("SubOrders.Seller").
		Preload("SubOrders.Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Preload("SubOrders.Items.Listing")
}

func translateReadError(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"orderId": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}

func translateWriteError(err error, msg string) error {
	switch {
	case dbpkg.IsUniqueViolation(err, ""), dbpkg.IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
	case dbpkg.IsCheckViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
	}
}
