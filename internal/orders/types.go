package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

// OrderStatusInput sets or clears the admin override. A nil Status clears it.
type OrderStatusInput struct {
	Principal visibility.Principal
	OrderID   uuid.UUID
	Status    *enums.OrderStatus
}

// ItemStatusInput changes one item's status.
type ItemStatusInput struct {
	Principal  visibility.Principal
	OrderID    uuid.UUID
	SubOrderID uuid.UUID
	ItemID     uuid.UUID
	Status     enums.ItemStatus
}

// SubOrderStatusInput sets a sub-order's status directly. When ItemStatus is
// set every item in the sub-order moves to it as well.
type SubOrderStatusInput struct {
	Principal  visibility.Principal
	OrderID    uuid.UUID
	SubOrderID uuid.UUID
	Status     enums.SubOrderStatus
	ItemStatus *enums.ItemStatus
}

// Mutation is the outcome of a state-changing operation. Before and After
// are what the HTTP layer hands to the audit recorder. After is nil when the
// order was deleted.
type Mutation struct {
	Order  *models.Order
	Before models.OrderSnapshot
	After  *models.OrderSnapshot
}

// SellerOrderView is one order pruned down to a single seller's sub-orders.
type SellerOrderView struct {
	OrderID   uuid.UUID
	Status    enums.OrderStatus
	CreatedAt time.Time
	Buyer     types.Billing
	SubOrders []models.SubOrder
}

func sellerView(order models.Order, sellerID uuid.UUID) (SellerOrderView, bool) {
	view := SellerOrderView{
		OrderID:   order.ID,
		Status:    order.EffectiveStatus(),
		CreatedAt: order.CreatedAt,
		Buyer:     order.Billing,
	}
	for _, sub := range order.SubOrders {
		if sub.SellerID == sellerID {
			view.SubOrders = append(view.SubOrders, sub)
		}
	}
	return view, len(view.SubOrders) > 0
}
