package orders

import "github.com/agrimarket/fulfillment-backend/pkg/enums"

// DeriveSubOrderStatus computes a sub-order's status from its item statuses.
// Branch order matters: an accepted/ready/in-transit item marks the sub-order
// in progress even when another item is already delivered.
func DeriveSubOrderStatus(items []enums.ItemStatus) enums.SubOrderStatus {
	if len(items) == 0 {
		return enums.SubOrderStatusPending
	}

	var delivered, cancelled, pending, moving int
	for _, status := range items {
		switch status {
		case enums.ItemStatusDelivered:
			delivered++
		case enums.ItemStatusCancelled:
			cancelled++
		case enums.ItemStatusPending:
			pending++
		case enums.ItemStatusInTransit, enums.ItemStatusReady, enums.ItemStatusAccepted:
			moving++
		}
	}

	total := len(items)
	switch {
	case delivered == total:
		return enums.SubOrderStatusDelivered
	case cancelled == total:
		return enums.SubOrderStatusCancelled
	case moving > 0:
		return enums.SubOrderStatusInProgress
	case delivered > 0:
		return enums.SubOrderStatusPartiallyDelivered
	case pending == total:
		return enums.SubOrderStatusPending
	default:
		return enums.SubOrderStatusInProgress
	}
}

// DeriveOrderStatus computes the order status from its sub-order statuses.
func DeriveOrderStatus(subOrders []enums.SubOrderStatus) enums.OrderStatus {
	if len(subOrders) == 0 {
		return enums.OrderStatusPending
	}

	var delivered, cancelled, pending int
	for _, status := range subOrders {
		switch status {
		case enums.SubOrderStatusDelivered:
			delivered++
		case enums.SubOrderStatusCancelled:
			cancelled++
		case enums.SubOrderStatusPending:
			pending++
		}
	}

	total := len(subOrders)
	switch {
	case delivered == total:
		return enums.OrderStatusDelivered
	case cancelled == total:
		return enums.OrderStatusCancelled
	case delivered > 0:
		return enums.OrderStatusPartiallyDelivered
	case pending == total:
		return enums.OrderStatusPending
	default:
		return enums.OrderStatusInProgress
	}
}
