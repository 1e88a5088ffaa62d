package enums

import "fmt"

// SubOrderStatus tracks one seller's fulfillment unit. It shares the item
// vocabulary and adds the two aggregate values produced by derivation.
type SubOrderStatus string

const (
	SubOrderStatusPending            SubOrderStatus = "pending"
	SubOrderStatusAccepted           SubOrderStatus = "accepted"
	SubOrderStatusRejected           SubOrderStatus = "rejected"
	SubOrderStatusReady              SubOrderStatus = "ready"
	SubOrderStatusInTransit          SubOrderStatus = "in_transit"
	SubOrderStatusDelivered          SubOrderStatus = "delivered"
	SubOrderStatusCancelled          SubOrderStatus = "cancelled"
	SubOrderStatusInProgress         SubOrderStatus = "in_progress"
	SubOrderStatusPartiallyDelivered SubOrderStatus = "partially_delivered"
)

var validSubOrderStatuses = []SubOrderStatus{
	SubOrderStatusPending,
	SubOrderStatusAccepted,
	SubOrderStatusRejected,
	SubOrderStatusReady,
	SubOrderStatusInTransit,
	SubOrderStatusDelivered,
	SubOrderStatusCancelled,
	SubOrderStatusInProgress,
	SubOrderStatusPartiallyDelivered,
}

func (s SubOrderStatus) String() string {
	return string(s)
}

func (s SubOrderStatus) IsValid() bool {
	for _, candidate := range validSubOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseSubOrderStatus(value string) (SubOrderStatus, error) {
	for _, candidate := range validSubOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sub-order status %q", value)
}
