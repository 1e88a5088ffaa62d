package enums

import "fmt"

// ItemStatus is the leaf fulfillment state of a single order item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusAccepted  ItemStatus = "accepted"
	ItemStatusRejected  ItemStatus = "rejected"
	ItemStatusReady     ItemStatus = "ready"
	ItemStatusInTransit ItemStatus = "in_transit"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusCancelled ItemStatus = "cancelled"
)

var validItemStatuses = []ItemStatus{
	ItemStatusPending,
	ItemStatusAccepted,
	ItemStatusRejected,
	ItemStatusReady,
	ItemStatusInTransit,
	ItemStatusDelivered,
	ItemStatusCancelled,
}

// String implements fmt.Stringer.
func (s ItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ItemStatus.
func (s ItemStatus) IsValid() bool {
	for _, candidate := range validItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	for _, candidate := range validItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item status %q", value)
}
