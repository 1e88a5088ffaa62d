package enums

import (
	"fmt"
	"strings"
)

// DeliveryMethod selects how a seller hands a sub-order to the buyer.
type DeliveryMethod string

const (
	DeliveryMethodPickup     DeliveryMethod = "pickup"
	DeliveryMethodThirdParty DeliveryMethod = "third_party"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryMethodPickup,
	DeliveryMethodThirdParty,
}

func (m DeliveryMethod) String() string {
	return string(m)
}

func (m DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseDeliveryMethod accepts the canonical values plus the camelCase
// "thirdParty" spelling used by storefront clients.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	normalized := strings.TrimSpace(value)
	if strings.EqualFold(normalized, "thirdParty") {
		return DeliveryMethodThirdParty, nil
	}
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == strings.ToLower(normalized) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
