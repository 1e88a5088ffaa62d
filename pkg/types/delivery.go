package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// DeliveryDetails is the sealed set of delivery variants a sub-order can carry.
type DeliveryDetails interface {
	Method() enums.DeliveryMethod
	validate() error
}

// PickupDetails describes a buyer collecting goods from the seller.
type PickupDetails struct {
	Location     string     `json:"location"`
	ContactName  *string    `json:"contactName,omitempty"`
	ContactPhone *string    `json:"contactPhone,omitempty"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

func (PickupDetails) Method() enums.DeliveryMethod { return enums.DeliveryMethodPickup }

func (p PickupDetails) validate() error {
	if strings.TrimSpace(p.Location) == "" {
		return errors.New("pickup location is required")
	}
	return nil
}

// ThirdPartyDetails describes a carrier handling the shipment.
type ThirdPartyDetails struct {
	Provider       string  `json:"provider"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Address        *string `json:"address,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

func (ThirdPartyDetails) Method() enums.DeliveryMethod { return enums.DeliveryMethodThirdParty }

func (t ThirdPartyDetails) validate() error {
	if strings.TrimSpace(t.Provider) == "" {
		return errors.New("third-party provider is required")
	}
	return nil
}

// Delivery wraps exactly one DeliveryDetails variant. It is stored as jsonb
// via gorm's json serializer and exposed with the same shape over HTTP.
type Delivery struct {
	Details DeliveryDetails
}

// NewDelivery builds a Delivery from the request shape where the method names
// the variant and only the matching info object may be present.
func NewDelivery(method string, pickup *PickupDetails, thirdParty *ThirdPartyDetails) (Delivery, error) {
	parsed, err := enums.ParseDeliveryMethod(method)
	if err != nil {
		return Delivery{}, err
	}

	var details DeliveryDetails
	switch parsed {
	case enums.DeliveryMethodPickup:
		if thirdParty != nil {
			return Delivery{}, errors.New("thirdPartyInfo is not allowed for pickup delivery")
		}
		if pickup == nil {
			return Delivery{}, errors.New("pickupInfo is required for pickup delivery")
		}
		details = *pickup
	case enums.DeliveryMethodThirdParty:
		if pickup != nil {
			return Delivery{}, errors.New("pickupInfo is not allowed for third-party delivery")
		}
		if thirdParty == nil {
			return Delivery{}, errors.New("thirdPartyInfo is required for third-party delivery")
		}
		details = *thirdParty
	}

	if err := details.validate(); err != nil {
		return Delivery{}, err
	}
	return Delivery{Details: details}, nil
}

// Method returns the variant's method, or empty when unset.
func (d Delivery) Method() enums.DeliveryMethod {
	if d.Details == nil {
		return ""
	}
	return d.Details.Method()
}

// Pickup returns the pickup variant when present.
func (d Delivery) Pickup() (PickupDetails, bool) {
	p, ok := d.Details.(PickupDetails)
	return p, ok
}

// ThirdParty returns the third-party variant when present.
func (d Delivery) ThirdParty() (ThirdPartyDetails, bool) {
	t, ok := d.Details.(ThirdPartyDetails)
	return t, ok
}

type deliveryWire struct {
	Method     enums.DeliveryMethod `json:"method"`
	Pickup     *PickupDetails       `json:"pickup,omitempty"`
	ThirdParty *ThirdPartyDetails   `json:"thirdParty,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d Delivery) MarshalJSON() ([]byte, error) {
	var wire deliveryWire
	switch v := d.Details.(type) {
	case PickupDetails:
		wire.Method = v.Method()
		wire.Pickup = &v
	case ThirdPartyDetails:
		wire.Method = v.Method()
		wire.ThirdParty = &v
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("delivery: unsupported variant %T", v)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delivery) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		d.Details = nil
		return nil
	}

	var wire struct {
		Method     string             `json:"method"`
		Pickup     *PickupDetails     `json:"pickup"`
		ThirdParty *ThirdPartyDetails `json:"thirdParty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}

	parsed, err := NewDelivery(wire.Method, wire.Pickup, wire.ThirdParty)
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	*d = parsed
	return nil
}
