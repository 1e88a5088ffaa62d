package helpers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateBilling checks the contact snapshot captured with the order.
func ValidateBilling(billing types.Billing) error {
	if err := validate.Struct(billing); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fieldErr := range errs {
				details["billing."+fieldErr.Field()] = fmt.Sprintf("failed %s", fieldErr.Tag())
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid billing details").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing details")
	}
	return nil
}

// ValidateSellers requires at least one seller and at most one sub-order per
// seller.
func ValidateSellers(sellers []uuid.UUID) error {
	if len(sellers) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one sub-order is required")
	}
	seen := make(map[uuid.UUID]int, len(sellers))
	for i, seller := range sellers {
		if seller == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller is required").
				WithDetails(map[string]any{"subOrder": i})
		}
		if first, ok := seen[seller]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate seller in checkout").
				WithDetails(map[string]any{"sellerId": seller, "subOrders": []int{first, i}})
		}
		seen[seller] = i
	}
	return nil
}

// ValidateDelivery requires a delivery variant on every sub-order.
func ValidateDelivery(index int, delivery types.Delivery) error {
	if delivery.Details == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery details are required").
			WithDetails(map[string]any{"subOrder": index})
	}
	return nil
}

// ValidateItemCount rejects sub-orders without items.
func ValidateItemCount(index, count int) error {
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sub-order contains no items").
			WithDetails(map[string]any{"subOrder": index})
	}
	return nil
}
