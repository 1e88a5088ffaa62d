package metrics

import (
	"strings"

	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
)

// Outcome turns an operation result into a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "internal_error"
	}
	return strings.ToLower(string(typed.Code()))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
