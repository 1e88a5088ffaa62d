package helpers

import (
	"github.com/shopspring/decimal"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
)

const moneyScale = 2

// SubOrderSubtotal is Σ qty × priceAtOrder over the items.
func SubOrderSubtotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(moneyScale)
}

// GrandTotal is the sum of the sub-order subtotals.
func GrandTotal(subOrders []models.SubOrder) decimal.Decimal {
	total := decimal.Zero
	for _, sub := range subOrders {
		total = total.Add(sub.Subtotal)
	}
	return total.Round(moneyScale)
}
