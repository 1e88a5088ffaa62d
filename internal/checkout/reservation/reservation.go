package reservation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/internal/listings"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
)

// ListingReservationRequest asks for qty units of a listing on behalf of the
// seller whose sub-order the item belongs to.
type ListingReservationRequest struct {
	SellerID  uuid.UUID
	ListingID uuid.UUID
	Qty       int
}

// ListingReservationResult records what was reserved and the listing state
// captured for the order item.
type ListingReservationResult struct {
	ListingID    uuid.UUID
	ProductName  string
	PriceAtOrder decimal.Decimal
	Qty          int
	Remaining    int
}

// ReserveListings validates and decrements stock for every request in
// order. It must run inside the checkout transaction: the first failure is
// returned as-is and the caller's rollback reverts every earlier decrement.
func ReserveListings(ctx context.Context, tx *gorm.DB, requests []ListingReservationRequest) ([]ListingReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation requires a transaction")
	}
	return Reserve(ctx, listings.NewRepository(tx), requests)
}

// Reserve runs the reservation against an already bound listings repository.
func Reserve(ctx context.Context, repo listings.Repository, requests []ListingReservationRequest) ([]ListingReservationResult, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to reserve")
	}

	results := make([]ListingReservationResult, 0, len(requests))
	for _, req := range requests {
		if req.Qty < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"listingId": req.ListingID, "qty": req.Qty})
		}

		listing, err := repo.FindByID(ctx, req.ListingID)
		if err != nil {
			return nil, err
		}
		if req.SellerID != uuid.Nil && listing.SellerID != req.SellerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing does not belong to seller").
				WithDetails(map[string]any{"listingId": req.ListingID, "sellerId": req.SellerID})
		}
		if req.Qty > listing.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"listingId":   listing.ID,
					"productName": listing.ProductName,
					"available":   listing.Quantity,
					"requested":   req.Qty,
				})
		}

		if err := repo.ReserveQuantity(ctx, listing.ID, req.Qty); err != nil {
			return nil, err
		}

		results = append(results, ListingReservationResult{
			ListingID:    listing.ID,
			ProductName:  listing.ProductName,
			PriceAtOrder: listing.Price,
			Qty:          req.Qty,
			Remaining:    listing.Quantity - req.Qty,
		})
	}
	return results, nil
}
