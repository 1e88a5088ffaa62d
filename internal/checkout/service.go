package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/internal/checkout/helpers"
	"github.com/agrimarket/fulfillment-backend/internal/checkout/reservation"
	"github.com/agrimarket/fulfillment-backend/internal/events"
	"github.com/agrimarket/fulfillment-backend/internal/orders"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationRunner interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.ListingReservationRequest) ([]reservation.ListingReservationResult, error)
}

type reservationEngine struct{}

func (reservationEngine) Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.ListingReservationRequest) ([]reservation.ListingReservationResult, error) {
	return reservation.ReserveListings(ctx, tx, requests)
}

// Service places orders.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*OrderResult, error)
}

// PlaceOrderInput is a validated checkout request: one sub-order per seller.
type PlaceOrderInput struct {
	Principal visibility.Principal
	Billing   types.Billing
	SubOrders []SubOrderInput
}

type SubOrderInput struct {
	SellerID uuid.UUID
	Delivery types.Delivery
	Items    []ItemInput
}

type ItemInput struct {
	ListingID uuid.UUID
	Qty       int
}

// OrderResult carries the persisted aggregate and the snapshot that was
// broadcast for it.
type OrderResult struct {
	Order    *models.Order
	Snapshot models.OrderSnapshot
}

type ServiceParams struct {
	Tx          txRunner
	Orders      orders.Repository
	Reservation reservationRunner
	Emitter     events.Emitter
	Metrics     *metrics.OrderMetrics
	Logger      *logger.Logger
}

type service struct {
	tx          txRunner
	ordersRepo  orders.Repository
	reservation reservationRunner
	emitter     events.Emitter
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the checkout service. Reservation defaults to the
// listings-backed engine; Metrics and Logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Reservation == nil {
		params.Reservation = reservationEngine{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:          params.Tx,
		ordersRepo:  params.Orders,
		reservation: params.Reservation,
		emitter:     params.Emitter,
		metrics:     params.Metrics,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (result *OrderResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveCheckout(err, time.Since(started)) }()

	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		created *models.Order
		soldOut []string
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)

		requests := reservationRequests(input)
		reservations, err := s.reservation.Reserve(ctx, tx, requests)
		if err != nil {
			return err
		}
		if len(reservations) != len(requests) {
			return pkgerrors.New(pkgerrors.CodeInternal, "reservation result count mismatch")
		}

		soldOut = soldOutListings(reservations)

		order := buildOrder(input, reservations)
		if err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}

		created, err = ordersRepo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	snapshot := created.Snapshot()
	fields := map[string]any{
		"order_id":   created.ID.String(),
		"sub_orders": len(created.SubOrders),
	}
	if len(soldOut) > 0 {
		fields["sold_out_listings"] = soldOut
	}
	ctx = s.logg.WithFields(ctx, fields)
	s.logg.Info(ctx, "order placed")
	s.emitter.Emit(ctx, events.OrderPlaced(snapshot, events.ActorFromPrincipal(input.Principal), s.now())...)

	return &OrderResult{Order: created, Snapshot: snapshot}, nil
}

// soldOutListings names the listings this checkout drained to zero.
func soldOutListings(reservations []reservation.ListingReservationResult) []string {
	var ids []string
	for _, r := range reservations {
		if r.Remaining == 0 {
			ids = append(ids, r.ListingID.String())
		}
	}
	return ids
}

func validateInput(input PlaceOrderInput) error {
	if err := visibility.RequireBuyer(input.Principal); err != nil {
		return err
	}
	if err := helpers.ValidateBilling(input.Billing); err != nil {
		return err
	}
	sellers := make([]uuid.UUID, 0, len(input.SubOrders))
	for _, sub := range input.SubOrders {
		sellers = append(sellers, sub.SellerID)
	}
	if err := helpers.ValidateSellers(sellers); err != nil {
		return err
	}
	for i, sub := range input.SubOrders {
		if err := helpers.ValidateDelivery(i, sub.Delivery); err != nil {
			return err
		}
		if err := helpers.ValidateItemCount(i, len(sub.Items)); err != nil {
			return err
		}
	}
	return nil
}

// reservationRequests flattens the items in request order: sub-order by
// sub-order, item by item.
func reservationRequests(input PlaceOrderInput) []reservation.ListingReservationRequest {
	var requests []reservation.ListingReservationRequest
	for _, sub := range input.SubOrders {
		for _, item := range sub.Items {
			requests = append(requests, reservation.ListingReservationRequest{
				SellerID:  sub.SellerID,
				ListingID: item.ListingID,
				Qty:       item.Qty,
			})
		}
	}
	return requests
}

// buildOrder assembles the aggregate from the reservations, which are in the
// same order reservationRequests produced them.
func buildOrder(input PlaceOrderInput, reservations []reservation.ListingReservationResult) *models.Order {
	order := &models.Order{
		BuyerID:   input.Principal.UserID,
		Billing:   input.Billing,
		SubOrders: make([]models.SubOrder, 0, len(input.SubOrders)),
	}

	next := 0
	for i, req := range input.SubOrders {
		sub := models.SubOrder{
			Position: i,
			SellerID: req.SellerID,
			Delivery: req.Delivery,
			Items:    make([]models.OrderItem, 0, len(req.Items)),
		}
		for j := range req.Items {
			res := reservations[next]
			next++
			sub.Items = append(sub.Items, models.OrderItem{
				Position:     j,
				ListingID:    res.ListingID,
				ProductName:  res.ProductName,
				Qty:          res.Qty,
				PriceAtOrder: res.PriceAtOrder,
				ItemStatus:   enums.ItemStatusPending,
			})
		}
		sub.Subtotal = helpers.SubOrderSubtotal(sub.Items)
		sub.Status = orders.DeriveSubOrderStatus(sub.ItemStatuses())
		order.SubOrders = append(order.SubOrders, sub)
	}

	order.GrandTotal = helpers.GrandTotal(order.SubOrders)
	order.DerivedStatus = orders.DeriveOrderStatus(order.SubOrderStatuses())
	return order
}
