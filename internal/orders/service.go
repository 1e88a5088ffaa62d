package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agrimarket/fulfillment-backend/internal/events"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

const (
	opUpdateOrderStatus    = "update_order_status"
	opUpdateItemStatus     = "update_item_status"
	opUpdateSubOrderStatus = "update_sub_order_status"
	opDelete               = "delete"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes reads and status mutations on existing orders.
type Service interface {
	Get(ctx context.Context, principal visibility.Principal, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, principal visibility.Principal) ([]models.Order, error)
	ListSellerSubOrders(ctx context.Context, principal visibility.Principal, sellerID uuid.UUID) ([]SellerOrderView, error)
	UpdateOrderStatus(ctx context.Context, input OrderStatusInput) (*Mutation, error)
	UpdateItemStatus(ctx context.Context, input ItemStatusInput) (*Mutation, error)
	UpdateSubOrderStatus(ctx context.Context, input SubOrderStatusInput) (*Mutation, error)
	Delete(ctx context.Context, principal visibility.Principal, orderID uuid.UUID) (*Mutation, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	emitter events.Emitter
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService wires the order service. metrics may be nil.
func NewService(repo Repository, tx txRunner, emitter events.Emitter, m *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		emitter: emitter,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, principal visibility.Principal, orderID uuid.UUID) (*models.Order, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := visibility.CanViewOrder(principal, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, principal visibility.Principal) ([]models.Order, error) {
	scope, err := visibility.Scope(principal)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, scope)
}

func (s *service) ListSellerSubOrders(ctx context.Context, principal visibility.Principal, sellerID uuid.UUID) ([]SellerOrderView, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing")
	}
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if err := visibility.RequireSellerScope(principal, sellerID); err != nil {
		return nil, err
	}
	list, err := s.repo.List(ctx, visibility.ListScope{SellerID: &sellerID})
	if err != nil {
		return nil, err
	}
	views := make([]SellerOrderView, 0, len(list))
	for _, order := range list {
		if view, ok := sellerView(order, sellerID); ok {
			views = append(views, view)
		}
	}
	return views, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, input OrderStatusInput) (mut *Mutation, err error) {
	defer func() { s.metrics.ObserveMutation(opUpdateOrderStatus, err) }()

	if err := visibility.RequireAdmin(input.Principal); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, invalidStatus("status", string(*input.Status))
	}

	return s.mutate(ctx, input.Principal, input.OrderID, uuid.Nil, func(_ Repository, order *models.Order) error {
		if input.Status == nil {
			order.ManualStatus = nil
			return nil
		}
		manual := *input.Status
		order.ManualStatus = &manual
		return nil
	})
}

func (s *service) UpdateItemStatus(ctx context.Context, input ItemStatusInput) (mut *Mutation, err error) {
	defer func() { s.metrics.ObserveMutation(opUpdateItemStatus, err) }()

	if !input.Status.IsValid() {
		return nil, invalidStatus("itemStatus", string(input.Status))
	}

	return s.mutate(ctx, input.Principal, input.OrderID, input.SubOrderID, func(repo Repository, order *models.Order) error {
		sub, err := mutableSubOrder(input.Principal, order, input.SubOrderID)
		if err != nil {
			return err
		}
		item := sub.ItemByID(input.ItemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
				WithDetails(map[string]any{"itemId": input.ItemID})
		}

		item.ItemStatus = input.Status
		sub.Status = DeriveSubOrderStatus(sub.ItemStatuses())

		if err := repo.UpdateItemStatus(ctx, sub.ID, item.ID, item.ItemStatus); err != nil {
			return err
		}
		return repo.UpdateSubOrderStatus(ctx, order.ID, sub.ID, sub.Status)
	})
}

func (s *service) UpdateSubOrderStatus(ctx context.Context, input SubOrderStatusInput) (mut *Mutation, err error) {
	defer func() { s.metrics.ObserveMutation(opUpdateSubOrderStatus, err) }()

	if !input.Status.IsValid() {
		return nil, invalidStatus("status", string(input.Status))
	}
	if input.ItemStatus != nil && !input.ItemStatus.IsValid() {
		return nil, invalidStatus("itemStatus", string(*input.ItemStatus))
	}

	return s.mutate(ctx, input.Principal, input.OrderID, input.SubOrderID, func(repo Repository, order *models.Order) error {
		sub, err := mutableSubOrder(input.Principal, order, input.SubOrderID)
		if err != nil {
			return err
		}

		if input.ItemStatus != nil {
			for i := range sub.Items {
				sub.Items[i].ItemStatus = *input.ItemStatus
			}
			if err := repo.UpdateItemStatusesBySubOrder(ctx, sub.ID, *input.ItemStatus); err != nil {
				return err
			}
		}

		sub.Status = input.Status
		return repo.UpdateSubOrderStatus(ctx, order.ID, sub.ID, sub.Status)
	})
}

func (s *service) Delete(ctx context.Context, principal visibility.Principal, orderID uuid.UUID) (mut *Mutation, err error) {
	defer func() { s.metrics.ObserveMutation(opDelete, err) }()

	if err := visibility.RequireAdmin(principal); err != nil {
		return nil, err
	}

	var result Mutation
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		result.Order = order
		result.Before = order.Snapshot()
		return repo.Delete(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// mutate runs apply against the locked aggregate, re-derives the order
// status, bumps the version and reloads the order. Events go out only after
// the transaction commits; target names the sub-order apply touched, if any.
func (s *service) mutate(ctx context.Context, principal visibility.Principal, orderID, target uuid.UUID, apply func(Repository, *models.Order) error) (*Mutation, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing")
	}

	var result Mutation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := visibility.CanViewOrder(principal, order); err != nil {
			return err
		}
		result.Before = order.Snapshot()

		if err := apply(repo, order); err != nil {
			return err
		}

		order.DerivedStatus = DeriveOrderStatus(order.SubOrderStatuses())
		if err := repo.UpdateOrderStatus(ctx, OrderStatusUpdate{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			DerivedStatus:   order.DerivedStatus,
			ManualStatus:    order.ManualStatus,
			UpdatedBy:       principal.UserID,
		}); err != nil {
			return err
		}

		updated, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		after := updated.Snapshot()
		result.Order = updated
		result.After = &after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.StatusChanges(result.Before, *result.After, target, events.ActorFromPrincipal(principal), s.now())...)
	return &result, nil
}

func mutableSubOrder(principal visibility.Principal, order *models.Order, subOrderID uuid.UUID) (*models.SubOrder, error) {
	sub := order.SubOrderByID(subOrderID)
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found").
			WithDetails(map[string]any{"subOrderId": subOrderID})
	}
	if err := visibility.CanMutateSubOrder(principal, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func invalidStatus(field, value string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid status value").
		WithDetails(map[string]any{"field": field, "value": value})
}
