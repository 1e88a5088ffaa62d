package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/api/middleware"
	"github.com/agrimarket/fulfillment-backend/api/responses"
	"github.com/agrimarket/fulfillment-backend/api/validators"
	"github.com/agrimarket/fulfillment-backend/internal/audit"
	"github.com/agrimarket/fulfillment-backend/internal/checkout"
	internalorders "github.com/agrimarket/fulfillment-backend/internal/orders"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
)

const (
	operationCreate               = "create"
	operationUpdateOrderStatus    = "update_order_status"
	operationUpdateItemStatus     = "update_item_status"
	operationUpdateSubOrderStatus = "update_sub_order_status"
	operationDelete               = "delete"
)

// handlerFunc writes its own success response; any returned error is
// rendered as the error envelope.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func handle(logg *logger.Logger, ready bool, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error = pkgerrors.New(pkgerrors.CodeDependency, "order service unavailable")
		if ready {
			err = fn(w, r)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// pathIDs parses the named chi URL params as UUIDs, in order.
func pathIDs(r *http.Request, keys ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(keys))
	for i, key := range keys {
		id, err := validators.ParseUUIDParam(r, key)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func invalidStatus(err error, field, value, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(map[string]string{field: value})
}

// Create places an order for the authenticated buyer.
func Create(svc checkout.Service, recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		input, err := body.toInput()
		if err != nil {
			return err
		}
		input.Principal = middleware.PrincipalFromContext(r.Context())

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			return err
		}
		if recorder != nil {
			after := result.Snapshot
			recorder.Record(r.Context(), audit.Entry{
				Operation: operationCreate,
				Actor:     input.Principal,
				OrderID:   result.Order.ID,
				After:     &after,
				At:        time.Now().UTC(),
			})
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(result.Order))
		return nil
	})
}

// List returns every order visible to the caller, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		list, err := svc.List(r.Context(), middleware.PrincipalFromContext(r.Context()))
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, newOrderListResponse(list))
		return nil
	})
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "orderId")
		if err != nil {
			return err
		}
		order, err := svc.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), ids[0])
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, newOrderResponse(order))
		return nil
	})
}

// UpdateOrderStatus sets or clears the admin override. The status key is
// mandatory; an explicit null clears the override.
func UpdateOrderStatus(svc internalorders.Service, recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "orderId")
		if err != nil {
			return err
		}
		var body orderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		if !body.Status.Set {
			return pkgerrors.New(pkgerrors.CodeValidation, "status is required, send null to clear the override").
				WithDetails(map[string]string{"status": "is required"})
		}

		var override *enums.OrderStatus
		if raw := body.Status.Value; raw != nil {
			parsed, err := enums.ParseOrderStatus(*raw)
			if err != nil {
				return invalidStatus(err, "status", *raw, "invalid order status")
			}
			override = &parsed
		}

		mutation, err := svc.UpdateOrderStatus(r.Context(), internalorders.OrderStatusInput{
			Principal: middleware.PrincipalFromContext(r.Context()),
			OrderID:   ids[0],
			Status:    override,
		})
		if err != nil {
			return err
		}
		writeMutation(w, r, recorder, operationUpdateOrderStatus, mutation)
		return nil
	})
}

// UpdateItemStatus changes one item and recomputes its sub-order and order.
func UpdateItemStatus(svc internalorders.Service, recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "orderId", "subOrderId", "itemId")
		if err != nil {
			return err
		}
		var body itemStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		status, err := enums.ParseItemStatus(body.Status)
		if err != nil {
			return invalidStatus(err, "status", body.Status, "invalid item status")
		}

		mutation, err := svc.UpdateItemStatus(r.Context(), internalorders.ItemStatusInput{
			Principal:  middleware.PrincipalFromContext(r.Context()),
			OrderID:    ids[0],
			SubOrderID: ids[1],
			ItemID:     ids[2],
			Status:     status,
		})
		if err != nil {
			return err
		}
		writeMutation(w, r, recorder, operationUpdateItemStatus, mutation)
		return nil
	})
}

// UpdateSubOrderStatus sets a sub-order's status, optionally moving all of
// its items to itemStatus at the same time.
func UpdateSubOrderStatus(svc internalorders.Service, recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "orderId", "subOrderId")
		if err != nil {
			return err
		}
		var body subOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		status, err := enums.ParseSubOrderStatus(body.Status)
		if err != nil {
			return invalidStatus(err, "status", body.Status, "invalid sub-order status")
		}
		var itemStatus *enums.ItemStatus
		if raw := body.ItemStatus; raw != nil {
			parsed, err := enums.ParseItemStatus(*raw)
			if err != nil {
				return invalidStatus(err, "itemStatus", *raw, "invalid item status")
			}
			itemStatus = &parsed
		}

		mutation, err := svc.UpdateSubOrderStatus(r.Context(), internalorders.SubOrderStatusInput{
			Principal:  middleware.PrincipalFromContext(r.Context()),
			OrderID:    ids[0],
			SubOrderID: ids[1],
			Status:     status,
			ItemStatus: itemStatus,
		})
		if err != nil {
			return err
		}
		writeMutation(w, r, recorder, operationUpdateSubOrderStatus, mutation)
		return nil
	})
}

// Delete hard-deletes an order. Admin only.
func Delete(svc internalorders.Service, recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "orderId")
		if err != nil {
			return err
		}
		mutation, err := svc.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), ids[0])
		if err != nil {
			return err
		}
		recordMutation(r, recorder, operationDelete, mutation)
		responses.WriteNoContent(w)
		return nil
	})
}

// SellerSubOrders returns the seller's pruned view of every order it takes
// part in.
func SellerSubOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc != nil, func(w http.ResponseWriter, r *http.Request) error {
		ids, err := pathIDs(r, "sellerId")
		if err != nil {
			return err
		}
		views, err := svc.ListSellerSubOrders(r.Context(), middleware.PrincipalFromContext(r.Context()), ids[0])
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, newSellerOrderResponses(views))
		return nil
	})
}

func writeMutation(w http.ResponseWriter, r *http.Request, recorder audit.Recorder, operation string, mutation *internalorders.Mutation) {
	recordMutation(r, recorder, operation, mutation)
	responses.WriteSuccess(w, newOrderResponse(mutation.Order))
}

func recordMutation(r *http.Request, recorder audit.Recorder, operation string, mutation *internalorders.Mutation) {
	if recorder == nil || mutation == nil {
		return
	}
	before := mutation.Before
	recorder.Record(r.Context(), audit.Entry{
		Operation: operation,
		Actor:     middleware.PrincipalFromContext(r.Context()),
		OrderID:   before.OrderID,
		Before:    &before,
		After:     mutation.After,
		At:        time.Now().UTC(),
	})
}
