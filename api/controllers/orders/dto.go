package orders

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/api/validators"
	"github.com/agrimarket/fulfillment-backend/internal/checkout"
	internalorders "github.com/agrimarket/fulfillment-backend/internal/orders"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/types"
)

type createOrderRequest struct {
	Billing   types.Billing     `json:"billing"`
	SubOrders []subOrderRequest `json:"subOrders" validate:"required,min=1,dive"`
}

type subOrderRequest struct {
	Seller         uuid.UUID                `json:"seller" validate:"required"`
	DeliveryMethod string                   `json:"deliveryMethod" validate:"required"`
	PickupInfo     *types.PickupDetails     `json:"pickupInfo,omitempty"`
	ThirdPartyInfo *types.ThirdPartyDetails `json:"thirdPartyInfo,omitempty"`
	Items          []itemRequest            `json:"items" validate:"required,min=1,dive"`
}

type itemRequest struct {
	Listing uuid.UUID `json:"listing" validate:"required"`
	Qty     int       `json:"qty" validate:"gte=1"`
}

func (req createOrderRequest) toInput() (checkout.PlaceOrderInput, error) {
	input := checkout.PlaceOrderInput{
		Billing:   cleanBilling(req.Billing),
		SubOrders: make([]checkout.SubOrderInput, 0, len(req.SubOrders)),
	}
	details := map[string]string{}
	for i, sub := range req.SubOrders {
		delivery, err := types.NewDelivery(sub.DeliveryMethod, sub.PickupInfo, sub.ThirdPartyInfo)
		if err != nil {
			details[subOrderField(i, "deliveryMethod")] = err.Error()
			continue
		}
		items := make([]checkout.ItemInput, 0, len(sub.Items))
		for _, item := range sub.Items {
			items = append(items, checkout.ItemInput{ListingID: item.Listing, Qty: item.Qty})
		}
		input.SubOrders = append(input.SubOrders, checkout.SubOrderInput{
			SellerID: sub.Seller,
			Delivery: delivery,
			Items:    items,
		})
	}
	if len(details) > 0 {
		return checkout.PlaceOrderInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery").WithDetails(details)
	}
	return input, nil
}

func cleanBilling(b types.Billing) types.Billing {
	b.Name = validators.SanitizeString(b.Name, 200)
	b.Email = validators.SanitizeString(b.Email, 0)
	b.Phone = validators.SanitizeString(b.Phone, 40)
	b.Address = validators.SanitizeString(b.Address, 500)
	for _, opt := range []*string{b.City, b.Country} {
		if opt != nil {
			*opt = validators.SanitizeString(*opt, 120)
		}
	}
	return b
}

func subOrderField(index int, field string) string {
	return "subOrders[" + strconv.Itoa(index) + "]." + field
}

type orderStatusRequest struct {
	Status types.NullableString `json:"status"`
}

type itemStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type subOrderStatusRequest struct {
	Status     string  `json:"status" validate:"required"`
	ItemStatus *string `json:"itemStatus,omitempty"`
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone,omitempty"`
}

type listingResponse struct {
	ID          uuid.UUID `json:"id"`
	SellerID    uuid.UUID `json:"sellerId"`
	ProductName string    `json:"productName"`
	Price       string    `json:"price"`
}

type itemResponse struct {
	ID           uuid.UUID        `json:"id"`
	Position     int              `json:"position"`
	ListingID    uuid.UUID        `json:"listingId"`
	Listing      *listingResponse `json:"listing,omitempty"`
	ProductName  string           `json:"productName"`
	Qty          int              `json:"qty"`
	PriceAtOrder string           `json:"priceAtOrder"`
	LineTotal    string           `json:"lineTotal"`
	ItemStatus   enums.ItemStatus `json:"itemStatus"`
}

type subOrderResponse struct {
	ID             uuid.UUID                `json:"id"`
	Position       int                      `json:"position"`
	SellerID       uuid.UUID                `json:"sellerId"`
	Seller         *userResponse            `json:"seller,omitempty"`
	DeliveryMethod enums.DeliveryMethod     `json:"deliveryMethod"`
	PickupInfo     *types.PickupDetails     `json:"pickupInfo,omitempty"`
	ThirdPartyInfo *types.ThirdPartyDetails `json:"thirdPartyInfo,omitempty"`
	Subtotal       string                   `json:"subtotal"`
	Status         enums.SubOrderStatus     `json:"status"`
	Items          []itemResponse           `json:"items"`
}

type orderResponse struct {
	ID            uuid.UUID          `json:"id"`
	BuyerID       uuid.UUID          `json:"buyerId"`
	Buyer         *userResponse      `json:"buyer,omitempty"`
	Billing       types.Billing      `json:"billing"`
	GrandTotal    string             `json:"grandTotal"`
	Status        enums.OrderStatus  `json:"status"`
	DerivedStatus enums.OrderStatus  `json:"derivedStatus"`
	ManualStatus  *enums.OrderStatus `json:"manualStatus,omitempty"`
	Version       int                `json:"version"`
	LastUpdatedBy *uuid.UUID         `json:"lastUpdatedBy,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	SubOrders     []subOrderResponse `json:"subOrders"`
}

type sellerOrderResponse struct {
	OrderID   uuid.UUID          `json:"orderId"`
	Status    enums.OrderStatus  `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	Buyer     types.Billing      `json:"buyer"`
	SubOrders []subOrderResponse `json:"subOrders"`
}

func newUserResponse(user *models.User) *userResponse {
	if user == nil {
		return nil
	}
	return &userResponse{ID: user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone}
}

func newItemResponse(item models.OrderItem) itemResponse {
	resp := itemResponse{
		ID:           item.ID,
		Position:     item.Position,
		ListingID:    item.ListingID,
		ProductName:  item.ProductName,
		Qty:          item.Qty,
		PriceAtOrder: item.PriceAtOrder.StringFixed(2),
		LineTotal:    item.LineTotal().StringFixed(2),
		ItemStatus:   item.ItemStatus,
	}
	if item.Listing != nil {
		resp.Listing = &listingResponse{
			ID:          item.Listing.ID,
			SellerID:    item.Listing.SellerID,
			ProductName: item.Listing.ProductName,
			Price:       item.Listing.Price.StringFixed(2),
		}
	}
	return resp
}

func newSubOrderResponse(sub models.SubOrder) subOrderResponse {
	resp := subOrderResponse{
		ID:             sub.ID,
		Position:       sub.Position,
		SellerID:       sub.SellerID,
		Seller:         newUserResponse(sub.Seller),
		DeliveryMethod: sub.Delivery.Method(),
		Subtotal:       sub.Subtotal.StringFixed(2),
		Status:         sub.Status,
		Items:          make([]itemResponse, 0, len(sub.Items)),
	}
	if pickup, ok := sub.Delivery.Pickup(); ok {
		resp.PickupInfo = &pickup
	}
	if carrier, ok := sub.Delivery.ThirdParty(); ok {
		resp.ThirdPartyInfo = &carrier
	}
	for _, item := range sub.Items {
		resp.Items = append(resp.Items, newItemResponse(item))
	}
	return resp
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		BuyerID:       order.BuyerID,
		Buyer:         newUserResponse(order.Buyer),
		Billing:       order.Billing,
		GrandTotal:    order.GrandTotal.StringFixed(2),
		Status:        order.EffectiveStatus(),
		DerivedStatus: order.DerivedStatus,
		ManualStatus:  order.ManualStatus,
		Version:       order.Version,
		LastUpdatedBy: order.LastUpdatedBy,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		SubOrders:     make([]subOrderResponse, 0, len(order.SubOrders)),
	}
	for _, sub := range order.SubOrders {
		resp.SubOrders = append(resp.SubOrders, newSubOrderResponse(sub))
	}
	return resp
}

func newOrderListResponse(list []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for i := range list {
		out = append(out, newOrderResponse(&list[i]))
	}
	return out
}

func newSellerOrderResponses(views []internalorders.SellerOrderView) []sellerOrderResponse {
	out := make([]sellerOrderResponse, 0, len(views))
	for _, view := range views {
		resp := sellerOrderResponse{
			OrderID:   view.OrderID,
			Status:    view.Status,
			CreatedAt: view.CreatedAt,
			Buyer:     view.Buyer,
			SubOrders: make([]subOrderResponse, 0, len(view.SubOrders)),
		}
		for _, sub := range view.SubOrders {
			resp.SubOrders = append(resp.SubOrders, newSubOrderResponse(sub))
		}
		out = append(out, resp)
	}
	return out
}
