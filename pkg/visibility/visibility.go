package visibility

import (
	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
)

// Principal is the authenticated caller as supplied by the identity layer.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.Role
	IsAdmin bool
}

// Admin reports whether the principal has unrestricted access.
func (p Principal) Admin() bool {
	return p.IsAdmin || p.Role == enums.RoleAdmin
}

// ListScope narrows an order listing. Exactly one of All, BuyerID or
// SellerID applies.
type ListScope struct {
	All      bool
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
}

// Scope returns the listing scope for the principal.
func Scope(p Principal) (ListScope, error) {
	if p.UserID == uuid.Nil {
		return ListScope{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing")
	}
	if p.Admin() {
		return ListScope{All: true}, nil
	}
	id := p.UserID
	switch p.Role {
	case enums.RoleBuyer:
		return ListScope{BuyerID: &id}, nil
	case enums.RoleSeller:
		return ListScope{SellerID: &id}, nil
	default:
		return ListScope{}, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}
}

// CanViewOrder allows admins, the order's buyer, and any seller owning at
// least one of its sub-orders.
func CanViewOrder(p Principal, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if p.Admin() {
		return nil
	}
	switch p.Role {
	case enums.RoleBuyer:
		if order.BuyerID == p.UserID {
			return nil
		}
	case enums.RoleSeller:
		for _, sub := range order.SubOrders {
			if sub.SellerID == p.UserID {
				return nil
			}
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order is not visible to caller")
}

// CanMutateSubOrder allows admins and the seller who owns the sub-order.
func CanMutateSubOrder(p Principal, sub *models.SubOrder) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
	}
	if p.Admin() {
		return nil
	}
	if p.Role == enums.RoleSeller && sub.SellerID == p.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "sub-order belongs to another seller")
}

// RequireAdmin guards order-level overrides and deletion.
func RequireAdmin(p Principal) error {
	if p.Admin() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
}

// RequireSellerScope lets sellers read their own projection; admins may read any.
func RequireSellerScope(p Principal, sellerID uuid.UUID) error {
	if p.Admin() {
		return nil
	}
	if p.Role == enums.RoleSeller && p.UserID == sellerID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "seller scope mismatch")
}

// RequireBuyer guards checkout. Admins may place orders on their own behalf.
func RequireBuyer(p Principal) error {
	if p.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing")
	}
	if p.Role == enums.RoleBuyer || p.Admin() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can place orders")
}
