package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// WithPrincipal injects the authenticated caller into the context.
func WithPrincipal(ctx context.Context, principal visibility.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// PrincipalFromContext returns the caller seeded by Auth. The zero Principal
// is returned for unauthenticated requests and fails every visibility check.
func PrincipalFromContext(ctx context.Context) visibility.Principal {
	if ctx == nil {
		return visibility.Principal{}
	}
	if v, ok := ctx.Value(ctxPrincipal).(visibility.Principal); ok {
		return v
	}
	return visibility.Principal{}
}

func UserIDFromContext(ctx context.Context) string {
	p := PrincipalFromContext(ctx)
	if p.UserID == uuid.Nil {
		return ""
	}
	return p.UserID.String()
}

func RoleFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).Role.String()
}
