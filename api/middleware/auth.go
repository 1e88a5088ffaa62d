package middleware

import (
	"net/http"

	"github.com/agrimarket/fulfillment-backend/api/responses"
	"github.com/agrimarket/fulfillment-backend/api/validators"
	pkgAuth "github.com/agrimarket/fulfillment-backend/pkg/auth"
	"github.com/agrimarket/fulfillment-backend/pkg/config"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

// Auth validates a bearer token and seeds the request context with the principal.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := validators.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := visibility.Principal{
				UserID:  claims.UserID,
				Role:    claims.Role,
				IsAdmin: claims.IsAdmin,
			}
			ctx := WithPrincipal(r.Context(), principal)

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, claims.Role.String())
				if principal.Admin() {
					ctx = logg.WithField(ctx, "is_admin", true)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
