package controllers

import (
	"net/http"

	"github.com/agrimarket/fulfillment-backend/api/middleware"
	"github.com/agrimarket/fulfillment-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// Whoami echoes the principal the auth middleware resolved.
func Whoami() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		responses.WriteSuccess(w, map[string]any{
			"userId":  principal.UserID,
			"role":    principal.Role,
			"isAdmin": principal.Admin(),
		})
	}
}
