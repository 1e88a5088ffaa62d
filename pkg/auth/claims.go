package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	Role    enums.Role
	IsAdmin bool
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued by the identity service.
type AccessTokenClaims struct {
	UserID  uuid.UUID  `json:"user_id"`
	Role    enums.Role `json:"role"`
	IsAdmin bool       `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}
