package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
)

var marketJWT = config.JWTConfig{
	Secret:            "farm-gate-secret",
	Issuer:            "agrimarket",
	ExpirationMinutes: 30,
}

func mint(t *testing.T, cfg config.JWTConfig, at time.Time, payload AccessTokenPayload) string {
	t.Helper()
	token, err := MintAccessToken(cfg, at, payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

// signRaw signs claims directly, bypassing MintAccessToken's checks.
func signRaw(t *testing.T, method jwt.SigningMethod, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(marketJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	userID := uuid.New()

	claims, err := ParseAccessToken(marketJWT, mint(t, marketJWT, now, AccessTokenPayload{
		UserID:  userID,
		Role:    enums.RoleSeller,
		IsAdmin: true,
		JTI:     "  grain-lot-9  ",
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if claims.UserID != userID || claims.Role != enums.RoleSeller || !claims.IsAdmin {
		t.Fatalf("identity claims %+v", claims)
	}
	if claims.Issuer != marketJWT.Issuer || claims.Subject != userID.String() || claims.ID != "grain-lot-9" {
		t.Fatalf("registered claims %+v", claims.RegisteredClaims)
	}
	if want := now.Add(30 * time.Minute); !claims.ExpiresAt.Time.Equal(want) {
		t.Fatalf("expires at %v, want %v", claims.ExpiresAt.Time, want)
	}
}

func TestMintGeneratesJTI(t *testing.T) {
	claims, err := ParseAccessToken(marketJWT, mint(t, marketJWT, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uuid.Validate(claims.ID) != nil {
		t.Fatalf("expected uuid jti, got %q", claims.ID)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	buyer := AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer}
	valid := mint(t, marketJWT, time.Now(), buyer)

	rotated := marketJWT
	rotated.Secret = "rotated"
	otherIssuer := marketJWT
	otherIssuer.Issuer = "cooperative-portal"

	future := jwt.NewNumericDate(time.Now().Add(time.Minute))

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		is    error
	}{
		{name: "tampered signature", cfg: marketJWT, token: valid + "x"},
		{name: "rotated secret", cfg: rotated, token: valid, is: jwt.ErrTokenSignatureInvalid},
		{name: "other issuer", cfg: otherIssuer, token: valid, is: jwt.ErrTokenInvalidIssuer},
		{name: "expired", cfg: marketJWT, token: mint(t, marketJWT, time.Now().Add(-time.Hour), buyer), is: jwt.ErrTokenExpired},
		{name: "no secret configured", cfg: config.JWTConfig{}, token: valid, is: ErrSecretRequired},
		{
			name: "hs512",
			cfg:  marketJWT,
			token: signRaw(t, jwt.SigningMethodHS512, AccessTokenClaims{
				UserID:           buyer.UserID,
				Role:             enums.RoleBuyer,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: marketJWT.Issuer, ExpiresAt: future},
			}),
			is: jwt.ErrTokenSignatureInvalid,
		},
		{
			name: "missing expiry",
			cfg:  marketJWT,
			token: signRaw(t, signingMethod, AccessTokenClaims{
				UserID:           buyer.UserID,
				Role:             enums.RoleBuyer,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: marketJWT.Issuer},
			}),
			is: jwt.ErrTokenRequiredClaimMissing,
		},
		{
			name: "missing user",
			cfg:  marketJWT,
			token: signRaw(t, signingMethod, AccessTokenClaims{
				Role:             enums.RoleBuyer,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: marketJWT.Issuer, ExpiresAt: future},
			}),
			is: errMissingUser,
		},
		{
			name: "unknown role",
			cfg:  marketJWT,
			token: signRaw(t, signingMethod, AccessTokenClaims{
				UserID:           buyer.UserID,
				Role:             "agronomist",
				RegisteredClaims: jwt.RegisteredClaims{Issuer: marketJWT.Issuer, ExpiresAt: future},
			}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := ParseAccessToken(tc.cfg, tc.token)
			if err == nil {
				t.Fatalf("expected error, got claims %+v", claims)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("error %v, want %v", err, tc.is)
			}
		})
	}
}

func TestMintAccessTokenRejects(t *testing.T) {
	noIssuer := marketJWT
	noIssuer.Issuer = ""
	noTTL := marketJWT
	noTTL.ExpirationMinutes = 0

	cases := map[string]struct {
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		"blank role":   {marketJWT, AccessTokenPayload{UserID: uuid.New()}},
		"missing user": {marketJWT, AccessTokenPayload{Role: enums.RoleBuyer}},
		"no secret":    {config.JWTConfig{}, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer}},
		"no issuer":    {noIssuer, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer}},
		"no ttl":       {noTTL, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if token, err := MintAccessToken(tc.cfg, time.Now(), tc.payload); err == nil {
				t.Fatalf("expected error, got token %q", token)
			}
		})
	}
}
