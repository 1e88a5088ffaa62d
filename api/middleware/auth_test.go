package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/fulfillment-backend/pkg/auth"
	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/visibility"
)

var sellerJWT = config.JWTConfig{Secret: "orchard-secret", Issuer: "agrimarket-test", ExpirationMinutes: 30}

// throughAuth runs one request through Auth and reports what the inner
// handler saw.
func throughAuth(authorization string) (int, visibility.Principal) {
	var seen visibility.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	Auth(sellerJWT, nil)(inner).ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	foreign := sellerJWT
	foreign.Issuer = "another-market"
	rotated := sellerJWT
	rotated.Secret = "rotated-secret"

	cases := map[string]string{
		"no header":      "",
		"basic scheme":   "Basic Zm9vOmJhcg==",
		"garbage token":  "Bearer not.a.jwt",
		"foreign issuer": "Bearer " + signFor(t, foreign, uuid.New(), enums.RoleBuyer, false),
		"wrong secret":   "Bearer " + signFor(t, rotated, uuid.New(), enums.RoleBuyer, false),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			code, seen := throughAuth(header)
			if code != http.StatusUnauthorized {
				t.Fatalf("status %d, want 401", code)
			}
			if seen.UserID != uuid.Nil {
				t.Fatalf("inner handler ran with %+v", seen)
			}
		})
	}
}

func TestAuthSeedsPrincipal(t *testing.T) {
	cases := []struct {
		name  string
		role  enums.Role
		admin bool
	}{
		{"seller", enums.RoleSeller, false},
		{"buyer with admin flag", enums.RoleBuyer, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID := uuid.New()
			code, seen := throughAuth("Bearer " + signFor(t, sellerJWT, userID, tc.role, tc.admin))
			if code != http.StatusNoContent {
				t.Fatalf("status %d", code)
			}
			if seen.UserID != userID || seen.Role != tc.role {
				t.Fatalf("principal %+v", seen)
			}
			if seen.Admin() != tc.admin {
				t.Fatalf("admin = %v, want %v", seen.Admin(), tc.admin)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	guard := RequireRole(nil, enums.RoleSeller)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]struct {
		principal visibility.Principal
		want      int
	}{
		"seller":              {visibility.Principal{UserID: uuid.New(), Role: enums.RoleSeller}, http.StatusNoContent},
		"admin role":          {visibility.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}, http.StatusNoContent},
		"buyer flagged admin": {visibility.Principal{UserID: uuid.New(), Role: enums.RoleBuyer, IsAdmin: true}, http.StatusNoContent},
		"plain buyer":         {visibility.Principal{UserID: uuid.New(), Role: enums.RoleBuyer}, http.StatusForbidden},
		"anonymous":           {visibility.Principal{}, http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), tc.principal))
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRecovererRendersInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("tractor fell over")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INTERNAL_ERROR" {
		t.Fatalf("error code %s", code)
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serve := func(incoming string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if incoming != "" {
			req.Header.Set("X-Request-Id", incoming)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Header().Get("X-Request-Id")
	}

	if got := serve("harvest-42"); got != "harvest-42" {
		t.Fatalf("incoming id not echoed, got %q", got)
	}
	if got := serve(""); uuid.Validate(got) != nil {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func signFor(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.Role, admin bool) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID:  userID,
		Role:    role,
		IsAdmin: admin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
