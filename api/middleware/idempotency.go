package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/agrimarket/fulfillment-backend/api/responses"
	pkgerrors "github.com/agrimarket/fulfillment-backend/pkg/errors"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	pkgredis "github.com/agrimarket/fulfillment-backend/pkg/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 200

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// idempotentRoute describes a mutating endpoint whose responses are cached
// per Idempotency-Key. Checkout and deletion keep replays for a week since
// they move stock.
type idempotentRoute struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, prefix: "/api/v1/orders", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodDelete, prefix: "/api/v1/orders/{orderId}", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodPatch, prefix: "/api/v1/orders/", suffix: "/status", ttl: defaultIdempotencyTTL},
}

func (rt idempotentRoute) matches(method, pattern string) bool {
	if rt.method != method {
		return false
	}
	if rt.exact {
		return pattern == rt.prefix
	}
	return strings.HasPrefix(pattern, rt.prefix) && strings.HasSuffix(pattern, rt.suffix)
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	for _, rt := range idempotentRoutes {
		if rt.matches(method, pattern) {
			return rt.ttl, true
		}
	}
	return 0, false
}

// storedResponse is the redis value for a key. A pending entry marks a
// request that is still executing.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes listed in idempotentRoutes. Requests without the header run
// normally. The key is scoped to the caller, method and path, and the body
// fingerprint must match on replay.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long").
					WithDetails(map[string]any{"max": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			guard := &idempotencyGuard{
				store:       store,
				logg:        logg,
				key:         store.IdempotencyKey(callerScope(r), clientKey),
				fingerprint: fingerprint(body),
				ttl:         ttl,
			}

			claimed, err := guard.claim(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !claimed {
				guard.replay(w, r)
				return
			}

			capture := &capturedResponse{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			guard.settle(context.WithoutCancel(r.Context()), capture)
		})
	}
}

type idempotencyGuard struct {
	store       pkgredis.IdempotencyStore
	logg        *logger.Logger
	key         string
	fingerprint string
	ttl         time.Duration
}

func (g *idempotencyGuard) claim(ctx context.Context) (bool, error) {
	marker, err := json.Marshal(storedResponse{Pending: true, Fingerprint: g.fingerprint})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency marker")
	}
	claimed, err := g.store.SetNX(ctx, g.key, string(marker), g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return claimed, nil
}

func (g *idempotencyGuard) replay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := g.store.Get(ctx, g.key)
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key expired, retry the request"))
		return
	case err != nil:
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.Fingerprint != g.fingerprint:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.Pending:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// settle stores the final response, or releases the key after a server
// failure so the client may retry.
func (g *idempotencyGuard) settle(ctx context.Context, capture *capturedResponse) {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := g.store.Del(ctx, g.key); err != nil && g.logg != nil {
			g.logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		Fingerprint: g.fingerprint,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err == nil {
		err = g.store.Set(ctx, g.key, string(payload), g.ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func callerScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type capturedResponse struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *capturedResponse) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturedResponse) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capturedResponse) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
