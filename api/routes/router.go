package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrimarket/fulfillment-backend/api/controllers"
	ordercontrollers "github.com/agrimarket/fulfillment-backend/api/controllers/orders"
	"github.com/agrimarket/fulfillment-backend/api/middleware"
	"github.com/agrimarket/fulfillment-backend/internal/audit"
	checkoutsvc "github.com/agrimarket/fulfillment-backend/internal/checkout"
	"github.com/agrimarket/fulfillment-backend/internal/orders"
	"github.com/agrimarket/fulfillment-backend/pkg/bigquery"
	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/redis"
)

const requestTimeout = 30 * time.Second

// RedisStore is the slice of the redis client the router needs: idempotency
// records and the readiness ping.
type RedisStore interface {
	redis.IdempotencyStore
	Ping(context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	bigqueryClient bigquery.Pinger,
	gatherer prometheus.Gatherer,
	checkoutService checkoutsvc.Service,
	ordersSvc orders.Service,
	auditRecorder audit.Recorder,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(dbP, redisClient, bigqueryClient)...))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = redisClient
	}
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(withTimeout(requestTimeout))

		r.Get("/ping", controllers.Whoami())

		r.With(idempotent).Post("/orders", ordercontrollers.Create(checkoutService, auditRecorder, logg))
		r.Get("/orders", ordercontrollers.List(ordersSvc, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
		r.With(idempotent).Patch("/orders/{orderId}/status", ordercontrollers.UpdateOrderStatus(ordersSvc, auditRecorder, logg))
		r.With(idempotent).Patch("/orders/{orderId}/sub-orders/{subOrderId}/items/{itemId}/status", ordercontrollers.UpdateItemStatus(ordersSvc, auditRecorder, logg))
		r.With(idempotent).Patch("/orders/{orderId}/sub-orders/{subOrderId}/status", ordercontrollers.UpdateSubOrderStatus(ordersSvc, auditRecorder, logg))
		r.With(idempotent).Delete("/orders/{orderId}", ordercontrollers.Delete(ordersSvc, auditRecorder, logg))

		r.With(middleware.RequireRole(logg, enums.RoleSeller)).
			Get("/sellers/{sellerId}/sub-orders", ordercontrollers.SellerSubOrders(ordersSvc, logg))
	})

	return r
}

func readinessDeps(dbP db.Pinger, redisClient RedisStore, bigqueryClient bigquery.Pinger) []controllers.Dependency {
	deps := []controllers.Dependency{{Name: "database"}, {Name: "redis"}, {Name: "bigquery"}}
	if dbP != nil {
		deps[0].Pinger = dbP
	}
	if redisClient != nil {
		deps[1].Pinger = redisClient
	}
	if bigqueryClient != nil {
		deps[2].Pinger = bigqueryClient
	}
	return deps
}

func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
