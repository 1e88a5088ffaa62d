package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agrimarket/fulfillment-backend/internal/audit"
	"github.com/agrimarket/fulfillment-backend/internal/checkout"
	"github.com/agrimarket/fulfillment-backend/internal/events"
	"github.com/agrimarket/fulfillment-backend/internal/orders"
	pkgAuth "github.com/agrimarket/fulfillment-backend/pkg/auth"
	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/db/models"
	"github.com/agrimarket/fulfillment-backend/pkg/enums"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type apiHarness struct {
	t       *testing.T
	db      *gorm.DB
	handler http.Handler
	cfg     *config.Config
	audit   *recordingAudit
	buyer   models.User
	sellerA models.User
	sellerB models.User
	admin   models.User
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&models.User{}, &models.Listing{}, &models.Order{}, &models.SubOrder{}, &models.OrderItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "agrimarket-test", ExpirationMinutes: 30},
	}

	reg := prometheus.NewRegistry()
	client := db.Wrap(conn)
	repo := orders.NewRepository(conn)
	orderMetrics := metrics.NewOrderMetrics(reg)

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:      client,
		Orders:  repo,
		Emitter: events.NopEmitter{},
		Metrics: orderMetrics,
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	ordersSvc, err := orders.NewService(repo, client, events.NopEmitter{}, orderMetrics)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}

	h := &apiHarness{t: t, db: conn, cfg: cfg, audit: &recordingAudit{}}
	h.buyer = h.seedUser("Ada Buyer", "ada@example.com", enums.RoleBuyer)
	h.sellerA = h.seedUser("Green Acres", "sales@greenacres.example", enums.RoleSeller)
	h.sellerB = h.seedUser("Hill Dairy", "hello@hilldairy.example", enums.RoleSeller)
	h.admin = h.seedUser("Ops", "ops@agrimarket.example", enums.RoleAdmin)

	h.handler = NewRouter(cfg, logger.Nop(), client, nil, nil, reg, checkoutSvc, ordersSvc, h.audit)
	return h
}

func (h *apiHarness) seedUser(name, email string, role enums.Role) models.User {
	h.t.Helper()
	user := models.User{Name: name, Email: email, Role: role}
	if err := h.db.Create(&user).Error; err != nil {
		h.t.Fatalf("seed user: %v", err)
	}
	return user
}

func (h *apiHarness) seedListing(seller models.User, name, price string, qty int) models.Listing {
	h.t.Helper()
	listing := models.Listing{SellerID: seller.ID, ProductName: name, Price: decimal.RequireFromString(price), Quantity: qty}
	if err := h.db.Create(&listing).Error; err != nil {
		h.t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func (h *apiHarness) token(user models.User) string {
	h.t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:  user.ID,
		Role:    user.Role,
		IsAdmin: user.Role == enums.RoleAdmin,
	})
	if err != nil {
		h.t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *apiHarness) do(user *models.User, method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*user))
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func (h *apiHarness) quantity(id uuid.UUID) int {
	h.t.Helper()
	var listing models.Listing
	if err := h.db.First(&listing, "id = ?", id).Error; err != nil {
		h.t.Fatalf("load listing: %v", err)
	}
	return listing.Quantity
}

type orderBody struct {
	ID            string `json:"id"`
	GrandTotal    string `json:"grandTotal"`
	Status        string `json:"status"`
	DerivedStatus string `json:"derivedStatus"`
	Version       int    `json:"version"`
	SubOrders     []struct {
		ID       string `json:"id"`
		SellerID string `json:"sellerId"`
		Subtotal string `json:"subtotal"`
		Status   string `json:"status"`
		Items    []struct {
			ID           string `json:"id"`
			Qty          int    `json:"qty"`
			PriceAtOrder string `json:"priceAtOrder"`
			ItemStatus   string `json:"itemStatus"`
		} `json:"items"`
	} `json:"subOrders"`
}

func decodeOrder(t *testing.T, resp *httptest.ResponseRecorder) orderBody {
	t.Helper()
	var envelope struct {
		Data orderBody `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode order: %v (%s)", err, resp.Body.String())
	}
	return envelope.Data
}

func twoSellerOrder(sellerA, sellerB models.User, listingA, listingB models.Listing, qtyA, qtyB int) string {
	return `{
		"billing": {"name":"Ada Buyer","email":"ada@example.com","phone":"+1 555 0100","address":"1 Field Rd"},
		"subOrders": [
			{"seller":"` + sellerA.ID.String() + `","deliveryMethod":"pickup","pickupInfo":{"location":"North barn"},
			 "items":[{"listing":"` + listingA.ID.String() + `","qty":` + strconv.Itoa(qtyA) + `}]},
			{"seller":"` + sellerB.ID.String() + `","deliveryMethod":"third_party","thirdPartyInfo":{"provider":"ValleyFreight"},
			 "items":[{"listing":"` + listingB.ID.String() + `","qty":` + strconv.Itoa(qtyB) + `}]}
		]
	}`
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newAPIHarness(t)

	if resp := h.do(nil, http.MethodGet, "/health/live", ""); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := h.do(nil, http.MethodGet, "/health/ready", ""); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if resp := h.do(nil, http.MethodGet, "/api/public/ping", ""); resp.Code != http.StatusOK {
		t.Fatalf("ping: expected 200 got %d", resp.Code)
	}

	// one failed checkout so the counter family exists
	h.do(&h.buyer, http.MethodPost, "/api/v1/orders", `{"billing":{"name":"a","email":"a@example.com","phone":"1","address":"x"},"subOrders":[{"seller":"`+h.sellerA.ID.String()+`","deliveryMethod":"pickup","pickupInfo":{"location":"barn"},"items":[{"listing":"`+uuid.NewString()+`","qty":1}]}]}`)

	resp := h.do(nil, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "checkout_total") {
		t.Fatalf("expected checkout_total in exposition, got %s", resp.Body.String())
	}
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	h := newAPIHarness(t)
	for _, path := range []string{"/api/v1/orders", "/api/v1/orders/" + uuid.NewString(), "/api/v1/sellers/" + uuid.NewString() + "/sub-orders"} {
		if resp := h.do(nil, http.MethodGet, path, ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestPlaceOrderRoundTrip(t *testing.T) {
	h := newAPIHarness(t)
	listingA := h.seedListing(h.sellerA, "Heirloom tomatoes", "10.00", 5)
	listingB := h.seedListing(h.sellerB, "Goat cheese", "7.50", 4)

	resp := h.do(&h.buyer, http.MethodPost, "/api/v1/orders", twoSellerOrder(h.sellerA, h.sellerB, listingA, listingB, 2, 1))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	order := decodeOrder(t, resp)
	if order.GrandTotal != "27.50" || order.Status != "pending" || len(order.SubOrders) != 2 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.SubOrders[0].Subtotal != "20.00" || order.SubOrders[1].Subtotal != "7.50" {
		t.Fatalf("unexpected subtotals %+v", order.SubOrders)
	}
	if h.quantity(listingA.ID) != 3 || h.quantity(listingB.ID) != 3 {
		t.Fatalf("stock not decremented: %d %d", h.quantity(listingA.ID), h.quantity(listingB.ID))
	}

	get := h.do(&h.buyer, http.MethodGet, "/api/v1/orders/"+order.ID, "")
	if get.Code != http.StatusOK {
		t.Fatalf("get: expected 200 got %d", get.Code)
	}
	again := h.do(&h.buyer, http.MethodGet, "/api/v1/orders/"+order.ID, "")
	if get.Body.String() != again.Body.String() {
		t.Fatalf("repeated reads differ")
	}

	if len(h.audit.entries) != 1 || h.audit.entries[0].Operation != "create" {
		t.Fatalf("expected create audit, got %+v", h.audit.entries)
	}
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	h := newAPIHarness(t)
	listingA := h.seedListing(h.sellerA, "Heirloom tomatoes", "10.00", 5)
	listingB := h.seedListing(h.sellerB, "Goat cheese", "7.50", 1)

	resp := h.do(&h.buyer, http.MethodPost, "/api/v1/orders", twoSellerOrder(h.sellerA, h.sellerB, listingA, listingB, 2, 3))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "INSUFFICIENT_STOCK") {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %s", resp.Body.String())
	}
	if h.quantity(listingA.ID) != 5 {
		t.Fatalf("earlier decrement should have rolled back, quantity=%d", h.quantity(listingA.ID))
	}
}

func TestSellerVisibilityAndMutation(t *testing.T) {
	h := newAPIHarness(t)
	listingA := h.seedListing(h.sellerA, "Heirloom tomatoes", "10.00", 5)
	listingB := h.seedListing(h.sellerB, "Goat cheese", "7.50", 4)

	order := decodeOrder(t, h.do(&h.buyer, http.MethodPost, "/api/v1/orders", twoSellerOrder(h.sellerA, h.sellerB, listingA, listingB, 1, 1)))
	subA := order.SubOrders[0]
	subB := order.SubOrders[1]

	if resp := h.do(&h.sellerA, http.MethodGet, "/api/v1/orders/"+order.ID, ""); resp.Code != http.StatusOK {
		t.Fatalf("seller A read: expected 200 got %d", resp.Code)
	}

	foreign := "/api/v1/orders/" + order.ID + "/sub-orders/" + subB.ID + "/items/" + subB.Items[0].ID + "/status"
	if resp := h.do(&h.sellerA, http.MethodPatch, foreign, `{"status":"delivered"}`); resp.Code != http.StatusForbidden {
		t.Fatalf("foreign item: expected 403 got %d", resp.Code)
	}

	own := "/api/v1/orders/" + order.ID + "/sub-orders/" + subA.ID + "/items/" + subA.Items[0].ID + "/status"
	resp := h.do(&h.sellerA, http.MethodPatch, own, `{"status":"delivered"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("own item: expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	updated := decodeOrder(t, resp)
	if updated.SubOrders[0].Status != "delivered" || updated.Status != "partially_delivered" {
		t.Fatalf("expected recomputed ancestors, got %+v", updated)
	}

	projection := h.do(&h.sellerB, http.MethodGet, "/api/v1/sellers/"+h.sellerB.ID.String()+"/sub-orders", "")
	if projection.Code != http.StatusOK {
		t.Fatalf("projection: expected 200 got %d", projection.Code)
	}
	var views struct {
		Data []struct {
			OrderID   string            `json:"orderId"`
			SubOrders []json.RawMessage `json:"subOrders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(projection.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode projection: %v", err)
	}
	if len(views.Data) != 1 || len(views.Data[0].SubOrders) != 1 {
		t.Fatalf("expected one pruned order, got %+v", views.Data)
	}

	if resp := h.do(&h.sellerA, http.MethodGet, "/api/v1/sellers/"+h.sellerB.ID.String()+"/sub-orders", ""); resp.Code != http.StatusForbidden {
		t.Fatalf("other seller projection: expected 403 got %d", resp.Code)
	}
	if resp := h.do(&h.buyer, http.MethodGet, "/api/v1/sellers/"+h.sellerB.ID.String()+"/sub-orders", ""); resp.Code != http.StatusForbidden {
		t.Fatalf("buyer projection: expected 403 got %d", resp.Code)
	}
}

func TestAdminOverrideAndDelete(t *testing.T) {
	h := newAPIHarness(t)
	listingA := h.seedListing(h.sellerA, "Heirloom tomatoes", "10.00", 5)
	listingB := h.seedListing(h.sellerB, "Goat cheese", "7.50", 4)
	order := decodeOrder(t, h.do(&h.buyer, http.MethodPost, "/api/v1/orders", twoSellerOrder(h.sellerA, h.sellerB, listingA, listingB, 1, 1)))

	statusPath := "/api/v1/orders/" + order.ID + "/status"
	if resp := h.do(&h.sellerA, http.MethodPatch, statusPath, `{"status":"cancelled"}`); resp.Code != http.StatusForbidden {
		t.Fatalf("seller override: expected 403 got %d", resp.Code)
	}

	resp := h.do(&h.admin, http.MethodPatch, statusPath, `{"status":"cancelled"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin override: expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if got := decodeOrder(t, resp); got.Status != "cancelled" || got.DerivedStatus != "pending" {
		t.Fatalf("expected override on top of derived status, got %+v", got)
	}

	resp = h.do(&h.admin, http.MethodPatch, statusPath, `{"status":null}`)
	if got := decodeOrder(t, resp); got.Status != "pending" {
		t.Fatalf("expected cleared override, got %+v", got)
	}

	if resp := h.do(&h.buyer, http.MethodDelete, "/api/v1/orders/"+order.ID, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("buyer delete: expected 403 got %d", resp.Code)
	}
	if resp := h.do(&h.admin, http.MethodDelete, "/api/v1/orders/"+order.ID, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("admin delete: expected 204 got %d", resp.Code)
	}
	if resp := h.do(&h.admin, http.MethodGet, "/api/v1/orders/"+order.ID, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("deleted order: expected 404 got %d", resp.Code)
	}
}

func TestConcurrentCheckoutsDoNotOversell(t *testing.T) {
	h := newAPIHarness(t)
	listing := h.seedListing(h.sellerA, "Last crate of peaches", "25.00", 1)
	body := `{
		"billing": {"name":"Ada Buyer","email":"ada@example.com","phone":"+1 555 0100","address":"1 Field Rd"},
		"subOrders": [{"seller":"` + h.sellerA.ID.String() + `","deliveryMethod":"pickup","pickupInfo":{"location":"Gate"},
			"items":[{"listing":"` + listing.ID.String() + `","qty":1}]}]
	}`

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+h.token(h.buyer))
			resp := httptest.NewRecorder()
			h.handler.ServeHTTP(resp, req)
			codes[i] = resp.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		} else if code != http.StatusBadRequest && code != http.StatusConflict {
			t.Fatalf("unexpected status %d", code)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one 201, got codes %v", codes)
	}
	if h.quantity(listing.ID) != 0 {
		t.Fatalf("expected quantity 0, got %d", h.quantity(listing.ID))
	}
}
