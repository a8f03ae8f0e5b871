package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromarket/price-tracker/internal/api"
	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/facade"
	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/metrics"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/session"
	"github.com/agromarket/price-tracker/internal/store"
)

const password = "correct horse"

type testEnv struct {
	ms     *store.MemoryStore
	ids    *identity.Service
	broker *events.Broker
	router chi.Router
}

// newTestEnv wires an in-memory store behind the full /api/v1 router.
func newTestEnv(t *testing.T, opts ...api.Option) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	return newTestEnvWith(t, ms, ms, opts...)
}

// newTestEnvWith serves st, which must be backed by ms. Requests pass
// through the metrics middleware as in the server.
func newTestEnvWith(t *testing.T, ms *store.MemoryStore, st store.Store, opts ...api.Option) *testEnv {
	t.Helper()
	ids := identity.NewService(identity.NewMemoryAccounts(), identity.NewMemorySessions(), identity.Config{
		Secret:     []byte("test-secret"),
		SessionTTL: time.Hour,
	})
	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	data := facade.New(st, broker, facade.Config{})
	svc := api.NewService(data, session.NewManager(ids, ms), opts...)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Route("/api/v1", svc.Routes)
	return &testEnv{ms: ms, ids: ids, broker: broker, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register signs up through the API and returns the bearer token.
func (e *testEnv) register(t *testing.T, email, role string) (string, string) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/auth/register", "", api.RegisterRequest{
		Name: email, Email: email, Password: password, Role: role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p session.Principal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return sessionCookie(t, w), p.Identity.ID
}

// admin creates an account whose user record carries the admin role.
func (e *testEnv) admin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id, err := e.ids.CreateAccount(ctx, "Admin", "admin@example.com", password)
	require.NoError(t, err)
	require.NoError(t, e.ms.CreateUser(ctx, &model.User{ID: id.ID, Name: id.Name, Email: id.Email, Role: model.RoleAdmin}))
	sess, err := e.ids.CreateSession(ctx, "admin@example.com", password)
	require.NoError(t, err)
	return sess.Token
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == api.SessionCookie && c.Value != "" {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed creates one market and one commodity through the admin API.
func (e *testEnv) seed(t *testing.T, adminToken string) (model.Market, model.Commodity) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/markets", adminToken, api.MarketRequest{Name: "Bodija", Location: "Ibadan"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decodeBody[model.Market](t, w)

	w = e.do(t, "POST", "/api/v1/commodities", adminToken, api.CommodityRequest{Name: "Rice", Unit: "50kg Bag", Category: "Grains"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c := decodeBody[model.Commodity](t, w)
	return m, c
}

// --- Auth ---

func TestRegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)
	token, id := e.register(t, "ada@example.com", "trader")

	w := e.do(t, "GET", "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decodeBody[session.Principal](t, w)
	assert.Equal(t, id, p.Identity.ID)
	assert.Equal(t, model.RoleTrader, p.Role)

	w = e.do(t, "POST", "/api/v1/auth/login", "", api.LoginRequest{Email: "ada@example.com", Password: password})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, sessionCookie(t, w))
}

func TestRegister_Errors(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ada@example.com", "")

	tests := []struct {
		name string
		req  api.RegisterRequest
		want int
	}{
		{"duplicate", api.RegisterRequest{Name: "Ada", Email: "ADA@example.com", Password: password}, http.StatusConflict},
		{"short password", api.RegisterRequest{Name: "Bo", Email: "bo@example.com", Password: "x"}, http.StatusBadRequest},
		{"admin role", api.RegisterRequest{Name: "Cy", Email: "cy@example.com", Password: password, Role: "admin"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, "POST", "/api/v1/auth/register", "", tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ada@example.com", "")

	w := e.do(t, "POST", "/api/v1/auth/login", "", api.LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ada@example.com", "")

	w := e.do(t, "POST", "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, "GET", "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Authorization ---

func TestReferenceWrites_RequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	trader, _ := e.register(t, "trader@example.com", "trader")

	w := e.do(t, "POST", "/api/v1/markets", "", api.MarketRequest{Name: "Bodija"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, "POST", "/api/v1/markets", trader, api.MarketRequest{Name: "Bodija"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "POST", "/api/v1/markets", e.admin(t), api.MarketRequest{Name: "Bodija"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitPrice_BuyerForbidden(t *testing.T) {
	e := newTestEnv(t)
	buyer, _ := e.register(t, "buyer@example.com", "buyer")

	w := e.do(t, "POST", "/api/v1/prices", buyer, api.SubmitPriceRequest{MarketID: "m", CommodityID: "c", Price: decimal.NewFromInt(10)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- Reference data ---

func TestMarketLifecycle(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	m, _ := e.seed(t, admin)

	w := e.do(t, "GET", "/api/v1/markets/"+m.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bodija", decodeBody[model.Market](t, w).Name)

	w = e.do(t, "PUT", "/api/v1/markets/"+m.ID, admin, api.MarketRequest{Name: "Bodija Market", Location: "Ibadan"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bodija Market", decodeBody[model.Market](t, w).Name)

	w = e.do(t, "DELETE", "/api/v1/markets/"+m.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, "GET", "/api/v1/markets/"+m.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMarkets_EmptyIsArray(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "GET", "/api/v1/markets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestCreateCommodity_Invalid(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)

	w := e.do(t, "POST", "/api/v1/commodities", admin, api.CommodityRequest{Name: "Rice", Unit: "k"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "POST", "/api/v1/commodities", admin, api.CommodityRequest{Name: "Rice", Unit: "50kg Bag", Image: "data:image/png;base64,!!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCategory_Conflict(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)

	w := e.do(t, "POST", "/api/v1/categories", admin, api.CategoryRequest{Name: "Grains"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, "POST", "/api/v1/categories", admin, api.CategoryRequest{Name: "grains"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvalidBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Prices ---

func TestSubmitAndListLatest(t *testing.T) {
	e := newTestEnv(t)
	m, c := e.seed(t, e.admin(t))
	trader, traderID := e.register(t, "trader@example.com", "trader")

	for _, p := range []int64{100, 120} {
		w := e.do(t, "POST", "/api/v1/prices", trader, api.SubmitPriceRequest{MarketID: m.ID, CommodityID: c.ID, Price: decimal.NewFromInt(p)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, traderID, decodeBody[model.PriceRecord](t, w).TraderID)
	}

	w := e.do(t, "GET", "/api/v1/prices/latest", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decodeBody[[]model.PriceDataExpanded](t, w)
	require.Len(t, latest, 1)
	assert.Equal(t, "Rice", latest[0].CommodityName)
	assert.Equal(t, "Bodija", latest[0].MarketName)

	w = e.do(t, "GET", "/api/v1/prices/latest?q=bodija", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.PriceDataExpanded](t, w), 1)

	w = e.do(t, "GET", "/api/v1/prices/latest?q=yam", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = e.do(t, "GET", "/api/v1/traders/"+traderID+"/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.PriceDataExpanded](t, w), 2)
}

func TestSubmitPrice_Negative(t *testing.T) {
	e := newTestEnv(t)
	m, c := e.seed(t, e.admin(t))
	trader, _ := e.register(t, "trader@example.com", "trader")

	w := e.do(t, "POST", "/api/v1/prices", trader, api.SubmitPriceRequest{MarketID: m.ID, CommodityID: c.ID, Price: decimal.NewFromInt(-1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePrice_Ownership(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	m, c := e.seed(t, admin)
	owner, ownerID := e.register(t, "owner@example.com", "trader")
	other, _ := e.register(t, "other@example.com", "trader")

	w := e.do(t, "POST", "/api/v1/prices", owner, api.SubmitPriceRequest{MarketID: m.ID, CommodityID: c.ID, Price: decimal.NewFromInt(100)})
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decodeBody[model.PriceRecord](t, w)

	w = e.do(t, "PUT", "/api/v1/prices/"+rec.ID, other, api.UpdatePriceRequest{Price: decimal.NewFromInt(90)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "PUT", "/api/v1/prices/"+rec.ID, owner, api.UpdatePriceRequest{Price: decimal.NewFromInt(110)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[model.PriceRecord](t, w).Price.Equal(decimal.NewFromInt(110)))

	// an admin edit notifies the owner
	w = e.do(t, "PUT", "/api/v1/prices/"+rec.ID, admin, api.UpdatePriceRequest{Price: decimal.NewFromInt(105)})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, "GET", "/api/v1/notifications", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decodeBody[[]model.Notification](t, w)
	require.Len(t, notes, 1)
	assert.Equal(t, ownerID, notes[0].UserID)
	assert.Equal(t, model.NotificationPriceUpdate, notes[0].Type)

	w = e.do(t, "POST", "/api/v1/notifications/"+notes[0].ID+"/read", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, "POST", "/api/v1/notifications/"+notes[0].ID+"/read", owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, "PUT", "/api/v1/prices/missing", admin, api.UpdatePriceRequest{Price: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoricalPrices_RequiresPair(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "GET", "/api/v1/prices/history?commodity_id=c", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "GET", "/api/v1/prices/trending?days=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Analytics ---

func TestBasketAndReport(t *testing.T) {
	e := newTestEnv(t)
	m, c := e.seed(t, e.admin(t))
	trader, _ := e.register(t, "trader@example.com", "trader")

	w := e.do(t, "POST", "/api/v1/prices", trader, api.SubmitPriceRequest{MarketID: m.ID, CommodityID: c.ID, Price: decimal.NewFromInt(150)})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, "POST", "/api/v1/analytics/basket", "", map[string]any{
		"items": []map[string]any{{"commodity_id": c.ID, "quantity": "3"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var basket struct {
		Total decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &basket))
	assert.True(t, basket.Total.Equal(decimal.NewFromInt(450)), basket.Total.String())

	w = e.do(t, "POST", "/api/v1/analytics/basket", "", map[string]any{
		"items": []map[string]any{{"commodity_id": c.ID, "quantity": "0"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "GET", "/api/v1/reports/latest.pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = e.do(t, "GET", "/api/v1/analytics/heatmap", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "GET", "/api/v1/markets/"+m.ID+"/prices", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Farm-gate ---

func TestFarmgate_FarmerOnly(t *testing.T) {
	e := newTestEnv(t)
	_, c := e.seed(t, e.admin(t))
	farmer, farmerID := e.register(t, "farmer@example.com", "farmer")
	trader, _ := e.register(t, "trader@example.com", "trader")

	req := api.FarmgateRequest{CommodityID: c.ID, Location: "Oyo", FarmGatePrice: decimal.NewFromInt(80), TransportCost: decimal.NewFromInt(5)}

	w := e.do(t, "POST", "/api/v1/farmgate", trader, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "POST", "/api/v1/farmgate", farmer, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, "GET", "/api/v1/farmgate?commodity_id="+c.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decodeBody[[]model.FarmgateRecord](t, w)
	require.Len(t, recs, 1)
	assert.Equal(t, farmerID, recs[0].FarmerID)
}

func TestNotifications_RequireAuth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "GET", "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
