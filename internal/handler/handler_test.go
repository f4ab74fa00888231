package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/order"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/promotion"
	"github.com/cornermart/pickup/internal/domain/store"
	"github.com/cornermart/pickup/internal/handler"
	"github.com/cornermart/pickup/internal/storage/memory"
)

var pepper = []byte("test-pepper")

const (
	customerKey = "key-customer"
	strangerKey = "key-stranger"
	ownerKey    = "key-owner"
	adminKey    = "key-admin"
)

type response struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Errors     []string        `json:"errors"`
	Pagination *struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

type orderJSON struct {
	ID                  string   `json:"id"`
	OrderNumber         string   `json:"orderNumber"`
	Status              string   `json:"status"`
	AllowedNextStatuses []string `json:"allowedNextStatuses"`
	Subtotal            string   `json:"subtotal"`
	Tax                 string   `json:"tax"`
	DiscountAmount      *string  `json:"discountAmount"`
	Total               string   `json:"total"`
	PickupCode          string   `json:"pickupCode"`
	CustomerCheckedIn   bool     `json:"customerCheckedIn"`
	EstimatedReadyTime  *string  `json:"estimatedReadyTime"`
	Items               []struct {
		ProductID   string `json:"productId"`
		ProductName string `json:"productName"`
		Quantity    int    `json:"quantity"`
		UnitPrice   string `json:"unitPrice"`
		TotalPrice  string `json:"totalPrice"`
	} `json:"items"`
}

type server struct {
	t      *testing.T
	db     *memory.DB
	router http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	db := memory.New()

	db.Stores().PutStore(ctx, store.Store{ID: "s1", OwnerID: "owner-1", Name: "Corner Deli", Active: true})
	db.Catalog().PutProduct(ctx, product.Product{
		ID: "P", StoreID: "s1", Name: "Oat Milk", Price: decimal.RequireFromString("3.99"),
		StockQuantity: 20, LowStockThreshold: 5, Active: true,
	})
	db.Catalog().PutProduct(ctx, product.Product{
		ID: "Q", StoreID: "s1", Name: "Bagel", Price: decimal.RequireFromString("2.50"),
		StockQuantity: 15, LowStockThreshold: 5, Active: true,
	})

	for key, id := range map[string]auth.Identity{
		customerKey: {UserID: "cust-1", Role: auth.RoleCustomer},
		strangerKey: {UserID: "cust-2", Role: auth.RoleCustomer},
		ownerKey:    {UserID: "owner-1", Role: auth.RoleStoreOwner},
		adminKey:    {UserID: "admin-1", Role: auth.RoleAdmin},
	} {
		db.APIKeys().PutAPIKey(ctx, auth.APIKeyInfo{
			ID: key, KeyHash: auth.HashKey(key, pepper), Name: key, UserID: id.UserID, Role: id.Role,
		})
	}

	svc, err := order.NewService(order.Deps{
		Orders:     db.Orders(),
		Catalog:    db.Catalog(),
		Stores:     db.Stores(),
		Promotions: db.Promotions(),
		UnitOfWork: db,
		Notifier:   db,
	})
	require.NoError(t, err)

	router := handler.NewRouter(handler.RouterConfig{
		Orders: handler.NewHandler(svc),
		Auth:   handler.NewAuthenticator(db.APIKeys(), pepper),
		Livez: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
	return &server{t: t, db: db, router: router}
}

func (s *server) do(method, path, key string, body any) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func decodeOrder(t *testing.T, resp response) orderJSON {
	t.Helper()
	var o orderJSON
	require.NoError(t, json.Unmarshal(resp.Data, &o))
	return o
}

func (s *server) create(items ...map[string]any) orderJSON {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/api/orders", customerKey, map[string]any{
		"storeId": "s1",
		"items":   items,
	})
	require.Equal(s.t, http.StatusCreated, code, resp.Message)
	return decodeOrder(s.t, resp)
}

func item(id string, qty int) map[string]any {
	return map[string]any{"productId": id, "quantity": qty}
}

func TestCreateOrder(t *testing.T) {
	s := newServer(t)

	o := s.create(item("P", 2), item("Q", 3))
	assert.Equal(t, "PENDING", o.Status)
	assert.Equal(t, "15.48", o.Subtotal)
	assert.Equal(t, "1.32", o.Tax)
	assert.Equal(t, "16.80", o.Total)
	assert.Nil(t, o.DiscountAmount)
	assert.Len(t, o.PickupCode, 6)
	assert.Regexp(t, `^ORD-`, o.OrderNumber)
	assert.ElementsMatch(t, []string{"CONFIRMED", "CANCELLED"}, o.AllowedNextStatuses)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "3.99", o.Items[0].UnitPrice)
	assert.Equal(t, "7.98", o.Items[0].TotalPrice)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing api key",
			body:       map[string]any{"storeId": "s1", "items": []any{item("P", 1)}},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "unauthorized",
		},
		{
			name:       "unknown api key",
			key:        "nope",
			body:       map[string]any{"storeId": "s1", "items": []any{item("P", 1)}},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "unauthorized",
		},
		{
			name:       "store owner cannot order",
			key:        ownerKey,
			body:       map[string]any{"storeId": "s1", "items": []any{item("P", 1)}},
			wantStatus: http.StatusForbidden,
			wantMsg:    "forbidden",
		},
		{
			name:       "empty items",
			key:        customerKey,
			body:       map[string]any{"storeId": "s1", "items": []any{}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "insufficient stock",
			key:        customerKey,
			body:       map[string]any{"storeId": "s1", "items": []any{item("P", 21)}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "insufficient stock for Oat Milk. Available: 20, Requested: 21",
		},
		{
			name:       "unknown product",
			key:        customerKey,
			body:       map[string]any{"storeId": "s1", "items": []any{item("missing", 1)}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown store",
			key:        customerKey,
			body:       map[string]any{"storeId": "s9", "items": []any{item("P", 1)}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed body",
			key:        customerKey,
			body:       `{"storeId":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "unknown field",
			key:        customerKey,
			body:       map[string]any{"storeId": "s1", "items": []any{item("P", 1)}, "total": "0.01"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			code, resp := s.do(http.MethodPost, "/api/orders", tt.key, tt.body)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, "error", resp.Status)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
			p, _ := s.db.Catalog().Product(context.Background(), "P")
			assert.Equal(t, 20, p.StockQuantity)
		})
	}
}

func TestGetOrder_Visibility(t *testing.T) {
	s := newServer(t)
	o := s.create(item("P", 1))
	path := "/api/orders/" + o.ID

	code, resp := s.do(http.MethodGet, path, customerKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, o.PickupCode, decodeOrder(t, resp).PickupCode)

	code, resp = s.do(http.MethodGet, path, ownerKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeOrder(t, resp).PickupCode)

	code, _ = s.do(http.MethodGet, path, adminKey, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, path, strangerKey, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = s.do(http.MethodGet, "/api/orders/missing", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "order not found", resp.Message)
}

func TestListOrders(t *testing.T) {
	s := newServer(t)
	for range 3 {
		s.create(item("Q", 1))
	}

	code, resp := s.do(http.MethodGet, "/api/orders?page=2&limit=2", customerKey, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)
	var orders []orderJSON
	require.NoError(t, json.Unmarshal(resp.Data, &orders))
	assert.Len(t, orders, 1)

	code, resp = s.do(http.MethodGet, "/api/orders", strangerKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	code, resp = s.do(http.MethodGet, "/api/orders?status=confirmed", ownerKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, resp.Pagination.Total)

	for _, q := range []string{"page=0", "limit=abc", "limit=101", "status=LOST"} {
		code, _ = s.do(http.MethodGet, "/api/orders?"+q, customerKey, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestFulfillmentFlow(t *testing.T) {
	s := newServer(t)
	o := s.create(item("P", 2))
	base := "/api/orders/" + o.ID

	code, _ := s.do(http.MethodPut, base+"/status", customerKey, map[string]string{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := s.do(http.MethodPut, base+"/status", ownerKey, map[string]string{"status": "READY"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "cannot transition from PENDING to READY. Allowed: [CONFIRMED, CANCELLED]", resp.Message)

	code, _ = s.do(http.MethodPut, base+"/checkin", customerKey, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPut, base+"/status", ownerKey, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(http.MethodPut, base+"/estimated-time", ownerKey, map[string]int{"estimatedMinutes": 15})
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, decodeOrder(t, resp).EstimatedReadyTime)

	code, _ = s.do(http.MethodPut, base+"/estimated-time", ownerKey, map[string]int{"estimatedMinutes": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodPut, base+"/checkin", customerKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeOrder(t, resp).CustomerCheckedIn)

	code, _ = s.do(http.MethodPut, base+"/checkin", customerKey, nil)
	assert.Equal(t, http.StatusConflict, code)

	for _, st := range []string{"PREPARING", "READY"} {
		code, _ = s.do(http.MethodPut, base+"/status", ownerKey, map[string]string{"status": st})
		require.Equal(t, http.StatusOK, code)
	}

	code, resp = s.do(http.MethodPut, base+"/verify-pickup", ownerKey, map[string]string{"pickupCode": "000000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid pickup code", resp.Message)

	code, resp = s.do(http.MethodPut, base+"/verify-pickup", ownerKey, map[string]string{"pickupCode": o.PickupCode})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PICKED_UP", decodeOrder(t, resp).Status)
	assert.Empty(t, decodeOrder(t, resp).AllowedNextStatuses)

	code, resp = s.do(http.MethodPut, base+"/estimated-time", ownerKey, map[string]int{"estimatedMinutes": 5})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "order is closed", resp.Message)

	inbox := s.db.Notifications(context.Background(), "cust-1")
	assert.NotEmpty(t, inbox)
}

func TestApplyCoupon(t *testing.T) {
	s := newServer(t)
	now := time.Now()
	maxUses := 1
	require.NoError(t, s.db.Promotions().PutPromotion(context.Background(), promotion.Promotion{
		ID: "promo-1", StoreID: "s1", Code: "SAVE10", Type: promotion.TypePercentage,
		Value: decimal.NewFromInt(10), MaxUses: &maxUses,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), Active: true,
	}))

	first := s.create(item("P", 2), item("Q", 3))
	second := s.create(item("Q", 1))

	code, resp := s.do(http.MethodPost, "/api/orders/"+first.ID+"/apply-coupon", customerKey, map[string]string{"couponCode": "save10"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	o := decodeOrder(t, resp)
	require.NotNil(t, o.DiscountAmount)
	assert.Equal(t, "1.55", *o.DiscountAmount)
	assert.Equal(t, "15.25", o.Total)

	code, _ = s.do(http.MethodPost, "/api/orders/"+first.ID+"/apply-coupon", customerKey, map[string]string{"couponCode": "SAVE10"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/orders/"+second.ID+"/apply-coupon", customerKey, map[string]string{"couponCode": "SAVE10"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/orders/"+second.ID+"/apply-coupon", customerKey, map[string]string{"couponCode": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, code)

	minimum := decimal.NewFromInt(50)
	require.NoError(t, s.db.Promotions().PutPromotion(context.Background(), promotion.Promotion{
		ID: "promo-2", StoreID: "s1", Code: "BIGSPENDER", Type: promotion.TypeFixedAmount,
		Value: decimal.NewFromInt(5), MinOrderAmount: &minimum,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), Active: true,
	}))
	code, resp = s.do(http.MethodPost, "/api/orders/"+second.ID+"/apply-coupon", customerKey, map[string]string{"couponCode": "BIGSPENDER"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "minimum order amount not met. Minimum: 50.00, Subtotal: 2.50", resp.Message)
}

func TestReorder(t *testing.T) {
	s := newServer(t)
	o := s.create(item("P", 1), item("Q", 1))

	_, err := s.db.Catalog().DecrementStock(context.Background(), "Q", 13)
	require.NoError(t, err)
	s.db.Catalog().PutProduct(context.Background(), product.Product{
		ID: "P", StoreID: "s1", Name: "Oat Milk", Price: decimal.RequireFromString("3.99"),
		StockQuantity: 19, Active: false,
	})

	code, resp := s.do(http.MethodPost, "/api/orders/"+o.ID+"/reorder", customerKey, nil)
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var payload struct {
		Order            orderJSON `json:"order"`
		UnavailableItems []struct {
			ProductID string `json:"productId"`
			Reason    string `json:"reason"`
		} `json:"unavailableItems"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &payload))
	require.Len(t, payload.Order.Items, 1)
	assert.Equal(t, "Q", payload.Order.Items[0].ProductID)
	require.Len(t, payload.UnavailableItems, 1)
	assert.Equal(t, "P", payload.UnavailableItems[0].ProductID)
	assert.Equal(t, "Product is no longer available", payload.UnavailableItems[0].Reason)

	code, _ = s.do(http.MethodPost, "/api/orders/"+o.ID+"/reorder", strangerKey, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRouter_Fallbacks(t *testing.T) {
	s := newServer(t)

	code, resp := s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "route not found", resp.Message)

	code, _ = s.do(http.MethodDelete, "/api/orders/x", customerKey, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = s.do(http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

type failingKeys struct{}

func (failingKeys) FindByHash(context.Context, string) (*auth.APIKeyInfo, error) {
	return nil, errors.New("connection reset")
}

func TestAuthenticator_RepositoryFailure(t *testing.T) {
	a := handler.NewAuthenticator(failingKeys{}, pepper)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(handler.APIKeyHeader, customerKey)
	w := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"internal server error"}`, w.Body.String())
}

func TestAuthenticator_RejectsUnknownRole(t *testing.T) {
	db := memory.New()
	db.APIKeys().PutAPIKey(context.Background(), auth.APIKeyInfo{
		ID: "k", KeyHash: auth.HashKey("guest-key", pepper), UserID: "guest-1", Role: auth.Role("guest"),
	})
	a := handler.NewAuthenticator(db.APIKeys(), pepper)

	_, err := a.Authenticate(context.Background(), "guest-key")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	id, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Zero(t, id)
}
