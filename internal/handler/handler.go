// Package handler exposes the fulfillment service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/order"
)

// Handler serves the /api/orders endpoints, delegating business logic to the
// order service.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler backed by orders.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Routes registers the order endpoints on r. Callers must already be
// authenticated; role gating happens per route.
func (h *Handler) Routes(r chi.Router) {
	customer := RequireRole(auth.RoleCustomer)
	owner := RequireRole(auth.RoleStoreOwner)

	r.Get("/", h.listOrders)
	r.With(customer).Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.With(owner).Put("/{orderID}/status", h.updateStatus)
	r.With(customer).Post("/{orderID}/reorder", h.reorder)
	r.With(customer).Put("/{orderID}/checkin", h.checkIn)
	r.With(owner).Put("/{orderID}/verify-pickup", h.verifyPickup)
	r.With(owner).Put("/{orderID}/estimated-time", h.setEstimatedTime)
	r.With(customer).Post("/{orderID}/apply-coupon", h.applyCoupon)
}

// RouterConfig holds the parts of the HTTP surface.
type RouterConfig struct {
	Orders *Handler
	Auth   *Authenticator
	// Livez and Readyz serve the health probes when set.
	Livez  http.HandlerFunc
	Readyz http.HandlerFunc
	// Middlewares run inside the router, where the matched route pattern
	// is known.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter builds the root router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(cfg.Middlewares...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if cfg.Livez != nil {
		r.Get("/livez", cfg.Livez)
	}
	if cfg.Readyz != nil {
		r.Get("/readyz", cfg.Readyz)
	}
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)
		cfg.Orders.Routes(r)
	})
	return r
}
