package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/order"
)

type lineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	StoreID    string        `json:"storeId"`
	Items      []lineRequest `json:"items"`
	PickupTime *time.Time    `json:"pickupTime"`
	Notes      string        `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type verifyPickupRequest struct {
	PickupCode string `json:"pickupCode"`
}

type estimatedTimeRequest struct {
	EstimatedMinutes int `json:"estimatedMinutes"`
}

type applyCouponRequest struct {
	CouponCode string `json:"couponCode"`
}

type itemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	TotalPrice  string `json:"totalPrice"`
}

type orderPayload struct {
	ID                 string        `json:"id"`
	OrderNumber        string        `json:"orderNumber"`
	CustomerID         string        `json:"customerId"`
	StoreID            string        `json:"storeId"`
	Status             string        `json:"status"`
	StatusMessage      string        `json:"statusMessage,omitempty"`
	AllowedNext        []string      `json:"allowedNextStatuses"`
	Subtotal           string        `json:"subtotal"`
	Tax                string        `json:"tax"`
	DiscountAmount     *string       `json:"discountAmount"`
	Total              string        `json:"total"`
	PickupTime         *time.Time    `json:"pickupTime,omitempty"`
	EstimatedReadyTime *time.Time    `json:"estimatedReadyTime,omitempty"`
	PickupCode         string        `json:"pickupCode,omitempty"`
	CustomerCheckedIn  bool          `json:"customerCheckedIn"`
	CheckedInAt        *time.Time    `json:"checkedInAt,omitempty"`
	PromotionID        string        `json:"promotionId,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	Items              []itemPayload `json:"items"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

type unavailablePayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
}

type reorderPayload struct {
	Order            orderPayload         `json:"order"`
	UnavailableItems []unavailablePayload `json:"unavailableItems"`
}

// buildOrderPayload renders o for caller. The pickup code is shown only to
// the customer, who presents it at the counter.
func buildOrderPayload(caller auth.Identity, o *order.Order) orderPayload {
	p := orderPayload{
		ID:                 o.ID,
		OrderNumber:        o.Number,
		CustomerID:         o.CustomerID,
		StoreID:            o.StoreID,
		Status:             string(o.Status),
		StatusMessage:      order.CustomerMessage(o.Status),
		AllowedNext:        []string{},
		Subtotal:           o.Subtotal.StringFixed(2),
		Tax:                o.Tax.StringFixed(2),
		Total:              o.Total.StringFixed(2),
		PickupTime:         o.PickupTime,
		EstimatedReadyTime: o.EstimatedReadyTime,
		CustomerCheckedIn:  o.CustomerCheckedIn,
		CheckedInAt:        o.CheckedInAt,
		PromotionID:        o.PromotionID,
		Notes:              o.Notes,
		Items:              make([]itemPayload, len(o.Items)),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	for _, s := range order.AllowedNext(o.Status) {
		p.AllowedNext = append(p.AllowedNext, string(s))
	}
	if o.DiscountAmount != nil {
		d := o.DiscountAmount.StringFixed(2)
		p.DiscountAmount = &d
	}
	if caller.UserID == o.CustomerID {
		p.PickupCode = o.PickupCode
	}
	for i, it := range o.Items {
		p.Items[i] = itemPayload{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			TotalPrice:  it.TotalPrice.StringFixed(2),
		}
	}
	return p
}

// caller returns the authenticated identity. The auth middleware guarantees
// one is present.
func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func orderID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderID"))
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !readJSON(w, r, &req) {
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.LineRequest{ProductID: strings.TrimSpace(it.ProductID), Quantity: it.Quantity}
	}

	id := caller(r)
	o, err := h.orders.CreateOrder(r.Context(), id, order.CreateRequest{
		StoreID:    strings.TrimSpace(req.StoreID),
		Items:      lines,
		PickupTime: req.PickupTime,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, buildOrderPayload(id, o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	o, err := h.orders.Get(r.Context(), id, orderID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := order.ListQuery{
		Status:  order.Status(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
		StoreID: strings.TrimSpace(query.Get("storeId")),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &q.Page},
		{"limit", &q.Limit},
	} {
		raw := strings.TrimSpace(query.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeMessage(w, http.StatusBadRequest, p.name+" must be a positive integer")
			return
		}
		*p.dst = v
	}

	id := caller(r)
	page, err := h.orders.List(r.Context(), id, q)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	data := make([]orderPayload, len(page.Orders))
	for i := range page.Orders {
		data[i] = buildOrderPayload(id, &page.Orders[i])
	}
	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Data:   data,
		Pagination: &pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !readJSON(w, r, &req) {
		return
	}
	status := order.Status(strings.ToUpper(strings.TrimSpace(req.Status)))

	id := caller(r)
	o, err := h.orders.UpdateStatus(r.Context(), id, orderID(r), status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	res, err := h.orders.Reorder(r.Context(), id, orderID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	payload := reorderPayload{
		Order:            buildOrderPayload(id, res.Order),
		UnavailableItems: make([]unavailablePayload, len(res.Unavailable)),
	}
	for i, u := range res.Unavailable {
		payload.UnavailableItems[i] = unavailablePayload(u)
	}
	writeData(w, http.StatusCreated, payload)
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	o, err := h.orders.CheckIn(r.Context(), id, orderID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}

func (h *Handler) verifyPickup(w http.ResponseWriter, r *http.Request) {
	var req verifyPickupRequest
	if !readJSON(w, r, &req) {
		return
	}

	id := caller(r)
	o, err := h.orders.VerifyPickup(r.Context(), id, orderID(r), req.PickupCode)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}

func (h *Handler) setEstimatedTime(w http.ResponseWriter, r *http.Request) {
	var req estimatedTimeRequest
	if !readJSON(w, r, &req) {
		return
	}

	id := caller(r)
	o, err := h.orders.SetEstimatedTime(r.Context(), id, orderID(r), req.EstimatedMinutes)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !readJSON(w, r, &req) {
		return
	}

	id := caller(r)
	o, err := h.orders.ApplyCoupon(r.Context(), id, orderID(r), req.CouponCode)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(id, o))
}
