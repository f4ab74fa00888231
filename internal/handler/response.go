package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/order"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/promotion"
	"github.com/cornermart/pickup/internal/domain/store"
)

const maxBodySize = 64 << 10

type envelope struct {
	Status     string      `json:"status"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// errorStatuses is checked in order; the first match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{order.ErrForbidden, http.StatusForbidden},
	{order.ErrNotFound, http.StatusNotFound},
	{store.ErrNotFound, http.StatusNotFound},
	{product.ErrNotFound, http.StatusNotFound},
	{order.ErrAlreadyCheckedIn, http.StatusConflict},
	{order.ErrDuplicatePromotion, http.StatusConflict},
	{promotion.ErrCouponExhausted, http.StatusConflict},
	{order.ErrInvalidRequest, http.StatusBadRequest},
	{order.ErrStoreInactive, http.StatusBadRequest},
	{order.ErrCrossStoreViolation, http.StatusBadRequest},
	{product.ErrInsufficientStock, http.StatusBadRequest},
	{order.ErrInvalidTransition, http.StatusBadRequest},
	{order.ErrOrderClosed, http.StatusBadRequest},
	{order.ErrInvalidPickupCode, http.StatusBadRequest},
	{order.ErrNoItemsAvailable, http.StatusBadRequest},
	{promotion.ErrInvalidOrExpiredCoupon, http.StatusBadRequest},
	{promotion.ErrMinimumNotMet, http.StatusBadRequest},
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, envelope{Status: "error", Message: msg, Errors: details})
}

// writeError renders err with the status of its kind. Unknown errors are
// logged and hidden from the client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			writeMessage(w, e.status, rootMessage(err))
			return
		}
	}
	zctx.From(ctx).Error("Request failed", zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

// rootMessage returns the text of the innermost error, dropping the context
// added by wrapping layers.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// readJSON decodes a size-limited JSON body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeMessage(w, http.StatusBadRequest, "request body is required")
		default:
			writeMessage(w, http.StatusBadRequest, "invalid request body", err.Error())
		}
		return false
	}
	return true
}
