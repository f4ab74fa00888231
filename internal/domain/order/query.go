package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/cornermart/pickup/internal/domain/auth"
)

const (
	// DefaultPageLimit is the page size used when ListQuery.Limit is zero.
	DefaultPageLimit = 20
	// MaxPageLimit is the largest page size List accepts.
	MaxPageLimit     = 100
)

// ListQuery holds the caller-supplied listing filters. Zero Page and Limit
// select the defaults.
type ListQuery struct {
	Status  Status
	StoreID string
	Page    int
	Limit   int
}

// Page is one page of orders.
type Page struct {
	Orders     []Order
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// Get returns the order if caller may see it: customers their own orders,
// store owners the orders of their stores and admins every order.
func (s *Service) Get(ctx context.Context, caller auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	switch caller.Role {
	case auth.RoleAdmin:
		return o, nil
	case auth.RoleCustomer:
		if err := requireCustomer(caller, o); err != nil {
			return nil, err
		}
		return o, nil
	case auth.RoleStoreOwner:
		if _, err := s.ownedStore(ctx, caller, o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, ErrForbidden
	}
}

// List returns the orders visible to caller matching q, newest first.
func (s *Service) List(ctx context.Context, caller auth.Identity, q ListQuery) (*Page, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	switch {
	case q.Page < 1:
		return nil, invalidRequest("page must be at least 1")
	case q.Limit < 1 || q.Limit > MaxPageLimit:
		return nil, invalidRequest("limit must be between 1 and %d", MaxPageLimit)
	case q.Status != "" && !q.Status.Valid():
		return nil, invalidRequest("unknown order status %q", q.Status)
	}

	f := Filter{
		StoreID: q.StoreID,
		Status:  q.Status,
		Offset:  (q.Page - 1) * q.Limit,
		Limit:   q.Limit,
	}
	switch caller.Role {
	case auth.RoleAdmin:
	case auth.RoleCustomer:
		f.CustomerID = caller.UserID
	case auth.RoleStoreOwner:
		f.OwnerID = caller.UserID
	default:
		return nil, ErrForbidden
	}
	if caller.UserID == "" {
		return nil, ErrForbidden
	}

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{
		Orders:     orders,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}
