package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/cornermart/pickup/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

// Orders implements order.Repository on a DB.
type Orders struct {
	db *DB
}

// Orders returns the order view of db.
func (db *DB) Orders() *Orders {
	return &Orders{db: db}
}

func copyOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// Create stores o. Order ids and numbers must be unique.
func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	defer r.db.lock(ctx)()

	if _, ok := r.db.state.orders[o.ID]; ok {
		return fmt.Errorf("create order %q: duplicate id", o.ID)
	}
	for _, existing := range r.db.state.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("create order %q: duplicate number %s", o.ID, o.Number)
		}
	}
	r.db.state.orders[o.ID] = copyOrder(*o)
	return nil
}

// Get returns a copy of the order with id.
func (r *Orders) Get(ctx context.Context, id string) (*order.Order, error) {
	defer r.db.lock(ctx)()

	o, ok := r.db.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("get order %q: %w", id, order.ErrNotFound)
	}
	o = copyOrder(o)
	return &o, nil
}

// GetForUpdate is Get. Transactions already hold the database lock.
func (r *Orders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

// Update replaces the mutable fields of the stored order.
func (r *Orders) Update(ctx context.Context, o *order.Order) error {
	defer r.db.lock(ctx)()

	stored, ok := r.db.state.orders[o.ID]
	if !ok {
		return fmt.Errorf("update order %q: %w", o.ID, order.ErrNotFound)
	}
	stored.Status = o.Status
	stored.DiscountAmount = o.DiscountAmount
	stored.Total = o.Total
	stored.PromotionID = o.PromotionID
	stored.EstimatedReadyTime = o.EstimatedReadyTime
	stored.CustomerCheckedIn = o.CustomerCheckedIn
	stored.CheckedInAt = o.CheckedInAt
	stored.UpdatedAt = o.UpdatedAt
	r.db.state.orders[o.ID] = stored
	return nil
}

// List returns the orders matching f, newest first.
func (r *Orders) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	defer r.db.lock(ctx)()

	var matched []order.Order
	for _, o := range r.db.state.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.StoreID != "" && o.StoreID != f.StoreID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.OwnerID != "" {
			if s, ok := r.db.state.stores[o.StoreID]; !ok || s.OwnerID != f.OwnerID {
				continue
			}
		}
		matched = append(matched, copyOrder(o))
	}

	slices.SortFunc(matched, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}
