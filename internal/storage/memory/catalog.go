package memory

import (
	"context"
	"fmt"

	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/store"
)

var (
	_ product.Catalog = (*Catalog)(nil)
	_ store.Reader    = (*Stores)(nil)
)

// Catalog implements product.Catalog on a DB.
type Catalog struct {
	db *DB
}

// Catalog returns the product catalog view of db.
func (db *DB) Catalog() *Catalog {
	return &Catalog{db: db}
}

// PutProduct inserts or replaces p.
func (c *Catalog) PutProduct(ctx context.Context, p product.Product) {
	defer c.db.lock(ctx)()
	c.db.state.products[p.ID] = p
}

// Product returns the stored product with id, including inactive ones.
func (c *Catalog) Product(ctx context.Context, id string) (product.Product, bool) {
	defer c.db.lock(ctx)()
	p, ok := c.db.state.products[id]
	return p, ok
}

// FindActiveByIDs returns the active products among ids in request order.
func (c *Catalog) FindActiveByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer c.db.lock(ctx)()

	seen := make(map[string]struct{}, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := c.db.state.products[id]; ok && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// DecrementStock subtracts qty when at least qty units are in stock.
func (c *Catalog) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	defer c.db.lock(ctx)()

	p, ok := c.db.state.products[productID]
	if !ok {
		return 0, fmt.Errorf("decrement stock %q: %w", productID, product.ErrNotFound)
	}
	if p.StockQuantity < qty {
		return 0, &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Available: p.StockQuantity,
			Requested: qty,
		}
	}
	p.StockQuantity -= qty
	c.db.state.products[productID] = p
	return p.StockQuantity, nil
}

// IncrementStock adds qty to the product's stock.
func (c *Catalog) IncrementStock(ctx context.Context, productID string, qty int) error {
	defer c.db.lock(ctx)()

	p, ok := c.db.state.products[productID]
	if !ok {
		return fmt.Errorf("increment stock %q: %w", productID, product.ErrNotFound)
	}
	p.StockQuantity += qty
	c.db.state.products[productID] = p
	return nil
}

// Stores implements store.Reader on a DB.
type Stores struct {
	db *DB
}

// Stores returns the store view of db.
func (db *DB) Stores() *Stores {
	return &Stores{db: db}
}

// PutStore inserts or replaces s.
func (r *Stores) PutStore(ctx context.Context, s store.Store) {
	defer r.db.lock(ctx)()
	r.db.state.stores[s.ID] = s
}

// Get returns the store with id or store.ErrNotFound.
func (r *Stores) Get(ctx context.Context, id string) (*store.Store, error) {
	defer r.db.lock(ctx)()

	s, ok := r.db.state.stores[id]
	if !ok {
		return nil, fmt.Errorf("get store %q: %w", id, store.ErrNotFound)
	}
	return &s, nil
}
