package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/store"
)

const (
	findActiveProductsSQL = `SELECT id, store_id, name, price, stock_quantity, low_stock_threshold, is_active
		FROM products WHERE id = ANY($1) AND is_active`

	// The stock check and the decrement are one statement. Under READ
	// COMMITTED a concurrent writer holding the row makes this wait and then
	// re-evaluate the predicate against the committed stock.
	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`

	productStockSQL = `SELECT name, stock_quantity FROM products WHERE id = $1`

	incrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, store_id, name, price, stock_quantity, low_stock_threshold, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, name = EXCLUDED.name,
			price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity,
			low_stock_threshold = EXCLUDED.low_stock_threshold, is_active = EXCLUDED.is_active,
			updated_at = now()`

	getStoreSQL = `SELECT id, owner_id, name, is_active FROM stores WHERE id = $1`

	upsertStoreSQL = `INSERT INTO stores (id, owner_id, name, is_active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name, is_active = EXCLUDED.is_active`
)

var (
	_ product.Catalog = (*CatalogRepository)(nil)
	_ store.Reader    = (*StoreRepository)(nil)
)

// CatalogRepository implements product.Catalog backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// FindActiveByIDs returns the active products among ids.
func (r *CatalogRepository) FindActiveByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findActiveProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock subtracts qty from the product's stock when enough is
// available and returns what remains.
func (r *CatalogRepository) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	q := conn(ctx, r.pool)

	var remaining int
	err := q.QueryRow(ctx, decrementStockSQL, productID, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}

	var (
		name      string
		available int
	)
	if err := q.QueryRow(ctx, productStockSQL, productID).Scan(&name, &available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("decrementing stock of %q: %w", productID, product.ErrNotFound)
		}
		return 0, fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	return 0, &product.InsufficientStockError{
		ProductID: productID,
		Name:      name,
		Available: available,
		Requested: qty,
	}
}

// IncrementStock adds qty to the product's stock.
func (r *CatalogRepository) IncrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, incrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incrementing stock of %q: %w", productID, product.ErrNotFound)
	}
	return nil
}

// Upsert inserts p or overwrites the stored product with the same id.
func (r *CatalogRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.StoreID, p.Name, p.Price, p.StockQuantity, p.LowStockThreshold, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.StockQuantity, &p.LowStockThreshold, &p.Active)
	return p, err
}

// StoreRepository implements store.Reader backed by PostgreSQL.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository returns a StoreRepository that uses the given pool.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// Get returns the store with id.
func (r *StoreRepository) Get(ctx context.Context, id string) (*store.Store, error) {
	var s store.Store
	err := conn(ctx, r.pool).QueryRow(ctx, getStoreSQL, id).Scan(&s.ID, &s.OwnerID, &s.Name, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("getting store %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	return &s, nil
}

// Upsert inserts s or overwrites the stored store with the same id.
func (r *StoreRepository) Upsert(ctx context.Context, s store.Store) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertStoreSQL, s.ID, s.OwnerID, s.Name, s.Active); err != nil {
		return fmt.Errorf("upserting store %q: %w", s.ID, err)
	}
	return nil
}
