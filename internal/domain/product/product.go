package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a stock decrement would drive the
	// quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a read snapshot of a catalog item as seen by the fulfillment
// core. Prices are copied into order items at order time and never re-read.
type Product struct {
	ID                string
	StoreID           string
	Name              string
	Price             decimal.Decimal
	StockQuantity     int
	LowStockThreshold int
	Active            bool
}

// IsLowStock reports whether remaining stock is at or below the threshold.
func (p Product) IsLowStock(remaining int) bool {
	return remaining <= p.LowStockThreshold
}

// InsufficientStockError carries the product and counts involved in a failed
// reservation. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

// Is makes InsufficientStockError match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Catalog is the read-mostly view of the product catalog the fulfillment
// core depends on. Stock adjustments are relative and run inside the caller's
// transaction when one is present in ctx.
type Catalog interface {
	// FindActiveByIDs returns the active products among ids. Missing or
	// inactive ids are simply absent from the result.
	FindActiveByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock subtracts qty and returns the remaining stock. It returns
	// an *InsufficientStockError when fewer than qty units are available.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
	// IncrementStock adds qty back to the product's stock.
	IncrementStock(ctx context.Context, productID string, qty int) error
}
