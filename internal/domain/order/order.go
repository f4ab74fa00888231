package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is one customer's pickup transaction against one store.
type Order struct {
	ID                 string
	Number             string
	CustomerID         string
	StoreID            string
	Status             Status
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	DiscountAmount     *decimal.Decimal
	Total              decimal.Decimal
	PickupTime         *time.Time
	EstimatedReadyTime *time.Time
	PickupCode         string
	CustomerCheckedIn  bool
	CheckedInAt        *time.Time
	PromotionID        string
	Notes              string
	Items              []Item
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Item is a line of an order. Unit price and product name are snapshots
// taken at order time and never change afterwards.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Discount returns the discount amount, zero when no promotion is applied.
func (o *Order) Discount() decimal.Decimal {
	if o.DiscountAmount == nil {
		return decimal.Zero
	}
	return *o.DiscountAmount
}

// Filter narrows order listings. Empty fields are ignored.
type Filter struct {
	CustomerID string
	// OwnerID restricts results to stores owned by the user.
	OwnerID string
	StoreID string
	Status  Status
	Offset  int
	Limit   int
}

// Repository persists orders and their items.
type Repository interface {
	// Create inserts the order together with its items.
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its items or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate is Get that also locks the order row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update writes the mutable order fields. Items are never updated.
	Update(ctx context.Context, o *Order) error
	// List returns a page of orders matching f, newest first, and the total
	// number of matches.
	List(ctx context.Context, f Filter) ([]Order, int, error)
}

// UnitOfWork runs fn in a transaction. Repositories called with the ctx
// passed to fn take part in that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
