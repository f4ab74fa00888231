package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/store"
)

// LineRequest is one requested product and quantity.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	StoreID    string
	Items      []LineRequest
	PickupTime *time.Time
	Notes      string
}

// UnavailableItem is a line of a past order that could not be reordered.
type UnavailableItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	Reason      string
}

// ReorderResult is the new order and the lines that were left out of it.
type ReorderResult struct {
	Order       *Order
	Unavailable []UnavailableItem
}

// line is a validated request line joined with its live product.
type line struct {
	product  product.Product
	quantity int
}

// CreateOrder validates req, reserves stock and persists the order in one
// transaction, then notifies the store owner.
func (s *Service) CreateOrder(ctx context.Context, caller auth.Identity, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.String("store.id", req.StoreID)),
	)
	defer span.End()

	if caller.UserID == "" {
		return nil, ErrForbidden
	}

	requested, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}
	if req.StoreID == "" {
		return nil, invalidRequest("store id is required")
	}

	st, err := s.activeStore(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(requested))
	for i, item := range requested {
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.catalog.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := productMap[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &ProductsNotFoundError{ProductIDs: missing}
	}

	lines := make([]line, len(requested))
	for i, item := range requested {
		p := productMap[item.ProductID]
		if p.StoreID != st.ID {
			return nil, ErrCrossStoreViolation
		}
		lines[i] = line{product: p, quantity: item.Quantity}
	}

	for _, l := range lines {
		if l.quantity > l.product.StockQuantity {
			s.metrics.stockConflict.Add(ctx, 1)
			return nil, &product.InsufficientStockError{
				ProductID: l.product.ID,
				Name:      l.product.Name,
				Available: l.product.StockQuantity,
				Requested: l.quantity,
			}
		}
	}

	o, err := s.newOrder(caller.UserID, st.ID, lines)
	if err != nil {
		return nil, err
	}
	o.PickupTime = req.PickupTime
	o.Notes = req.Notes

	if err := s.place(ctx, st, o, lines); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	return o, nil
}

// Reorder places a new order with the lines of a past order that are still
// purchasable, at current prices.
func (s *Service) Reorder(ctx context.Context, caller auth.Identity, orderID string) (*ReorderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Reorder",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	past, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if err := requireCustomer(caller, past); err != nil {
		return nil, err
	}

	st, err := s.activeStore(ctx, past.StoreID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(past.Items))
	for i, item := range past.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.catalog.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	var (
		lines       []line
		unavailable []UnavailableItem
	)
	for _, item := range past.Items {
		p, ok := productMap[item.ProductID]
		switch {
		case !ok || p.StoreID != past.StoreID:
			unavailable = append(unavailable, UnavailableItem{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				Reason:      "Product is no longer available",
			})
		case p.StockQuantity < item.Quantity:
			unavailable = append(unavailable, UnavailableItem{
				ProductID:   item.ProductID,
				ProductName: p.Name,
				Quantity:    item.Quantity,
				Reason:      fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", p.StockQuantity, item.Quantity),
			})
		default:
			lines = append(lines, line{product: p, quantity: item.Quantity})
		}
	}
	if len(lines) == 0 {
		return nil, ErrNoItemsAvailable
	}

	o, err := s.newOrder(caller.UserID, st.ID, lines)
	if err != nil {
		return nil, err
	}
	if err := s.place(ctx, st, o, lines); err != nil {
		return nil, err
	}
	return &ReorderResult{Order: o, Unavailable: unavailable}, nil
}

// mergeLines validates quantities and folds repeated product ids into one
// line, keeping first-seen order.
func mergeLines(items []LineRequest) ([]LineRequest, error) {
	if len(items) == 0 {
		return nil, invalidRequest("at least one item is required")
	}
	merged := make([]LineRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, invalidRequest("product id is required")
		}
		if item.Quantity <= 0 {
			return nil, invalidRequest("quantity must be greater than 0 for product %s", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func (s *Service) activeStore(ctx context.Context, id string) (*store.Store, error) {
	st, err := s.stores.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get store")
	}
	if !st.Active {
		return nil, ErrStoreInactive
	}
	return st, nil
}

// newOrder prices lines at their snapshot prices and builds a PENDING order.
func (s *Service) newOrder(customerID, storeID string, lines []line) (*Order, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, errors.Wrap(err, "generate pickup code")
	}

	now := s.now()
	o := &Order{
		ID:         uuid.NewString(),
		Number:     NewOrderNumber(),
		CustomerID: customerID,
		StoreID:    storeID,
		Status:     StatusPending,
		PickupCode: code,
		Items:      make([]Item, len(lines)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	subtotal := decimal.Zero
	for i, l := range lines {
		lineTotal := l.product.Price.Mul(decimal.NewFromInt(int64(l.quantity)))
		o.Items[i] = Item{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   l.product.ID,
			ProductName: l.product.Name,
			Quantity:    l.quantity,
			UnitPrice:   l.product.Price,
			TotalPrice:  lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	o.Subtotal = subtotal.Round(2)
	o.Tax = CalculateTax(o.Subtotal, s.taxRate)
	o.Total = CalculateTotal(o.Subtotal, o.Tax, decimal.Zero)
	return o, nil
}

// place decrements stock for every line and inserts o in one transaction.
// Products are decremented in id order so concurrent orders lock rows in
// the same sequence.
func (s *Service) place(ctx context.Context, st *store.Store, o *Order, lines []line) error {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b line) int {
		switch {
		case a.product.ID < b.product.ID:
			return -1
		case a.product.ID > b.product.ID:
			return 1
		}
		return 0
	})

	var remaining map[string]int
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		remaining = make(map[string]int, len(sorted))
		for _, l := range sorted {
			left, err := s.catalog.DecrementStock(ctx, l.product.ID, l.quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement stock for %s", l.product.ID)
			}
			remaining[l.product.ID] = left
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if err != nil {
		var stockErr *product.InsufficientStockError
		if errors.As(err, &stockErr) {
			s.metrics.stockConflict.Add(ctx, 1)
			return stockErr
		}
		return err
	}
	s.metrics.created.Add(ctx, 1)

	s.notify(ctx, notify.Notification{
		UserID:  st.OwnerID,
		Type:    notify.TypeNewOrder,
		Title:   "New order received",
		Message: fmt.Sprintf("New order %s with %d item(s), total $%s", o.Number, len(o.Items), o.Total.StringFixed(2)),
		OrderID: o.ID,
	})
	for _, l := range lines {
		left := remaining[l.product.ID]
		if !l.product.IsLowStock(left) {
			continue
		}
		s.notify(ctx, notify.Notification{
			UserID:  st.OwnerID,
			Type:    notify.TypeLowStock,
			Title:   "Low stock alert",
			Message: fmt.Sprintf("%s is running low (%d left)", l.product.Name, left),
			OrderID: o.ID,
		})
	}
	return nil
}
