package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cornermart/pickup/internal/domain/order"
)

const (
	orderColumns = `o.id, o.order_number, o.customer_id, o.store_id, o.status, o.subtotal, o.tax,
		o.discount_amount, o.total, o.pickup_time, o.estimated_ready_time, COALESCE(o.pickup_code, ''),
		o.customer_checked_in, o.checked_in_at, COALESCE(o.promotion_id, ''), o.notes,
		o.created_at, o.updated_at`

	insertOrderSQL = `INSERT INTO orders (id, order_number, customer_id, store_id, status, subtotal, tax,
			discount_amount, total, pickup_time, estimated_ready_time, pickup_code, customer_checked_in,
			checked_in_at, promotion_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, NULLIF($15, ''), $16, $17, $18)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, product_name, quantity,
			unit_price, total_price, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderSQL = `UPDATE orders SET status = $2, discount_amount = $3, total = $4,
			promotion_id = NULLIF($5, ''), estimated_ready_time = $6, customer_checked_in = $7,
			checked_in_at = $8, updated_at = $9
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order row and its items in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.Number, o.CustomerID, o.StoreID, string(o.Status), o.Subtotal, o.Tax,
		o.DiscountAmount, o.Total, o.PickupTime, o.EstimatedReadyTime, o.PickupCode, o.CustomerCheckedIn,
		o.CheckedInAt, o.PromotionID, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	for i, item := range o.Items {
		b.Queue(insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice, item.TotalPrice, i,
		)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate returns the order with its items and locks the order row.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("getting order %q: %w", id, order.ErrNotFound)
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// Update writes the mutable fields of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.DiscountAmount, o.Total, o.PromotionID,
		o.EstimatedReadyTime, o.CustomerCheckedIn, o.CheckedInAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating order %q: %w", o.ID, order.ErrNotFound)
	}
	return nil
}

// List returns one page of orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.CustomerID != "" {
		where = append(where, "o.customer_id = "+arg(f.CustomerID))
	}
	if f.StoreID != "" {
		where = append(where, "o.store_id = "+arg(f.StoreID))
	}
	if f.Status != "" {
		where = append(where, "o.status = "+arg(string(f.Status)))
	}
	if f.OwnerID != "" {
		where = append(where, "o.store_id IN (SELECT id FROM stores WHERE owner_id = "+arg(f.OwnerID)+")")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, "SELECT count(*) FROM orders o"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders o" + clause +
		" ORDER BY o.created_at DESC, o.order_number DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// attachItems loads the items of all orders with a single query.
func (r *OrderRepository) attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.StoreID, &status, &o.Subtotal, &o.Tax,
		&o.DiscountAmount, &o.Total, &o.PickupTime, &o.EstimatedReadyTime, &o.PickupCode,
		&o.CustomerCheckedIn, &o.CheckedInAt, &o.PromotionID, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice)
	return it, err
}
