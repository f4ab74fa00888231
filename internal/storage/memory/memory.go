// Package memory implements every storage contract of the fulfillment core
// in process memory. Transactions are serialized behind a single mutex and
// roll back by restoring a snapshot of the state taken when they began.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
	"github.com/cornermart/pickup/internal/domain/order"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/promotion"
	"github.com/cornermart/pickup/internal/domain/store"
)

var (
	_ order.UnitOfWork = (*DB)(nil)
	_ notify.Notifier  = (*DB)(nil)
)

type state struct {
	stores        map[string]store.Store
	products      map[string]product.Product
	promotions    map[string]promotion.Promotion
	orders        map[string]order.Order
	apiKeys       map[string]auth.APIKeyInfo
	notifications []notify.Notification
}

// clone copies the maps. Values are replaced rather than mutated in place,
// so a shallow copy is a consistent snapshot.
func (s *state) clone() state {
	return state{
		stores:        maps.Clone(s.stores),
		products:      maps.Clone(s.products),
		promotions:    maps.Clone(s.promotions),
		orders:        maps.Clone(s.orders),
		apiKeys:       maps.Clone(s.apiKeys),
		notifications: slices.Clone(s.notifications),
	}
}

// DB is an in-memory database. The zero value is not usable; use New.
type DB struct {
	mu    sync.Mutex
	state state
}

// New returns an empty DB.
func New() *DB {
	return &DB{state: state{
		stores:     make(map[string]store.Store),
		products:   make(map[string]product.Product),
		promotions: make(map[string]promotion.Promotion),
		orders:     make(map[string]order.Order),
		apiKeys:    make(map[string]auth.APIKeyInfo),
	}}
}

type txKey struct{}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// lock acquires the mutex unless ctx already belongs to a transaction of db.
func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// RunInTx runs fn with exclusive access to the database. Any error returned
// by fn, or cancellation of ctx before fn returns, discards fn's writes.
// Nested calls join the outer transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "begin")
	}

	snapshot := db.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		db.state = snapshot
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Ping always succeeds. It lets DB serve as a readiness dependency.
func (db *DB) Ping(context.Context) error {
	return nil
}
