package memory

import (
	"context"
	"fmt"

	"github.com/cornermart/pickup/internal/domain/promotion"
)

var _ promotion.Repository = (*Promotions)(nil)

// Promotions implements promotion.Repository on a DB.
type Promotions struct {
	db *DB
}

// Promotions returns the promotion view of db.
func (db *DB) Promotions() *Promotions {
	return &Promotions{db: db}
}

// PutPromotion inserts or replaces p after validating it.
func (r *Promotions) PutPromotion(ctx context.Context, p promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Code = promotion.NormalizeCode(p.Code)

	defer r.db.lock(ctx)()
	for _, existing := range r.db.state.promotions {
		if existing.ID != p.ID && p.Code != "" && existing.StoreID == p.StoreID && existing.Code == p.Code {
			return fmt.Errorf("put promotion %q: code %s already used in store %s", p.ID, p.Code, p.StoreID)
		}
	}
	r.db.state.promotions[p.ID] = p
	return nil
}

// Promotion returns the stored promotion with id.
func (r *Promotions) Promotion(ctx context.Context, id string) (promotion.Promotion, bool) {
	defer r.db.lock(ctx)()
	p, ok := r.db.state.promotions[id]
	return p, ok
}

// FindActiveByCode returns the active promotion of storeID with code.
func (r *Promotions) FindActiveByCode(ctx context.Context, storeID, code string) (*promotion.Promotion, error) {
	defer r.db.lock(ctx)()

	code = promotion.NormalizeCode(code)
	for _, p := range r.db.state.promotions {
		if p.StoreID == storeID && p.Code == code && p.Active {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("find promotion %q: %w", code, promotion.ErrInvalidOrExpiredCoupon)
}

// IncrementUses adds one use unless the promotion is capped and exhausted.
func (r *Promotions) IncrementUses(ctx context.Context, id string) error {
	defer r.db.lock(ctx)()

	p, ok := r.db.state.promotions[id]
	if !ok {
		return fmt.Errorf("increment promotion %q: %w", id, promotion.ErrInvalidOrExpiredCoupon)
	}
	if p.Exhausted() {
		return fmt.Errorf("increment promotion %q: %w", id, promotion.ErrCouponExhausted)
	}
	p.CurrentUses++
	r.db.state.promotions[id] = p
	return nil
}
