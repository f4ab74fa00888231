package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cornermart/pickup/internal/domain/promotion"
)

const (
	promotionColumns = `id, store_id, COALESCE(code, ''), type, value, min_order_amount, max_uses,
		current_uses, start_date, end_date, is_active, description`

	findPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE store_id = $1 AND code = $2 AND is_active`

	// Zero affected rows means the promotion is missing or capped.
	incrementPromotionUsesSQL = `UPDATE promotions SET current_uses = current_uses + 1
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`

	promotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`

	insertPromotionSQL = `INSERT INTO promotions (id, store_id, code, type, value, min_order_amount, max_uses,
			current_uses, start_date, end_date, is_active, description)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindActiveByCode returns the active promotion with code in the store.
// Codes are stored in their normalized form.
func (r *PromotionRepository) FindActiveByCode(ctx context.Context, storeID, code string) (*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findPromotionByCodeSQL, storeID, promotion.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("finding promotion %q: %w", code, promotion.ErrInvalidOrExpiredCoupon)
		}
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}
	return &p, nil
}

// IncrementUses consumes one use of the promotion.
func (r *PromotionRepository) IncrementUses(ctx context.Context, id string) error {
	q := conn(ctx, r.pool)

	tag, err := q.Exec(ctx, incrementPromotionUsesSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing uses of promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, promotionExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking promotion %q: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("incrementing uses of promotion %q: %w", id, promotion.ErrInvalidOrExpiredCoupon)
	}
	return fmt.Errorf("incrementing uses of promotion %q: %w", id, promotion.ErrCouponExhausted)
}

// Insert stores p unless a promotion with the same id or store code exists.
// It reports whether a row was written.
func (r *PromotionRepository) Insert(ctx context.Context, p promotion.Promotion) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, insertPromotionSQL,
		p.ID, p.StoreID, promotion.NormalizeCode(p.Code), string(p.Type), p.Value,
		p.MinOrderAmount, p.MaxUses, p.CurrentUses, p.StartDate, p.EndDate, p.Active, p.Description,
	)
	if err != nil {
		return false, fmt.Errorf("inserting promotion %q: %w", p.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p     promotion.Promotion
		ptype string
	)
	err := row.Scan(
		&p.ID, &p.StoreID, &p.Code, &ptype, &p.Value, &p.MinOrderAmount, &p.MaxUses,
		&p.CurrentUses, &p.StartDate, &p.EndDate, &p.Active, &p.Description,
	)
	p.Type = promotion.Type(ptype)
	return p, err
}
