package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPromotionRepo struct {
	promo        *Promotion
	err          error
	incrementErr error
	lookedUp     [2]string
	incremented  string
}

func (m *mockPromotionRepo) FindActiveByCode(_ context.Context, storeID, code string) (*Promotion, error) {
	m.lookedUp = [2]string{storeID, code}
	return m.promo, m.err
}

func (m *mockPromotionRepo) IncrementUses(_ context.Context, id string) error {
	m.incremented = id
	return m.incrementErr
}

func ptr[T any](v T) *T {
	return &v
}

func TestEvaluator_Evaluate(t *testing.T) {
	fixedNow := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)

	base := func() *Promotion {
		return &Promotion{
			ID:        "promo-1",
			StoreID:   "s1",
			Code:      "SAVE10",
			Type:      TypePercentage,
			Value:     d("10"),
			StartDate: yesterday,
			EndDate:   tomorrow,
			Active:    true,
		}
	}

	tests := []struct {
		name       string
		repo       *mockPromotionRepo
		code       string
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "valid percentage coupon",
			repo:       &mockPromotionRepo{promo: base()},
			code:       "save10",
			subtotal:   d("100"),
			wantAmount: d("10"),
		},
		{
			name:     "unknown code",
			repo:     &mockPromotionRepo{err: ErrInvalidOrExpiredCoupon},
			code:     "BOGUS",
			subtotal: d("100"),
			wantErr:  ErrInvalidOrExpiredCoupon,
		},
		{
			name:     "blank code",
			repo:     &mockPromotionRepo{promo: base()},
			code:     "   ",
			subtotal: d("100"),
			wantErr:  ErrInvalidOrExpiredCoupon,
		},
		{
			name: "not started yet",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.StartDate = tomorrow
				p.EndDate = tomorrow.Add(time.Hour)
				return p
			}()},
			code:     "SAVE10",
			subtotal: d("100"),
			wantErr:  ErrInvalidOrExpiredCoupon,
		},
		{
			name: "expired",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.StartDate = yesterday.Add(-time.Hour)
				p.EndDate = yesterday
				return p
			}()},
			code:     "SAVE10",
			subtotal: d("100"),
			wantErr:  ErrInvalidOrExpiredCoupon,
		},
		{
			name: "inactive",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.Active = false
				return p
			}()},
			code:     "SAVE10",
			subtotal: d("100"),
			wantErr:  ErrInvalidOrExpiredCoupon,
		},
		{
			name: "exhausted",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.MaxUses = ptr(3)
				p.CurrentUses = 3
				return p
			}()},
			code:     "SAVE10",
			subtotal: d("100"),
			wantErr:  ErrCouponExhausted,
		},
		{
			name: "minimum not met",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.MinOrderAmount = ptr(d("25"))
				return p
			}()},
			code:     "SAVE10",
			subtotal: d("24.99"),
			wantErr:  ErrMinimumNotMet,
		},
		{
			name: "minimum exactly met",
			repo: &mockPromotionRepo{promo: func() *Promotion {
				p := base()
				p.MinOrderAmount = ptr(d("25"))
				return p
			}()},
			code:       "SAVE10",
			subtotal:   d("25"),
			wantAmount: d("2.50"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(tt.repo)
			e.now = func() time.Time { return fixedNow }

			p, amount, err := e.Evaluate(context.Background(), "s1", tt.code, tt.subtotal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, p)
			assert.True(t, tt.wantAmount.Equal(amount), "want %s, got %s", tt.wantAmount, amount)
			assert.Equal(t, [2]string{"s1", "SAVE10"}, tt.repo.lookedUp)
		})
	}
}

func TestEvaluator_Evaluate_MinimumDetails(t *testing.T) {
	fixedNow := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	p := &Promotion{
		ID: "promo-1", StoreID: "s1", Code: "SAVE10", Type: TypePercentage, Value: d("10"),
		MinOrderAmount: ptr(d("25")), Active: true,
		StartDate: fixedNow.Add(-time.Hour), EndDate: fixedNow.Add(time.Hour),
	}
	e := NewEvaluator(&mockPromotionRepo{promo: p})
	e.now = func() time.Time { return fixedNow }

	_, _, err := e.Evaluate(context.Background(), "s1", "SAVE10", d("24.5"))

	var minErr *MinimumNotMetError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, d("25").Equal(minErr.Minimum))
	assert.True(t, d("24.5").Equal(minErr.Subtotal))
	assert.Equal(t, "minimum order amount not met. Minimum: 25.00, Subtotal: 24.50", err.Error())
}

func TestEvaluator_Evaluate_RepoError(t *testing.T) {
	e := NewEvaluator(&mockPromotionRepo{err: errors.New("db down")})

	_, _, err := e.Evaluate(context.Background(), "s1", "SAVE10", d("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup promotion")
	assert.NotErrorIs(t, err, ErrInvalidOrExpiredCoupon)
}

func TestEvaluator_Redeem(t *testing.T) {
	t.Run("increments", func(t *testing.T) {
		repo := &mockPromotionRepo{}
		p := &Promotion{ID: "promo-1", CurrentUses: 2}

		require.NoError(t, NewEvaluator(repo).Redeem(context.Background(), p))
		assert.Equal(t, "promo-1", repo.incremented)
		assert.Equal(t, 3, p.CurrentUses)
	})

	t.Run("exhausted at commit", func(t *testing.T) {
		repo := &mockPromotionRepo{incrementErr: errors.Wrap(ErrCouponExhausted, "promotion promo-1")}
		p := &Promotion{ID: "promo-1", CurrentUses: 2}

		err := NewEvaluator(repo).Redeem(context.Background(), p)
		require.ErrorIs(t, err, ErrCouponExhausted)
		assert.Equal(t, 2, p.CurrentUses)
	})
}
