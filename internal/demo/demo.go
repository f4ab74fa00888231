// Package demo holds the sample marketplace loaded by cmd/seed-db and by the
// in-memory storage mode.
package demo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/promotion"
	"github.com/cornermart/pickup/internal/domain/store"
	"github.com/cornermart/pickup/internal/storage/memory"
)

// APIKey is a plaintext demo key and the identity it authenticates.
type APIKey struct {
	ID       string
	Name     string
	Key      string
	Identity auth.Identity
}

// Info returns the stored form of k under pepper.
func (k APIKey) Info(pepper []byte) auth.APIKeyInfo {
	return auth.APIKeyInfo{
		ID:      k.ID,
		KeyHash: auth.HashKey(k.Key, pepper),
		Name:    k.Name,
		UserID:  k.Identity.UserID,
		Role:    k.Identity.Role,
	}
}

// Dataset is a consistent set of demo records.
type Dataset struct {
	Stores     []store.Store
	Products   []product.Product
	Promotions []promotion.Promotion
	Keys       []APIKey
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

// Data returns the demo dataset with promotions valid around now.
func Data(now time.Time) Dataset {
	const (
		deli   = "store-corner-deli"
		bakery = "store-sunrise-bakery"
	)
	start := now.AddDate(0, 0, -1).Truncate(24 * time.Hour)
	end := now.AddDate(0, 3, 0).Truncate(24 * time.Hour)

	return Dataset{
		Stores: []store.Store{
			{ID: deli, OwnerID: "user-owner-deli", Name: "Corner Deli", Active: true},
			{ID: bakery, OwnerID: "user-owner-bakery", Name: "Sunrise Bakery", Active: true},
		},
		Products: []product.Product{
			{ID: "prod-oat-milk", StoreID: deli, Name: "Oat Milk 1L", Price: price("3.99"), StockQuantity: 40, LowStockThreshold: 5, Active: true},
			{ID: "prod-cold-brew", StoreID: deli, Name: "Cold Brew Can", Price: price("4.25"), StockQuantity: 24, LowStockThreshold: 6, Active: true},
			{ID: "prod-avocado", StoreID: deli, Name: "Hass Avocado", Price: price("1.75"), StockQuantity: 12, LowStockThreshold: 4, Active: true},
			{ID: "prod-turkey-sub", StoreID: deli, Name: "Turkey Sub", Price: price("9.50"), StockQuantity: 8, LowStockThreshold: 2, Active: true},
			{ID: "prod-sourdough", StoreID: bakery, Name: "Sourdough Loaf", Price: price("6.50"), StockQuantity: 15, LowStockThreshold: 3, Active: true},
			{ID: "prod-croissant", StoreID: bakery, Name: "Butter Croissant", Price: price("2.75"), StockQuantity: 30, LowStockThreshold: 6, Active: true},
			{ID: "prod-bagel", StoreID: bakery, Name: "Everything Bagel", Price: price("2.50"), StockQuantity: 0, LowStockThreshold: 5, Active: false},
		},
		Promotions: []promotion.Promotion{
			{
				ID: "promo-welcome10", StoreID: deli, Code: "WELCOME10", Type: promotion.TypePercentage,
				Value: price("10"), MaxUses: ptr(500), StartDate: start, EndDate: end, Active: true,
				Description: "10% off your first pickup",
			},
			{
				ID: "promo-fiveoff", StoreID: deli, Code: "FIVEOFF", Type: promotion.TypeFixedAmount,
				Value: price("5.00"), MinOrderAmount: ptr(price("25.00")), StartDate: start, EndDate: end, Active: true,
				Description: "$5 off orders of $25 or more",
			},
			{
				ID: "promo-bakers-dozen", StoreID: bakery, Code: "DOZEN", Type: promotion.TypeBuyXGetY,
				Value: price("2.75"), MinOrderAmount: ptr(price("30.00")), StartDate: start, EndDate: end, Active: true,
				Description: "Buy 12 pastries, get one free",
			},
		},
		Keys: []APIKey{
			{ID: "key-customer", Name: "demo customer", Key: "demo-customer-key", Identity: auth.Identity{UserID: "user-customer", Role: auth.RoleCustomer}},
			{ID: "key-owner-deli", Name: "demo deli owner", Key: "demo-owner-key", Identity: auth.Identity{UserID: "user-owner-deli", Role: auth.RoleStoreOwner}},
			{ID: "key-owner-bakery", Name: "demo bakery owner", Key: "demo-bakery-key", Identity: auth.Identity{UserID: "user-owner-bakery", Role: auth.RoleStoreOwner}},
			{ID: "key-admin", Name: "demo admin", Key: "demo-admin-key", Identity: auth.Identity{UserID: "user-admin", Role: auth.RoleAdmin}},
		},
	}
}

// LoadMemory puts d into db.
func LoadMemory(ctx context.Context, db *memory.DB, d Dataset, pepper []byte) error {
	for _, s := range d.Stores {
		db.Stores().PutStore(ctx, s)
	}
	for _, p := range d.Products {
		db.Catalog().PutProduct(ctx, p)
	}
	for _, p := range d.Promotions {
		if err := db.Promotions().PutPromotion(ctx, p); err != nil {
			return errors.Wrapf(err, "promotion %s", p.Code)
		}
	}
	for _, k := range d.Keys {
		db.APIKeys().PutAPIKey(ctx, k.Info(pepper))
	}
	return nil
}
