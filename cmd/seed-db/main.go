// Command seed-db applies the schema and loads the demo marketplace: two
// stores, their catalog, promotions and one API key per role.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/demo"
	"github.com/cornermart/pickup/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or PICKUP_DATABASE_URL, DATABASE_URL env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PICKUP_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	databaseURL = firstNonEmpty(databaseURL, os.Getenv("PICKUP_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or PICKUP_DATABASE_URL")
	}
	apiKeyPepper = firstNonEmpty(apiKeyPepper, os.Getenv("PICKUP_API_KEY_PEPPER"))
	if apiKeyPepper == "" {
		lg.Fatal("API key pepper is required: set --api-key-pepper or PICKUP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, []byte(apiKeyPepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, pepper []byte) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var (
		data       = demo.Data(time.Now())
		stores     = postgres.NewStoreRepository(pool)
		catalog    = postgres.NewCatalogRepository(pool)
		promotions = postgres.NewPromotionRepository(pool)
		apikeys    = postgres.NewAPIKeyRepository(pool)
	)

	for _, s := range data.Stores {
		if err := stores.Upsert(ctx, s); err != nil {
			return errors.Wrapf(err, "seed store %s", s.ID)
		}
		lg.Info("Upserted store", zap.String("id", s.ID), zap.String("name", s.Name))
	}

	for _, p := range data.Products {
		if err := catalog.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "seed product %s", p.ID)
		}
		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("store_id", p.StoreID),
			zap.Int("stock", p.StockQuantity),
		)
	}

	for _, p := range data.Promotions {
		inserted, err := promotions.Insert(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "seed promotion %s", p.Code)
		}
		lg.Info("Seeded promotion", zap.String("code", p.Code), zap.Bool("inserted", inserted))
	}

	for _, k := range data.Keys {
		if err := apikeys.Upsert(ctx, k.Info(pepper)); err != nil {
			return errors.Wrapf(err, "seed api key %s", k.ID)
		}
		lg.Info("Upserted API key",
			zap.String("id", k.ID),
			zap.String("user_id", k.Identity.UserID),
			zap.String("role", string(k.Identity.Role)),
		)
	}

	return nil
}
