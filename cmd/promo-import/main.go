// Command promo-import bulk-loads store promotions from gzip-compressed CSV
// files. Codes already stored are left untouched.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/promoimport"
	"github.com/cornermart/pickup/internal/storage/postgres"
)

func main() {
	var (
		pattern      string
		databaseURL  string
		workers      int
		expectedRows uint
	)

	flag.StringVar(&pattern, "files", "data/promotions*.csv.gz", "glob of gzipped CSV files to import")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or PICKUP_DATABASE_URL, DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent inserts")
	flag.UintVar(&expectedRows, "expected-rows", 100_000, "expected rows per file, sizes the duplicate filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("PICKUP_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or PICKUP_DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, pattern, databaseURL, promoimport.Options{
		Workers:      workers,
		ExpectedRows: expectedRows,
		Logger:       lg,
	}); err != nil {
		lg.Fatal("Promotion import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, pattern, databaseURL string, opts promoimport.Options) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "match %q", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}
	lg.Info("Importing promotions", zap.Strings("files", files))

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{MaxConns: int32(max(opts.Workers, 1))})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	res, err := promoimport.Run(ctx, postgres.NewPromotionRepository(pool), files, opts)
	lg.Info("Import finished",
		zap.Int("parsed", res.Parsed),
		zap.Int("conflicting", res.Conflicting),
		zap.Int("inserted", res.Inserted),
		zap.Int("existing", res.Existing),
	)
	return err
}
