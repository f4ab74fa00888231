// Package app wires the pickup API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/demo"
	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
	"github.com/cornermart/pickup/internal/domain/order"
	"github.com/cornermart/pickup/internal/handler"
	"github.com/cornermart/pickup/internal/notifier"
	"github.com/cornermart/pickup/internal/storage/memory"
	"github.com/cornermart/pickup/internal/storage/postgres"
	"github.com/cornermart/pickup/pkg/health"
	"github.com/cornermart/pickup/pkg/httpmiddleware"
)

const serviceName = "pickup-api"

// Telemetry provides the OpenTelemetry providers; *app.Telemetry satisfies it.
type Telemetry interface {
	MeterProvider() metric.MeterProvider
	TracerProvider() trace.TracerProvider
}

var _ Telemetry = (*app.Telemetry)(nil)

// backend is the storage selected by Config.Storage.
type backend struct {
	deps    order.Deps
	apikeys auth.Repository
	inbox   notifier.Store
	ping    health.Pinger
	close   func()
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &backend{
		deps: order.Deps{
			Orders:     postgres.NewOrderRepository(pool),
			Catalog:    postgres.NewCatalogRepository(pool),
			Stores:     postgres.NewStoreRepository(pool),
			Promotions: postgres.NewPromotionRepository(pool),
			UnitOfWork: postgres.NewTxManager(pool, postgres.TxOptions{
				MaxRetries: cfg.Postgres.TxRetries,
				Backoff:    cfg.Postgres.TxBackoff,
			}),
		},
		apikeys: postgres.NewAPIKeyRepository(pool),
		inbox:   postgres.NewNotificationRepository(pool),
		ping:    pool,
		close:   pool.Close,
	}, nil
}

func openMemory(ctx context.Context, cfg *Config) (*backend, error) {
	db := memory.New()
	if err := demo.LoadMemory(ctx, db, demo.Data(time.Now()), []byte(cfg.APIKeyPepper)); err != nil {
		return nil, errors.Wrap(err, "load demo data")
	}
	return &backend{
		deps: order.Deps{
			Orders:     db.Orders(),
			Catalog:    db.Catalog(),
			Stores:     db.Stores(),
			Promotions: db.Promotions(),
			UnitOfWork: db,
		},
		apikeys: db.APIKeys(),
		inbox:   notifier.StoreFunc(db.Notify),
		ping:    db,
		close:   func() {},
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	open := openPostgres
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage with demo data; orders are lost on restart")
		open = openMemory
	}
	be, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	sinks := notifier.Multi{notifier.Log{}, notifier.NewInbox(be.inbox)}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notifier.NewKafka(notifier.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return errors.Wrap(err, "create kafka notifier")
		}
		defer func() {
			if err := k.Close(); err != nil {
				lg.Warn("Close kafka producer", zap.Error(err))
			}
		}()
		sinks = append(sinks, k)
	}

	taxRate, err := cfg.ParsedTaxRate()
	if err != nil {
		return err
	}
	deps := be.deps
	deps.Notifier = notify.Notifier(sinks)
	deps.TaxRate = &taxRate
	deps.MeterProvider = m.MeterProvider()
	deps.TracerProvider = m.TracerProvider()

	orderService, err := order.NewService(deps)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage, health.PingCheck(cfg.Storage, be.ping), health.Options{Timeout: 5 * time.Second})
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(cfg.Health.MaxGoroutines), health.Options{Timeout: time.Second})
	healthSvc.AddLivenessCheck("gc_pause", health.GCMaxPauseCheck(cfg.Health.MaxGCPause), health.Options{Timeout: time.Second})
	healthSvc.Start(ctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	router := handler.NewRouter(handler.RouterConfig{
		Orders: handler.NewHandler(orderService),
		Auth:   handler.NewAuthenticator(be.apikeys, []byte(cfg.APIKeyPepper)),
		Livez:  healthSvc.LiveEndpoint,
		Readyz: healthSvc.ReadyEndpoint,
		Middlewares: []func(http.Handler) http.Handler{
			httpmiddleware.Instrument(serviceName, m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(),
		},
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderOrIP(handler.APIKeyHeader),
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
