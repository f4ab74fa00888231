package postgres

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/order"
)

var _ order.UnitOfWork = (*TxManager)(nil)

// TxOptions configures TxManager.
type TxOptions struct {
	// MaxRetries is the number of extra attempts after a serialization
	// failure or deadlock.
	MaxRetries int
	// Backoff is the delay before the first retry. It doubles per attempt
	// and gets up to 25% jitter.
	Backoff time.Duration
}

// DefaultTxOptions returns the retry policy used when none is configured.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		MaxRetries: 3,
		Backoff:    50 * time.Millisecond,
	}
}

// TxManager runs READ COMMITTED transactions and retries them on
// serialization failures and deadlocks.
type TxManager struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewTxManager returns a TxManager on pool.
func NewTxManager(pool *pgxpool.Pool, opts TxOptions) *TxManager {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultTxOptions().Backoff
	}
	return &TxManager{pool: pool, opts: opts}
}

type txKey struct{}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// RunInTx runs fn in a transaction. Calls nested in fn's ctx join the outer
// transaction. fn may run more than once and must not keep state between
// attempts.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	backoff := m.opts.Backoff
	for attempt := 0; ; attempt++ {
		err := m.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == m.opts.MaxRetries {
			return errors.Wrapf(err, "max retries (%d) exceeded", m.opts.MaxRetries)
		}

		zctx.From(ctx).Debug("Retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		jitter := time.Duration(rand.Int64N(int64(backoff/4) + 1))
		timer := time.NewTimer(backoff + jitter)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		backoff *= 2
	}
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) (rerr error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rerr == nil {
			return
		}
		// Rollback after a failed commit returns ErrTxClosed.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			rerr = errors.Wrapf(rerr, "rollback failed: %v", rbErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// SQLSTATE codes that abort a transaction which can safely be retried.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// IsRetryable reports whether err is a PostgreSQL error after which the
// whole transaction can be retried.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	default:
		return false
	}
}
