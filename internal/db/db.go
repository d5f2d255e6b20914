// Package db provides PostgreSQL-backed store implementations for the post
// office. All repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool (for normal queries) and pgx.Tx (for transactional
// execution), so the same code runs inside or outside a transaction.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"postoffice/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Stores binds the three repositories to one connection or transaction.
type Stores struct {
	db DBTX
}

// NewStores returns a StoreRegistry backed by db.
func NewStores(db DBTX) *Stores {
	return &Stores{db: db}
}

func (s *Stores) Notifications() types.NotificationStore { return NewNotificationRepository(s.db) }
func (s *Stores) Bundles() types.BundleStore             { return NewBundleRepository(s.db) }
func (s *Stores) Idempotency() types.IdempotencyStore    { return NewIdempotencyRepository(s.db) }

var _ types.StoreRegistry = (*Stores)(nil)

// TxManager runs units of work in a single Postgres transaction.
type TxManager struct {
	pool Beginner
}

// NewTxManager creates a TxManager over pool.
func NewTxManager(pool Beginner) *TxManager {
	return &TxManager{pool: pool}
}

var _ types.TransactionManager = (*TxManager)(nil)

// RunInTx begins a transaction, hands fn stores bound to it and commits when
// fn succeeds. Any error from fn rolls everything back and is returned as is.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, stores types.StoreRegistry) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewStores(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeInternalStorageConflict, "transaction conflicted with a concurrent writer", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// isUniqueViolation checks for PostgreSQL error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure checks for PostgreSQL error 40001.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

// nilIfZeroTime converts a zero time.Time to nil so COALESCE can apply the
// column default.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
