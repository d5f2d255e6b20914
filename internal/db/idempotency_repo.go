package db

import (
	"context"
	"time"

	"postoffice/internal/types"
)

// IdempotencyRepository records consumed intake tokens.
type IdempotencyRepository struct {
	db DBTX
}

// NewIdempotencyRepository creates a repository backed by the given connection.
func NewIdempotencyRepository(db DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

var _ types.IdempotencyStore = (*IdempotencyRepository)(nil)

// InsertIfAbsent records the token; false means it was seen before.
func (r *IdempotencyRepository) InsertIfAbsent(ctx context.Context, rec types.IdempotencyRecord) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO idempotency_records (token, notification_id, created_at)
		 VALUES ($1, $2, COALESCE($3, NOW()))
		 ON CONFLICT (token) DO NOTHING`,
		rec.Token, rec.NotificationID, nilIfZeroTime(rec.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record idempotency token", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteBefore purges records older than cutoff.
func (r *IdempotencyRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM idempotency_records WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge idempotency records", err)
	}
	return tag.RowsAffected(), nil
}
