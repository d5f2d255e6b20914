package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"postoffice/internal/types"
)

// BundleRepository provides data access for the bundles table. The partial
// unique index uq_bundles_active_recipient is what makes CreateIfAbsent a
// per-recipient linearization point.
type BundleRepository struct {
	db DBTX
}

// NewBundleRepository creates a repository backed by the given connection.
func NewBundleRepository(db DBTX) *BundleRepository {
	return &BundleRepository{db: db}
}

var _ types.BundleStore = (*BundleRepository)(nil)

const bundleColumns = `id, recipient, origin, content_type, notification_ids, content,
	notifications_archived, created_at, updated_at`

// CreateIfAbsent inserts b unless the recipient already owns a non-archived
// bundle. Concurrent inserts for the same recipient block on the index until
// the first commits, then see the conflict.
func (r *BundleRepository) CreateIfAbsent(ctx context.Context, b *types.Bundle) (bool, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO bundles
		 (id, recipient, origin, content_type, notification_ids, content,
		  notifications_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, COALESCE($7, NOW()), COALESCE($7, NOW()))
		 ON CONFLICT (recipient) WHERE NOT notifications_archived DO NOTHING
		 RETURNING created_at, updated_at`,
		b.ID,
		string(b.Recipient),
		string(b.Origin),
		b.ContentType,
		b.NotificationIDs,
		b.Content,
		nilIfZeroTime(b.CreatedAt),
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create bundle", err)
	}
	return true, nil
}

// GetActiveByRecipient returns the recipient's non-archived bundle or nil.
func (r *BundleRepository) GetActiveByRecipient(ctx context.Context, recipient types.MarketOperator) (*types.Bundle, error) {
	b, err := scanBundle(r.db.QueryRow(ctx,
		`SELECT `+bundleColumns+`
		 FROM bundles
		 WHERE recipient = $1 AND NOT notifications_archived`,
		string(recipient),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get active bundle", err)
	}
	return b, nil
}

// Get returns the bundle with the given ID, or nil.
func (r *BundleRepository) Get(ctx context.Context, id string) (*types.Bundle, error) {
	b, err := scanBundle(r.db.QueryRow(ctx,
		`SELECT `+bundleColumns+`
		 FROM bundles
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get bundle", err)
	}
	return b, nil
}

// SetContent stores the materialized content location on a live bundle.
func (r *BundleRepository) SetContent(ctx context.Context, id string, location string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bundles
		 SET content = $2, updated_at = NOW()
		 WHERE id = $1 AND NOT notifications_archived`,
		id, location,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set bundle content", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundBundle, "bundle not found", nil)
	}
	return nil
}

// MarkArchived flags the bundle so it no longer counts as the recipient's
// active bundle.
func (r *BundleRepository) MarkArchived(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE bundles
		 SET notifications_archived = TRUE, updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to archive bundle", err)
	}
	return nil
}

// Delete removes the bundle row.
func (r *BundleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM bundles WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete bundle", err)
	}
	return nil
}

// ListStale returns content-ready bundles whose last update precedes cutoff,
// oldest first.
func (r *BundleRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*types.Bundle, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bundleColumns+`
		 FROM bundles
		 WHERE content IS NOT NULL
		   AND NOT notifications_archived
		   AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale bundles", err)
	}
	defer rows.Close()

	var out []*types.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stale bundle", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate stale bundles", err)
	}
	return out, nil
}

func scanBundle(row pgx.Row) (*types.Bundle, error) {
	var (
		b         types.Bundle
		recipient string
		origin    string
	)
	if err := row.Scan(
		&b.ID,
		&recipient,
		&origin,
		&b.ContentType,
		&b.NotificationIDs,
		&b.Content,
		&b.NotificationsArchived,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Recipient = types.MarketOperator(recipient)
	b.Origin = types.Origin(origin)
	return &b, nil
}
