package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"postoffice/internal/types"
)

// NotificationRepository provides data access for data_available_notifications.
// The sequence_number column is a BIGSERIAL so the database assigns the
// strictly increasing intake order.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a repository backed by the given
// connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ types.NotificationStore = (*NotificationRepository)(nil)

const notificationColumns = `id, sequence_number, recipient, content_type, origin,
	supports_bundling, weight, state, COALESCE(bundle_id, ''), created_at`

// InsertIfAbsent stores n unless a row with the same ID exists or the ID
// was dequeued and purged earlier. On insert it fills in SequenceNumber,
// State and CreatedAt.
func (r *NotificationRepository) InsertIfAbsent(ctx context.Context, n *types.DataAvailableNotification) (bool, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO data_available_notifications
		 (id, recipient, content_type, origin, supports_bundling, weight, state, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::boolean, $6::integer, 'available',
		        COALESCE($7::timestamptz, NOW())
		 WHERE NOT EXISTS (SELECT 1 FROM dequeued_notification_ids WHERE id = $1::text)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING sequence_number, created_at`,
		n.ID,
		string(n.Recipient),
		n.ContentType,
		string(n.Origin),
		n.SupportsBundling,
		n.Weight,
		nilIfZeroTime(n.CreatedAt),
	).Scan(&n.SequenceNumber, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert notification", err)
	}
	n.State = types.NotificationAvailable
	return true, nil
}

// Get returns the notification with the given ID.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*types.DataAvailableNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM data_available_notifications
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification", err)
	}
	return n, nil
}

// FindOldestAvailable returns the recipient's available notification with
// the lowest sequence number, or nil.
func (r *NotificationRepository) FindOldestAvailable(ctx context.Context, recipient types.MarketOperator) (*types.DataAvailableNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM data_available_notifications
		 WHERE recipient = $1 AND state = 'available'
		 ORDER BY sequence_number
		 LIMIT 1`,
		string(recipient),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find oldest available notification", err)
	}
	return n, nil
}

// ListBundleCandidates returns available notifications that may share a
// bundle, oldest first.
func (r *NotificationRepository) ListBundleCandidates(
	ctx context.Context,
	recipient types.MarketOperator,
	origin types.Origin,
	contentType string,
	limit int,
) ([]*types.DataAvailableNotification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM data_available_notifications
		 WHERE recipient = $1
		   AND origin = $2
		   AND content_type = $3
		   AND state = 'available'
		   AND supports_bundling
		 ORDER BY sequence_number
		 LIMIT $4`,
		string(recipient), string(origin), contentType, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list bundle candidates", err)
	}
	defer rows.Close()

	var out []*types.DataAvailableNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan bundle candidate", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate bundle candidates", err)
	}
	return out, nil
}

// MarkBundled transitions available notifications to bundled. Rows that are
// no longer available are skipped, so the returned count tells the caller
// whether a concurrent peek took part of the selection.
func (r *NotificationRepository) MarkBundled(ctx context.Context, ids []string, bundleID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE data_available_notifications
		 SET state = 'bundled', bundle_id = $2, updated_at = NOW()
		 WHERE id = ANY($1) AND state = 'available'`,
		ids, bundleID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark notifications bundled", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkDequeued transitions notifications to dequeued. Repeating the call is
// a no-op for rows already dequeued.
func (r *NotificationRepository) MarkDequeued(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE data_available_notifications
		 SET state = 'dequeued', updated_at = NOW()
		 WHERE id = ANY($1) AND state <> 'dequeued'`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark notifications dequeued", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteDequeuedBefore purges dequeued notifications last touched before
// cutoff. Each purged ID moves to dequeued_notification_ids in the same
// statement so it stays rejected by InsertIfAbsent.
func (r *NotificationRepository) DeleteDequeuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`WITH purged AS (
			DELETE FROM data_available_notifications
			WHERE state = 'dequeued' AND updated_at < $1
			RETURNING id, updated_at
		 )
		 INSERT INTO dequeued_notification_ids (id, dequeued_at)
		 SELECT id, updated_at FROM purged
		 ON CONFLICT (id) DO NOTHING`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge dequeued notifications", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*types.DataAvailableNotification, error) {
	var (
		n         types.DataAvailableNotification
		recipient string
		origin    string
		state     string
	)
	if err := row.Scan(
		&n.ID,
		&n.SequenceNumber,
		&recipient,
		&n.ContentType,
		&origin,
		&n.SupportsBundling,
		&n.Weight,
		&state,
		&n.BundleID,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.Recipient = types.MarketOperator(recipient)
	n.Origin = types.Origin(origin)
	n.State = types.NotificationState(state)
	return &n, nil
}
