package types

import (
	"context"
	"time"
)

// NotificationStore owns all writes to notifications.
type NotificationStore interface {
	// InsertIfAbsent stores n keyed by n.ID and assigns its SequenceNumber.
	// Returns false without changes when the ID already exists or was purged
	// after being dequeued.
	InsertIfAbsent(ctx context.Context, n *DataAvailableNotification) (bool, error)

	// Get returns the notification or a not_found_notification error.
	Get(ctx context.Context, id string) (*DataAvailableNotification, error)

	// FindOldestAvailable returns the available notification with the lowest
	// SequenceNumber for the recipient, or nil when there is none.
	FindOldestAvailable(ctx context.Context, recipient MarketOperator) (*DataAvailableNotification, error)

	// ListBundleCandidates returns up to limit available, bundlable
	// notifications in ascending SequenceNumber order.
	ListBundleCandidates(ctx context.Context, recipient MarketOperator, origin Origin, contentType string, limit int) ([]*DataAvailableNotification, error)

	// MarkBundled moves the given available notifications to bundled and
	// returns how many rows actually transitioned.
	MarkBundled(ctx context.Context, ids []string, bundleID string) (int, error)

	// MarkDequeued moves the given notifications to dequeued. Already
	// dequeued notifications are left untouched.
	MarkDequeued(ctx context.Context, ids []string) (int, error)

	// DeleteDequeuedBefore purges dequeued notifications last touched before
	// cutoff. Purged IDs are remembered and InsertIfAbsent keeps refusing them.
	DeleteDequeuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BundleStore owns all writes to bundles.
type BundleStore interface {
	// CreateIfAbsent inserts b unless the recipient already has a
	// non-archived bundle. Returns false on conflict.
	CreateIfAbsent(ctx context.Context, b *Bundle) (bool, error)

	// GetActiveByRecipient returns the recipient's non-archived bundle or nil.
	GetActiveByRecipient(ctx context.Context, recipient MarketOperator) (*Bundle, error)

	// Get returns the bundle (archived or not) or nil when it does not exist.
	Get(ctx context.Context, id string) (*Bundle, error)

	// SetContent records the materialized content location.
	SetContent(ctx context.Context, id string, location string) error

	// MarkArchived sets NotificationsArchived. Missing bundles are ignored.
	MarkArchived(ctx context.Context, id string) error

	// Delete removes the bundle. Missing bundles are ignored.
	Delete(ctx context.Context, id string) error

	// ListStale returns content-ready bundles last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Bundle, error)
}

// IdempotencyStore remembers consumed submission tokens.
type IdempotencyStore interface {
	// InsertIfAbsent records the token. Returns false when it was already present.
	InsertIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error)

	// DeleteBefore purges records created before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StoreRegistry provides the stores bound to one unit of work.
type StoreRegistry interface {
	Notifications() NotificationStore
	Bundles() BundleStore
	Idempotency() IdempotencyStore
}

// TransactionManager provides transactional execution across stores. When
// fn returns an error nothing it wrote is kept.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores StoreRegistry) error) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
