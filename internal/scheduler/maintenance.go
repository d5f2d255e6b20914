package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postoffice/internal/types"
)

const defaultBatchLimit = 100

// BundleCleaner completes bundles that were never acknowledged.
type BundleCleaner interface {
	CleanUp(ctx context.Context, bundleID string) error
}

// Retention holds the age thresholds of each task.
type Retention struct {
	StaleBundleAge       time.Duration
	IdempotencyRetention time.Duration
	DequeuedRetention    time.Duration
	BatchLimit           int
}

// MaintenanceService implements the maintenance tasks.
type MaintenanceService struct {
	stores    types.StoreRegistry
	cleaner   BundleCleaner
	retention Retention
	clock     types.Clock
	logger    *slog.Logger
}

// NewMaintenanceService creates a MaintenanceService. A zero BatchLimit
// defaults to 100.
func NewMaintenanceService(stores types.StoreRegistry, cleaner BundleCleaner, retention Retention, clock types.Clock, logger *slog.Logger) *MaintenanceService {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if retention.BatchLimit <= 0 {
		retention.BatchLimit = defaultBatchLimit
	}
	return &MaintenanceService{
		stores:    stores,
		cleaner:   cleaner,
		retention: retention,
		clock:     clock,
		logger:    logger,
	}
}

// Handle runs the task named in payload and returns a one-line summary.
func (s *MaintenanceService) Handle(ctx context.Context, payload MaintenancePayload) (string, error) {
	now := s.clock.Now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	s.logger.InfoContext(ctx, "maintenance task invoked",
		"task", payload.Task,
		"reference_time", now.Format(time.RFC3339),
	)

	items, err := s.dispatch(ctx, payload.Task, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "maintenance task failed",
			"task", payload.Task,
			"items_before_error", items,
			"error", err,
		)
		return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", payload.Task, items)
	s.logger.InfoContext(ctx, result, "task", payload.Task, "items", items)
	return result, nil
}

func (s *MaintenanceService) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskCleanupStaleBundles:
		return s.CleanupStaleBundles(ctx, now)
	case TaskPurgeIdempotencyRecords:
		n, err := s.PurgeIdempotencyRecords(ctx, now)
		return int(n), err
	case TaskPurgeDequeuedNotifications:
		n, err := s.PurgeDequeuedNotifications(ctx, now)
		return int(n), err
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

// CleanupStaleBundles completes content-ready bundles untouched for longer
// than StaleBundleAge. A bundle that fails is left for the next run.
func (s *MaintenanceService) CleanupStaleBundles(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.retention.StaleBundleAge)

	stale, err := s.stores.Bundles().ListStale(ctx, cutoff, s.retention.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("listing stale bundles: %w", err)
	}
	if len(stale) == 0 {
		s.logger.InfoContext(ctx, "no stale bundles to clean up")
		return 0, nil
	}

	cleaned := 0
	for _, b := range stale {
		if err := ctx.Err(); err != nil {
			return cleaned, err
		}
		if err := s.cleaner.CleanUp(ctx, b.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to clean up stale bundle",
				"bundle_id", b.ID,
				"recipient", b.Recipient.String(),
				"error", err,
			)
			continue
		}
		cleaned++
	}

	s.logger.InfoContext(ctx, "stale bundle cleanup complete",
		"found", len(stale),
		"cleaned", cleaned,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return cleaned, nil
}

// PurgeIdempotencyRecords deletes consumed tokens older than
// IdempotencyRetention.
func (s *MaintenanceService) PurgeIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.stores.Idempotency().DeleteBefore(ctx, now.Add(-s.retention.IdempotencyRetention))
	if err != nil {
		return 0, fmt.Errorf("deleting idempotency records: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "purged idempotency records", "count", count)
	}
	return count, nil
}

// PurgeDequeuedNotifications deletes dequeued notifications older than
// DequeuedRetention. The store keeps the purged IDs, so a replayed
// DataAvailable message for one of them is still treated as a duplicate.
func (s *MaintenanceService) PurgeDequeuedNotifications(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.stores.Notifications().DeleteDequeuedBefore(ctx, now.Add(-s.retention.DequeuedRetention))
	if err != nil {
		return 0, fmt.Errorf("deleting dequeued notifications: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "purged dequeued notifications", "count", count)
	}
	return count, nil
}
