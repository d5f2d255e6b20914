// Package dequeue completes bundles a recipient has acknowledged and
// recovers bundles nobody acknowledged.
package dequeue

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

// Outcome distinguishes a first acknowledgement from a repeated one.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
)

// Completion is returned by Acknowledge. Bundle is nil when the bundle was
// already gone.
type Completion struct {
	Outcome Outcome
	Bundle  *types.Bundle
}

// Config tunes how notifications are marked.
type Config struct {
	ChunkSize    int
	Concurrency  int
	ChunkRetries int
}

const (
	defaultChunkSize    = 500
	defaultConcurrency  = 4
	defaultChunkRetries = 3
)

// Coordinator archives a bundle's notifications and removes the bundle.
// Steps run in an order that is safe to resume: marking notifications
// dequeued twice is a no-op, and the bundle is removed last.
type Coordinator struct {
	stores   types.StoreRegistry
	notifier Notifier
	cfg      Config
	metrics  telemetry.Recorder
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. notifier may be nil.
func NewCoordinator(stores types.StoreRegistry, notifier Notifier, cfg Config, metrics telemetry.Recorder, logger *slog.Logger) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ChunkRetries <= 0 {
		cfg.ChunkRetries = defaultChunkRetries
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Coordinator{stores: stores, notifier: notifier, cfg: cfg, metrics: metrics, logger: logger}
}

// Acknowledge completes the bundle. A bundle that no longer exists was
// already acknowledged; that is a success reported as
// OutcomeAlreadyCompleted.
func (c *Coordinator) Acknowledge(ctx context.Context, bundleID string) (Completion, error) {
	bundle, err := c.load(ctx, bundleID)
	if err != nil {
		return Completion{}, err
	}
	if bundle == nil {
		types.LoggerFromContext(ctx, c.logger).InfoContext(ctx, "bundle already acknowledged", "bundle_id", bundleID)
		c.metrics.RecordDequeue(ctx, string(OutcomeAlreadyCompleted))
		return Completion{Outcome: OutcomeAlreadyCompleted}, nil
	}
	if err := c.complete(ctx, bundle); err != nil {
		return Completion{}, err
	}
	c.metrics.RecordDequeue(ctx, string(OutcomeCompleted))
	return Completion{Outcome: OutcomeCompleted, Bundle: bundle}, nil
}

// CleanUp runs the same completion for a bundle that was never
// acknowledged, whatever its state. Missing bundles are ignored.
func (c *Coordinator) CleanUp(ctx context.Context, bundleID string) error {
	bundle, err := c.load(ctx, bundleID)
	if err != nil || bundle == nil {
		return err
	}
	types.LoggerFromContext(ctx, c.logger).WarnContext(ctx, "cleaning up unacknowledged bundle",
		"bundle_id", bundle.ID,
		"recipient", bundle.Recipient.String(),
		"state", string(bundle.State()),
		"updated_at", bundle.UpdatedAt,
	)
	return c.complete(ctx, bundle)
}

func (c *Coordinator) load(ctx context.Context, bundleID string) (*types.Bundle, error) {
	if strings.TrimSpace(bundleID) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationBundleID, "bundle id is required", nil)
	}
	return c.stores.Bundles().Get(ctx, bundleID)
}

func (c *Coordinator) complete(ctx context.Context, bundle *types.Bundle) error {
	logger := types.LoggerFromContext(ctx, c.logger)

	marked, err := c.markDequeued(ctx, bundle.NotificationIDs)
	if err != nil {
		return err
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyDequeued(ctx, bundle); err != nil {
			return err
		}
	}
	if err := c.stores.Bundles().MarkArchived(ctx, bundle.ID); err != nil {
		return err
	}
	if err := c.stores.Bundles().Delete(ctx, bundle.ID); err != nil {
		return err
	}

	logger.InfoContext(ctx, "bundle dequeued",
		"bundle_id", bundle.ID,
		"recipient", bundle.Recipient.String(),
		"notifications", len(bundle.NotificationIDs),
		"newly_dequeued", marked,
	)
	return nil
}

// markDequeued marks ids in chunks processed concurrently. Each chunk is
// retried on failure; nothing is rolled back.
func (c *Coordinator) markDequeued(ctx context.Context, ids []string) (int, error) {
	chunks := chunk(ids, c.cfg.ChunkSize)
	counts := make([]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, part := range chunks {
		g.Go(func() error {
			var err error
			for attempt := 0; attempt < c.cfg.ChunkRetries; attempt++ {
				counts[i], err = c.stores.Notifications().MarkDequeued(gctx, part)
				if err == nil || gctx.Err() != nil {
					break
				}
				c.logger.WarnContext(gctx, "marking notifications dequeued failed, retrying",
					"chunk", i, "attempt", attempt+1, "error", err.Error())
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func chunk(ids []string, size int) [][]string {
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
