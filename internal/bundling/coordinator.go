// Package bundling selects which available notifications a recipient
// receives together and records that selection as a bundle.
package bundling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

// Config bounds bundle size and conflict handling.
type Config struct {
	// MaxBundleWeight caps the summed Weight of a bundle. The oldest
	// notification is always included even when it alone exceeds the cap.
	MaxBundleWeight int
	// ConflictRetries is how many times a selection that lost a race
	// against a concurrent writer is recomputed.
	ConflictRetries int
}

const (
	defaultMaxBundleWeight = 50
	defaultConflictRetries = 3
)

// Peek outcomes reported to telemetry.
const (
	peekExisting = "existing"
	peekCreated  = "created"
	peekEmpty    = "empty"
)

// errStaleSelection means the candidates changed between selection and
// marking. The transaction is rolled back and the peek retried.
var errStaleSelection = errors.New("bundling: selection changed concurrently")

// Coordinator implements Peek. It holds no locks; per-recipient exclusion
// comes from BundleStore.CreateIfAbsent.
type Coordinator struct {
	tx      types.TransactionManager
	cfg     Config
	clock   types.Clock
	metrics telemetry.Recorder
	logger  *slog.Logger
	newID   func() string
}

// NewCoordinator creates a coordinator. Zero config values take defaults.
func NewCoordinator(tx types.TransactionManager, cfg Config, clock types.Clock, metrics telemetry.Recorder, logger *slog.Logger) *Coordinator {
	if cfg.MaxBundleWeight <= 0 {
		cfg.MaxBundleWeight = defaultMaxBundleWeight
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Coordinator{
		tx:      tx,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Peek returns the recipient's current bundle, creating one from the oldest
// available notifications when none exists. It returns nil when there is
// nothing to deliver. The bundle may not have content yet.
func (c *Coordinator) Peek(ctx context.Context, recipient types.MarketOperator) (*types.Bundle, error) {
	if recipient == "" {
		return nil, types.NewAppError(types.ErrCodeValidationRecipient, "recipient is required", nil)
	}
	logger := types.LoggerFromContext(ctx, c.logger)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.ConflictRetries; attempt++ {
		bundle, err := c.peekOnce(ctx, recipient)
		if err == nil {
			return bundle, nil
		}
		if !errors.Is(err, errStaleSelection) && !types.HasCode(err, types.ErrCodeInternalStorageConflict) {
			return nil, err
		}
		lastErr = err
		c.metrics.RecordPeekConflict(ctx)
		logger.InfoContext(ctx, "peek lost a race, retrying",
			"recipient", recipient.String(),
			"attempt", attempt+1,
		)
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalStorageConflict,
		"bundle selection kept conflicting with concurrent writers", lastErr,
		map[string]any{"recipient": recipient.String(), "attempts": c.cfg.ConflictRetries + 1})
}

func (c *Coordinator) peekOnce(ctx context.Context, recipient types.MarketOperator) (*types.Bundle, error) {
	var (
		result  *types.Bundle
		outcome string
		weight  int
	)
	err := c.tx.RunInTx(ctx, func(ctx context.Context, stores types.StoreRegistry) error {
		active, err := stores.Bundles().GetActiveByRecipient(ctx, recipient)
		if err != nil {
			return err
		}
		if active != nil {
			result, outcome = active, peekExisting
			return nil
		}

		oldest, err := stores.Notifications().FindOldestAvailable(ctx, recipient)
		if err != nil {
			return err
		}
		if oldest == nil {
			outcome = peekEmpty
			return nil
		}

		ids := []string{oldest.ID}
		weight = int(oldest.Weight)
		if oldest.SupportsBundling {
			candidates, err := stores.Notifications().ListBundleCandidates(ctx,
				recipient, oldest.Origin, oldest.ContentType, c.cfg.MaxBundleWeight)
			if err != nil {
				return err
			}
			ids, weight = c.accumulate(oldest, candidates)
		}

		now := c.clock.Now()
		bundle := &types.Bundle{
			ID:              c.newID(),
			Recipient:       recipient,
			Origin:          oldest.Origin,
			ContentType:     oldest.ContentType,
			NotificationIDs: ids,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created, err := stores.Bundles().CreateIfAbsent(ctx, bundle)
		if err != nil {
			return err
		}
		if !created {
			winner, err := stores.Bundles().GetActiveByRecipient(ctx, recipient)
			if err != nil {
				return err
			}
			if winner == nil {
				return errStaleSelection
			}
			result, outcome = winner, peekExisting
			return nil
		}

		moved, err := stores.Notifications().MarkBundled(ctx, ids, bundle.ID)
		if err != nil {
			return err
		}
		if moved != len(ids) {
			return errStaleSelection
		}
		result, outcome = bundle, peekCreated
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordPeek(ctx, outcome)
	if outcome == peekCreated {
		c.metrics.RecordBundleWeight(ctx, result.Origin, weight)
		types.LoggerFromContext(ctx, c.logger).InfoContext(ctx, "bundle created",
			"bundle_id", result.ID,
			"recipient", recipient.String(),
			"origin", string(result.Origin),
			"notifications", len(result.NotificationIDs),
			"weight", weight,
		)
	}
	return result, nil
}

// accumulate walks candidates oldest first, stopping at the first one that
// would push the total past the cap.
func (c *Coordinator) accumulate(oldest *types.DataAvailableNotification, candidates []*types.DataAvailableNotification) ([]string, int) {
	ids := []string{oldest.ID}
	total := int(oldest.Weight)
	for _, cand := range candidates {
		if cand.ID == oldest.ID {
			continue
		}
		if total+int(cand.Weight) > c.cfg.MaxBundleWeight {
			break
		}
		ids = append(ids, cand.ID)
		total += int(cand.Weight)
	}
	return ids, total
}
