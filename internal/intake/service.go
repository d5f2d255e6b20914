// Package intake accepts DataAvailable notifications from producing
// subsystems and makes them visible to peek.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

// Outcome reports what Submit did with a notification.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
)

// SubmitResult is returned by a successful Submit. Notification carries the
// stored SequenceNumber when accepted.
type SubmitResult struct {
	Outcome      Outcome
	Notification *types.DataAvailableNotification
}

// Service implements notification intake and the read-side lookups used by
// bundling and the API.
type Service struct {
	tx      types.TransactionManager
	stores  types.StoreRegistry
	clock   types.Clock
	metrics telemetry.Recorder
	logger  *slog.Logger
}

// NewService creates an intake service. stores is used for reads outside a
// transaction.
func NewService(tx types.TransactionManager, stores types.StoreRegistry, clock types.Clock, metrics telemetry.Recorder, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Service{tx: tx, stores: stores, clock: clock, metrics: metrics, logger: logger}
}

// errDuplicate aborts the intake transaction without writing anything.
var errDuplicate = errors.New("intake: duplicate submission")

// Submit validates n and stores it exactly once. A token already consumed,
// or an ID already stored under another token, yields OutcomeDuplicate and
// no side effects. A blank token defaults to the notification ID.
func (s *Service) Submit(ctx context.Context, n *types.DataAvailableNotification, token string) (SubmitResult, error) {
	if n == nil {
		return SubmitResult{}, types.NewAppError(types.ErrCodeValidationPayload, "notification is required", nil)
	}
	if err := n.Validate(); err != nil {
		s.metrics.RecordSubmit(ctx, n.Origin, "rejected")
		return SubmitResult{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		token = n.ID
	}

	stored := *n
	stored.SequenceNumber = 0
	stored.BundleID = ""
	stored.CreatedAt = s.clock.Now()

	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores types.StoreRegistry) error {
		fresh, err := stores.Idempotency().InsertIfAbsent(ctx, types.IdempotencyRecord{
			Token:          token,
			NotificationID: stored.ID,
			CreatedAt:      stored.CreatedAt,
		})
		if err != nil {
			return err
		}
		if !fresh {
			return errDuplicate
		}
		inserted, err := stores.Notifications().InsertIfAbsent(ctx, &stored)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}
		return nil
	})

	logger := types.LoggerFromContext(ctx, s.logger)
	switch {
	case errors.Is(err, errDuplicate):
		logger.InfoContext(ctx, "duplicate notification ignored",
			"notification_id", n.ID,
			"idempotency_key", token,
		)
		s.metrics.RecordSubmit(ctx, n.Origin, string(OutcomeDuplicate))
		return SubmitResult{Outcome: OutcomeDuplicate, Notification: n}, nil
	case err != nil:
		return SubmitResult{}, err
	}

	logger.InfoContext(ctx, "notification accepted",
		"notification_id", stored.ID,
		"recipient", stored.Recipient.String(),
		"origin", string(stored.Origin),
		"sequence_number", stored.SequenceNumber,
		"weight", stored.Weight,
	)
	s.metrics.RecordSubmit(ctx, stored.Origin, string(OutcomeAccepted))
	return SubmitResult{Outcome: OutcomeAccepted, Notification: &stored}, nil
}

// Get returns the stored notification.
func (s *Service) Get(ctx context.Context, id string) (*types.DataAvailableNotification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationNotificationID, "notification id is required", nil)
	}
	return s.stores.Notifications().Get(ctx, id)
}

// PeekOldest returns the recipient's oldest available notification, or nil.
func (s *Service) PeekOldest(ctx context.Context, recipient types.MarketOperator) (*types.DataAvailableNotification, error) {
	return s.stores.Notifications().FindOldestAvailable(ctx, recipient)
}

// PeekBundleCandidates returns up to limit available, bundlable
// notifications matching the key, oldest first.
func (s *Service) PeekBundleCandidates(ctx context.Context, recipient types.MarketOperator, origin types.Origin, contentType string, limit int) ([]*types.DataAvailableNotification, error) {
	return s.stores.Notifications().ListBundleCandidates(ctx, recipient, origin, contentType, limit)
}
