// Package mailbox is the consumer-facing side of the post office: peek
// returns a bundle with its content resolved, dequeue acknowledges it.
package mailbox

import (
	"context"
	"log/slog"

	"postoffice/internal/content"
	"postoffice/internal/dequeue"
	"postoffice/internal/types"
)

// Status summarizes a peek.
type Status string

const (
	StatusEmpty              Status = "empty"
	StatusReady              Status = "ready"
	StatusContentUnavailable Status = "content_unavailable"
)

// PeekResult is returned by Peek. Content holds the failed content result
// when Status is StatusContentUnavailable.
type PeekResult struct {
	Status  Status
	Bundle  *types.Bundle
	Content content.Result
}

// Peeker returns the recipient's current bundle.
type Peeker interface {
	Peek(ctx context.Context, recipient types.MarketOperator) (*types.Bundle, error)
}

// ContentResolver yields the content location of a bundle.
type ContentResolver interface {
	Resolve(ctx context.Context, bundle *types.Bundle) (content.Result, error)
}

// Acknowledger completes a bundle.
type Acknowledger interface {
	Acknowledge(ctx context.Context, bundleID string) (dequeue.Completion, error)
}

// Service wires the coordinators together for one recipient request.
type Service struct {
	peeker   Peeker
	resolver ContentResolver
	acker    Acknowledger
	bundles  types.BundleStore
	logger   *slog.Logger
}

// NewService creates the mailbox service.
func NewService(peeker Peeker, resolver ContentResolver, acker Acknowledger, bundles types.BundleStore, logger *slog.Logger) *Service {
	return &Service{peeker: peeker, resolver: resolver, acker: acker, bundles: bundles, logger: logger}
}

// Peek returns the recipient's bundle. Content is requested only the first
// time; the location is saved on the bundle so later peeks reuse it. A
// failed content request leaves the bundle pending for the next peek.
func (s *Service) Peek(ctx context.Context, recipient types.MarketOperator) (PeekResult, error) {
	bundle, err := s.peeker.Peek(ctx, recipient)
	if err != nil {
		return PeekResult{}, err
	}
	if bundle == nil {
		return PeekResult{Status: StatusEmpty}, nil
	}
	if bundle.HasContent() {
		return PeekResult{Status: StatusReady, Bundle: bundle}, nil
	}

	res, err := s.resolver.Resolve(ctx, bundle)
	if err != nil {
		return PeekResult{}, err
	}
	if !res.OK() {
		return PeekResult{Status: StatusContentUnavailable, Bundle: bundle, Content: res}, nil
	}

	if err := s.bundles.SetContent(ctx, bundle.ID, res.Location); err != nil {
		// Acknowledged by another request while the content was produced.
		if types.HasCode(err, types.ErrCodeNotFoundBundle) {
			types.LoggerFromContext(ctx, s.logger).InfoContext(ctx, "bundle completed during content request",
				"bundle_id", bundle.ID,
				"recipient", recipient.String(),
			)
			return PeekResult{Status: StatusEmpty}, nil
		}
		return PeekResult{}, err
	}
	location := res.Location
	bundle.Content = &location

	types.LoggerFromContext(ctx, s.logger).InfoContext(ctx, "bundle content ready",
		"bundle_id", bundle.ID,
		"recipient", recipient.String(),
	)
	return PeekResult{Status: StatusReady, Bundle: bundle, Content: res}, nil
}

// Dequeue acknowledges bundleID on behalf of recipient. A bundle owned by
// someone else is reported as not found.
func (s *Service) Dequeue(ctx context.Context, recipient types.MarketOperator, bundleID string) (dequeue.Completion, error) {
	if bundleID == "" {
		return dequeue.Completion{}, types.NewAppError(types.ErrCodeValidationBundleID, "bundle id is required", nil)
	}
	bundle, err := s.bundles.Get(ctx, bundleID)
	if err != nil {
		return dequeue.Completion{}, err
	}
	if bundle != nil && bundle.Recipient != recipient {
		types.LoggerFromContext(ctx, s.logger).WarnContext(ctx, "dequeue of bundle owned by another recipient",
			"bundle_id", bundleID,
			"recipient", recipient.String(),
		)
		return dequeue.Completion{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundBundle, "bundle not found", nil,
			map[string]any{"bundle_id": bundleID})
	}
	return s.acker.Acknowledge(ctx, bundleID)
}
