package content

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"postoffice/internal/contracts"
	"postoffice/internal/queue"
	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

// DefaultTimeout bounds the wait for a producer's reply.
const DefaultTimeout = 30 * time.Second

// Gateway requests bundle content over the bus: one RequestDataBundle
// message to the origin's request queue, then a session-scoped receive on
// its reply queue.
type Gateway struct {
	bus     queue.Bus
	timeout time.Duration
	metrics telemetry.Recorder
	logger  *slog.Logger
}

// NewGateway creates a gateway. timeout <= 0 uses DefaultTimeout.
func NewGateway(bus queue.Bus, timeout time.Duration, metrics telemetry.Recorder, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Gateway{bus: bus, timeout: timeout, metrics: metrics, logger: logger}
}

var _ ContentSource = (*Gateway)(nil)

// RequestContent asks the bundle's origin for its content. Timeouts,
// producer failures and undecodable replies come back as a failed Result;
// only infrastructure failures and cancellation are returned as errors.
// The request carries the bundle ID as idempotency id, so a retried
// request is recognizable by the producer.
func (g *Gateway) RequestContent(ctx context.Context, bundle *types.Bundle) (Result, error) {
	if bundle == nil || len(bundle.NotificationIDs) == 0 {
		return Result{}, types.NewAppError(types.ErrCodeValidationBundleID, "bundle has no notifications", nil)
	}
	logger := types.LoggerFromContext(ctx, g.logger).With(
		"bundle_id", bundle.ID,
		"origin", string(bundle.Origin),
	)
	start := time.Now()

	session := queue.NewSessionToken()
	req := &contracts.ContentRequest{
		IdempotencyID:   bundle.ID,
		NotificationIDs: bundle.NotificationIDs,
	}
	msg := queue.NewMessage(ctx, types.MessageRequestDataBundle, req.Marshal())
	msg.Session = session
	msg.ReplyTo = queue.ReplyQueue(bundle.Origin)
	msg.IdempotencyKey = bundle.ID

	if err := g.bus.Send(ctx, queue.RequestQueue(bundle.Origin), msg); err != nil {
		return Result{}, err
	}
	logger.InfoContext(ctx, "content requested",
		"session_id", session.String(),
		"event_id", msg.EventID,
		"notifications", len(bundle.NotificationIDs),
	)

	result, err := g.awaitReply(ctx, bundle, session)
	if err != nil {
		return Result{}, err
	}

	latency := time.Since(start)
	g.metrics.RecordContentRequest(ctx, bundle.Origin, result.Outcome(), latency)
	if result.OK() {
		logger.InfoContext(ctx, "content received", "location", result.Location, "latency_ms", latency.Milliseconds())
	} else {
		logger.WarnContext(ctx, "content request failed",
			"reason", string(result.Reason),
			"description", result.Description,
			"latency_ms", latency.Milliseconds(),
		)
	}
	return result, nil
}

func (g *Gateway) awaitReply(ctx context.Context, bundle *types.Bundle, session queue.SessionToken) (Result, error) {
	reply, err := g.bus.ReceiveSession(ctx, queue.ReplyQueue(bundle.Origin), session, g.timeout)
	switch {
	case errors.Is(err, queue.ErrReceiveTimeout):
		return Failure(ReasonTimeout, "no reply within "+g.timeout.String()), nil
	case err != nil && ctx.Err() != nil:
		return Result{}, ctx.Err()
	case types.IsProtocol(err):
		return Failure(ReasonProtocolError, err.Error()), nil
	case err != nil:
		return Result{}, err
	}

	if reply.Type != types.MessageDataBundleResponse {
		return Failure(ReasonProtocolError, "unexpected reply type "+string(reply.Type)), nil
	}
	resp, err := contracts.UnmarshalContentResponse(reply.Body)
	if err != nil {
		return Failure(ReasonProtocolError, err.Error()), nil
	}
	if !sameIDs(resp.NotificationIDs(), bundle.NotificationIDs) {
		return Failure(ReasonUpstreamError, "reply covers different notifications than requested"), nil
	}

	if resp.Success != nil {
		if resp.Success.LocationURI == "" {
			return Failure(ReasonProtocolError, "success reply without location"), nil
		}
		return Success(resp.Success.LocationURI), nil
	}
	return Failure(reasonFor(resp.Failure.Reason), resp.Failure.Description), nil
}

func reasonFor(r contracts.FailureReason) Reason {
	switch r {
	case contracts.FailureReasonNotFound:
		return ReasonNotFound
	case contracts.FailureReasonTimeout:
		return ReasonTimeout
	default:
		return ReasonUpstreamError
	}
}

// sameIDs compares two id lists ignoring order.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
