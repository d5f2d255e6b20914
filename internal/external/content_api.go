package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"postoffice/internal/content"
	"postoffice/internal/types"
)

// maxContentResponse bounds the body read from an origin (64 KB).
const maxContentResponse = 64 << 10

// contentRequest is the JSON body posted to an origin's content endpoint.
type contentRequest struct {
	IdempotencyID   string   `json:"idempotency_id"`
	Recipient       string   `json:"recipient"`
	ContentType     string   `json:"content_type"`
	NotificationIDs []string `json:"notification_ids"`
}

type contentReply struct {
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

// ContentAPI asks an origin for bundle content over HTTP instead of the bus.
// POST {baseURL}/content-requests answers 200 with {"location": ...}; 404
// means the origin does not know the data.
type ContentAPI struct {
	client  *BaseClient
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewContentAPI creates a source for one origin. A zero timeout uses
// content.DefaultTimeout.
func NewContentAPI(client *BaseClient, baseURL string, timeout time.Duration, logger *slog.Logger) *ContentAPI {
	if timeout <= 0 {
		timeout = content.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentAPI{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

var _ content.ContentSource = (*ContentAPI)(nil)

// RequestContent implements content.ContentSource. Origin failures become
// Failure results; only the caller's own cancellation is returned as an error.
func (a *ContentAPI) RequestContent(ctx context.Context, bundle *types.Bundle) (content.Result, error) {
	body, err := json.Marshal(contentRequest{
		IdempotencyID:   bundle.ID,
		Recipient:       bundle.Recipient.String(),
		ContentType:     bundle.ContentType,
		NotificationIDs: bundle.NotificationIDs,
	})
	if err != nil {
		return content.Result{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode content request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/content-requests", bytes.NewReader(body))
	if err != nil {
		return content.Result{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build content request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", bundle.ID)

	logger := types.LoggerFromContext(ctx, a.logger)
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return content.Result{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return content.Failure(content.ReasonTimeout, "origin did not answer in time"), nil
		}
		logger.WarnContext(ctx, "content request to origin failed",
			"bundle_id", bundle.ID,
			"origin", bundle.Origin,
			"error", err,
		)
		return content.Failure(content.ReasonUpstreamError, err.Error()), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxContentResponse))
	if err != nil {
		if ctx.Err() != nil {
			return content.Result{}, ctx.Err()
		}
		return content.Failure(content.ReasonUpstreamError, "failed to read origin response"), nil
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return content.Failure(content.ReasonNotFound, "origin has no content for the bundle"), nil
	case resp.StatusCode != http.StatusOK:
		return content.Failure(content.ReasonUpstreamError, fmt.Sprintf("origin returned %d", resp.StatusCode)), nil
	}

	var reply contentReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return content.Failure(content.ReasonProtocolError, "origin response is not valid JSON"), nil
	}
	if reply.Location == "" {
		return content.Failure(content.ReasonProtocolError, "origin response has no location"), nil
	}
	return content.Success(reply.Location), nil
}
