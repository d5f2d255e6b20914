// Package handlers contains the HTTP handlers of the post office API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"postoffice/internal/content"
	"postoffice/internal/core"
	"postoffice/internal/dequeue"
	"postoffice/internal/mailbox"
	"postoffice/internal/types"
)

// MailboxService is the consumer-facing mailbox.
type MailboxService interface {
	Peek(ctx context.Context, recipient types.MarketOperator) (mailbox.PeekResult, error)
	Dequeue(ctx context.Context, recipient types.MarketOperator, bundleID string) (dequeue.Completion, error)
}

// BundleResponse is the body of a successful peek.
type BundleResponse struct {
	ID              string            `json:"id"`
	Recipient       string            `json:"recipient"`
	Origin          types.Origin      `json:"origin"`
	ContentType     string            `json:"content_type"`
	NotificationIDs []string          `json:"notification_ids"`
	ContentLocation string            `json:"content_location"`
	State           types.BundleState `json:"state"`
	CreatedAt       time.Time         `json:"created_at"`
}

func newBundleResponse(b *types.Bundle) BundleResponse {
	resp := BundleResponse{
		ID:              b.ID,
		Recipient:       b.Recipient.String(),
		Origin:          b.Origin,
		ContentType:     b.ContentType,
		NotificationIDs: b.NotificationIDs,
		State:           b.State(),
		CreatedAt:       b.CreatedAt,
	}
	if b.Content != nil {
		resp.ContentLocation = *b.Content
	}
	return resp
}

// MailboxHandler serves peek and dequeue.
type MailboxHandler struct {
	svc    MailboxService
	logger *slog.Logger
}

// NewMailboxHandler creates the handler.
func NewMailboxHandler(svc MailboxService, l *slog.Logger) *MailboxHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MailboxHandler{svc: svc, logger: l}
}

// RegisterRoutes mounts the mailbox routes.
func (h *MailboxHandler) RegisterRoutes(r chi.Router) {
	r.Route("/mailbox/{recipient}", func(r chi.Router) {
		r.Get("/peek", h.Peek)
		r.Delete("/bundles/{bundleID}", h.Dequeue)
	})
}

func recipientParam(r *http.Request) (types.MarketOperator, error) {
	return types.NewMarketOperator(chi.URLParam(r, "recipient"))
}

// Peek handles GET /v1/mailbox/{recipient}/peek. An empty mailbox is 204;
// content that could not be obtained is 502, or 504 on timeout.
func (h *MailboxHandler) Peek(w http.ResponseWriter, r *http.Request) {
	recipient, err := recipientParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.svc.Peek(r.Context(), recipient)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	switch res.Status {
	case mailbox.StatusEmpty:
		core.NoContent(w)
	case mailbox.StatusContentUnavailable:
		code := types.ErrCodeUpstreamContent
		if res.Content.Reason == content.ReasonTimeout {
			code = types.ErrCodeUpstreamContentTimeout
		}
		core.Error(w, r, types.NewAppErrorWithDetails(code, "bundle content is not available yet", nil,
			map[string]any{
				"bundle_id": res.Bundle.ID,
				"reason":    string(res.Content.Reason),
			}))
	default:
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newBundleResponse(res.Bundle)})
	}
}

// Dequeue handles DELETE /v1/mailbox/{recipient}/bundles/{bundleID}. A
// repeated dequeue also answers 204; the outcome is exposed in a header.
func (h *MailboxHandler) Dequeue(w http.ResponseWriter, r *http.Request) {
	recipient, err := recipientParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	done, err := h.svc.Dequeue(r.Context(), recipient, chi.URLParam(r, "bundleID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("X-Dequeue-Outcome", string(done.Outcome))
	core.NoContent(w)
}
