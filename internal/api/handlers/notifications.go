package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"postoffice/internal/core"
	"postoffice/internal/intake"
	"postoffice/internal/types"
)

// NotificationService accepts and looks up notifications.
type NotificationService interface {
	Submit(ctx context.Context, n *types.DataAvailableNotification, token string) (intake.SubmitResult, error)
	Get(ctx context.Context, id string) (*types.DataAvailableNotification, error)
}

// SubmitNotificationRequest is the body of POST /v1/notifications. ID is
// assigned when omitted.
type SubmitNotificationRequest struct {
	ID               string `json:"id,omitempty"`
	Recipient        string `json:"recipient"`
	ContentType      string `json:"content_type"`
	Origin           string `json:"origin"`
	SupportsBundling bool   `json:"supports_bundling"`
	Weight           int32  `json:"weight"`
}

// NotificationResponse is the audit view of a notification.
type NotificationResponse struct {
	ID               string                  `json:"id"`
	Recipient        string                  `json:"recipient"`
	ContentType      string                  `json:"content_type"`
	Origin           types.Origin            `json:"origin"`
	SupportsBundling bool                    `json:"supports_bundling"`
	Weight           int32                   `json:"weight"`
	SequenceNumber   int64                   `json:"sequence_number,omitempty"`
	State            types.NotificationState `json:"state,omitempty"`
	BundleID         string                  `json:"bundle_id,omitempty"`
	CreatedAt        *time.Time              `json:"created_at,omitempty"`
	Outcome          intake.Outcome          `json:"outcome,omitempty"`
}

func newNotificationResponse(n *types.DataAvailableNotification) NotificationResponse {
	resp := NotificationResponse{
		ID:               n.ID,
		Recipient:        n.Recipient.String(),
		ContentType:      n.ContentType,
		Origin:           n.Origin,
		SupportsBundling: n.SupportsBundling,
		Weight:           n.Weight,
		SequenceNumber:   n.SequenceNumber,
		State:            n.State,
		BundleID:         n.BundleID,
	}
	if !n.CreatedAt.IsZero() {
		created := n.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

// NotificationHandler serves notification intake over HTTP.
type NotificationHandler struct {
	svc    NotificationService
	logger *slog.Logger
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(svc NotificationService, l *slog.Logger) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{svc: svc, logger: l}
}

// RegisterRoutes mounts the notification routes.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/{id}", h.Get)
	})
}

// Submit handles POST /v1/notifications: 202 when accepted, 200 when the
// Idempotency-Key (or notification id) was seen before.
func (h *NotificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitNotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	n := &types.DataAvailableNotification{
		ID:               req.ID,
		Recipient:        types.MarketOperator(req.Recipient),
		ContentType:      req.ContentType,
		Origin:           types.Origin(req.Origin),
		SupportsBundling: req.SupportsBundling,
		Weight:           req.Weight,
	}
	res, err := h.svc.Submit(r.Context(), n, r.Header.Get("Idempotency-Key"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := newNotificationResponse(res.Notification)
	resp.Outcome = res.Outcome
	status := http.StatusAccepted
	if res.Outcome == intake.OutcomeDuplicate {
		status = http.StatusOK
	}
	core.JSON(w, r, status, core.APIResponse{Data: resp})
}

// Get handles GET /v1/notifications/{id}.
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newNotificationResponse(n)})
}
