package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postoffice/internal/intake"
	"postoffice/internal/types"
)

type fakeNotifications struct {
	submitFn func(ctx context.Context, n *types.DataAvailableNotification, token string) (intake.SubmitResult, error)
	getFn    func(ctx context.Context, id string) (*types.DataAvailableNotification, error)
}

func (f *fakeNotifications) Submit(ctx context.Context, n *types.DataAvailableNotification, token string) (intake.SubmitResult, error) {
	return f.submitFn(ctx, n, token)
}

func (f *fakeNotifications) Get(ctx context.Context, id string) (*types.DataAvailableNotification, error) {
	return f.getFn(ctx, id)
}

func notificationRouter(svc NotificationService) http.Handler {
	r := chi.NewRouter()
	NewNotificationHandler(svc, nil).RegisterRoutes(r)
	return r
}

const submitBody = `{
	"id": "6f1b2c1e-1c9a-4c3e-9b0a-1d2e3f4a5b6c",
	"recipient": "5790001330583",
	"content_type": "timeseries",
	"origin": "TimeSeries",
	"supports_bundling": true,
	"weight": 2
}`

func TestSubmitNotification_Accepted(t *testing.T) {
	svc := &fakeNotifications{submitFn: func(_ context.Context, n *types.DataAvailableNotification, token string) (intake.SubmitResult, error) {
		assert.Equal(t, "6f1b2c1e-1c9a-4c3e-9b0a-1d2e3f4a5b6c", n.ID)
		assert.Equal(t, types.MarketOperator("5790001330583"), n.Recipient)
		assert.Equal(t, types.OriginTimeSeries, n.Origin)
		assert.True(t, n.SupportsBundling)
		assert.Equal(t, int32(2), n.Weight)
		assert.Equal(t, "token-1", token)
		n.SequenceNumber = 7
		n.State = types.NotificationAvailable
		return intake.SubmitResult{Outcome: intake.OutcomeAccepted, Notification: n}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(submitBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "token-1")
	rec := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body struct {
		Data NotificationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, intake.OutcomeAccepted, body.Data.Outcome)
	assert.Equal(t, int64(7), body.Data.SequenceNumber)
}

func TestSubmitNotification_Duplicate(t *testing.T) {
	svc := &fakeNotifications{submitFn: func(_ context.Context, n *types.DataAvailableNotification, _ string) (intake.SubmitResult, error) {
		return intake.SubmitResult{Outcome: intake.OutcomeDuplicate, Notification: n}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(submitBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)
}

func TestSubmitNotification_AssignsID(t *testing.T) {
	var got string
	svc := &fakeNotifications{submitFn: func(_ context.Context, n *types.DataAvailableNotification, _ string) (intake.SubmitResult, error) {
		got = n.ID
		return intake.SubmitResult{Outcome: intake.OutcomeAccepted, Notification: n}, nil
	}}

	body := `{"recipient":"5790001330583","content_type":"timeseries","origin":"TimeSeries","weight":1}`
	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestSubmitNotification_BadBody(t *testing.T) {
	svc := &fakeNotifications{submitFn: func(context.Context, *types.DataAvailableNotification, string) (intake.SubmitResult, error) {
		t.Fatal("submit must not be called")
		return intake.SubmitResult{}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(`{"weight":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationPayload), errorCode(t, rec))
}

func TestSubmitNotification_ValidationError(t *testing.T) {
	svc := &fakeNotifications{submitFn: func(context.Context, *types.DataAvailableNotification, string) (intake.SubmitResult, error) {
		return intake.SubmitResult{}, types.NewAppError(types.ErrCodeValidationWeight, "weight must be positive", nil)
	}}

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(submitBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationWeight), errorCode(t, rec))
}

func TestGetNotification(t *testing.T) {
	svc := &fakeNotifications{getFn: func(_ context.Context, id string) (*types.DataAvailableNotification, error) {
		if id != "n1" {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return &types.DataAvailableNotification{
			ID:        "n1",
			Recipient: "5790001330583",
			Origin:    types.OriginAggregations,
			Weight:    1,
			State:     types.NotificationBundled,
			BundleID:  "b1",
		}, nil
	}}
	router := notificationRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/n1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bundle_id":"b1"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
