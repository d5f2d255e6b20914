package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postoffice/internal/content"
	"postoffice/internal/types"
)

func testBundle() *types.Bundle {
	return &types.Bundle{
		ID:              "b1",
		Recipient:       "5790001330583",
		Origin:          types.OriginCharges,
		ContentType:     "charges",
		NotificationIDs: []string{"n1", "n2"},
	}
}

func newContentAPI(url string, timeout time.Duration) *ContentAPI {
	return NewContentAPI(newTestClient(RetryPolicy{}), url, timeout, nil)
}

func TestContentAPI_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/content-requests", r.URL.Path)
		assert.Equal(t, "b1", r.Header.Get("Idempotency-Key"))

		var req contentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b1", req.IdempotencyID)
		assert.Equal(t, []string{"n1", "n2"}, req.NotificationIDs)

		_ = json.NewEncoder(w).Encode(contentReply{Location: "https://blob/b1"})
	}))
	defer server.Close()

	res, err := newContentAPI(server.URL+"/", time.Second).RequestContent(context.Background(), testBundle())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "https://blob/b1", res.Location)
}

func TestContentAPI_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   content.Reason
	}{
		{"not found", http.StatusNotFound, ``, content.ReasonNotFound},
		{"client error", http.StatusBadRequest, `{}`, content.ReasonUpstreamError},
		{"server error", http.StatusInternalServerError, ``, content.ReasonUpstreamError},
		{"bad json", http.StatusOK, `not json`, content.ReasonProtocolError},
		{"no location", http.StatusOK, `{"location":""}`, content.ReasonProtocolError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			res, err := newContentAPI(server.URL, time.Second).RequestContent(context.Background(), testBundle())
			require.NoError(t, err)
			assert.False(t, res.OK())
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestContentAPI_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	res, err := newContentAPI(server.URL, 50*time.Millisecond).RequestContent(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, content.ReasonTimeout, res.Reason)
}

func TestContentAPI_CallerCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newContentAPI(server.URL, time.Second).RequestContent(ctx, testBundle())
	assert.ErrorIs(t, err, context.Canceled)
}
