package intake

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postoffice/internal/memstore"
	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService() (*Service, *memstore.Store) {
	clock := fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memstore.New(memstore.WithClock(clock))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, store, clock, telemetry.Nop{}, logger), store
}

func notification(recipient string, weight int32) *types.DataAvailableNotification {
	return &types.DataAvailableNotification{
		ID:               uuid.NewString(),
		Recipient:        types.MarketOperator(recipient),
		ContentType:      "TimeSeries",
		Origin:           types.OriginTimeSeries,
		SupportsBundling: true,
		Weight:           weight,
	}
}

func TestSubmit_AcceptsAndAssignsSequence(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Submit(ctx, notification("5790000000001", 1), "")
	require.NoError(t, err)
	second, err := svc.Submit(ctx, notification("5790000000001", 1), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, first.Outcome)
	assert.Equal(t, types.NotificationAvailable, first.Notification.State)
	assert.Less(t, first.Notification.SequenceNumber, second.Notification.SequenceNumber)

	oldest, err := svc.PeekOldest(ctx, "5790000000001")
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, first.Notification.ID, oldest.ID)
}

func TestSubmit_SameTokenTwiceIsDuplicate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	n := notification("5790000000001", 1)

	res, err := svc.Submit(ctx, n, "token-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)

	retry := *n
	res, err = svc.Submit(ctx, &retry, "token-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	candidates, err := store.Notifications().ListBundleCandidates(ctx, "5790000000001", types.OriginTimeSeries, "TimeSeries", 10)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestSubmit_SameIDUnderNewTokenIsDuplicateWithoutSideEffects(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	n := notification("5790000000001", 1)

	_, err := svc.Submit(ctx, n, "token-1")
	require.NoError(t, err)

	again := *n
	res, err := svc.Submit(ctx, &again, "token-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// The rolled back transaction must not have consumed token-2.
	fresh, err := store.Idempotency().InsertIfAbsent(ctx, types.IdempotencyRecord{Token: "token-2"})
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSubmit_ConcurrentDuplicatesAcceptOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	n := notification("5790000000001", 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *n
			res, err := svc.Submit(ctx, &c, "shared")
			if assert.NoError(t, err) && res.Outcome == OutcomeAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(n *types.DataAvailableNotification)
		code   types.ErrorCode
	}{
		{"blank recipient", func(n *types.DataAvailableNotification) { n.Recipient = "  " }, types.ErrCodeValidationRecipient},
		{"blank content type", func(n *types.DataAvailableNotification) { n.ContentType = "" }, types.ErrCodeValidationMissingField},
		{"unknown origin", func(n *types.DataAvailableNotification) { n.Origin = "Weather" }, types.ErrCodeValidationOrigin},
		{"zero weight", func(n *types.DataAvailableNotification) { n.Weight = 0 }, types.ErrCodeValidationWeight},
		{"negative weight", func(n *types.DataAvailableNotification) { n.Weight = -3 }, types.ErrCodeValidationWeight},
		{"bad id", func(n *types.DataAvailableNotification) { n.ID = "abc" }, types.ErrCodeValidationNotificationID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notification("5790000000001", 1)
			tt.mutate(n)
			_, err := svc.Submit(ctx, n, "")
			require.Error(t, err)
			assert.True(t, types.HasCode(err, tt.code), "got %v", err)
		})
	}

	_, err := svc.Submit(ctx, nil, "")
	assert.True(t, types.IsValidation(err))
}

func TestSubmit_NormalizesRecipientAndOrigin(t *testing.T) {
	svc, _ := newTestService()
	n := notification(" 5790000000001 ", 2)
	n.Origin = "charges"

	res, err := svc.Submit(context.Background(), n, "")
	require.NoError(t, err)
	assert.Equal(t, types.MarketOperator("5790000000001"), res.Notification.Recipient)
	assert.Equal(t, types.OriginCharges, res.Notification.Origin)
}

func TestLookups(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a := notification("R1", 1)
	b := notification("R1", 1)
	b.ContentType = "Other"
	c := notification("R1", 1)
	for _, n := range []*types.DataAvailableNotification{a, b, c} {
		_, err := svc.Submit(ctx, n, "")
		require.NoError(t, err)
	}

	got, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Other", got.ContentType)

	candidates, err := svc.PeekBundleCandidates(ctx, "R1", types.OriginTimeSeries, "TimeSeries", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, a.ID, candidates[0].ID)
	assert.Equal(t, c.ID, candidates[1].ID)

	_, err = svc.Get(ctx, uuid.NewString())
	assert.True(t, types.IsNotFound(err))

	_, err = svc.Get(ctx, " ")
	assert.True(t, types.IsValidation(err))

	none, err := svc.PeekOldest(ctx, "R2")
	require.NoError(t, err)
	assert.Nil(t, none)
}
