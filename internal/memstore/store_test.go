package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postoffice/internal/types"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

const recipient = types.MarketOperator("5790001330583")

func newNotification(id string, weight int32) *types.DataAvailableNotification {
	return &types.DataAvailableNotification{
		ID:               id,
		Recipient:        recipient,
		ContentType:      "TimeSeries",
		Origin:           types.OriginTimeSeries,
		SupportsBundling: true,
		Weight:           weight,
	}
}

func TestNotifications_InsertAssignsIncreasingSequence(t *testing.T) {
	ctx := context.Background()
	s := New()

	var last int64
	for _, id := range []string{"a", "b", "c"} {
		n := newNotification(id, 1)
		ok, err := s.Notifications().InsertIfAbsent(ctx, n)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Greater(t, n.SequenceNumber, last)
		last = n.SequenceNumber
	}

	ok, err := s.Notifications().InsertIfAbsent(ctx, newNotification("b", 9))
	require.NoError(t, err)
	assert.False(t, ok, "second insert of the same id must be rejected")

	got, err := s.Notifications().Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Weight, "original row must be untouched")
}

func TestNotifications_OldestAndCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Notifications().InsertIfAbsent(ctx, newNotification(id, 1))
		require.NoError(t, err)
	}
	other := newNotification("x", 1)
	other.ContentType = "Aggregations"
	_, err := s.Notifications().InsertIfAbsent(ctx, other)
	require.NoError(t, err)

	oldest, err := s.Notifications().FindOldestAvailable(ctx, recipient)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "a", oldest.ID)

	cands, err := s.Notifications().ListBundleCandidates(ctx, recipient, types.OriginTimeSeries, "TimeSeries", 2)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "a", cands[0].ID)
	assert.Equal(t, "b", cands[1].ID)

	none, err := s.Notifications().FindOldestAvailable(ctx, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNotifications_MarkBundledOnlyMovesAvailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, id := range []string{"a", "b"} {
		_, err := s.Notifications().InsertIfAbsent(ctx, newNotification(id, 1))
		require.NoError(t, err)
	}

	moved, err := s.Notifications().MarkBundled(ctx, []string{"a"}, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	moved, err = s.Notifications().MarkBundled(ctx, []string{"a", "b"}, "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	a, err := s.Notifications().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b1", a.BundleID)

	moved, err = s.Notifications().MarkDequeued(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	moved, err = s.Notifications().MarkDequeued(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Zero(t, moved)

	moved, err = s.Notifications().MarkBundled(ctx, []string{"a"}, "b3")
	require.NoError(t, err)
	assert.Zero(t, moved, "dequeued notifications are never re-bundled")
}

func TestBundles_OneActivePerRecipient(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &types.Bundle{ID: "b1", Recipient: recipient, NotificationIDs: []string{"a"}}
	ok, err := s.Bundles().CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Bundles().CreateIfAbsent(ctx, &types.Bundle{ID: "b2", Recipient: recipient, NotificationIDs: []string{"b"}})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Bundles().MarkArchived(ctx, "b1"))
	active, err := s.Bundles().GetActiveByRecipient(ctx, recipient)
	require.NoError(t, err)
	assert.Nil(t, active)

	ok, err = s.Bundles().CreateIfAbsent(ctx, &types.Bundle{ID: "b2", Recipient: recipient, NotificationIDs: []string{"b"}})
	require.NoError(t, err)
	assert.True(t, ok, "archiving frees the recipient slot")
}

func TestBundles_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Bundles().CreateIfAbsent(ctx, &types.Bundle{ID: "b1", Recipient: recipient, NotificationIDs: []string{"a"}})
	require.NoError(t, err)

	got, err := s.Bundles().Get(ctx, "b1")
	require.NoError(t, err)
	got.NotificationIDs[0] = "mutated"

	again, err := s.Bundles().Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.NotificationIDs[0])
}

func TestBundles_SetContentAndStale(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock))

	_, err := s.Bundles().CreateIfAbsent(ctx, &types.Bundle{ID: "b1", Recipient: recipient, NotificationIDs: []string{"a"}})
	require.NoError(t, err)

	stale, err := s.Bundles().ListStale(ctx, clock.t.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "pending bundles are not stale")

	require.NoError(t, s.Bundles().SetContent(ctx, "b1", "blob://b1"))
	stale, err = s.Bundles().ListStale(ctx, clock.t.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, types.BundleContentReady, stale[0].State())

	err = s.Bundles().SetContent(ctx, "missing", "blob://x")
	assert.True(t, types.IsNotFound(err))
}

func TestRunInTx_RollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Notifications().InsertIfAbsent(ctx, newNotification("a", 1))
	require.NoError(t, err)

	boom := errors.New("selection stale")
	err = s.RunInTx(ctx, func(ctx context.Context, stores types.StoreRegistry) error {
		ok, err := stores.Bundles().CreateIfAbsent(ctx, &types.Bundle{ID: "b1", Recipient: recipient, NotificationIDs: []string{"a"}})
		require.NoError(t, err)
		require.True(t, ok)
		_, err = stores.Notifications().MarkBundled(ctx, []string{"a"}, "b1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := s.Bundles().GetActiveByRecipient(ctx, recipient)
	require.NoError(t, err)
	assert.Nil(t, active)
	a, err := s.Notifications().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.NotificationAvailable, a.State)
}

func TestRunInTx_CommitIsVisible(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(ctx context.Context, stores types.StoreRegistry) error {
		_, err := stores.Idempotency().InsertIfAbsent(ctx, types.IdempotencyRecord{Token: "t1", NotificationID: "a"})
		return err
	})
	require.NoError(t, err)

	ok, err := s.Idempotency().InsertIfAbsent(ctx, types.IdempotencyRecord{Token: "t1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunInTx_ConcurrentCreatesYieldOneBundle(t *testing.T) {
	ctx := context.Background()
	s := New()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.RunInTx(ctx, func(ctx context.Context, stores types.StoreRegistry) error {
				ok, err := stores.Bundles().CreateIfAbsent(ctx, &types.Bundle{
					ID:              string(rune('A' + i)),
					Recipient:       recipient,
					NotificationIDs: []string{"a"},
				})
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return err
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestRetentionPurges(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock))

	_, err := s.Notifications().InsertIfAbsent(ctx, newNotification("a", 1))
	require.NoError(t, err)
	_, err = s.Notifications().InsertIfAbsent(ctx, newNotification("b", 1))
	require.NoError(t, err)
	_, err = s.Notifications().MarkDequeued(ctx, []string{"a"})
	require.NoError(t, err)
	_, err = s.Idempotency().InsertIfAbsent(ctx, types.IdempotencyRecord{Token: "t", NotificationID: "a"})
	require.NoError(t, err)

	later := clock.t.Add(time.Hour)
	n, err := s.Notifications().DeleteDequeuedBefore(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.Notifications().Get(ctx, "b")
	assert.NoError(t, err, "available notifications are never purged")

	inserted, err := s.Notifications().InsertIfAbsent(ctx, newNotification("a", 1))
	require.NoError(t, err)
	assert.False(t, inserted, "a purged ID stays taken")

	n, err = s.Idempotency().DeleteBefore(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()

	_, err := s.Notifications().InsertIfAbsent(ctx, newNotification("a", 1))
	assert.ErrorIs(t, err, context.Canceled)
	err = s.RunInTx(ctx, func(context.Context, types.StoreRegistry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
