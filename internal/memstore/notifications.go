package memstore

import (
	"context"
	"sort"
	"time"

	"postoffice/internal/types"
)

type notificationStore struct {
	store *Store
	tx    *state
}

func (n *notificationStore) InsertIfAbsent(ctx context.Context, in *types.DataAvailableNotification) (bool, error) {
	var inserted bool
	err := n.store.with(ctx, n.tx, func(st *state) error {
		if _, exists := st.notifications[in.ID]; exists {
			return nil
		}
		if _, gone := st.purged[in.ID]; gone {
			return nil
		}
		st.nextSeq++
		in.SequenceNumber = st.nextSeq
		in.State = types.NotificationAvailable
		if in.CreatedAt.IsZero() {
			in.CreatedAt = n.store.now()
		}
		stored := *in
		st.notifications[in.ID] = &stored
		st.touchedAt[in.ID] = in.CreatedAt
		inserted = true
		return nil
	})
	return inserted, err
}

func (n *notificationStore) Get(ctx context.Context, id string) (*types.DataAvailableNotification, error) {
	var out *types.DataAvailableNotification
	err := n.store.with(ctx, n.tx, func(st *state) error {
		found, ok := st.notifications[id]
		if !ok {
			return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		c := *found
		out = &c
		return nil
	})
	return out, err
}

func (n *notificationStore) FindOldestAvailable(ctx context.Context, recipient types.MarketOperator) (*types.DataAvailableNotification, error) {
	var out *types.DataAvailableNotification
	err := n.store.with(ctx, n.tx, func(st *state) error {
		for _, cand := range st.notifications {
			if cand.Recipient != recipient || cand.State != types.NotificationAvailable {
				continue
			}
			if out == nil || cand.SequenceNumber < out.SequenceNumber {
				out = cand
			}
		}
		if out != nil {
			c := *out
			out = &c
		}
		return nil
	})
	return out, err
}

func (n *notificationStore) ListBundleCandidates(
	ctx context.Context,
	recipient types.MarketOperator,
	origin types.Origin,
	contentType string,
	limit int,
) ([]*types.DataAvailableNotification, error) {
	var out []*types.DataAvailableNotification
	err := n.store.with(ctx, n.tx, func(st *state) error {
		for _, cand := range st.notifications {
			if cand.Recipient == recipient &&
				cand.Origin == origin &&
				cand.ContentType == contentType &&
				cand.State == types.NotificationAvailable &&
				cand.SupportsBundling {
				c := *cand
				out = append(out, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (n *notificationStore) MarkBundled(ctx context.Context, ids []string, bundleID string) (int, error) {
	moved := 0
	err := n.store.with(ctx, n.tx, func(st *state) error {
		now := n.store.now()
		for _, id := range ids {
			cand, ok := st.notifications[id]
			if !ok || cand.State != types.NotificationAvailable {
				continue
			}
			cand.State = types.NotificationBundled
			cand.BundleID = bundleID
			st.touchedAt[id] = now
			moved++
		}
		return nil
	})
	return moved, err
}

func (n *notificationStore) MarkDequeued(ctx context.Context, ids []string) (int, error) {
	moved := 0
	err := n.store.with(ctx, n.tx, func(st *state) error {
		now := n.store.now()
		for _, id := range ids {
			cand, ok := st.notifications[id]
			if !ok || cand.State == types.NotificationDequeued {
				continue
			}
			cand.State = types.NotificationDequeued
			st.touchedAt[id] = now
			moved++
		}
		return nil
	})
	return moved, err
}

func (n *notificationStore) DeleteDequeuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := n.store.with(ctx, n.tx, func(st *state) error {
		for id, cand := range st.notifications {
			if cand.State == types.NotificationDequeued && st.touchedAt[id].Before(cutoff) {
				st.purged[id] = st.touchedAt[id]
				delete(st.notifications, id)
				delete(st.touchedAt, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}
