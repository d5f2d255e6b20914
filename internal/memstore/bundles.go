package memstore

import (
	"context"
	"sort"
	"time"

	"postoffice/internal/types"
)

type bundleStore struct {
	store *Store
	tx    *state
}

func (b *bundleStore) CreateIfAbsent(ctx context.Context, in *types.Bundle) (bool, error) {
	var created bool
	err := b.store.with(ctx, b.tx, func(st *state) error {
		if _, taken := st.active[in.Recipient]; taken {
			return nil
		}
		if _, exists := st.bundles[in.ID]; exists {
			return types.NewAppError(types.ErrCodeInternalDB, "bundle id already used", nil)
		}
		now := b.store.now()
		if in.CreatedAt.IsZero() {
			in.CreatedAt = now
		}
		in.UpdatedAt = in.CreatedAt
		st.bundles[in.ID] = in.Clone()
		st.active[in.Recipient] = in.ID
		created = true
		return nil
	})
	return created, err
}

func (b *bundleStore) GetActiveByRecipient(ctx context.Context, recipient types.MarketOperator) (*types.Bundle, error) {
	var out *types.Bundle
	err := b.store.with(ctx, b.tx, func(st *state) error {
		if id, ok := st.active[recipient]; ok {
			out = st.bundles[id].Clone()
		}
		return nil
	})
	return out, err
}

func (b *bundleStore) Get(ctx context.Context, id string) (*types.Bundle, error) {
	var out *types.Bundle
	err := b.store.with(ctx, b.tx, func(st *state) error {
		out = st.bundles[id].Clone()
		return nil
	})
	return out, err
}

func (b *bundleStore) SetContent(ctx context.Context, id string, location string) error {
	return b.store.with(ctx, b.tx, func(st *state) error {
		found, ok := st.bundles[id]
		if !ok || found.NotificationsArchived {
			return types.NewAppError(types.ErrCodeNotFoundBundle, "bundle not found", nil)
		}
		loc := location
		found.Content = &loc
		found.UpdatedAt = b.store.now()
		return nil
	})
}

func (b *bundleStore) MarkArchived(ctx context.Context, id string) error {
	return b.store.with(ctx, b.tx, func(st *state) error {
		found, ok := st.bundles[id]
		if !ok {
			return nil
		}
		found.NotificationsArchived = true
		found.UpdatedAt = b.store.now()
		if st.active[found.Recipient] == id {
			delete(st.active, found.Recipient)
		}
		return nil
	})
}

func (b *bundleStore) Delete(ctx context.Context, id string) error {
	return b.store.with(ctx, b.tx, func(st *state) error {
		found, ok := st.bundles[id]
		if !ok {
			return nil
		}
		if st.active[found.Recipient] == id {
			delete(st.active, found.Recipient)
		}
		delete(st.bundles, id)
		return nil
	})
}

func (b *bundleStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*types.Bundle, error) {
	var out []*types.Bundle
	err := b.store.with(ctx, b.tx, func(st *state) error {
		for _, cand := range st.bundles {
			if cand.Content != nil && !cand.NotificationsArchived && cand.UpdatedAt.Before(cutoff) {
				out = append(out, cand.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
