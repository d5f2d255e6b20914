package memstore

import (
	"context"
	"time"

	"postoffice/internal/types"
)

type idempotencyStore struct {
	store *Store
	tx    *state
}

func (i *idempotencyStore) InsertIfAbsent(ctx context.Context, rec types.IdempotencyRecord) (bool, error) {
	var inserted bool
	err := i.store.with(ctx, i.tx, func(st *state) error {
		if _, seen := st.idempotency[rec.Token]; seen {
			return nil
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = i.store.now()
		}
		st.idempotency[rec.Token] = rec
		inserted = true
		return nil
	})
	return inserted, err
}

func (i *idempotencyStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := i.store.with(ctx, i.tx, func(st *state) error {
		for token, rec := range st.idempotency {
			if rec.CreatedAt.Before(cutoff) {
				delete(st.idempotency, token)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}
