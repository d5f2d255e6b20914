// Package memstore is an in-process implementation of the post office
// stores. Every Store is an independent instance; nothing is shared at
// package level, so tests and local runs construct and inject their own.
package memstore

import (
	"context"
	"sync"
	"time"

	"postoffice/internal/types"
)

// state is the full data set. Transactions work on a clone and swap it in on
// success, which gives all-or-nothing semantics across the three stores.
type state struct {
	notifications map[string]*types.DataAvailableNotification
	touchedAt     map[string]time.Time
	bundles       map[string]*types.Bundle
	active        map[types.MarketOperator]string
	idempotency   map[string]types.IdempotencyRecord
	purged        map[string]time.Time
	nextSeq       int64
}

func newState() *state {
	return &state{
		notifications: make(map[string]*types.DataAvailableNotification),
		touchedAt:     make(map[string]time.Time),
		bundles:       make(map[string]*types.Bundle),
		active:        make(map[types.MarketOperator]string),
		idempotency:   make(map[string]types.IdempotencyRecord),
		purged:        make(map[string]time.Time),
	}
}

func (s *state) clone() *state {
	c := &state{
		notifications: make(map[string]*types.DataAvailableNotification, len(s.notifications)),
		touchedAt:     make(map[string]time.Time, len(s.touchedAt)),
		bundles:       make(map[string]*types.Bundle, len(s.bundles)),
		active:        make(map[types.MarketOperator]string, len(s.active)),
		idempotency:   make(map[string]types.IdempotencyRecord, len(s.idempotency)),
		purged:        make(map[string]time.Time, len(s.purged)),
		nextSeq:       s.nextSeq,
	}
	for k, v := range s.notifications {
		n := *v
		c.notifications[k] = &n
	}
	for k, v := range s.touchedAt {
		c.touchedAt[k] = v
	}
	for k, v := range s.bundles {
		c.bundles[k] = v.Clone()
	}
	for k, v := range s.active {
		c.active[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.purged {
		c.purged[k] = v
	}
	return c
}

// Store holds notifications, bundles and idempotency records in memory.
// Single operations are atomic; RunInTx groups several atomically.
type Store struct {
	mu    sync.Mutex
	st    *state
	clock types.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(c types.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), clock: types.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ types.StoreRegistry      = (*Store)(nil)
	_ types.TransactionManager = (*Store)(nil)
)

// Notifications returns the auto-committing notification store.
func (s *Store) Notifications() types.NotificationStore { return &notificationStore{store: s} }

// Bundles returns the auto-committing bundle store.
func (s *Store) Bundles() types.BundleStore { return &bundleStore{store: s} }

// Idempotency returns the auto-committing idempotency store.
func (s *Store) Idempotency() types.IdempotencyStore { return &idempotencyStore{store: s} }

// RunInTx runs fn against a private copy of the data and publishes it only
// if fn returns nil. Transactions on one Store are serialized.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, stores types.StoreRegistry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &txRegistry{store: s, tx: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// txRegistry hands out stores bound to an in-flight transaction.
type txRegistry struct {
	store *Store
	tx    *state
}

func (r *txRegistry) Notifications() types.NotificationStore {
	return &notificationStore{store: r.store, tx: r.tx}
}

func (r *txRegistry) Bundles() types.BundleStore {
	return &bundleStore{store: r.store, tx: r.tx}
}

func (r *txRegistry) Idempotency() types.IdempotencyStore {
	return &idempotencyStore{store: r.store, tx: r.tx}
}

// with runs fn on the transaction state when bound to one, otherwise on the
// committed state under the store lock.
func (s *Store) with(ctx context.Context, tx *state, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) now() time.Time { return s.clock.Now() }
