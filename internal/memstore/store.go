// Package memstore is an in-process store.Store. It backs the server when no
// database URL is configured and is the store most tests run against.
//
// Records are never mutated in place: updates replace the map entry, so a
// transaction snapshot only has to copy the per-entity maps.
package memstore

import (
	"context"
	"sync"
	"time"

	"roster/internal/apperr"
	"roster/internal/registry"
	"roster/internal/store"
)

// dataset: entity -> id -> record
type dataset map[string]map[string]store.Record

func (d dataset) clone() dataset {
	out := make(dataset, len(d))
	for name, rows := range d {
		cp := make(map[string]store.Record, len(rows))
		for id, rec := range rows {
			cp[id] = rec
		}
		out[name] = cp
	}
	return out
}

// state is shared between the root Store and every transaction view of it.
type state struct {
	mu   sync.RWMutex // guards data
	txMu sync.Mutex   // one writer (plain write or transaction) at a time
	data dataset
	last time.Time
}

type Store struct {
	reg *registry.Registry
	st  *state
	now func() time.Time

	// set on transaction views only
	tx     dataset
	txLock *sync.Mutex
}

type Option func(*Store)

// WithClock replaces time.Now for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(reg *registry.Registry, opts ...Option) *Store {
	data := make(dataset)
	for _, e := range reg.Entities() {
		data[e.Name] = make(map[string]store.Record)
	}
	s := &Store{reg: reg, st: &state{data: data}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Delegate(entity string) (store.Delegate, error) {
	e, err := s.reg.Entity(entity)
	if err != nil {
		return nil, err
	}
	return &delegate{s: s, e: e}, nil
}

// WithTx runs fn against a snapshot and swaps it in when fn succeeds. Nested
// calls join the running transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()

	s.st.mu.RLock()
	snap := s.st.data.clone()
	s.st.mu.RUnlock()

	view := &Store{reg: s.reg, st: s.st, now: s.now, tx: snap, txLock: &sync.Mutex{}}
	if err := fn(view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.st.mu.Lock()
	s.st.data = snap
	s.st.mu.Unlock()
	return nil
}

// Len reports how many records entity holds.
func (s *Store) Len(entity string) int {
	n := 0
	_ = s.read(func(d dataset) error {
		n = len(d[entity])
		return nil
	})
	return n
}

func (s *Store) read(fn func(d dataset) error) error {
	if s.tx != nil {
		s.txLock.Lock()
		defer s.txLock.Unlock()
		return fn(s.tx)
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return fn(s.st.data)
}

// write validates and mutates in one critical section; fn must not change d
// before it has decided to succeed.
func (s *Store) write(fn func(d dataset) error) error {
	if s.tx != nil {
		s.txLock.Lock()
		defer s.txLock.Unlock()
		return fn(s.tx)
	}
	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return fn(s.st.data)
}

// stamp returns a strictly increasing, microsecond-truncated timestamp.
// Callers hold the write lock.
func (s *Store) stamp() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.st.last) {
		t = s.st.last.Add(time.Microsecond)
	}
	s.st.last = t
	return t
}

func unknownEntity(name string) error {
	return apperr.Configuration("memstore: unknown entity %q", name)
}
