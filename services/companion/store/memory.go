// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
)

// MemoryStore is an in-memory EventStore and ProfileStore. It backs tests
// and the offline degraded mode, and doubles as the gateway's record table.
//
// # Thread Safety
//
// Safe for concurrent use. Subscription handlers run synchronously on the
// mutating goroutine, after the store mutation committed.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[datatypes.Collection]map[string]*datatypes.Event
	profiles map[string]*datatypes.Profile
	subs     map[string]*memorySub
	closed   bool
}

type memorySub struct {
	id         string
	collection datatypes.Collection
	handler    ChangeHandler
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		records:  make(map[datatypes.Collection]map[string]*datatypes.Event),
		profiles: make(map[string]*datatypes.Profile),
		subs:     make(map[string]*memorySub),
	}
	for _, c := range datatypes.Collections {
		s.records[c] = make(map[string]*datatypes.Event)
	}
	return s
}

// FetchAll returns the collection snapshot ordered by created_at ascending.
func (s *MemoryStore) FetchAll(_ context.Context, collection datatypes.Collection) ([]*datatypes.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	table, ok := s.records[collection]
	if !ok {
		return nil, ErrNotFound
	}

	events := make([]*datatypes.Event, 0, len(table))
	for _, e := range table {
		events = append(events, e.Clone())
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// Insert assigns a server id and timestamp, stores the record, and
// notifies subscribers. The caller's event is not mutated.
func (s *MemoryStore) Insert(_ context.Context, event *datatypes.Event) (*datatypes.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	table, ok := s.records[event.Collection]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	confirmed := event.Clone()
	confirmed.ID = uuid.NewString()
	confirmed.Pending = false
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = time.Now()
	}
	table[confirmed.ID] = confirmed
	subs := s.subscribersLocked(event.Collection)
	s.mu.Unlock()

	notify(subs, Change{
		Kind:       ChangeInsert,
		Collection: confirmed.Collection,
		Event:      confirmed.Clone(),
		ID:         confirmed.ID,
	})
	return confirmed.Clone(), nil
}

// Update replaces the record with the same id and notifies subscribers.
func (s *MemoryStore) Update(_ context.Context, event *datatypes.Event) (*datatypes.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	table, ok := s.records[event.Collection]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	existing, ok := table[event.ID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	updated := event.Clone()
	updated.Pending = false
	if updated.CreatedAt.IsZero() {
		updated.CreatedAt = existing.CreatedAt
	}
	table[updated.ID] = updated
	subs := s.subscribersLocked(event.Collection)
	s.mu.Unlock()

	notify(subs, Change{
		Kind:       ChangeUpdate,
		Collection: updated.Collection,
		Event:      updated.Clone(),
		ID:         updated.ID,
	})
	return updated.Clone(), nil
}

// Delete removes a record by id and notifies subscribers.
func (s *MemoryStore) Delete(_ context.Context, collection datatypes.Collection, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	table, ok := s.records[collection]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if _, ok := table[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(table, id)
	subs := s.subscribersLocked(collection)
	s.mu.Unlock()

	notify(subs, Change{
		Kind:       ChangeDelete,
		Collection: collection,
		ID:         id,
	})
	return nil
}

// Subscribe registers a live change handler for one collection.
func (s *MemoryStore) Subscribe(_ context.Context, collection datatypes.Collection, handler ChangeHandler) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	sub := &memorySub{
		id:         uuid.NewString(),
		collection: collection,
		handler:    handler,
	}
	s.subs[sub.id] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
		})
	}, nil
}

// GetProfile returns the profile row for an identity.
func (s *MemoryStore) GetProfile(_ context.Context, id string) (*datatypes.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// UpsertProfile creates or replaces the profile row.
func (s *MemoryStore) UpsertProfile(_ context.Context, profile *datatypes.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	clone := *profile
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now()
	}
	s.profiles[clone.ID] = &clone
	return nil
}

// Close stops the store. Subsequent calls return ErrStoreClosed.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[string]*memorySub)
}

// Seed inserts a confirmed event verbatim, keeping its id and timestamp.
// Test helper; bypasses subscriber notification.
func (s *MemoryStore) Seed(event *datatypes.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[event.Collection][event.ID] = event.Clone()
}

func (s *MemoryStore) subscribersLocked(collection datatypes.Collection) []*memorySub {
	subs := make([]*memorySub, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.collection == collection {
			subs = append(subs, sub)
		}
	}
	return subs
}

func notify(subs []*memorySub, change Change) {
	for _, sub := range subs {
		sub.handler(change)
	}
}

var (
	_ EventStore   = (*MemoryStore)(nil)
	_ ProfileStore = (*MemoryStore)(nil)
)
