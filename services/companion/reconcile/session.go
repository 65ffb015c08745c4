// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/store"
)

// Session owns the reconciled collections for one running session and
// binds them to an event store.
//
// # Fetch/Subscribe Race
//
// Start subscribes to the live stream BEFORE fetching the snapshot, and
// buffers changes delivered while the fetch is in flight. Once the
// snapshot has seeded the collection, buffered changes are replayed in
// arrival order. The collection's id-keyed merge makes the replay
// idempotent, so a change that the snapshot already contained is dropped,
// and a change newer than the snapshot is kept. The session therefore
// never regresses to pre-subscription state when the fetch completes.
//
// # Degraded Mode
//
// If the fetch fails, the collection keeps whatever state it has (possibly
// empty, possibly cached from an earlier Start) and stays read-only until
// the next successful Start. Live changes still merge if the subscription
// survived.
//
// # Thread Safety
//
// Safe for concurrent use. Exactly one Session per store per process is
// the intended ownership model; views observe through the shared emitter.
type Session struct {
	store   store.EventStore
	emitter *events.Emitter
	logger  *slog.Logger

	mu          sync.Mutex
	collections map[datatypes.Collection]*Collection
	unsubs      []store.Unsubscribe
	started     bool
}

// NewSession creates a session owning one Collection per reconciled
// collection type.
func NewSession(eventStore store.EventStore, emitter *events.Emitter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		store:       eventStore,
		emitter:     emitter,
		logger:      logger,
		collections: make(map[datatypes.Collection]*Collection),
	}
	for _, name := range datatypes.Collections {
		s.collections[name] = NewCollection(name, emitter, logger)
	}
	return s
}

// Collection returns the session's reconciled view of one collection.
func (s *Session) Collection(name datatypes.Collection) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[name]
}

// Start subscribes and seeds every collection. Safe to call again after
// Stop (e.g. on reconnect); already-merged state is kept and the snapshot
// union-merges into it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for _, name := range datatypes.Collections {
		if err := s.startCollection(ctx, name); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
	}
	return nil
}

// startCollection wires one collection: subscribe first, buffer while the
// snapshot is fetched, then replay.
func (s *Session) startCollection(ctx context.Context, name datatypes.Collection) error {
	coll := s.Collection(name)

	var (
		bufMu     sync.Mutex
		buffering = true
		buffered  []store.Change
	)

	handler := func(change store.Change) {
		bufMu.Lock()
		if buffering {
			buffered = append(buffered, change)
			bufMu.Unlock()
			return
		}
		bufMu.Unlock()
		s.apply(coll, change)
	}

	unsub, err := s.store.Subscribe(ctx, name, handler)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()

	snapshot, err := s.store.FetchAll(ctx, name)
	if err != nil {
		// Degrade to whatever is cached; the subscription stays up so
		// live changes keep merging.
		s.logger.Warn("snapshot fetch failed, serving cached state",
			"collection", string(name), "error", err)
	} else {
		coll.Initialize(snapshot)
	}

	// Flush the buffer, then hand deliveries straight to the collection.
	bufMu.Lock()
	toReplay := buffered
	buffered = nil
	buffering = false
	bufMu.Unlock()

	for _, change := range toReplay {
		s.apply(coll, change)
	}
	return nil
}

// apply routes one live change to the owning collection.
func (s *Session) apply(coll *Collection, change store.Change) {
	switch change.Kind {
	case store.ChangeInsert:
		if change.Event != nil {
			coll.ApplyRemoteInsert(change.Event)
		}
	case store.ChangeUpdate:
		if change.Event != nil {
			coll.ApplyRemoteUpdate(change.Event)
		}
	case store.ChangeDelete:
		coll.ApplyRemoteDelete(change.ID)
	default:
		s.logger.Warn("unknown change kind", "kind", string(change.Kind))
	}
}

// Publish inserts an event optimistically, persists it remotely with at
// most one automatic retry, and reconciles. On failure the optimistic
// entry is rolled back and ErrPublishFailed is returned; local state is
// never left half-committed.
//
// Outputs:
//
//	*datatypes.Event - The server-confirmed event.
//	error - ErrPublishFailed (wrapping the transport error) after rollback.
func (s *Session) Publish(ctx context.Context, record *datatypes.Event) (*datatypes.Event, error) {
	coll := s.Collection(record.Collection)
	if coll == nil {
		return nil, fmt.Errorf("unknown collection %q", record.Collection)
	}

	handle := coll.InsertOptimistic(record)

	confirmed, err := s.store.Insert(ctx, record)
	if err != nil && errors.Is(err, store.ErrTransientIO) {
		s.logger.Warn("insert failed, retrying once", "collection", string(record.Collection), "error", err)
		confirmed, err = s.store.Insert(ctx, record)
	}
	if err != nil {
		if rbErr := coll.ReconcileFailed(handle); rbErr != nil {
			s.logger.Error("rollback of optimistic entry failed", "error", rbErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	if err := coll.ReconcileOptimistic(handle, confirmed); err != nil {
		// The optimistic entry vanished (e.g. remote delete raced us).
		// The confirmed event will arrive via the live stream; merging it
		// here as a plain insert keeps the views consistent either way.
		coll.ApplyRemoteInsert(confirmed)
	}
	return confirmed, nil
}

// Remove deletes an event locally and remotely. The local removal happens
// first so the UI reflects the intent immediately; a remote ErrNotFound is
// treated as success (the record was already gone).
func (s *Session) Remove(ctx context.Context, collection datatypes.Collection, id string) error {
	coll := s.Collection(collection)
	if coll == nil {
		return fmt.Errorf("unknown collection %q", collection)
	}

	coll.ApplyRemoteDelete(id)

	err := s.store.Delete(ctx, collection, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remote delete: %w", err)
	}
	return nil
}

// Stop releases every subscription. Safe to call more than once, and safe
// to call even if Start never completed.
func (s *Session) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.started = false
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
