// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reconcile implements the client-side state reconciliation layer:
// one ordered, duplicate-free view of a collection merged from the initial
// fetch, the live change stream, and optimistic local inserts.
//
// # Ordering
//
// Iterating a Collection always yields entries in non-decreasing created_at
// order. Ties are broken by local arrival order: the entry merged first
// stays first. This holds even when the live stream delivers events older
// than entries already present from the fetched snapshot.
//
// # Duplicates
//
// Entries are unique by id. A repeated remote insert is a counted no-op.
// An optimistic entry is replaced in place by its server-confirmed
// counterpart, never duplicated next to it.
//
// # Failure Semantics
//
// Malformed events (missing id or created_at) are dropped and logged;
// they never abort the rest of a merge pass. Reconciliation errors are
// returned as values, never panics.
//
// # Thread Safety
//
// Collection is safe for concurrent use. One instance per collection type
// owns the state for a session; views subscribe as read-only observers via
// the shared events.Emitter.
package reconcile

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/observability"
)

// now is swapped out by tests that need a fixed clock.
var now = time.Now

// Handle identifies an optimistic insert until it is reconciled.
type Handle struct {
	// TempID is the client-generated id carried by the optimistic entry.
	TempID string
}

// entry pairs an event with its local arrival sequence number, used to
// break created_at ties deterministically.
type entry struct {
	event *datatypes.Event
	seq   uint64
}

// Collection is an ordering-stable, duplicate-free merged view of one
// event stream.
type Collection struct {
	mu      sync.RWMutex
	name    datatypes.Collection
	entries []*entry
	index   map[string]int // id -> position in entries
	nextSeq uint64
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewCollection creates an empty reconciled collection.
//
// Inputs:
//
//	name - The collection this instance owns.
//	emitter - Notification channel for read-only observers. May be nil.
//	logger - Destination for dropped-event logging. May be nil.
func NewCollection(name datatypes.Collection, emitter *events.Emitter, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		name:    name,
		index:   make(map[string]int),
		emitter: emitter,
		logger:  logger.With("collection", string(name)),
	}
}

// Initialize seeds the collection from a fetched snapshot.
//
// The merge is an idempotent union keyed by id: snapshot entries missing
// locally are inserted; entries already merged (from the live stream or an
// earlier Initialize) are kept as-is, so a slow fetch never regresses
// state the subscription already advanced. Calling Initialize twice with
// the same snapshot leaves the collection unchanged.
//
// Malformed snapshot entries are dropped and logged; the rest of the
// snapshot is still merged.
func (c *Collection) Initialize(snapshot []*datatypes.Event) {
	c.mu.Lock()
	changed := false
	for _, e := range snapshot {
		if err := e.Validate(); err != nil {
			c.logger.Warn("dropping malformed snapshot entry", "error", err)
			observability.MalformedDroppedTotal.WithLabelValues(string(c.name)).Inc()
			continue
		}
		if _, ok := c.index[e.ID]; ok {
			continue
		}
		c.insertLocked(e.Clone(), c.nextSeqLocked())
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// ApplyRemoteInsert merges one live insert. A duplicate id (the optimistic
// insert already reconciled, or the stream delivering twice) is a counted
// no-op. Malformed events are dropped and logged.
func (c *Collection) ApplyRemoteInsert(e *datatypes.Event) {
	if err := e.Validate(); err != nil {
		c.logger.Warn("dropping malformed remote insert", "error", err)
		observability.MalformedDroppedTotal.WithLabelValues(string(c.name)).Inc()
		return
	}

	c.mu.Lock()
	if _, ok := c.index[e.ID]; ok {
		c.mu.Unlock()
		observability.DuplicatesDroppedTotal.WithLabelValues(string(c.name)).Inc()
		return
	}
	c.insertLocked(e.Clone(), c.nextSeqLocked())
	c.mu.Unlock()

	observability.MergesTotal.WithLabelValues(string(c.name), "insert").Inc()
	c.notify()
}

// ApplyRemoteUpdate replaces the entry with the matching id in place,
// preserving its position unless created_at changed. An update for an
// unknown id (out-of-order delivery after a delete) is a logged no-op.
func (c *Collection) ApplyRemoteUpdate(e *datatypes.Event) {
	if err := e.Validate(); err != nil {
		c.logger.Warn("dropping malformed remote update", "error", err)
		observability.MalformedDroppedTotal.WithLabelValues(string(c.name)).Inc()
		return
	}

	c.mu.Lock()
	pos, ok := c.index[e.ID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("remote update for unknown id", "id", e.ID)
		return
	}

	current := c.entries[pos]
	if current.event.CreatedAt.Equal(e.CreatedAt) {
		// Position preserved, payload swapped in place.
		current.event = e.Clone()
	} else {
		// created_at changed: re-sort, keeping the original arrival
		// sequence so ties stay stable.
		seq := current.seq
		c.removeLocked(pos)
		c.insertLocked(e.Clone(), seq)
	}
	c.mu.Unlock()

	observability.MergesTotal.WithLabelValues(string(c.name), "update").Inc()
	c.notify()
}

// ApplyRemoteDelete removes the entry with the matching id. Absent ids
// (already removed locally, or out-of-order delivery) are a no-op.
func (c *Collection) ApplyRemoteDelete(id string) {
	c.mu.Lock()
	pos, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	wasPending := c.entries[pos].event.Pending
	c.removeLocked(pos)
	c.mu.Unlock()

	if wasPending {
		observability.OptimisticPending.WithLabelValues(string(c.name)).Dec()
	}
	observability.MergesTotal.WithLabelValues(string(c.name), "delete").Inc()
	c.notify()
}

// InsertOptimistic appends a local record immediately, before any server
// round trip, so the UI shows it without perceptible wait. The record is
// stamped with a client-generated temporary id and Pending=true.
//
// Outputs:
//
//	Handle - Token for ReconcileOptimistic / ReconcileFailed.
func (c *Collection) InsertOptimistic(record *datatypes.Event) Handle {
	e := record.Clone()
	e.ID = "local-" + uuid.NewString()
	e.Collection = c.name
	e.Pending = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}

	c.mu.Lock()
	c.insertLocked(e, c.nextSeqLocked())
	c.mu.Unlock()

	observability.OptimisticPending.WithLabelValues(string(c.name)).Inc()
	c.notify()
	return Handle{TempID: e.ID}
}

// ReconcileOptimistic replaces the optimistic entry with its confirmed
// counterpart, preserving relative order. If the live stream already
// delivered the confirmed event, the temporary entry is simply removed;
// exactly one entry with the confirmed id remains either way.
//
// Outputs:
//
//	error - ErrUnknownHandle if the handle matches no pending entry.
func (c *Collection) ReconcileOptimistic(h Handle, confirmed *datatypes.Event) error {
	if err := confirmed.Validate(); err != nil {
		// A confirmed event that fails validation cannot be merged; drop
		// the optimistic entry rather than keeping a ghost.
		c.logger.Error("confirmed event failed validation, discarding optimistic entry", "error", err)
		_ = c.ReconcileFailed(h)
		return ErrReconcileConflict
	}

	c.mu.Lock()
	pos, ok := c.index[h.TempID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownHandle
	}

	seq := c.entries[pos].seq
	c.removeLocked(pos)

	if _, ok := c.index[confirmed.ID]; !ok {
		e := confirmed.Clone()
		e.Pending = false
		c.insertLocked(e, seq)
	}
	// Otherwise the subscription won the race; the already-merged entry
	// stays and the temporary one is gone.
	c.mu.Unlock()

	observability.OptimisticPending.WithLabelValues(string(c.name)).Dec()
	c.notify()
	return nil
}

// ReconcileFailed removes the optimistic entry after a failed round trip.
// The caller surfaces a retryable error to the initiating view; no ghost
// entry is left behind.
func (c *Collection) ReconcileFailed(h Handle) error {
	c.mu.Lock()
	pos, ok := c.index[h.TempID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownHandle
	}
	c.removeLocked(pos)
	c.mu.Unlock()

	observability.OptimisticPending.WithLabelValues(string(c.name)).Dec()
	c.notify()
	return nil
}

// Snapshot returns the merged entries in order. Entries are deep copies;
// observers can never mutate collection state through them.
func (c *Collection) Snapshot() []*datatypes.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*datatypes.Event, len(c.entries))
	for i, en := range c.entries {
		out[i] = en.event.Clone()
	}
	return out
}

// Get returns a copy of the entry with the given id, or nil.
func (c *Collection) Get(id string) *datatypes.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[id]
	if !ok {
		return nil
	}
	return c.entries[pos].event.Clone()
}

// Len returns the number of merged entries.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Name returns the collection this instance owns.
func (c *Collection) Name() datatypes.Collection {
	return c.name
}

// insertLocked splices the event into its sorted position: after every
// entry with an earlier created_at, and after equal timestamps with an
// earlier arrival sequence. Caller holds c.mu.
func (c *Collection) insertLocked(e *datatypes.Event, seq uint64) {
	en := &entry{event: e, seq: seq}
	pos := sort.Search(len(c.entries), func(i int) bool {
		if c.entries[i].event.CreatedAt.Equal(e.CreatedAt) {
			return c.entries[i].seq > seq
		}
		return c.entries[i].event.CreatedAt.After(e.CreatedAt)
	})

	c.entries = append(c.entries, nil)
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = en

	c.index[e.ID] = pos
	for i := pos + 1; i < len(c.entries); i++ {
		c.index[c.entries[i].event.ID] = i
	}
}

// removeLocked deletes the entry at pos and repairs the index.
// Caller holds c.mu.
func (c *Collection) removeLocked(pos int) {
	delete(c.index, c.entries[pos].event.ID)
	c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
	for i := pos; i < len(c.entries); i++ {
		c.index[c.entries[i].event.ID] = i
	}
}

func (c *Collection) nextSeqLocked() uint64 {
	c.nextSeq++
	return c.nextSeq
}

func (c *Collection) notify() {
	if c.emitter != nil {
		c.emitter.Emit(events.TypeCollectionChanged, string(c.name))
	}
}
