// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store defines the event store adapter consumed by the
// reconciliation layer, plus two implementations: an in-memory store for
// tests and offline mode, and a websocket client speaking to the Memora
// sync gateway.
//
// Ordering across Subscribe and FetchAll is NOT race-free: the live stream
// may deliver a change before, during, or after the initial fetch returns.
// The reconciled collection is responsible for merging the two views; the
// adapter only promises at-least-once delivery of changes.
package store

import (
	"context"
	"errors"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
)

// Sentinel errors for store operations.
var (
	// ErrTransientIO indicates a network or store call failed and may
	// succeed on retry.
	ErrTransientIO = errors.New("transient store error")

	// ErrNotFound indicates the record does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed indicates the adapter has been closed and can no
	// longer serve calls. Callers degrade to cached read-only state.
	ErrStoreClosed = errors.New("store is closed")
)

// ChangeKind classifies a live change notification.
type ChangeKind string

const (
	// ChangeInsert signals a newly inserted record.
	ChangeInsert ChangeKind = "insert"

	// ChangeUpdate signals an in-place record update.
	ChangeUpdate ChangeKind = "update"

	// ChangeDelete signals a record removal. Only ID is populated.
	ChangeDelete ChangeKind = "delete"
)

// Change is one live notification from a subscription.
type Change struct {
	Kind       ChangeKind           `json:"kind"`
	Collection datatypes.Collection `json:"collection"`

	// Event is set for insert and update changes.
	Event *datatypes.Event `json:"event,omitempty"`

	// ID is set for delete changes (and redundantly for the others).
	ID string `json:"id"`
}

// ChangeHandler receives live changes for a subscribed collection.
type ChangeHandler func(change Change)

// Unsubscribe releases a subscription. Implementations must make it safe
// to call on every exit path, including when the subscription never fully
// established, and to call more than once.
type Unsubscribe func()

// EventStore is the adapter to the hosted record store.
//
// Insert returns the server-confirmed record: the store assigns the
// authoritative id and may adjust created_at. Callers reconcile the
// returned event against their optimistic local entry.
type EventStore interface {
	// FetchAll returns the full snapshot of a collection, ordered by
	// created_at ascending.
	FetchAll(ctx context.Context, collection datatypes.Collection) ([]*datatypes.Event, error)

	// Insert persists a new record and returns the confirmed event.
	Insert(ctx context.Context, event *datatypes.Event) (*datatypes.Event, error)

	// Update replaces the record with the same id and returns the
	// confirmed event. ErrNotFound if the id is unknown.
	Update(ctx context.Context, event *datatypes.Event) (*datatypes.Event, error)

	// Delete removes a record by id. Deleting an absent record is an
	// ErrNotFound, which callers may ignore for idempotence.
	Delete(ctx context.Context, collection datatypes.Collection, id string) error

	// Subscribe registers a handler for live changes to one collection.
	// The returned Unsubscribe must be called when the consuming view
	// unmounts.
	Subscribe(ctx context.Context, collection datatypes.Collection, handler ChangeHandler) (Unsubscribe, error)
}

// ProfileStore is the profiles side-table, keyed by identity. It is
// deliberately separate from EventStore: profiles are not a reconciled
// collection, just a denormalized row the mood log mirrors into.
type ProfileStore interface {
	// GetProfile returns the profile for an identity, ErrNotFound if absent.
	GetProfile(ctx context.Context, id string) (*datatypes.Profile, error)

	// UpsertProfile creates or replaces the profile row.
	UpsertProfile(ctx context.Context, profile *datatypes.Profile) error
}
