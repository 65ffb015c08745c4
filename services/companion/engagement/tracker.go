// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engagement tracks local like intent per subject, independent of
// the server-held aggregate counter.
//
// The server stores likes as a plain integer per post, not a set of
// identities, so the local liked-set is the only record of whether THIS
// identity liked a subject. A toggle computes a one-shot delta (+1/-1) for
// the remote counter and blocks a second toggle on the same subject until
// the first one is confirmed or rolled back, so a rapid double-tap can
// never double-increment the counter.
//
// # Thread Safety
//
// Tracker is safe for concurrent use.
package engagement

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/observability"
	"github.com/memoracare/MemoraLocal/services/companion/storage/badgerstore"
)

var (
	// ErrTogglePending rejects a toggle on a subject whose prior toggle
	// has not been confirmed or rolled back yet. The caller reports the
	// rejection; it must not retry silently.
	ErrTogglePending = errors.New("like toggle already pending confirmation")

	// ErrNoPendingToggle indicates Confirm/Fail was called for a subject
	// with no outstanding toggle.
	ErrNoPendingToggle = errors.New("no pending like toggle for subject")
)

// Toggle describes a committed local flip awaiting remote confirmation.
type Toggle struct {
	// SubjectID is the liked (or unliked) subject.
	SubjectID string

	// CommittedDelta is the one-shot adjustment for the remote counter:
	// +1 for not-liked -> liked, -1 for liked -> not-liked.
	CommittedDelta int

	// NewLocalState is the local liked state after the flip.
	NewLocalState bool
}

// pendingToggle remembers what to restore if the remote write fails.
type pendingToggle struct {
	previous bool
}

// Tracker owns the liked-subject set for one local identity.
type Tracker struct {
	mu       sync.Mutex
	db       *badger.DB
	identity string
	liked    map[string]bool
	pending  map[string]pendingToggle
	emitter  *events.Emitter
	logger   *slog.Logger
}

// NewTracker loads the identity's liked set from the local store.
//
// Inputs:
//
//	db - The session's embedded key/value store.
//	identity - Local device identity owning the set. See the note on
//	scope: this is per device, not per verified account.
//	emitter - Notification channel for observing views. May be nil.
//	logger - May be nil.
func NewTracker(db *badger.DB, identity string, emitter *events.Emitter, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		db:       db,
		identity: identity,
		liked:    make(map[string]bool),
		pending:  make(map[string]pendingToggle),
		emitter:  emitter,
		logger:   logger.With("identity", identity),
	}

	var stored []string
	err := badgerstore.GetJSON(db, t.key(), &stored)
	if err != nil && !errors.Is(err, badgerstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("load liked set: %w", err)
	}
	for _, id := range stored {
		t.liked[id] = true
	}
	return t, nil
}

// IsLiked reports whether the local identity has liked the subject.
func (t *Tracker) IsLiked(subjectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liked[subjectID]
}

// IsPending reports whether a toggle on the subject awaits confirmation.
func (t *Tracker) IsPending(subjectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[subjectID]
	return ok
}

// Liked returns the identity's liked subjects, sorted.
func (t *Tracker) Liked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.liked))
	for id := range t.liked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToggleLike flips the local liked state and returns the one-shot delta
// the caller must apply to the remote counter. The flip is persisted
// locally before returning and marked pending until ConfirmToggle or
// FailToggle.
//
// Outputs:
//
//	Toggle - The committed flip and its remote delta.
//	error - ErrTogglePending if a prior toggle on this subject is still
//	unconfirmed; a storage error leaves the liked state unchanged.
func (t *Tracker) ToggleLike(subjectID string) (Toggle, error) {
	t.mu.Lock()

	if _, ok := t.pending[subjectID]; ok {
		t.mu.Unlock()
		observability.ToggleRejectsTotal.Inc()
		t.logger.Debug("toggle rejected, prior toggle unconfirmed", "subject_id", subjectID)
		return Toggle{}, fmt.Errorf("%w: %s", ErrTogglePending, subjectID)
	}

	previous := t.liked[subjectID]
	newState := !previous
	t.setLocked(subjectID, newState)

	if err := t.persistLocked(); err != nil {
		t.setLocked(subjectID, previous)
		t.mu.Unlock()
		return Toggle{}, fmt.Errorf("persist liked set: %w", err)
	}
	t.pending[subjectID] = pendingToggle{previous: previous}
	t.mu.Unlock()

	delta := -1
	if newState {
		delta = 1
	}
	t.notify(subjectID, newState)
	return Toggle{SubjectID: subjectID, CommittedDelta: delta, NewLocalState: newState}, nil
}

// ConfirmToggle marks the outstanding toggle as confirmed, releasing the
// subject for further toggles.
func (t *Tracker) ConfirmToggle(subjectID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[subjectID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingToggle, subjectID)
	}
	delete(t.pending, subjectID)
	return nil
}

// FailToggle rolls back the outstanding toggle after the remote write
// failed. Both the liked state and the persisted set are restored, so the
// UI never shows "liked" for a counter that did not move.
func (t *Tracker) FailToggle(subjectID string) error {
	t.mu.Lock()

	p, ok := t.pending[subjectID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoPendingToggle, subjectID)
	}

	t.setLocked(subjectID, p.previous)
	if err := t.persistLocked(); err != nil {
		// The in-memory state is rolled back regardless; the persisted
		// set catches up on the next successful write.
		t.logger.Error("persist rollback failed", "subject_id", subjectID, "error", err)
	}
	delete(t.pending, subjectID)
	t.mu.Unlock()

	t.notify(subjectID, p.previous)
	return nil
}

func (t *Tracker) key() string {
	return "likes/" + t.identity
}

// setLocked updates the in-memory set. Caller holds t.mu.
func (t *Tracker) setLocked(subjectID string, liked bool) {
	if liked {
		t.liked[subjectID] = true
	} else {
		delete(t.liked, subjectID)
	}
}

// persistLocked writes the full set under the identity's key.
// Caller holds t.mu.
func (t *Tracker) persistLocked() error {
	stored := make([]string, 0, len(t.liked))
	for id := range t.liked {
		stored = append(stored, id)
	}
	sort.Strings(stored)
	return badgerstore.PutJSON(t.db, t.key(), stored)
}

// StateChange is the notification payload for engagement events.
type StateChange struct {
	SubjectID string
	Liked     bool
}

func (t *Tracker) notify(subjectID string, liked bool) {
	if t.emitter != nil {
		t.emitter.Emit(events.TypeEngagementChanged, StateChange{SubjectID: subjectID, Liked: liked})
	}
}
