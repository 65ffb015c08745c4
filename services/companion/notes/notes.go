// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notes keeps the clinical notes journal: short observations
// recorded by caregivers and clinicians on the patient's dashboard.
//
// Notes are append-only and read newest first. The journal is capped;
// once full, the oldest note is evicted on append so the local store
// cannot grow without bound.
package notes

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/storage/badgerstore"
)

// now is swapped out by tests that need a fixed clock.
var now = time.Now

// MaxNotes caps the journal length; the oldest note is evicted beyond it.
const MaxNotes = 100

// ErrEmptyText rejects notes without content.
var ErrEmptyText = errors.New("note text is required")

// Note is one clinical observation.
type Note struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorRole string    `json:"author_role,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal owns the notes for one patient.
//
// # Thread Safety
//
// Journal is safe for concurrent use.
type Journal struct {
	mu        sync.RWMutex
	db        *badger.DB
	patientID string
	notes     []Note // newest first
	emitter   *events.Emitter
	logger    *slog.Logger
}

// NewJournal loads the patient's notes from the local store.
func NewJournal(db *badger.DB, patientID string, emitter *events.Emitter, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		db:        db,
		patientID: patientID,
		emitter:   emitter,
		logger:    logger.With("patient_id", patientID),
	}

	err := badgerstore.GetJSON(db, j.key(), &j.notes)
	if err != nil && !errors.Is(err, badgerstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	return j, nil
}

// Add records a note stamped with the current instant.
func (j *Journal) Add(authorID, authorRole, text string) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, ErrEmptyText
	}

	note := Note{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		AuthorRole: authorRole,
		Text:       text,
		CreatedAt:  now(),
	}

	j.mu.Lock()
	previous := j.notes
	j.notes = append([]Note{note}, j.notes...)
	if len(j.notes) > MaxNotes {
		j.notes = j.notes[:MaxNotes]
	}
	if err := j.persistLocked(); err != nil {
		j.notes = previous
		j.mu.Unlock()
		return Note{}, err
	}
	j.mu.Unlock()

	j.notify(note)
	return note, nil
}

// All returns the notes, newest first.
func (j *Journal) All() []Note {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Note, len(j.notes))
	copy(out, j.notes)
	return out
}

// Len returns the number of notes.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.notes)
}

func (j *Journal) key() string {
	return "notes/" + j.patientID
}

// persistLocked writes the full journal. Caller holds j.mu.
func (j *Journal) persistLocked() error {
	if err := badgerstore.PutJSON(j.db, j.key(), j.notes); err != nil {
		return fmt.Errorf("persist notes: %w", err)
	}
	return nil
}

func (j *Journal) notify(note Note) {
	if j.emitter != nil {
		j.emitter.Emit(events.TypeNoteAdded, note)
	}
}
