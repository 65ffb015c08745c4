// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/time/rate"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/observability"
	"github.com/memoracare/MemoraLocal/services/companion/storage/badgerstore"
	"github.com/memoracare/MemoraLocal/services/companion/store"
)

// now is swapped out by tests that need a fixed clock.
var now = time.Now

// mirrorTimeout bounds one remote mirror attempt.
const mirrorTimeout = 10 * time.Second

// Log is the append-only mood journal for one identity: the single source
// of truth for every mood-reading view. Appends always succeed locally;
// the remote mirror (the denormalized current_mood on the profiles
// side-table) is best effort and never blocks or fails an append.
//
// # Thread Safety
//
// Log is safe for concurrent use. There is exactly one writer-owned Log
// per session; readers observe via the emitter, never by polling.
type Log struct {
	mu       sync.RWMutex
	db       *badger.DB
	identity string
	entries  []Event // append order, oldest first
	nextSeq  uint64

	emitter *events.Emitter
	logger  *slog.Logger

	// mirror is the profiles side-table; nil disables mirroring.
	mirror  store.ProfileStore
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

// Option configures a Log.
type Option func(*Log)

// WithMirror enables best-effort mirroring of the latest mood to the
// profiles side-table.
func WithMirror(profiles store.ProfileStore) Option {
	return func(l *Log) {
		l.mirror = profiles
	}
}

// WithMirrorLimit overrides the mirror rate limit. The default allows one
// mirror per second with a small burst; mood check-ins are rare, so the
// limiter only matters when a view misbehaves.
func WithMirrorLimit(limiter *rate.Limiter) Option {
	return func(l *Log) {
		l.limiter = limiter
	}
}

// NewLog opens the journal for an identity, replaying persisted entries.
func NewLog(db *badger.DB, identity string, emitter *events.Emitter, logger *slog.Logger, opts ...Option) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		db:       db,
		identity: identity,
		emitter:  emitter,
		logger:   logger.With("identity", identity),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, opt := range opts {
		opt(l)
	}

	prefix := l.keyPrefix()
	err := badgerstore.ScanJSON(db, prefix, func(key string, e Event) error {
		seq, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			return fmt.Errorf("malformed journal key %s: %w", key, err)
		}
		if seq >= l.nextSeq {
			l.nextSeq = seq + 1
		}
		l.entries = append(l.entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay mood journal: %w", err)
	}
	return l, nil
}

// Append records a mood observation stamped with the current instant. The
// append always succeeds locally once the mood validates; a local persist
// failure is logged, never surfaced, and the remote mirror runs in the
// background.
//
// Outputs:
//
//	Event - The appended entry.
//	error - ErrInvalidMood for values outside the enum.
func (l *Log) Append(m Mood) (Event, error) {
	e := Event{Mood: m, Timestamp: now()}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	seq := l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	observability.MoodAppendsTotal.WithLabelValues(string(m)).Inc()

	if err := badgerstore.PutJSON(l.db, l.key(seq), e); err != nil {
		// The in-memory journal stays authoritative for this session.
		l.logger.Error("mood journal persist failed", "seq", seq, "error", err)
	}

	if l.emitter != nil {
		l.emitter.Emit(events.TypeMoodAppended, e)
	}

	if l.mirror != nil {
		l.wg.Add(1)
		go l.mirrorLatest(e)
	}
	return e, nil
}

// Latest returns the most recent entry's mood, or false if the journal is
// empty.
func (l *Log) Latest() (Mood, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[len(l.entries)-1].Mood, true
}

// All returns every entry, newest first.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the number of journal entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close waits for outstanding mirror attempts to finish.
func (l *Log) Close() {
	l.wg.Wait()
}

// mirrorLatest pushes the appended mood to the profiles side-table with at
// most one automatic retry. Failures are logged and dropped; the local
// journal is already committed.
func (l *Log) mirrorLatest(e Event) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := l.limiter.Wait(ctx); err != nil {
		l.logger.Warn("mood mirror rate limited, dropping", "error", err)
		return
	}

	err := l.upsertCurrentMood(ctx, e)
	if err != nil && errors.Is(err, store.ErrTransientIO) {
		observability.MirrorRetriesTotal.Inc()
		err = l.upsertCurrentMood(ctx, e)
	}
	if err != nil {
		l.logger.Warn("mood mirror failed", "mood", string(e.Mood), "error", err)
	}
}

// upsertCurrentMood rewrites the profile row, preserving fields the mirror
// does not own.
func (l *Log) upsertCurrentMood(ctx context.Context, e Event) error {
	profile, err := l.mirror.GetProfile(ctx, l.identity)
	if errors.Is(err, store.ErrNotFound) {
		profile = &datatypes.Profile{ID: l.identity}
	} else if err != nil {
		return err
	}

	profile.CurrentMood = string(e.Mood)
	profile.UpdatedAt = e.Timestamp
	return l.mirror.UpsertProfile(ctx, profile)
}

func (l *Log) keyPrefix() string {
	return "mood/" + l.identity + "/"
}

// key zero-pads the sequence so lexicographic key order is append order.
func (l *Log) key(seq uint64) string {
	return fmt.Sprintf("%s%012d", l.keyPrefix(), seq)
}
