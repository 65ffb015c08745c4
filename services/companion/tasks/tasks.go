// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tasks manages the daily care task list: reminders like
// medication times and appointments shown on the patient's home screen.
//
// The list is owned locally and persisted in the embedded key/value
// store; it never round-trips through the event store.
package tasks

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
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

var (
	// ErrEmptyTitle rejects tasks without a title.
	ErrEmptyTitle = errors.New("task title is required")

	// ErrTaskNotFound indicates the id matches no task.
	ErrTaskNotFound = errors.New("task not found")
)

// unscheduledMinutes sorts tasks without a valid time after every
// scheduled task.
const unscheduledMinutes = 24 * 60

// Task is one care reminder.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Time is the optional display time, "HH:MM" 24-hour. Tasks without
	// a parseable time sort after scheduled ones.
	Time string `json:"time,omitempty"`

	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// List owns the task list for one identity.
//
// # Thread Safety
//
// List is safe for concurrent use.
type List struct {
	mu       sync.RWMutex
	db       *badger.DB
	identity string
	tasks    []Task
	emitter  *events.Emitter
	logger   *slog.Logger
}

// NewList loads the identity's tasks from the local store.
func NewList(db *badger.DB, identity string, emitter *events.Emitter, logger *slog.Logger) (*List, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &List{
		db:       db,
		identity: identity,
		emitter:  emitter,
		logger:   logger.With("identity", identity),
	}

	err := badgerstore.GetJSON(db, l.key(), &l.tasks)
	if err != nil && !errors.Is(err, badgerstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return l, nil
}

// Add creates a task. timeOfDay may be empty for unscheduled tasks.
func (l *List) Add(title, timeOfDay string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, ErrEmptyTitle
	}

	task := Task{
		ID:        uuid.NewString(),
		Title:     title,
		Time:      strings.TrimSpace(timeOfDay),
		CreatedAt: now(),
	}

	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	if err := l.persistLocked(); err != nil {
		l.tasks = l.tasks[:len(l.tasks)-1]
		l.mu.Unlock()
		return Task{}, err
	}
	l.mu.Unlock()

	l.notify()
	return task, nil
}

// Toggle flips a task's done state.
func (l *List) Toggle(id string) (Task, error) {
	l.mu.Lock()
	pos := l.findLocked(id)
	if pos < 0 {
		l.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	l.tasks[pos].Done = !l.tasks[pos].Done
	if err := l.persistLocked(); err != nil {
		l.tasks[pos].Done = !l.tasks[pos].Done
		l.mu.Unlock()
		return Task{}, err
	}
	task := l.tasks[pos]
	l.mu.Unlock()

	l.notify()
	return task, nil
}

// Remove deletes a task by id.
func (l *List) Remove(id string) error {
	l.mu.Lock()
	pos := l.findLocked(id)
	if pos < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	removed := l.tasks[pos]
	l.tasks = append(l.tasks[:pos], l.tasks[pos+1:]...)
	if err := l.persistLocked(); err != nil {
		l.tasks = append(l.tasks[:pos], append([]Task{removed}, l.tasks[pos:]...)...)
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	l.notify()
	return nil
}

// All returns the tasks sorted by time of day, unscheduled tasks last.
// Ties keep creation order.
func (l *List) All() []Task {
	l.mu.RLock()
	out := make([]Task, len(l.tasks))
	copy(out, l.tasks)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return timeToMinutes(out[i].Time) < timeToMinutes(out[j].Time)
	})
	return out
}

// Len returns the number of tasks.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tasks)
}

// timeToMinutes parses "HH:MM" into minutes since midnight. Empty or
// unparseable times sort last.
func timeToMinutes(s string) int {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return unscheduledMinutes
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return unscheduledMinutes
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return unscheduledMinutes
	}
	return hours*60 + minutes
}

func (l *List) key() string {
	return "tasks/" + l.identity
}

// persistLocked writes the full list. Caller holds l.mu.
func (l *List) persistLocked() error {
	if err := badgerstore.PutJSON(l.db, l.key(), l.tasks); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	return nil
}

// findLocked returns the position of id, or -1. Caller holds l.mu.
func (l *List) findLocked(id string) int {
	for i, t := range l.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (l *List) notify() {
	if l.emitter != nil {
		l.emitter.Emit(events.TypeTaskChanged, nil)
	}
}
