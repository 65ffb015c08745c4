// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tasks

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/storage/badgerstore"
)

func newTestList(t *testing.T) (*List, *badger.DB) {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l, err := NewList(db, "patient-1", events.NewEmitter(), nil)
	require.NoError(t, err)
	return l, db
}

func TestAddAndList(t *testing.T) {
	l, _ := newTestList(t)

	task, err := l.Add("Prendere le medicine", "08:00")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.Done)

	all := l.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Prendere le medicine", all[0].Title)
}

func TestAddRejectsEmptyTitle(t *testing.T) {
	l, _ := newTestList(t)

	_, err := l.Add("   ", "08:00")
	assert.ErrorIs(t, err, ErrEmptyTitle)
	assert.Equal(t, 0, l.Len())
}

// TestAllSortedByTime: tasks order by time of day, unscheduled ones last,
// ties by creation order.
func TestAllSortedByTime(t *testing.T) {
	l, _ := newTestList(t)

	_, err := l.Add("Passeggiata", "15:30")
	require.NoError(t, err)
	_, err = l.Add("Chiamare Anna", "")
	require.NoError(t, err)
	_, err = l.Add("Colazione", "08:00")
	require.NoError(t, err)
	_, err = l.Add("Leggere il giornale", "non-un-orario")
	require.NoError(t, err)

	all := l.All()
	require.Len(t, all, 4)
	assert.Equal(t, "Colazione", all[0].Title)
	assert.Equal(t, "Passeggiata", all[1].Title)
	// Unparseable and missing times keep creation order at the end.
	assert.Equal(t, "Chiamare Anna", all[2].Title)
	assert.Equal(t, "Leggere il giornale", all[3].Title)
}

func TestToggle(t *testing.T) {
	l, _ := newTestList(t)

	task, err := l.Add("Medicine", "08:00")
	require.NoError(t, err)

	toggled, err := l.Toggle(task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Done)

	toggled, err = l.Toggle(task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Done)
}

func TestToggleUnknown(t *testing.T) {
	l, _ := newTestList(t)
	_, err := l.Toggle("missing")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRemove(t *testing.T) {
	l, _ := newTestList(t)

	task, err := l.Add("Medicine", "08:00")
	require.NoError(t, err)

	require.NoError(t, l.Remove(task.ID))
	assert.Equal(t, 0, l.Len())
	assert.True(t, errors.Is(l.Remove(task.ID), ErrTaskNotFound))
}

// TestListSurvivesRestart: tasks persist across List instances backed by
// the same database.
func TestListSurvivesRestart(t *testing.T) {
	l, db := newTestList(t)

	task, err := l.Add("Medicine", "08:00")
	require.NoError(t, err)
	_, err = l.Toggle(task.ID)
	require.NoError(t, err)

	reloaded, err := NewList(db, "patient-1", nil, nil)
	require.NoError(t, err)
	all := reloaded.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].Done)
}

func TestMutationsNotifyObservers(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	emitter := events.NewEmitter()
	var fired int
	emitter.Subscribe(func(*events.Event) { fired++ }, events.TypeTaskChanged)

	l, err := NewList(db, "patient-1", emitter, nil)
	require.NoError(t, err)

	task, err := l.Add("Medicine", "08:00")
	require.NoError(t, err)
	_, err = l.Toggle(task.ID)
	require.NoError(t, err)
	require.NoError(t, l.Remove(task.ID))

	assert.Equal(t, 3, fired)
}

func TestTimeToMinutes(t *testing.T) {
	assert.Equal(t, 0, timeToMinutes("00:00"))
	assert.Equal(t, 8*60, timeToMinutes("08:00"))
	assert.Equal(t, 23*60+59, timeToMinutes("23:59"))
	assert.Equal(t, unscheduledMinutes, timeToMinutes(""))
	assert.Equal(t, unscheduledMinutes, timeToMinutes("25:00"))
	assert.Equal(t, unscheduledMinutes, timeToMinutes("12:61"))
	assert.Equal(t, unscheduledMinutes, timeToMinutes("mezzogiorno"))
}
