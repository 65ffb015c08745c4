// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
)

func newMessage(text string) *datatypes.Event {
	return &datatypes.Event{
		Collection: datatypes.CollectionMessages,
		CreatedAt:  time.Now(),
		AuthorID:   "user-1",
		Message:    &datatypes.MessagePayload{Text: text, SenderID: "user-1"},
	}
}

func TestMemoryStoreInsertAssignsID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	confirmed, err := s.Insert(ctx, newMessage("ciao"))
	require.NoError(t, err)
	assert.NotEmpty(t, confirmed.ID)
	assert.False(t, confirmed.Pending)
	assert.False(t, confirmed.CreatedAt.IsZero())

	events, err := s.FetchAll(ctx, datatypes.CollectionMessages)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, confirmed.ID, events[0].ID)
}

func TestMemoryStoreFetchAllOrdered(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for _, offset := range []int{3, 1, 2} {
		e := newMessage("msg")
		e.ID = time.Duration(offset).String()
		e.CreatedAt = base.Add(time.Duration(offset) * time.Minute)
		s.Seed(e)
	}

	events, err := s.FetchAll(context.Background(), datatypes.CollectionMessages)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].CreatedAt.Before(events[1].CreatedAt))
	assert.True(t, events[1].CreatedAt.Before(events[2].CreatedAt))
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	confirmed, err := s.Insert(ctx, newMessage("ciao"))
	require.NoError(t, err)

	confirmed.Message.Text = "ciao nonna"
	updated, err := s.Update(ctx, confirmed)
	require.NoError(t, err)
	assert.Equal(t, "ciao nonna", updated.Message.Text)

	_, err = s.Update(ctx, newMessage("ghost"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	confirmed, err := s.Insert(ctx, newMessage("ciao"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, datatypes.CollectionMessages, confirmed.ID))

	events, err := s.FetchAll(ctx, datatypes.CollectionMessages)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.Delete(ctx, datatypes.CollectionMessages, confirmed.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var changes []Change
	unsub, err := s.Subscribe(ctx, datatypes.CollectionMessages, func(c Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	confirmed, err := s.Insert(ctx, newMessage("ciao"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, datatypes.CollectionMessages, confirmed.ID))

	require.Len(t, changes, 2)
	assert.Equal(t, ChangeInsert, changes[0].Kind)
	assert.Equal(t, confirmed.ID, changes[0].Event.ID)
	assert.Equal(t, ChangeDelete, changes[1].Kind)
	assert.Equal(t, confirmed.ID, changes[1].ID)
	assert.Nil(t, changes[1].Event)

	// Changes on other collections are not delivered.
	post := &datatypes.Event{
		Collection: datatypes.CollectionPosts,
		CreatedAt:  time.Now(),
		Post:       &datatypes.PostPayload{Text: "post", AuthorName: "A"},
	}
	_, err = s.Insert(ctx, post)
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	unsub()
	_, err = s.Insert(ctx, newMessage("dopo"))
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	// Unsubscribing twice is safe.
	assert.NotPanics(t, func() { unsub() })
}

func TestMemoryStoreProfiles(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "user-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.UpsertProfile(ctx, &datatypes.Profile{
		ID:          "user-1",
		DisplayName: "Nonna Pina",
		Role:        "patient",
		CurrentMood: "happy",
	}))

	p, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "happy", p.CurrentMood)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()

	_, err := s.FetchAll(context.Background(), datatypes.CollectionMessages)
	assert.True(t, errors.Is(err, ErrStoreClosed))

	_, err = s.Insert(context.Background(), newMessage("x"))
	assert.True(t, errors.Is(err, ErrStoreClosed))
}
