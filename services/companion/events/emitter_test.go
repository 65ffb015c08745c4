// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterSubscribe(t *testing.T) {
	emitter := NewEmitter()

	var received []Event
	subID := emitter.Subscribe(func(e *Event) {
		received = append(received, *e)
	})

	require.NotEmpty(t, subID)
	assert.Equal(t, 1, emitter.SubscriptionCount())

	emitter.Emit(TypeMoodAppended, "happy")

	require.Len(t, received, 1)
	assert.Equal(t, TypeMoodAppended, received[0].Type)
	assert.Equal(t, "happy", received[0].Data)
	assert.NotEmpty(t, received[0].ID)
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestEmitterSubscribeByType(t *testing.T) {
	emitter := NewEmitter()

	var received []Event
	emitter.Subscribe(func(e *Event) {
		received = append(received, *e)
	}, TypeMoodAppended, TypeNoteAdded)

	emitter.Emit(TypeCollectionChanged, nil) // filtered out
	emitter.Emit(TypeMoodAppended, "sad")
	emitter.Emit(TypeTaskChanged, nil) // filtered out
	emitter.Emit(TypeNoteAdded, nil)

	require.Len(t, received, 2)
	assert.Equal(t, TypeMoodAppended, received[0].Type)
	assert.Equal(t, TypeNoteAdded, received[1].Type)
}

func TestEmitterSubscribeWithFilter(t *testing.T) {
	emitter := NewEmitter()

	var received []Event
	emitter.SubscribeWithFilter(func(e *Event) {
		received = append(received, *e)
	}, func(e *Event) bool {
		return e.Data == "messages"
	})

	emitter.Emit(TypeCollectionChanged, "posts")    // rejected by filter
	emitter.Emit(TypeCollectionChanged, "messages") // passes

	require.Len(t, received, 1)
	assert.Equal(t, "messages", received[0].Data)
}

func TestEmitterUnsubscribe(t *testing.T) {
	emitter := NewEmitter()

	callCount := 0
	subID := emitter.Subscribe(func(e *Event) {
		callCount++
	})

	emitter.Emit(TypeMoodAppended, nil)
	assert.Equal(t, 1, callCount)

	assert.True(t, emitter.Unsubscribe(subID))

	emitter.Emit(TypeMoodAppended, nil)
	assert.Equal(t, 1, callCount)

	// Second removal and unknown ids are no-ops, not panics.
	assert.False(t, emitter.Unsubscribe(subID))
	assert.False(t, emitter.Unsubscribe("never-issued"))
}

// TestEmitterHandlerPanic verifies one panicking handler does not prevent
// delivery to the others.
func TestEmitterHandlerPanic(t *testing.T) {
	emitter := NewEmitter()

	emitter.Subscribe(func(e *Event) {
		panic("broken view")
	})

	delivered := false
	emitter.Subscribe(func(e *Event) {
		delivered = true
	})

	require.NotPanics(t, func() {
		emitter.Emit(TypeMoodAppended, nil)
	})
	assert.True(t, delivered)
}

func TestEmitterConcurrentUse(t *testing.T) {
	emitter := NewEmitter()

	var mu sync.Mutex
	count := 0
	emitter.Subscribe(func(e *Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				emitter.Emit(TypeMoodAppended, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, count)
}
