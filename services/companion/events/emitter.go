// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events implements the in-process notification channel shared by
// the companion state layer.
//
// Views never poll the mood log or the reconciled collections; they
// subscribe here and re-read on notification. The emitter is synchronous:
// handlers run on the emitting goroutine, matching the single-owner,
// event-driven model of the state layer.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification.
type Type string

const (
	// TypeMoodAppended fires after every successful mood log append.
	TypeMoodAppended Type = "mood_appended"

	// TypeCollectionChanged fires when a reconciled collection mutates
	// (merge, optimistic insert, reconcile, delete).
	TypeCollectionChanged Type = "collection_changed"

	// TypeEngagementChanged fires when a like toggle commits or rolls back.
	TypeEngagementChanged Type = "engagement_changed"

	// TypeTaskChanged fires when the task list mutates.
	TypeTaskChanged Type = "task_changed"

	// TypeNoteAdded fires when a clinical note is recorded.
	TypeNoteAdded Type = "note_added"
)

// Event is a notification delivered to subscribers.
type Event struct {
	// ID uniquely identifies the notification.
	ID string `json:"id"`

	// Type classifies the notification.
	Type Type `json:"type"`

	// Timestamp is when the notification was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data carries type-specific context (e.g. the appended mood, the
	// changed collection name). May be nil.
	Data any `json:"data,omitempty"`
}

// Handler processes notifications.
type Handler func(event *Event)

// Filter decides whether a subscription wants an event.
type Filter func(event *Event) bool

type subscription struct {
	id      string
	handler Handler
	filter  Filter
	types   []Type
}

// Emitter broadcasts notifications to subscribers.
//
// # Thread Safety
//
// Emitter is safe for concurrent use. Handlers run synchronously on the
// emitting goroutine; a panicking handler is recovered and logged so one
// broken view cannot take down the state layer.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	logger        *slog.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used to report recovered handler panics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// NewEmitter creates an empty emitter.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*subscription),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a handler, optionally limited to the given types.
//
// Outputs:
//
//	string - Subscription ID for Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter. A nil
// filter accepts every event of the subscribed types.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &subscription{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
		types:   types,
	}
	e.subscriptions[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription. Safe to call with an id that was
// never issued or was already removed; that is the unmount-before-subscribe
// race and it must not panic.
//
// Outputs:
//
//	bool - True if the subscription existed and was removed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Emit broadcasts an event to all matching subscribers.
func (e *Emitter) Emit(eventType Type, data any) {
	e.mu.RLock()
	subs := make([]*subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, sub := range subs {
		if !sub.matches(event) {
			continue
		}
		e.dispatch(sub, event)
	}
}

// dispatch runs one handler, recovering panics.
func (e *Emitter) dispatch(sub *subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				"subscription_id", sub.id,
				"event_type", string(event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}

func (s *subscription) matches(event *Event) bool {
	if len(s.types) > 0 {
		found := false
		for _, t := range s.types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.filter != nil && !s.filter(event) {
		return false
	}
	return true
}
