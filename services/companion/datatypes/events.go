// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared record types exchanged between the
// event store, the reconciliation layer, and the gateway.
//
// Records from the hosted store arrive as loosely-shaped JSON documents.
// This package models them as an Event envelope with a tagged payload per
// collection (message, post, comment) and validates required fields at the
// boundary, so nothing downstream has to trust arbitrary maps.
package datatypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Collection identifies a logical record stream in the event store.
type Collection string

const (
	// CollectionMessages holds one-to-one chat messages.
	CollectionMessages Collection = "messages"

	// CollectionPosts holds social feed posts.
	CollectionPosts Collection = "posts"

	// CollectionComments holds comments attached to posts.
	CollectionComments Collection = "comments"
)

// Collections lists every reconciled collection, in subscription order.
var Collections = []Collection{CollectionMessages, CollectionPosts, CollectionComments}

// Valid reports whether c names a known reconciled collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionMessages, CollectionPosts, CollectionComments:
		return true
	}
	return false
}

// ErrMalformedEvent indicates a record from the store is missing required
// fields. Malformed events are dropped and logged, never merged.
var ErrMalformedEvent = errors.New("malformed event")

// validate is the shared validator instance. validator.New is expensive, so
// the instance is package-scoped (it is safe for concurrent use).
var validate = validator.New(validator.WithRequiredStructEnabled())

// Event is the common envelope for every record in a reconciled collection.
//
// ID is assigned by the event store on confirmation. Optimistic local
// entries carry a client-generated id and Pending=true until reconciled.
type Event struct {
	ID         string     `json:"id" validate:"required"`
	Collection Collection `json:"collection" validate:"required"`
	CreatedAt  time.Time  `json:"created_at" validate:"required"`
	AuthorID   string     `json:"author_id"`

	// Exactly one of the payload pointers is set, matching Collection.
	Message *MessagePayload `json:"message,omitempty"`
	Post    *PostPayload    `json:"post,omitempty"`
	Comment *CommentPayload `json:"comment,omitempty"`

	// Pending marks an optimistic entry awaiting server confirmation.
	// Never serialized; the store has no notion of pending records.
	Pending bool `json:"-"`
}

// MessagePayload is the body of a chat message event.
type MessagePayload struct {
	Text     string `json:"text" validate:"required"`
	SenderID string `json:"sender_id"`
}

// PostPayload is the body of a feed post event. Image is an optional URL.
// Likes is the server-held aggregate counter, not the local like state.
type PostPayload struct {
	Text        string `json:"text"`
	Image       string `json:"image,omitempty"`
	AuthorName  string `json:"author_name"`
	AuthorPhoto string `json:"author_photo,omitempty"`
	Likes       int    `json:"likes"`
}

// CommentPayload is the body of a comment event.
type CommentPayload struct {
	PostID string `json:"post_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// Validate checks the envelope and the payload matching the collection.
//
// Outputs:
//
//	error - nil for a well-formed event, otherwise an error wrapping
//	ErrMalformedEvent with the first violation found.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrMalformedEvent)
	}
	if !e.Collection.Valid() {
		return fmt.Errorf("%w: unknown collection %q", ErrMalformedEvent, e.Collection)
	}

	var payload any
	switch e.Collection {
	case CollectionMessages:
		payload = e.Message
	case CollectionPosts:
		payload = e.Post
	case CollectionComments:
		payload = e.Comment
	}
	if payload == nil || isNilPointer(payload) {
		return fmt.Errorf("%w: missing %s payload", ErrMalformedEvent, e.Collection)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// isNilPointer guards against typed-nil payload pointers stored in an any.
func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *MessagePayload:
		return p == nil
	case *PostPayload:
		return p == nil
	case *CommentPayload:
		return p == nil
	}
	return false
}

// Clone returns a deep copy of the event. The reconciled collection hands
// copies to observers so callers can never mutate merged state in place.
func (e *Event) Clone() *Event {
	clone := *e
	if e.Message != nil {
		m := *e.Message
		clone.Message = &m
	}
	if e.Post != nil {
		p := *e.Post
		clone.Post = &p
	}
	if e.Comment != nil {
		c := *e.Comment
		clone.Comment = &c
	}
	return &clone
}

// MarshalJSON emits the flat wire shape consumed by the gateway and the
// hosted store. The envelope and payload are flattened into one object,
// mirroring the row shape of the backing document store.
func (e *Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID          string     `json:"id"`
		Collection  Collection `json:"collection"`
		CreatedAt   time.Time  `json:"created_at"`
		AuthorID    string     `json:"author_id,omitempty"`
		Text        string     `json:"text,omitempty"`
		Image       string     `json:"image,omitempty"`
		AuthorName  string     `json:"author_name,omitempty"`
		AuthorPhoto string     `json:"author_photo,omitempty"`
		Likes       *int       `json:"likes,omitempty"`
		PostID      string     `json:"post_id,omitempty"`
		SenderID    string     `json:"sender_id,omitempty"`
	}

	w := wire{
		ID:         e.ID,
		Collection: e.Collection,
		CreatedAt:  e.CreatedAt,
		AuthorID:   e.AuthorID,
	}
	switch {
	case e.Message != nil:
		w.Text = e.Message.Text
		w.SenderID = e.Message.SenderID
	case e.Post != nil:
		w.Text = e.Post.Text
		w.Image = e.Post.Image
		w.AuthorName = e.Post.AuthorName
		w.AuthorPhoto = e.Post.AuthorPhoto
		likes := e.Post.Likes
		w.Likes = &likes
	case e.Comment != nil:
		w.Text = e.Comment.Text
		w.PostID = e.Comment.PostID
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the flat wire shape back into a tagged envelope.
// The payload variant is chosen by the collection tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          string     `json:"id"`
		Collection  Collection `json:"collection"`
		CreatedAt   time.Time  `json:"created_at"`
		AuthorID    string     `json:"author_id"`
		Text        string     `json:"text"`
		Image       string     `json:"image"`
		AuthorName  string     `json:"author_name"`
		AuthorPhoto string     `json:"author_photo"`
		Likes       int        `json:"likes"`
		PostID      string     `json:"post_id"`
		SenderID    string     `json:"sender_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Event{
		ID:         w.ID,
		Collection: w.Collection,
		CreatedAt:  w.CreatedAt,
		AuthorID:   w.AuthorID,
	}
	switch w.Collection {
	case CollectionMessages:
		e.Message = &MessagePayload{Text: w.Text, SenderID: w.SenderID}
	case CollectionPosts:
		e.Post = &PostPayload{
			Text:        w.Text,
			Image:       w.Image,
			AuthorName:  w.AuthorName,
			AuthorPhoto: w.AuthorPhoto,
			Likes:       w.Likes,
		}
	case CollectionComments:
		e.Comment = &CommentPayload{PostID: w.PostID, Text: w.Text}
	}
	return nil
}

// Profile is the denormalized per-identity row in the profiles side-table.
// CurrentMood mirrors the latest mood log entry so clinician views can read
// it without scanning the journal.
type Profile struct {
	ID          string    `json:"id" validate:"required"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Photo       string    `json:"photo,omitempty"`
	CurrentMood string    `json:"current_mood,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks required profile fields.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
