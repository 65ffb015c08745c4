// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package companion assembles the client-side state layer for one running
// session: the reconciled collections, the engagement tracker, the mood
// journal, and the local task and note stores, all observing through one
// shared event emitter.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/memoracare/MemoraLocal/services/companion/datatypes"
	"github.com/memoracare/MemoraLocal/services/companion/engagement"
	"github.com/memoracare/MemoraLocal/services/companion/events"
	"github.com/memoracare/MemoraLocal/services/companion/mood"
	"github.com/memoracare/MemoraLocal/services/companion/notes"
	"github.com/memoracare/MemoraLocal/services/companion/quotes"
	"github.com/memoracare/MemoraLocal/services/companion/reconcile"
	"github.com/memoracare/MemoraLocal/services/companion/store"
	"github.com/memoracare/MemoraLocal/services/companion/tasks"
)

// ErrLikeFailed wraps a like whose remote counter write could not be
// persisted. The local flip is rolled back before this is returned.
var ErrLikeFailed = errors.New("like could not be persisted")

// Backend is the remote side the companion talks to: the record
// collections plus the profiles side-table.
type Backend interface {
	store.EventStore
	store.ProfileStore
}

// Config holds everything a Core needs.
type Config struct {
	// DB is the device's embedded database.
	DB *badger.DB

	// Backend is the remote store (or an in-memory one offline).
	Backend Backend

	// PatientID owns the mood journal, tasks and notes.
	PatientID string

	// DeviceID owns the liked-subject set.
	DeviceID string

	// Logger may be nil.
	Logger *slog.Logger
}

// Core owns the session state. Construct one per running session and
// share it with every view; views subscribe through Events().
type Core struct {
	cfg     Config
	emitter *events.Emitter
	session *reconcile.Session
	likes   *engagement.Tracker
	moods   *mood.Log
	tasks   *tasks.List
	notes   *notes.Journal
	logger  *slog.Logger
}

// New wires the state layer. Start must be called before the reconciled
// collections serve data.
func New(cfg Config) (*Core, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := events.NewEmitter(events.WithLogger(logger))

	likes, err := engagement.NewTracker(cfg.DB, cfg.DeviceID, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("engagement tracker: %w", err)
	}
	moods, err := mood.NewLog(cfg.DB, cfg.PatientID, emitter, logger, mood.WithMirror(cfg.Backend))
	if err != nil {
		return nil, fmt.Errorf("mood journal: %w", err)
	}
	taskList, err := tasks.NewList(cfg.DB, cfg.PatientID, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("task list: %w", err)
	}
	noteJournal, err := notes.NewJournal(cfg.DB, cfg.PatientID, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("notes journal: %w", err)
	}

	return &Core{
		cfg:     cfg,
		emitter: emitter,
		session: reconcile.NewSession(cfg.Backend, emitter, logger),
		likes:   likes,
		moods:   moods,
		tasks:   taskList,
		notes:   noteJournal,
		logger:  logger,
	}, nil
}

// Start seeds and subscribes the reconciled collections.
func (c *Core) Start(ctx context.Context) error {
	return c.session.Start(ctx)
}

// Stop releases subscriptions and waits for background mirror writes.
func (c *Core) Stop() {
	c.session.Stop()
	c.moods.Close()
}

// Events is the notification channel views subscribe to.
func (c *Core) Events() *events.Emitter { return c.emitter }

// Session exposes the reconciled collections.
func (c *Core) Session() *reconcile.Session { return c.session }

// Likes exposes the engagement tracker for read-only queries.
func (c *Core) Likes() *engagement.Tracker { return c.likes }

// Moods exposes the mood journal.
func (c *Core) Moods() *mood.Log { return c.moods }

// Tasks exposes the care task list.
func (c *Core) Tasks() *tasks.List { return c.tasks }

// Notes exposes the clinical notes journal.
func (c *Core) Notes() *notes.Journal { return c.notes }

// QuoteOfDay returns today's wellness quote.
func (c *Core) QuoteOfDay() quotes.Quote {
	return quotes.SelectForToday(quotes.Wellness)
}

// ToggleLike flips the like on a post and applies the one-shot delta to
// the post's remote counter. If the remote write fails after one retry,
// both the local flag and the counter are rolled back and ErrLikeFailed
// is returned.
//
// A toggle while a prior one is unconfirmed returns
// engagement.ErrTogglePending.
func (c *Core) ToggleLike(ctx context.Context, postID string) (bool, error) {
	posts := c.session.Collection(datatypes.CollectionPosts)
	current := posts.Get(postID)
	if current == nil || current.Post == nil {
		return false, fmt.Errorf("unknown post %q", postID)
	}

	toggle, err := c.likes.ToggleLike(postID)
	if err != nil {
		return false, err
	}

	updated := current.Clone()
	updated.Post.Likes += toggle.CommittedDelta
	if updated.Post.Likes < 0 {
		updated.Post.Likes = 0
	}

	confirmed, err := c.cfg.Backend.Update(ctx, updated)
	if err != nil && errors.Is(err, store.ErrTransientIO) {
		confirmed, err = c.cfg.Backend.Update(ctx, updated)
	}
	if err != nil {
		if rbErr := c.likes.FailToggle(postID); rbErr != nil {
			c.logger.Error("like rollback failed", "post_id", postID, "error", rbErr)
		}
		return false, fmt.Errorf("%w: %v", ErrLikeFailed, err)
	}

	// The updated counter also arrives via the live stream; applying it
	// here keeps the feed consistent when the stream lags.
	posts.ApplyRemoteUpdate(confirmed)

	if err := c.likes.ConfirmToggle(postID); err != nil {
		c.logger.Error("like confirm failed", "post_id", postID, "error", err)
	}
	return toggle.NewLocalState, nil
}
