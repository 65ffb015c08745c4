// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mood implements the append-only mood journal and the pure
// aggregation functions over it: day buckets, prevalent-mood
// classification, the consecutive-sad-day alert, and the monthly and
// annual rollups feeding the clinical views.
package mood

import (
	"errors"
	"fmt"
	"time"
)

// Mood is one of the three observable mood values.
type Mood string

const (
	Happy   Mood = "happy"
	Neutral Mood = "neutral"
	Sad     Mood = "sad"
)

// ErrInvalidMood rejects values outside the three-mood enum.
var ErrInvalidMood = errors.New("invalid mood value")

// Valid reports whether m is one of the three known moods.
func (m Mood) Valid() bool {
	switch m {
	case Happy, Neutral, Sad:
		return true
	}
	return false
}

// Event is one journal entry: a mood observation at an instant. Entries
// are never mutated after append.
type Event struct {
	Mood      Mood      `json:"mood"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the entry before it enters the journal.
func (e Event) Validate() error {
	if !e.Mood.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMood, e.Mood)
	}
	if e.Timestamp.IsZero() {
		return errors.New("mood event missing timestamp")
	}
	return nil
}

// DayKey identifies a calendar day in local time, formatted "2006-01-02".
type DayKey string

// dayKeyOf buckets an instant into its local calendar day.
func dayKeyOf(t time.Time) DayKey {
	return DayKey(t.Local().Format("2006-01-02"))
}

// Counts is one day bucket: how many events of each mood the day holds.
type Counts struct {
	Happy   int `json:"happy"`
	Neutral int `json:"neutral"`
	Sad     int `json:"sad"`
}

// Total returns the number of events in the bucket.
func (c Counts) Total() int {
	return c.Happy + c.Neutral + c.Sad
}
