// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package quotes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSameDaySameQuote: repeated calls within one calendar day return the
// same quote regardless of the time of day.
func TestSameDaySameQuote(t *testing.T) {
	day := time.Date(2026, 4, 10, 0, 1, 0, 0, time.Local)
	defer func() { now = time.Now }()

	now = func() time.Time { return day }
	morning := SelectForToday(Wellness)

	now = func() time.Time { return day.Add(23 * time.Hour) }
	evening := SelectForToday(Wellness)

	assert.Equal(t, morning, evening)
}

// TestQuoteChangesAtMidnight: consecutive days select consecutive list
// entries.
func TestQuoteChangesAtMidnight(t *testing.T) {
	day := time.Date(2026, 4, 10, 12, 0, 0, 0, time.Local)

	today := SelectFor(day, Wellness)
	tomorrow := SelectFor(day.AddDate(0, 0, 1), Wellness)

	assert.NotEqual(t, today, tomorrow)
}

// TestRotationWrapsList: day-of-year past the list length wraps via
// modulo rather than clamping to the last entry.
func TestRotationWrapsList(t *testing.T) {
	list := []Quote{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	jan2 := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local) // day 2
	jan5 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.Local) // day 5, 5%3=2

	assert.Equal(t, "b", SelectFor(jan2, list).Text)
	assert.Equal(t, "c", SelectFor(jan5, list).Text)
}

func TestEmptyList(t *testing.T) {
	assert.Equal(t, Quote{}, SelectForToday(nil))
}

func TestBuiltInListCoversYear(t *testing.T) {
	require.NotEmpty(t, Wellness)

	// Every day of a leap year resolves to a valid entry.
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	for d := 0; d < 366; d++ {
		q := SelectFor(start.AddDate(0, 0, d), Wellness)
		assert.NotEmpty(t, q.Text)
	}
}
