// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mood

import (
	"sort"
	"time"
)

// DefaultAlertWindowDays is the trailing window inspected by the
// consecutive-sad-day alert.
const DefaultAlertWindowDays = 14

// AggregateByDay buckets journal entries by local calendar day. Days with
// no entries produce no bucket.
func AggregateByDay(entries []Event) map[DayKey]Counts {
	buckets := make(map[DayKey]Counts)
	for _, e := range entries {
		key := dayKeyOf(e.Timestamp)
		c := buckets[key]
		switch e.Mood {
		case Happy:
			c.Happy++
		case Neutral:
			c.Neutral++
		case Sad:
			c.Sad++
		}
		buckets[key] = c
	}
	return buckets
}

// PrevalentMood classifies one day bucket. The tie-break is a fixed
// policy, checked in this exact precedence:
//
//	happy  when happy >= neutral and happy >= sad
//	sad    when sad >= neutral and sad >= happy
//	neutral otherwise
//
// A happy/sad tie resolves to happy and a sad/neutral tie resolves to
// sad: ties always go to the non-neutral mood checked first, which keeps
// the clinical alert conservative without flagging ambiguous days.
func PrevalentMood(c Counts) Mood {
	switch {
	case c.Happy >= c.Neutral && c.Happy >= c.Sad:
		return Happy
	case c.Sad >= c.Neutral && c.Sad >= c.Happy:
		return Sad
	default:
		return Neutral
	}
}

// HasConsecutiveSadDays reports whether two immediately consecutive
// calendar days within the trailing window are both sad-prevalent.
//
// Days with zero check-ins are simply absent: they contribute no bucket,
// and because the alert requires adjacent calendar days, a sad day, a
// gap, and another sad day do NOT trigger it. A windowDays <= 0 falls
// back to DefaultAlertWindowDays.
func HasConsecutiveSadDays(entries []Event, windowDays int) bool {
	if windowDays <= 0 {
		windowDays = DefaultAlertWindowDays
	}

	buckets := AggregateByDay(entries)
	keys := sortedKeys(buckets)
	if len(keys) > windowDays {
		keys = keys[len(keys)-windowDays:]
	}

	var prevSad time.Time
	for _, key := range keys {
		day, err := key.Time()
		if err != nil {
			continue
		}
		if PrevalentMood(buckets[key]) != Sad {
			prevSad = time.Time{}
			continue
		}
		// Calendar adjacency, not a fixed 24h delta: DST transition days
		// are shorter or longer than 24 hours in local time.
		if !prevSad.IsZero() && prevSad.AddDate(0, 0, 1).Equal(day) {
			return true
		}
		prevSad = day
	}
	return false
}

// DayBar is one bar of the monthly chart: the counts and classification
// for a single calendar day. A day with no check-ins has zero counts and
// an empty Prevalent.
type DayBar struct {
	Day       int    `json:"day"`
	Counts    Counts `json:"counts"`
	Prevalent Mood   `json:"prevalent,omitempty"`
}

// MonthlyRollup produces one bar per calendar day of the given month.
func MonthlyRollup(entries []Event, year int, month time.Month) []DayBar {
	buckets := AggregateByDay(entries)

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	bars := make([]DayBar, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		bar := DayBar{Day: day}
		key := dayKeyOf(time.Date(year, month, day, 12, 0, 0, 0, time.Local))
		if c, ok := buckets[key]; ok && c.Total() > 0 {
			bar.Counts = c
			bar.Prevalent = PrevalentMood(c)
		}
		bars[day-1] = bar
	}
	return bars
}

// MonthScore is one month of the annual wellbeing chart. Score is nil for
// a month with zero check-ins, which renders as "no data", never as zero.
type MonthScore struct {
	Month time.Month `json:"month"`
	Score *float64   `json:"score"`
}

// AnnualRollup computes the per-month wellbeing score for a year.
//
// The raw score for a month is (happy*2 + neutral - sad*2) / total,
// rescaled to the 0-100 display range via score*50 + 50, so an all-happy
// month scores 100, an all-sad month 0, and all-neutral 75.
func AnnualRollup(entries []Event, year int) []MonthScore {
	var months [12]Counts
	for _, e := range entries {
		local := e.Timestamp.Local()
		if local.Year() != year {
			continue
		}
		m := int(local.Month()) - 1
		switch e.Mood {
		case Happy:
			months[m].Happy++
		case Neutral:
			months[m].Neutral++
		case Sad:
			months[m].Sad++
		}
	}

	out := make([]MonthScore, 12)
	for i, c := range months {
		out[i] = MonthScore{Month: time.Month(i + 1)}
		if total := c.Total(); total > 0 {
			raw := float64(c.Happy*2+c.Neutral-c.Sad*2) / float64(total)
			score := raw*50 + 50
			out[i].Score = &score
		}
	}
	return out
}

// TrendPoint is one day of the clinical dashboard trend strip. Score maps
// the prevalent mood to 2 (happy), 1 (neutral) or 0 (sad) for charting.
type TrendPoint struct {
	Day       DayKey `json:"day"`
	Prevalent Mood   `json:"prevalent"`
	Score     int    `json:"score"`
}

// RecentTrend returns the prevalent mood for the most recent days that
// have check-ins, oldest first, at most maxDays points.
func RecentTrend(entries []Event, maxDays int) []TrendPoint {
	buckets := AggregateByDay(entries)
	keys := sortedKeys(buckets)
	if maxDays > 0 && len(keys) > maxDays {
		keys = keys[len(keys)-maxDays:]
	}

	points := make([]TrendPoint, len(keys))
	for i, key := range keys {
		prevalent := PrevalentMood(buckets[key])
		points[i] = TrendPoint{Day: key, Prevalent: prevalent, Score: prevalent.score()}
	}
	return points
}

// score maps a mood to its trend chart value.
func (m Mood) score() int {
	switch m {
	case Happy:
		return 2
	case Neutral:
		return 1
	default:
		return 0
	}
}

// Time parses the key back into local midnight of its day.
func (k DayKey) Time() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", string(k), time.Local)
}

// sortedKeys returns the bucket keys in calendar order. The key format is
// fixed-width, so string order is date order.
func sortedKeys(buckets map[DayKey]Counts) []DayKey {
	keys := make([]DayKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
