// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package quotes selects the wellness quote of the day.
//
// Selection is a pure function of the local calendar day: every call
// within the same day returns the same quote, and the quote changes only
// at local midnight. The index is day-of-year modulo list length, so the
// list repeats indefinitely for lists shorter than a year.
package quotes

import "time"

// now is swapped out by tests that need a fixed day.
var now = time.Now

// Quote is one wellness quote.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Wellness is the built-in rotation shown on the home screen.
var Wellness = []Quote{
	{Text: "Ogni giorno è una nuova occasione per sorridere.", Author: "Anonimo"},
	{Text: "La memoria del cuore non si perde mai.", Author: "Anonimo"},
	{Text: "Un piccolo passo oggi vale più di mille domani.", Author: "Proverbio"},
	{Text: "Chi ha un giardino e una biblioteca ha tutto ciò che gli serve.", Author: "Cicerone"},
	{Text: "La gentilezza è un linguaggio che tutti comprendono.", Author: "Anonimo"},
	{Text: "Respira. Sei esattamente dove devi essere.", Author: "Anonimo"},
	{Text: "Anche la notte più lunga finisce con l'alba.", Author: "Proverbio"},
	{Text: "Prendersi cura di sé non è egoismo, è necessità.", Author: "Anonimo"},
	{Text: "I ricordi felici sono un rifugio sempre aperto.", Author: "Anonimo"},
	{Text: "Una tazza di tè e una parola gentile sistemano quasi tutto.", Author: "Anonimo"},
	{Text: "Il sorriso che doni oggi tornerà da te domani.", Author: "Proverbio"},
	{Text: "Ogni stagione della vita porta i suoi fiori.", Author: "Anonimo"},
}

// SelectForToday returns the quote for the current local calendar day.
// The zero Quote is returned for an empty list.
func SelectForToday(list []Quote) Quote {
	return SelectFor(now(), list)
}

// SelectFor returns the quote for the calendar day containing t.
func SelectFor(t time.Time, list []Quote) Quote {
	if len(list) == 0 {
		return Quote{}
	}
	return list[t.Local().YearDay()%len(list)]
}
