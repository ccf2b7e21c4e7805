// Package presentation projects detected patterns into per-event lookups for
// the timeline: which patterns badge an event, which occurrences draw a
// connector from an event, and which correlation types belong in the legend.
//
// An Index is derived in one pass over all occurrences and never modifies the
// patterns it was built from, so it is cheap to rebuild on every render.
package presentation

import (
	"sort"

	"github.com/rewired-gh/flareline/internal/models"
)

// Highlight is one connector line from an occurrence's cause to its effect.
type Highlight struct {
	Pattern    models.DetectedPattern
	Occurrence models.PatternOccurrence
}

// Badge summarizes the patterns attached to one event.
type Badge struct {
	EventID   string                   `json:"event_id"`
	Count     int                      `json:"count"`
	Strongest models.Strength          `json:"strongest"`
	Types     []models.CorrelationType `json:"types"`
}

// Index holds the read-only lookups for a set of patterns.
type Index struct {
	patternsByEventID   map[string][]models.DetectedPattern
	highlightsByEventID map[string][]Highlight
	linked              map[string]map[string]bool
	types               map[models.CorrelationType]bool
}

// BuildIndex derives the lookups for patterns.
// Every event that is a cause or effect of any occurrence gets the pattern,
// once, in pattern order. Only causes get highlights.
func BuildIndex(patterns []models.DetectedPattern) *Index {
	ix := &Index{
		patternsByEventID:   make(map[string][]models.DetectedPattern),
		highlightsByEventID: make(map[string][]Highlight),
		linked:              make(map[string]map[string]bool),
		types:               make(map[models.CorrelationType]bool),
	}

	for _, p := range patterns {
		if len(p.Occurrences) == 0 {
			continue
		}
		ix.types[p.Type] = true

		attached := make(map[string]bool)
		attach := func(eventID string) {
			if attached[eventID] {
				return
			}
			attached[eventID] = true
			ix.patternsByEventID[eventID] = append(ix.patternsByEventID[eventID], p)
		}

		for _, o := range p.Occurrences {
			cause, effect := o.Event1.ID, o.Event2.ID
			attach(cause)
			attach(effect)
			ix.highlightsByEventID[cause] = append(ix.highlightsByEventID[cause], Highlight{Pattern: p, Occurrence: o})
			ix.link(cause, effect)
			ix.link(effect, cause)
		}
	}
	return ix
}

func (ix *Index) link(from, to string) {
	set, ok := ix.linked[from]
	if !ok {
		set = make(map[string]bool)
		ix.linked[from] = set
	}
	set[to] = true
}

// PatternsForEvent returns the patterns badging eventID. The slice must not
// be modified.
func (ix *Index) PatternsForEvent(eventID string) []models.DetectedPattern {
	return ix.patternsByEventID[eventID]
}

// HighlightsForEvent returns the connectors originating at eventID. The slice
// must not be modified.
func (ix *Index) HighlightsForEvent(eventID string) []Highlight {
	return ix.highlightsByEventID[eventID]
}

// HasPatterns reports whether eventID carries any badge.
func (ix *Index) HasPatterns(eventID string) bool {
	return len(ix.patternsByEventID[eventID]) > 0
}

// LinkedEvents returns, sorted, the ids of events paired with eventID through
// any occurrence, in either direction.
func (ix *Index) LinkedEvents(eventID string) []string {
	set := ix.linked[eventID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EventIDs returns, sorted, every event that carries a badge.
func (ix *Index) EventIDs() []string {
	ids := make([]string, 0, len(ix.patternsByEventID))
	for id := range ix.patternsByEventID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AvailableTypes returns the correlation types present, in legend order.
func (ix *Index) AvailableTypes() []models.CorrelationType {
	types := make([]models.CorrelationType, 0, len(ix.types))
	for _, t := range models.CorrelationTypes {
		if ix.types[t] {
			types = append(types, t)
		}
	}
	return types
}

// Badge summarizes eventID's patterns. ok is false when the event has none.
func (ix *Index) Badge(eventID string) (Badge, bool) {
	if !ix.HasPatterns(eventID) {
		return Badge{}, false
	}
	patterns := ix.patternsByEventID[eventID]

	b := Badge{EventID: eventID, Count: len(patterns), Strongest: models.StrengthWeak}
	seen := make(map[models.CorrelationType]bool)
	for _, p := range patterns {
		if strengthRank(p.Strength) > strengthRank(b.Strongest) {
			b.Strongest = p.Strength
		}
		seen[p.Type] = true
	}
	for _, t := range models.CorrelationTypes {
		if seen[t] {
			b.Types = append(b.Types, t)
		}
	}
	return b, true
}

func strengthRank(s models.Strength) int {
	switch s {
	case models.StrengthStrong:
		return 2
	case models.StrengthModerate:
		return 1
	default:
		return 0
	}
}
