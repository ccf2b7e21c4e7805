package presentation

// HighlightRef is the wire form of a Highlight.
type HighlightRef struct {
	PatternID string `json:"pattern_id"`
	ToEventID string `json:"to_event_id"`
}

// Export is a compact, id-only rendering of an Index for JSON clients.
type Export struct {
	PatternsByEventID   map[string][]string       `json:"patterns_by_event_id"`
	HighlightsByEventID map[string][]HighlightRef `json:"highlights_by_event_id"`
	LinkedByEventID     map[string][]string       `json:"linked_by_event_id"`
	Badges              map[string]Badge          `json:"badges"`
	AvailableTypes      []string                  `json:"available_types"`
}

// Export renders ix with pattern and event ids in place of full values.
func (ix *Index) Export() Export {
	eventIDs := ix.EventIDs()
	out := Export{
		PatternsByEventID:   make(map[string][]string, len(eventIDs)),
		HighlightsByEventID: make(map[string][]HighlightRef, len(ix.highlightsByEventID)),
		LinkedByEventID:     make(map[string][]string, len(eventIDs)),
		Badges:              make(map[string]Badge, len(eventIDs)),
		AvailableTypes:      []string{},
	}
	for _, eventID := range eventIDs {
		patterns := ix.PatternsForEvent(eventID)
		ids := make([]string, len(patterns))
		for i, p := range patterns {
			ids[i] = p.ID
		}
		out.PatternsByEventID[eventID] = ids
		out.LinkedByEventID[eventID] = ix.LinkedEvents(eventID)
		if b, ok := ix.Badge(eventID); ok {
			out.Badges[eventID] = b
		}

		highlights := ix.HighlightsForEvent(eventID)
		if len(highlights) == 0 {
			continue
		}
		refs := make([]HighlightRef, len(highlights))
		for i, h := range highlights {
			refs[i] = HighlightRef{PatternID: h.Pattern.ID, ToEventID: h.Occurrence.Event2.ID}
		}
		out.HighlightsByEventID[eventID] = refs
	}
	for _, t := range ix.AvailableTypes() {
		out.AvailableTypes = append(out.AvailableTypes, string(t))
	}
	return out
}
