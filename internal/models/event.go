// Package models defines the core domain entities for flareline.
// These models represent normalized timeline events, precomputed correlation
// records, and the patterns detected by joining the two.
// All models are value objects: they are built fresh on every load and never
// mutated after construction.
//
// Terminology:
//   - Event: one logged occurrence on the timeline (a meal, a dose, a symptom, a flare marker).
//   - Item: a named kind of thing an event refers to ("Dairy", "Stress", "Headache").
//   - Correlation: a summary statistic between two item kinds, not between two events.
package models

import (
	"errors"
	"strings"
	"time"
)

// EventType is the closed set of timeline event kinds.
type EventType string

const (
	EventMedication    EventType = "medication"
	EventSymptom       EventType = "symptom"
	EventTrigger       EventType = "trigger"
	EventFood          EventType = "food"
	EventFlareCreated  EventType = "flare-created"
	EventFlareUpdated  EventType = "flare-updated"
	EventFlareResolved EventType = "flare-resolved"
)

// EventTypes lists every event type in display order.
var EventTypes = []EventType{
	EventMedication,
	EventSymptom,
	EventTrigger,
	EventFood,
	EventFlareCreated,
	EventFlareUpdated,
	EventFlareResolved,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

var errUnknownEventType = func() error {
	names := make([]string, len(EventTypes))
	for i, t := range EventTypes {
		names[i] = string(t)
	}
	return errors.New("event type must be one of: " + strings.Join(names, ", "))
}()

// TimelineEvent is a normalized projection of any loggable occurrence.
// Items holds the resolved item names the event refers to: the food list of a
// meal, the trigger name, the symptom name, or the medication name. Flare
// markers carry no items.
type TimelineEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary,omitempty"`
	Items     []string  `json:"items,omitempty"`
	Severity  int       `json:"severity,omitempty"` // 0 when not recorded
	EventRef  string    `json:"event_ref,omitempty"`
}

// Validate checks that all event fields are valid
func (e *TimelineEvent) Validate() error {
	if e.ID == "" {
		return errors.New("event ID must not be empty")
	}
	if !e.Type.Valid() {
		return errUnknownEventType
	}
	if e.Timestamp.IsZero() {
		return errors.New("event timestamp must be set")
	}
	if e.Severity < 0 || e.Severity > 10 {
		return errors.New("severity must be between 0 and 10")
	}
	for _, item := range e.Items {
		if strings.TrimSpace(item) == "" {
			return errors.New("event items must not be blank")
		}
	}
	return nil
}

// HasItem reports whether the event refers to the named item.
// Names are compared case-insensitively after trimming whitespace.
func (e *TimelineEvent) HasItem(name string) bool {
	key := NormalizeName(name)
	if key == "" {
		return false
	}
	for _, item := range e.Items {
		if NormalizeName(item) == key {
			return true
		}
	}
	return false
}

// NormalizeName returns the matching key for an item name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
