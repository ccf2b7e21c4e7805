package models

import (
	"time"

	"github.com/google/uuid"
)

// Strength classifies the magnitude of a correlation coefficient.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// patternNamespace scopes pattern ids so they never collide with other UUIDv5 ids.
var patternNamespace = uuid.MustParse("5b0d6c2e-8f3a-4e61-9a7d-2f1c4b8e9d30")

// PatternID derives a stable id from a correlation's type and item names.
// Names are normalized so "Dairy" and " dairy" map to the same pattern.
func PatternID(t CorrelationType, itemA, itemB string) string {
	key := string(t) + "\x1f" + NormalizeName(itemA) + "\x1f" + NormalizeName(itemB)
	return uuid.NewSHA1(patternNamespace, []byte(key)).String()
}

// PatternOccurrence is one concrete matched pair of events.
// Event2 is strictly later than Event1.
type PatternOccurrence struct {
	Event1    TimelineEvent `json:"event1"`
	Event2    TimelineEvent `json:"event2"`
	Timestamp time.Time     `json:"timestamp"` // Event1.Timestamp, where the occurrence is drawn
}

// Lag returns the elapsed time between cause and effect.
func (o PatternOccurrence) Lag() time.Duration {
	return o.Event2.Timestamp.Sub(o.Event1.Timestamp)
}

// DetectedPattern bundles a correlation with the concrete event pairs that
// instantiate it in the current timeline window.
type DetectedPattern struct {
	ID               string              `json:"id"`
	Type             CorrelationType     `json:"type"`
	ItemAName        string              `json:"item_a_name"`
	ItemBName        string              `json:"item_b_name"`
	Description      string              `json:"description"`
	Frequency        int                 `json:"frequency"` // always len(Occurrences)
	Coefficient      float64             `json:"coefficient"`
	Confidence       Confidence          `json:"confidence"`
	Strength         Strength            `json:"strength"`
	LagHours         float64             `json:"lag_hours"`          // declared by the record
	ObservedLagHours float64             `json:"observed_lag_hours"` // median of occurrence gaps
	Occurrences      []PatternOccurrence `json:"occurrences"`
}

// NotifiedRecord remembers that a pattern went out in a user's digest.
type NotifiedRecord struct {
	PatternID string    `json:"pattern_id"`
	Frequency int       `json:"frequency"`
	SentAt    time.Time `json:"sent_at"`
}
