// Package detector turns precomputed correlation records into concrete,
// explainable "this preceded that" occurrences on a user's timeline.
//
// For every record the detector picks the candidate causes (events of the
// cause type that name itemA) and effects (events of an effect type that name
// itemB, or any eligible flare marker), then pairs each cause with the earliest
// effect strictly after it and no further away than the record's window:
//
//	window = clamp(lagHours × multiplier, MinWindow, MaxWindow)
//
// Effects are never consumed: one headache may follow two different meals and
// appear in both occurrences. Each cause yields at most one occurrence, so a
// (cause, effect) pair never repeats within a pattern.
//
// Detection is a pure function of its inputs. Malformed records are skipped
// and reported in Result.Skipped; nothing is ever returned as an error.
package detector

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/models"
	"github.com/rewired-gh/flareline/internal/stats"
)

// SkipReason explains why a record produced no pattern.
type SkipReason string

const (
	SkipUnknownType          SkipReason = "unknown-type"
	SkipZeroSample           SkipReason = "zero-sample"
	SkipNonFiniteCoefficient SkipReason = "non-finite-coefficient"
	SkipDuplicate            SkipReason = "duplicate"
	SkipNoCandidates         SkipReason = "no-candidates"
	SkipNoOccurrences        SkipReason = "no-occurrences"
)

// Skipped is a record that did not become a pattern.
type Skipped struct {
	Record models.CorrelationRecord
	Reason SkipReason
}

// Result is the outcome of one detection run.
type Result struct {
	Patterns []models.DetectedPattern
	Skipped  []Skipped
}

// Detector matches correlation records against timeline events.
// A Detector holds no state besides its policy and is safe for concurrent use.
type Detector struct {
	policy WindowPolicy
}

// New creates a Detector with the given window policy.
func New(policy WindowPolicy) *Detector {
	return &Detector{policy: policy.normalized()}
}

// DetectPatterns runs detection with the default window policy and returns
// only the patterns. Records without occurrences are omitted.
func DetectPatterns(events []models.TimelineEvent, correlations []models.CorrelationRecord) []models.DetectedPattern {
	return New(DefaultPolicy()).Detect(events, correlations).Patterns
}

// Detect returns one pattern per record that matched at least one occurrence,
// in record input order, plus the records that were skipped and why.
// Neither input slice is modified.
func (d *Detector) Detect(events []models.TimelineEvent, correlations []models.CorrelationRecord) Result {
	result := Result{Patterns: []models.DetectedPattern{}}
	if len(correlations) == 0 {
		return result
	}

	timeline := SortTimeline(events)
	seen := make(map[string]bool, len(correlations))

	for _, record := range correlations {
		skip := func(reason SkipReason) {
			result.Skipped = append(result.Skipped, Skipped{Record: record, Reason: reason})
		}

		rule, ok := RuleFor(record.Type)
		if !ok {
			logger.Warn("DetectPatterns: skipping record %q→%q with unknown type %q", record.ItemAName, record.ItemBName, record.Type)
			skip(SkipUnknownType)
			continue
		}
		if record.SampleSize <= 0 {
			logger.Debug("DetectPatterns: skipping %s record %q→%q with sample size %d", record.Type, record.ItemAName, record.ItemBName, record.SampleSize)
			skip(SkipZeroSample)
			continue
		}
		if math.IsNaN(record.Coefficient) || math.IsInf(record.Coefficient, 0) {
			logger.Warn("DetectPatterns: skipping %s record %q→%q with non-finite coefficient", record.Type, record.ItemAName, record.ItemBName)
			skip(SkipNonFiniteCoefficient)
			continue
		}

		id := models.PatternID(record.Type, record.ItemAName, record.ItemBName)
		if seen[id] {
			logger.Debug("DetectPatterns: duplicate %s record %q→%q ignored", record.Type, record.ItemAName, record.ItemBName)
			skip(SkipDuplicate)
			continue
		}
		seen[id] = true

		causes, effects := partition(timeline, rule, record)
		if len(causes) == 0 || len(effects) == 0 {
			skip(SkipNoCandidates)
			continue
		}

		occurrences := matchOccurrences(causes, effects, d.policy.MaxLag(record.LagHours))
		if len(occurrences) == 0 {
			skip(SkipNoOccurrences)
			continue
		}

		result.Patterns = append(result.Patterns, assemble(id, record, occurrences))
	}

	logger.Debug("DetectPatterns: events=%d records=%d patterns=%d skipped=%d",
		len(timeline), len(correlations), len(result.Patterns), len(result.Skipped))

	return result
}

// SortTimeline copies events, drops repeated ids (first wins), and sorts by
// timestamp with id as the tie-break so order never depends on input order.
func SortTimeline(events []models.TimelineEvent) []models.TimelineEvent {
	ids := make(map[string]bool, len(events))
	timeline := make([]models.TimelineEvent, 0, len(events))
	for _, e := range events {
		if ids[e.ID] {
			continue
		}
		ids[e.ID] = true
		timeline = append(timeline, e)
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return eventLess(&timeline[i], &timeline[j])
	})
	return timeline
}

func eventLess(a, b *models.TimelineEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// partition selects candidate causes and effects for record. Both keep the
// timeline's (timestamp, id) order.
func partition(timeline []models.TimelineEvent, rule Rule, record models.CorrelationRecord) (causes, effects []models.TimelineEvent) {
	for i := range timeline {
		e := &timeline[i]
		switch {
		case rule.IsCause(e, record.ItemAName):
			causes = append(causes, *e)
		case rule.IsEffect(e, record.ItemBName):
			effects = append(effects, *e)
		}
	}
	return causes, effects
}

// matchOccurrences pairs every cause with the earliest effect in
// (cause, cause+maxLag]. Effects sharing a timestamp resolve to the lower id
// because effects are already sorted by (timestamp, id).
func matchOccurrences(causes, effects []models.TimelineEvent, maxLag time.Duration) []models.PatternOccurrence {
	var occurrences []models.PatternOccurrence
	for _, cause := range causes {
		i := sort.Search(len(effects), func(i int) bool {
			return effects[i].Timestamp.After(cause.Timestamp)
		})
		if i == len(effects) {
			continue
		}
		effect := effects[i]
		if effect.Timestamp.Sub(cause.Timestamp) > maxLag {
			continue
		}
		occurrences = append(occurrences, models.PatternOccurrence{
			Event1:    cause,
			Event2:    effect,
			Timestamp: cause.Timestamp,
		})
	}
	return occurrences
}

func assemble(id string, record models.CorrelationRecord, occurrences []models.PatternOccurrence) models.DetectedPattern {
	lags := make([]float64, len(occurrences))
	for i, o := range occurrences {
		lags[i] = o.Lag().Hours()
	}

	confidence := record.Confidence
	if !confidence.Valid() {
		confidence = stats.ConfidenceFromSampleSize(record.SampleSize)
	}

	return models.DetectedPattern{
		ID:               id,
		Type:             record.Type,
		ItemAName:        record.ItemAName,
		ItemBName:        record.ItemBName,
		Description:      Describe(record, len(occurrences)),
		Frequency:        len(occurrences),
		Coefficient:      record.Coefficient,
		Confidence:       confidence,
		Strength:         stats.ClassifyStrength(record.Coefficient),
		LagHours:         record.LagHours,
		ObservedLagHours: stats.Median(lags),
		Occurrences:      occurrences,
	}
}

// Describe renders the display sentence for a pattern, e.g.
// "Dairy preceded Headache in 4 instances".
func Describe(record models.CorrelationRecord, frequency int) string {
	effect := strings.TrimSpace(record.ItemBName)
	if effect == "" {
		effect = "a flare"
	}
	noun := "instances"
	if frequency == 1 {
		noun = "instance"
	}
	return fmt.Sprintf("%s preceded %s in %d %s", strings.TrimSpace(record.ItemAName), effect, frequency, noun)
}
