package detector

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/flareline/internal/models"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func ev(id string, typ models.EventType, at time.Duration, items ...string) models.TimelineEvent {
	return models.TimelineEvent{
		ID:        id,
		Type:      typ,
		Timestamp: base.Add(at),
		Summary:   fmt.Sprintf("%s %v", typ, items),
		Items:     items,
	}
}

func record(typ models.CorrelationType, a, b string, lag, coefficient float64, n int) models.CorrelationRecord {
	return models.CorrelationRecord{
		Type:        typ,
		ItemAName:   a,
		ItemBName:   b,
		Coefficient: coefficient,
		LagHours:    lag,
		SampleSize:  n,
	}
}

// ─── Scenarios ────────────────────────────────────────────────────────────────

func TestDetect_SingleTriggerSymptomPair(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 3*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, 1, p.Frequency)
	assert.Equal(t, models.StrengthStrong, p.Strength)
	assert.Equal(t, models.ConfidenceHigh, p.Confidence)
	assert.Equal(t, 3.0, p.LagHours)
	assert.Equal(t, 3.0, p.ObservedLagHours)
	assert.Equal(t, "Stress preceded Headache in 1 instance", p.Description)
	assert.Equal(t, models.PatternID(models.CorrelationTriggerSymptom, "Stress", "Headache"), p.ID)

	require.Len(t, p.Occurrences, 1)
	occ := p.Occurrences[0]
	assert.Equal(t, "t-1", occ.Event1.ID)
	assert.Equal(t, "s-1", occ.Event2.ID)
	assert.Equal(t, occ.Event1.Timestamp, occ.Timestamp)
}

func TestDetect_EffectOutsideWindow(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 30*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}

	res := New(DefaultPolicy()).Detect(events, records)
	assert.Empty(t, res.Patterns)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipNoOccurrences, res.Skipped[0].Reason)
}

func TestDetect_OnlyFirstFoodMatches(t *testing.T) {
	events := []models.TimelineEvent{
		ev("f-1", models.EventFood, 0, "Dairy", "Bread"),
		ev("s-1", models.EventSymptom, 8*time.Hour, "Headache"),
		ev("f-2", models.EventFood, 20*time.Hour, "Dairy"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationFoodSymptom, "Dairy", "Headache", 6, 0.5, 7),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	require.Len(t, patterns[0].Occurrences, 1)
	assert.Equal(t, "f-1", patterns[0].Occurrences[0].Event1.ID)
	assert.Equal(t, models.StrengthModerate, patterns[0].Strength)
	assert.Equal(t, models.ConfidenceMedium, patterns[0].Confidence)
}

func TestDetect_TwoCausesShareOneSymptom(t *testing.T) {
	events := []models.TimelineEvent{
		ev("f-1", models.EventFood, time.Hour, "Dairy"),
		ev("t-1", models.EventTrigger, 2*time.Hour, "Stress"),
		ev("s-1", models.EventSymptom, 5*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 4, 0.6, 9),
		record(models.CorrelationFoodSymptom, "Dairy", "Headache", 4, 0.4, 6),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 2)
	assert.Equal(t, models.CorrelationTriggerSymptom, patterns[0].Type)
	assert.Equal(t, models.CorrelationFoodSymptom, patterns[1].Type)
	for _, p := range patterns {
		require.Len(t, p.Occurrences, 1)
		assert.Equal(t, "s-1", p.Occurrences[0].Event2.ID)
	}
}

func TestDetect_UnknownItemIsOmitted(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Loud noise", "Headache", 3, 0.9, 20),
	}

	var res Result
	require.NotPanics(t, func() { res = New(DefaultPolicy()).Detect(events, records) })
	assert.Empty(t, res.Patterns)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipNoCandidates, res.Skipped[0].Reason)
}

// ─── Matching rules ───────────────────────────────────────────────────────────

func TestDetect_SimultaneousEventsNeverMatch(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 0, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}
	assert.Empty(t, DetectPatterns(events, records))
}

func TestDetect_TieBreakPrefersLowerID(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-b", models.EventSymptom, 2*time.Hour, "Headache"),
		ev("s-a", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	assert.Equal(t, "s-a", patterns[0].Occurrences[0].Event2.ID)
}

func TestDetect_EarliestEffectWins(t *testing.T) {
	events := []models.TimelineEvent{
		ev("s-2", models.EventSymptom, 4*time.Hour, "Headache"),
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
		ev("t-1", models.EventTrigger, 0, "Stress"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	require.Len(t, patterns[0].Occurrences, 1)
	assert.Equal(t, "s-1", patterns[0].Occurrences[0].Event2.ID)
}

func TestDetect_EffectsAreNotConsumed(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("t-2", models.EventTrigger, time.Hour, "Stress"),
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, 2, p.Frequency)
	assert.Equal(t, "Stress preceded Headache in 2 instances", p.Description)
	assert.Equal(t, "t-1", p.Occurrences[0].Event1.ID)
	assert.Equal(t, "t-2", p.Occurrences[1].Event1.ID)
	assert.Equal(t, "s-1", p.Occurrences[0].Event2.ID)
	assert.Equal(t, "s-1", p.Occurrences[1].Event2.ID)
	assert.InDelta(t, 1.5, p.ObservedLagHours, 1e-9)
}

func TestDetect_WindowBoundaryIsInclusive(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 6*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}
	require.Len(t, DetectPatterns(events, records), 1)

	events[1].Timestamp = events[1].Timestamp.Add(time.Nanosecond)
	assert.Empty(t, DetectPatterns(events, records))
}

func TestDetect_FlareEffects(t *testing.T) {
	events := []models.TimelineEvent{
		ev("f-1", models.EventFood, 0, "Gluten"),
		ev("fl-r", models.EventFlareResolved, time.Hour),
		ev("fl-c", models.EventFlareCreated, 10*time.Hour),
		ev("f-2", models.EventFood, 30*time.Hour, "gluten"),
		ev("fl-u", models.EventFlareUpdated, 40*time.Hour),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationFoodFlare, "Gluten", "Flare", 12, -0.72, 15),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, models.StrengthStrong, p.Strength)
	require.Len(t, p.Occurrences, 2)
	assert.Equal(t, "fl-c", p.Occurrences[0].Event2.ID)
	assert.Equal(t, "fl-u", p.Occurrences[1].Event2.ID)
}

func TestDetect_MedicationSymptom(t *testing.T) {
	events := []models.TimelineEvent{
		ev("m-1", models.EventMedication, 0, "Ibuprofen"),
		ev("s-1", models.EventSymptom, time.Hour, "Nausea"),
		ev("s-2", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationMedicationSymptom, "Ibuprofen", "Nausea", 1, 0.35, 5),
	}

	patterns := DetectPatterns(events, records)
	require.Len(t, patterns, 1)
	assert.Equal(t, "s-1", patterns[0].Occurrences[0].Event2.ID)
}

// ─── Failure semantics ────────────────────────────────────────────────────────

func TestDetect_SkipsMalformedRecords(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	good := record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12)
	records := []models.CorrelationRecord{
		record("mood-symptom", "Stress", "Headache", 3, 0.8, 12),
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 0),
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, math.NaN(), 12),
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, math.Inf(1), 12),
		good,
		record(models.CorrelationTriggerSymptom, "stress", "HEADACHE", 3, 0.1, 40),
	}

	res := New(DefaultPolicy()).Detect(events, records)
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, 0.8, res.Patterns[0].Coefficient)

	reasons := make([]SkipReason, len(res.Skipped))
	for i, s := range res.Skipped {
		reasons[i] = s.Reason
	}
	assert.Equal(t, []SkipReason{
		SkipUnknownType,
		SkipZeroSample,
		SkipNonFiniteCoefficient,
		SkipNonFiniteCoefficient,
		SkipDuplicate,
	}, reasons)
}

func TestDetect_EmptyInput(t *testing.T) {
	assert.NotNil(t, DetectPatterns(nil, nil))
	assert.Empty(t, DetectPatterns(nil, []models.CorrelationRecord{
		record(models.CorrelationFoodSymptom, "Dairy", "Headache", 3, 0.5, 10),
	}))
	assert.Empty(t, DetectPatterns([]models.TimelineEvent{ev("t-1", models.EventTrigger, 0, "Stress")}, nil))
}

func TestDetect_RecordConfidencePassesThrough(t *testing.T) {
	events := []models.TimelineEvent{
		ev("t-1", models.EventTrigger, 0, "Stress"),
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
	}
	r := record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 30)
	r.Confidence = models.ConfidenceLow

	patterns := DetectPatterns(events, []models.CorrelationRecord{r})
	require.Len(t, patterns, 1)
	assert.Equal(t, models.ConfidenceLow, patterns[0].Confidence)
}

func TestDetect_DoesNotMutateInputs(t *testing.T) {
	events := []models.TimelineEvent{
		ev("s-1", models.EventSymptom, 2*time.Hour, "Headache"),
		ev("t-1", models.EventTrigger, 0, "Stress"),
	}
	records := []models.CorrelationRecord{
		record(models.CorrelationTriggerSymptom, "Stress", "Headache", 3, 0.8, 12),
	}
	eventsCopy := append([]models.TimelineEvent(nil), events...)
	recordsCopy := append([]models.CorrelationRecord(nil), records...)

	DetectPatterns(events, records)
	assert.Equal(t, eventsCopy, events)
	assert.Equal(t, recordsCopy, records)
}

// ─── Properties over a generated history ──────────────────────────────────────

func generatedHistory(seed int64) ([]models.TimelineEvent, []models.CorrelationRecord) {
	rng := rand.New(rand.NewSource(seed))
	foods := []string{"Dairy", "Gluten", "Coffee"}
	triggers := []string{"Stress", "Poor sleep"}
	symptoms := []string{"Headache", "Fatigue"}

	var events []models.TimelineEvent
	for i := 0; i < 400; i++ {
		at := time.Duration(rng.Intn(30*24)) * time.Hour
		id := fmt.Sprintf("e-%03d", i)
		switch rng.Intn(6) {
		case 0:
			events = append(events, ev(id, models.EventFood, at, foods[rng.Intn(len(foods))]))
		case 1:
			events = append(events, ev(id, models.EventTrigger, at, triggers[rng.Intn(len(triggers))]))
		case 2, 3:
			events = append(events, ev(id, models.EventSymptom, at, symptoms[rng.Intn(len(symptoms))]))
		case 4:
			events = append(events, ev(id, models.EventFlareCreated, at))
		default:
			events = append(events, ev(id, models.EventMedication, at, "Ibuprofen"))
		}
	}

	var records []models.CorrelationRecord
	for _, f := range foods {
		for _, s := range symptoms {
			records = append(records, record(models.CorrelationFoodSymptom, f, s, float64(1+rng.Intn(12)), rng.Float64()*2-1, 1+rng.Intn(20)))
		}
		records = append(records, record(models.CorrelationFoodFlare, f, "Flare", 20, 0.5, 8))
	}
	for _, tr := range triggers {
		for _, s := range symptoms {
			records = append(records, record(models.CorrelationTriggerSymptom, tr, s, float64(1+rng.Intn(12)), rng.Float64()*2-1, 1+rng.Intn(20)))
		}
		records = append(records, record(models.CorrelationTriggerFlare, tr, "Flare", 30, 0.2, 3))
	}
	return events, records
}

func TestDetect_Properties(t *testing.T) {
	events, records := generatedHistory(7)
	d := New(DefaultPolicy())
	patterns := d.Detect(events, records).Patterns
	require.NotEmpty(t, patterns)

	for _, p := range patterns {
		maxLag := d.policy.MaxLag(p.LagHours)
		assert.Equal(t, len(p.Occurrences), p.Frequency, "frequency consistency for %s", p.Description)

		pairs := make(map[[2]string]bool)
		for _, o := range p.Occurrences {
			assert.True(t, o.Event2.Timestamp.After(o.Event1.Timestamp), "effect must follow cause")
			assert.LessOrEqual(t, o.Event2.Timestamp.Sub(o.Event1.Timestamp), maxLag, "window bound")

			key := [2]string{o.Event1.ID, o.Event2.ID}
			assert.False(t, pairs[key], "pair %v repeated", key)
			pairs[key] = true
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	events, records := generatedHistory(42)
	first := DetectPatterns(events, records)
	second := DetectPatterns(events, records)
	assert.Equal(t, first, second)

	reversed := make([]models.TimelineEvent, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}
	assert.Equal(t, first, DetectPatterns(reversed, records), "event input order must not matter")
}

// ─── Window policy ────────────────────────────────────────────────────────────

func TestWindowPolicy_MaxLag(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		lagHours float64
		want     time.Duration
	}{
		{3, 6 * time.Hour},
		{1, 4 * time.Hour},
		{2, 4 * time.Hour},
		{12, 24 * time.Hour},
		{30, 48 * time.Hour},
		{0, 4 * time.Hour},
		{-5, 4 * time.Hour},
		{math.NaN(), 4 * time.Hour},
		{math.Inf(1), 4 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.MaxLag(tt.lagHours), "lagHours=%v", tt.lagHours)
	}
}

func TestWindowPolicy_NormalizesBadValues(t *testing.T) {
	d := New(WindowPolicy{LagMultiplier: -1, MinWindow: 0, MaxWindow: time.Hour})
	p := d.policy
	assert.Equal(t, 2.0, p.LagMultiplier)
	assert.Equal(t, 4*time.Hour, p.MinWindow)
	assert.Equal(t, 4*time.Hour, p.MaxWindow)
}

func TestDescribe(t *testing.T) {
	r := record(models.CorrelationTriggerFlare, " Stress ", "", 3, 0.8, 12)
	assert.Equal(t, "Stress preceded a flare in 0 instances", Describe(r, 0))
	assert.Equal(t, "Stress preceded a flare in 1 instance", Describe(r, 1))
}

func TestSkipReasonLabels(t *testing.T) {
	assert.Equal(t, []string{"unknown-type", "zero-sample", "non-finite-coefficient", "duplicate", "no-candidates", "no-occurrences"},
		[]string{string(SkipUnknownType), string(SkipZeroSample), string(SkipNonFiniteCoefficient),
			string(SkipDuplicate), string(SkipNoCandidates), string(SkipNoOccurrences)})
}
