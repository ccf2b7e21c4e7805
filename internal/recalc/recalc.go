// Package recalc computes the correlation records the detector consumes.
//
// It is the periodic batch side of pattern detection: for every correlation
// type and every (cause item, effect item) pair seen in a user's history it
// pairs each cause with the nearest following effect, buckets the delays
// (0-2h, 2-4h, 4-6h, 6-12h, 12-24h; anything beyond 24h is dropped), and
// correlates daily cause counts with effect counts shifted by the dominant
// bucket's delay.
package recalc

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/flareline/internal/detector"
	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/models"
	"github.com/rewired-gh/flareline/internal/stats"
)

// DefaultMinSamples is the smallest number of bucketed pairs worth a record.
const DefaultMinSamples = 3

// flareItemName labels the effect side of flare correlations.
const flareItemName = "Flare"

const day = 24 * time.Hour

// Options configures a Job.
type Options struct {
	MinSamples int
	Now        func() time.Time
}

// Job computes correlation records from timeline events.
type Job struct {
	minSamples int
	now        func() time.Time
}

// New creates a Job. Zero options fall back to defaults.
func New(opts Options) *Job {
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{minSamples: opts.MinSamples, now: opts.Now}
}

// Compute returns the records for events in [start, end), sorted by type
// (legend order) and then by item names.
func (j *Job) Compute(events []models.TimelineEvent, start, end time.Time) []models.CorrelationRecord {
	records := []models.CorrelationRecord{}
	if !end.After(start) {
		return records
	}

	var inRange []models.TimelineEvent
	for _, e := range detector.SortTimeline(events) {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			inRange = append(inRange, e)
		}
	}
	computedAt := j.now()

	for _, t := range models.CorrelationTypes {
		rule, _ := detector.RuleFor(t)
		causeNames := itemNames(inRange, func(e *models.TimelineEvent) bool { return e.Type == rule.Cause })
		effectNames := []string{flareItemName}
		if rule.EffectByName {
			effectNames = itemNames(inRange, rule.IsEffectType)
		}

		for _, a := range causeNames {
			for _, b := range effectNames {
				rec, ok := j.correlate(inRange, rule, t, a, b, start, end)
				if !ok {
					continue
				}
				rec.ComputedAt = computedAt
				records = append(records, rec)
			}
		}
	}

	logger.Debug("recalc: events=%d records=%d range=[%s, %s)",
		len(inRange), len(records), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return records
}

func (j *Job) correlate(timeline []models.TimelineEvent, rule detector.Rule, t models.CorrelationType, a, b string, start, end time.Time) (models.CorrelationRecord, bool) {
	var causes, effects []time.Time
	for i := range timeline {
		e := &timeline[i]
		switch {
		case rule.IsCause(e, a):
			causes = append(causes, e.Timestamp)
		case rule.IsEffect(e, b):
			effects = append(effects, e.Timestamp)
		}
	}
	if len(causes) == 0 || len(effects) == 0 {
		return models.CorrelationRecord{}, false
	}

	var hist stats.Histogram
	gapsByBucket := make(map[stats.Bucket][]float64)
	for _, c := range causes {
		i := sort.Search(len(effects), func(i int) bool { return !effects[i].Before(c) })
		if i == len(effects) {
			continue
		}
		gap := effects[i].Sub(c)
		if !hist.Add(gap) {
			continue
		}
		bucket, _ := stats.BucketFor(gap)
		gapsByBucket[bucket] = append(gapsByBucket[bucket], gap.Hours())
	}

	n := hist.Total()
	if n < j.minSamples {
		return models.CorrelationRecord{}, false
	}

	dominant := hist.Dominant()
	x, y := dailySeries(causes, effects, start, end, dominant.Lower())

	return models.CorrelationRecord{
		Type:        t,
		ItemAName:   a,
		ItemBName:   b,
		Coefficient: stats.Pearson(x, y),
		LagHours:    math.Round(stats.Mean(gapsByBucket[dominant])*10) / 10,
		SampleSize:  n,
		Confidence:  stats.ConfidenceFromBuckets(n, hist.DominantRatio()),
		RangeStart:  start,
		RangeEnd:    end,
	}, true
}

// dailySeries encodes causes and effects as aligned per-day counts. x[d]
// counts causes on day d; y[d] counts effects in the 24h starting at day d
// plus shift.
func dailySeries(causes, effects []time.Time, start, end time.Time, shift time.Duration) (x, y []float64) {
	days := int(math.Ceil(float64(end.Sub(start)) / float64(day)))
	x = make([]float64, days)
	y = make([]float64, days)

	for _, c := range causes {
		d := int(c.Sub(start) / day)
		if d >= 0 && d < days {
			x[d]++
		}
	}
	for _, e := range effects {
		offset := e.Sub(start) - shift
		if offset < 0 {
			continue
		}
		d := int(offset / day)
		if d < days {
			y[d]++
		}
	}
	return x, y
}

// itemNames returns the distinct item names of matching events, sorted by
// their normalized form. The first spelling seen is kept for display.
func itemNames(timeline []models.TimelineEvent, match func(*models.TimelineEvent) bool) []string {
	display := make(map[string]string)
	for i := range timeline {
		e := &timeline[i]
		if !match(e) {
			continue
		}
		for _, item := range e.Items {
			key := models.NormalizeName(item)
			if key == "" {
				continue
			}
			if _, ok := display[key]; !ok {
				display[key] = strings.TrimSpace(item)
			}
		}
	}

	keys := make([]string, 0, len(display))
	for k := range display {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = display[k]
	}
	return names
}
