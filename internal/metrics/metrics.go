// Package metrics holds Prometheus collectors for pattern detection and
// correlation recalculation.
//
// Collectors are registered on a private registry per Metrics value so several
// services (and tests) can coexist in one process.
//
// Metrics:
//   - flareline_detections_total - detection runs
//   - flareline_detection_duration_seconds - detection run latency
//   - flareline_patterns_per_detection - patterns returned per run
//   - flareline_occurrences_total - occurrences returned across runs
//   - flareline_records_skipped_total{reason} - records that produced no pattern
//   - flareline_load_errors_total{source} - failed event/correlation fetches
//   - flareline_recalculations_total{status} - recalculation runs
//   - flareline_correlations_computed - records written by the last recalculation
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rewired-gh/flareline/internal/detector"
)

// Metrics holds the flareline collectors.
type Metrics struct {
	registry *prometheus.Registry

	DetectionsTotal      prometheus.Counter
	DetectionDuration    prometheus.Histogram
	PatternsPerDetection prometheus.Histogram
	OccurrencesTotal     prometheus.Counter
	RecordsSkippedTotal  *prometheus.CounterVec
	LoadErrorsTotal      *prometheus.CounterVec
	RecalculationsTotal  *prometheus.CounterVec
	CorrelationsComputed prometheus.Gauge
}

// New creates collectors on a fresh registry. When withRuntime is true the Go
// runtime and process collectors are registered too.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DetectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flareline_detections_total",
			Help: "Total number of pattern detection runs",
		}),
		DetectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flareline_detection_duration_seconds",
			Help:    "Pattern detection run latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PatternsPerDetection: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flareline_patterns_per_detection",
			Help:    "Number of patterns returned by a detection run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		OccurrencesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flareline_occurrences_total",
			Help: "Total number of pattern occurrences returned",
		}),
		RecordsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flareline_records_skipped_total",
				Help: "Correlation records that produced no pattern, by reason",
			},
			[]string{"reason"},
		),
		LoadErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flareline_load_errors_total",
				Help: "Failed timeline loads, by source (events, correlations)",
			},
			[]string{"source"},
		),
		RecalculationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flareline_recalculations_total",
				Help: "Correlation recalculation runs, by status (ok, error)",
			},
			[]string{"status"},
		),
		CorrelationsComputed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flareline_correlations_computed",
			Help: "Correlation records written by the most recent recalculation",
		}),
	}
}

// Registry returns the registry holding these collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDetection records one detection run.
func (m *Metrics) ObserveDetection(res detector.Result, elapsed time.Duration) {
	m.DetectionsTotal.Inc()
	m.DetectionDuration.Observe(elapsed.Seconds())
	m.PatternsPerDetection.Observe(float64(len(res.Patterns)))

	occurrences := 0
	for _, p := range res.Patterns {
		occurrences += p.Frequency
	}
	m.OccurrencesTotal.Add(float64(occurrences))

	for _, s := range res.Skipped {
		m.RecordsSkippedTotal.WithLabelValues(string(s.Reason)).Inc()
	}
}

// ObserveRecalculation records one recalculation run.
func (m *Metrics) ObserveRecalculation(records int, err error) {
	if err != nil {
		m.RecalculationsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RecalculationsTotal.WithLabelValues("ok").Inc()
	m.CorrelationsComputed.Set(float64(records))
}
