// Package timeline orchestrates a timeline load: it fetches a user's events
// and correlation records, runs pattern detection, and derives the
// presentation index the UI renders from.
//
// The two fetches run concurrently and both must finish before detection
// starts. Detection itself is synchronous and holds no state between calls;
// callers re-run Load whenever events or correlations change.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/flareline/internal/detector"
	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/metrics"
	"github.com/rewired-gh/flareline/internal/models"
	"github.com/rewired-gh/flareline/internal/presentation"
	"github.com/rewired-gh/flareline/internal/recalc"
)

// EventRepository finds a user's timeline events in [start, end).
type EventRepository interface {
	FindEvents(ctx context.Context, userID string, start, end time.Time, types ...models.EventType) ([]models.TimelineEvent, error)
}

// CorrelationStore reads and replaces a user's precomputed correlation records.
type CorrelationStore interface {
	FindCorrelations(ctx context.Context, userID string, start, end time.Time) ([]models.CorrelationRecord, error)
	ReplaceCorrelations(ctx context.Context, userID string, start, end time.Time, records []models.CorrelationRecord) error
}

// Options configures a Service.
type Options struct {
	Policy     detector.WindowPolicy
	MinSamples int
	Metrics    *metrics.Metrics // nil disables metrics
	Now        func() time.Time

	// Notifications persists digest history; nil keeps it in memory.
	Notifications NotificationLog
}

// View is the result of one timeline load.
type View struct {
	UserID   string
	Start    time.Time
	End      time.Time
	Events   []models.TimelineEvent
	Patterns []models.DetectedPattern
	Skipped  []detector.Skipped
	Index    *presentation.Index
	Ticket   uint64
}

// Service loads timelines and recalculates correlations.
type Service struct {
	events       EventRepository
	correlations CorrelationStore
	detector     *detector.Detector
	recalc       *recalc.Job
	metrics      *metrics.Metrics
	now          func() time.Time

	notifications NotificationLog

	mu     sync.Mutex
	guards map[string]*Guard
}

// New creates a Service.
func New(events EventRepository, correlations CorrelationStore, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifications == nil {
		opts.Notifications = newMemoryLog()
	}
	return &Service{
		events:        events,
		correlations:  correlations,
		detector:      detector.New(opts.Policy),
		recalc:        recalc.New(recalc.Options{MinSamples: opts.MinSamples, Now: opts.Now}),
		metrics:       opts.Metrics,
		now:           opts.Now,
		notifications: opts.Notifications,
		guards:        make(map[string]*Guard),
	}
}

func (s *Service) guard(userID string) *Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[userID]
	if !ok {
		g = &Guard{}
		s.guards[userID] = g
	}
	return g
}

// Load fetches events and correlations for [start, end) and detects patterns.
func (s *Service) Load(ctx context.Context, userID string, start, end time.Time) (*View, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID must not be empty")
	}
	if !end.After(start) {
		return nil, fmt.Errorf("invalid range: end must be after start")
	}
	ticket := s.guard(userID).Begin()

	var (
		events  []models.TimelineEvent
		records []models.CorrelationRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.events.FindEvents(gctx, userID, start, end)
		if err != nil {
			s.loadError("events")
			return fmt.Errorf("failed to load events: %w", err)
		}
		events = found
		return nil
	})
	g.Go(func() error {
		found, err := s.correlations.FindCorrelations(gctx, userID, start, end)
		if err != nil {
			s.loadError("correlations")
			return fmt.Errorf("failed to load correlations: %w", err)
		}
		records = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	started := time.Now()
	res := s.detector.Detect(events, records)
	if s.metrics != nil {
		s.metrics.ObserveDetection(res, time.Since(started))
	}
	logger.Debug("timeline: user=%s events=%d correlations=%d patterns=%d", userID, len(events), len(records), len(res.Patterns))

	return &View{
		UserID:   userID,
		Start:    start,
		End:      end,
		Events:   events,
		Patterns: res.Patterns,
		Skipped:  res.Skipped,
		Index:    presentation.BuildIndex(res.Patterns),
		Ticket:   ticket,
	}, nil
}

// IsCurrent reports whether no newer Load for the same user has started since
// v was requested. Callers discard views that are no longer current.
func (s *Service) IsCurrent(v *View) bool {
	return s.guard(v.UserID).Current(v.Ticket)
}

func (s *Service) loadError(source string) {
	if s.metrics != nil {
		s.metrics.LoadErrorsTotal.WithLabelValues(source).Inc()
	}
}

// Recalculate recomputes the correlation records for [start, end) from the
// stored events and replaces the stored records for that range.
func (s *Service) Recalculate(ctx context.Context, userID string, start, end time.Time) ([]models.CorrelationRecord, error) {
	records, err := s.recalculate(ctx, userID, start, end)
	if s.metrics != nil {
		s.metrics.ObserveRecalculation(len(records), err)
	}
	return records, err
}

func (s *Service) recalculate(ctx context.Context, userID string, start, end time.Time) ([]models.CorrelationRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID must not be empty")
	}
	events, err := s.events.FindEvents(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	records := s.recalc.Compute(events, start, end)
	if err := s.correlations.ReplaceCorrelations(ctx, userID, start, end, records); err != nil {
		return nil, fmt.Errorf("failed to store correlations: %w", err)
	}
	logger.Info("Recalculated %d correlations for user %s over %d events", len(records), userID, len(events))
	return records, nil
}
