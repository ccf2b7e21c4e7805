// Package server provides the HTTP API for flareline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rewired-gh/flareline/internal/metrics"
	"github.com/rewired-gh/flareline/internal/models"
	"github.com/rewired-gh/flareline/internal/presentation"
	"github.com/rewired-gh/flareline/internal/timeline"
)

// Timelines loads timelines and recalculates correlations.
type Timelines interface {
	Load(ctx context.Context, userID string, start, end time.Time) (*timeline.View, error)
	IsCurrent(v *timeline.View) bool
	Recalculate(ctx context.Context, userID string, start, end time.Time) ([]models.CorrelationRecord, error)
}

// EventWriter stores timeline events.
type EventWriter interface {
	SaveEvents(ctx context.Context, userID string, events []models.TimelineEvent) error
}

// Server provides HTTP endpoints for flareline.
type Server struct {
	echo      *echo.Echo
	timelines Timelines
	events    EventWriter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	config    *Config
	now       func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	DefaultRange time.Duration
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewServer creates a new HTTP server.
func NewServer(timelines Timelines, events EventWriter, m *metrics.Metrics, logger *zap.Logger, cfg *Config) (*Server, error) {
	if timelines == nil {
		return nil, fmt.Errorf("timeline service cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event writer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.DefaultRange <= 0 {
		cfg.DefaultRange = 7 * 24 * time.Hour
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		timelines: timelines,
		events:    events,
		metrics:   m,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/users/:user/patterns", s.handlePatterns)
	v1.POST("/users/:user/events", s.handleEvents)
	v1.POST("/users/:user/recalculate", s.handleRecalculate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SkippedRecord is the wire form of a record that produced no pattern.
type SkippedRecord struct {
	Type      models.CorrelationType `json:"type"`
	ItemAName string                 `json:"item_a_name"`
	ItemBName string                 `json:"item_b_name"`
	Reason    string                 `json:"reason"`
}

// PatternsResponse is the response body for GET /api/v1/users/:user/patterns.
type PatternsResponse struct {
	UserID       string                   `json:"user_id"`
	Start        time.Time                `json:"start"`
	End          time.Time                `json:"end"`
	EventCount   int                      `json:"event_count"`
	Patterns     []models.DetectedPattern `json:"patterns"`
	Skipped      []SkippedRecord          `json:"skipped"`
	Presentation presentation.Export      `json:"presentation"`
}

// EventsRequest is the request body for POST /api/v1/users/:user/events.
type EventsRequest struct {
	Events []models.TimelineEvent `json:"events"`
}

// EventsResponse is the response body for POST /api/v1/users/:user/events.
type EventsResponse struct {
	Saved int      `json:"saved"`
	IDs   []string `json:"ids"`
}

// RecalculateRequest is the optional request body for POST /api/v1/users/:user/recalculate.
type RecalculateRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RecalculateResponse is the response body for POST /api/v1/users/:user/recalculate.
type RecalculateResponse struct {
	Start        time.Time                  `json:"start"`
	End          time.Time                  `json:"end"`
	Correlations []models.CorrelationRecord `json:"correlations"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handlePatterns detects patterns in the requested range.
func (s *Server) handlePatterns(c echo.Context) error {
	userID := c.Param("user")
	start, end, err := s.parseRange(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	view, err := s.timelines.Load(c.Request().Context(), userID, start, end)
	if err != nil {
		s.logger.Error("timeline load failed", zap.String("user", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load timeline")
	}
	if !s.timelines.IsCurrent(view) {
		s.logger.Debug("superseded timeline load", zap.String("user", userID), zap.Uint64("ticket", view.Ticket))
		c.Response().Header().Set("X-Flareline-Superseded", "true")
	}

	resp := PatternsResponse{
		UserID:       userID,
		Start:        view.Start,
		End:          view.End,
		EventCount:   len(view.Events),
		Patterns:     view.Patterns,
		Skipped:      make([]SkippedRecord, 0, len(view.Skipped)),
		Presentation: view.Index.Export(),
	}
	if resp.Patterns == nil {
		resp.Patterns = []models.DetectedPattern{}
	}
	for _, sk := range view.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedRecord{
			Type:      sk.Record.Type,
			ItemAName: sk.Record.ItemAName,
			ItemBName: sk.Record.ItemBName,
			Reason:    string(sk.Reason),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleEvents stores a batch of timeline events. Events without an id get a
// random one.
func (s *Server) handleEvents(c echo.Context) error {
	userID := c.Param("user")
	var req EventsRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid events request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "events field is required")
	}

	ids := make([]string, len(req.Events))
	for i := range req.Events {
		if req.Events[i].ID == "" {
			req.Events[i].ID = uuid.NewString()
		}
		if err := req.Events[i].Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
		}
		ids[i] = req.Events[i].ID
	}

	if err := s.events.SaveEvents(c.Request().Context(), userID, req.Events); err != nil {
		s.logger.Error("saving events failed", zap.String("user", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save events")
	}

	return c.JSON(http.StatusCreated, EventsResponse{Saved: len(ids), IDs: ids})
}

// handleRecalculate recomputes correlation records for a range.
func (s *Server) handleRecalculate(c echo.Context) error {
	userID := c.Param("user")
	var req RecalculateRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	start, end, err := s.parseRange(req.Start, req.End)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	records, err := s.timelines.Recalculate(c.Request().Context(), userID, start, end)
	if err != nil {
		s.logger.Error("recalculation failed", zap.String("user", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to recalculate correlations")
	}
	if records == nil {
		records = []models.CorrelationRecord{}
	}

	return c.JSON(http.StatusOK, RecalculateResponse{Start: start, End: end, Correlations: records})
}

// parseRange parses RFC3339 bounds. A missing end means now; a missing start
// means end minus the default range.
func (s *Server) parseRange(startParam, endParam string) (time.Time, time.Time, error) {
	end := s.now().UTC()
	if endParam != "" {
		t, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
		end = t
	}

	start := end.Add(-s.config.DefaultRange)
	if startParam != "" {
		t, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
	}
	return start, end, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
