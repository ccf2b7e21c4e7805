// Package main implements the flareline command: an HTTP service and a set of
// maintenance commands around timeline pattern detection.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/flareline/internal/config"
	"github.com/rewired-gh/flareline/internal/detector"
	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/metrics"
	"github.com/rewired-gh/flareline/internal/storage"
	"github.com/rewired-gh/flareline/internal/timeline"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flareline",
	Short: "Timeline pattern detection for a health journal",
	Long: `flareline joins precomputed item correlations with a user's logged events
and reports the concrete occurrences behind each correlation.`,
	Version:       version,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults plus FLARELINE_* environment when empty)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(pruneCmd)
}

// loadConfig loads and validates configuration, then initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}
	return cfg, nil
}

// app bundles the components every database-backed command needs.
type app struct {
	cfg     *config.Config
	store   *storage.Storage
	metrics *metrics.Metrics
	service *timeline.Service
}

func newApp(withRuntimeMetrics bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	m := metrics.New(withRuntimeMetrics)
	svc := timeline.New(store, store, timeline.Options{
		Policy:     windowPolicy(cfg),
		MinSamples: cfg.Recalc.MinSamples,
		Metrics:    m,

		Notifications: store,
	})

	return &app{cfg: cfg, store: store, metrics: m, service: svc}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func windowPolicy(cfg *config.Config) detector.WindowPolicy {
	return detector.WindowPolicy{
		LagMultiplier: cfg.Detector.LagMultiplier,
		MinWindow:     cfg.Detector.MinWindow,
		MaxWindow:     cfg.Detector.MaxWindow,
	}
}

// parseRange parses optional RFC3339 flag values; an empty end means now and
// an empty start means end minus fallback.
func parseRange(startFlag, endFlag string, fallback time.Duration) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if endFlag != "" {
		t, err := time.Parse(time.RFC3339, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	start := end.Add(-fallback)
	if startFlag != "" {
		t, err := time.Parse(time.RFC3339, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end must be after --start")
	}
	return start, end, nil
}
