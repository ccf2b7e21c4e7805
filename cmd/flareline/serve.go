package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Events older than storage.retention are pruned hourly
while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := server.NewServer(a.service, a.store, a.metrics, logger.L(), &server.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		DefaultRange: a.cfg.Server.DefaultRange,
	})
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if a.cfg.Storage.Retention > 0 {
		go pruneLoop(ctx, a, time.Hour)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
		return err
	}
	logger.Info("Service stopped")
	return nil
}

func pruneLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			n, err := a.store.PruneEvents(ctx, tick.Add(-a.cfg.Storage.Retention))
			if err != nil {
				logger.Warn("Failed to prune events: %v", err)
				continue
			}
			if n > 0 {
				logger.Info("Pruned %d events older than %v", n, a.cfg.Storage.Retention)
			}
		}
	}
}
