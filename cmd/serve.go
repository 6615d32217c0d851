package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the JSON API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	manager, err := buildManager()
	if err != nil {
		return err
	}

	// Registers the feed. The refresh loop retrieves it.
	if _, err := manager.LoadScheduleAsync(cfg.Feed.URL, cfg.Feed.Headers); err != nil && !errors.Is(err, timetable.ErrNoActiveFeed) {
		return err
	}
	go refreshLoop(ctx, manager)

	cache, closeCache := buildCache()
	defer closeCache()
	client := buildDirectory(cache)

	server := api.NewServer(log, func(ctx context.Context) (*timetable.Schedule, error) {
		return manager.LoadScheduleAsync(cfg.Feed.URL, cfg.Feed.Headers)
	}, client, client)
	if cfg.Search.Timeout > 0 {
		server.Timeout = cfg.Search.Timeout
	}

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info("timetable api starting", zap.String("http_addr", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
			return err
		}
	}

	return nil
}

// Refreshes stale feeds right away, then once a minute.
func refreshLoop(ctx context.Context, manager *timetable.Manager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		if err := manager.Refresh(ctx); err != nil {
			log.Warn("feed refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
