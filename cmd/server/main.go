package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-packager/internal/orchestrator"
	"live-packager/internal/packager"
	"live-packager/internal/platform/config"
	"live-packager/internal/platform/logger"
	"live-packager/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	defaults, err := sessionDefaults(cfg)
	if err != nil {
		log.Error("invalid packaging defaults", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	repo := orchestrator.NewInMemoryRepository()
	repo.SetRetention(2 * cfg.WindowSize)
	svc := orchestrator.NewService(repo, cfg.WindowSize, defaults,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(met))
	h := orchestrator.NewHandler(svc, log, met)
	h.SetMaxUploadBytes(int64(cfg.MaxUploadBytes))

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler(func() { met.SetActiveStreams(svc.ActiveStreamCount()) }))
	h.Routes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting",
			"port", cfg.Port,
			"sliding_window_size", cfg.WindowSize,
			"format", defaults.Format.String(),
			"track", defaults.TrackType.String(),
			"segment_duration", defaults.SegmentDurationSec,
			"log_level", cfg.LogLevel,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func sessionDefaults(cfg config.Server) (packager.LiveConfig, error) {
	format, err := packager.ParseOutputFormat(cfg.OutputFormat)
	if err != nil {
		return packager.LiveConfig{}, err
	}
	track, err := packager.ParseTrackType(cfg.TrackType)
	if err != nil {
		return packager.LiveConfig{}, err
	}
	lc := packager.LiveConfig{Format: format, TrackType: track, SegmentDurationSec: cfg.SegmentDuration}
	return lc, lc.Validate()
}
