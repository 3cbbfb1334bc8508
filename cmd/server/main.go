package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"obs-remote/internal/obsws"
	"obs-remote/internal/platform/config"
	"obs-remote/internal/platform/logger"
	"obs-remote/internal/platform/metrics"
	"obs-remote/internal/production"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	var layout []production.LayoutEntry
	if cfg.SceneLayoutFile != "" {
		l, err := production.LoadLayout(cfg.SceneLayoutFile)
		if err != nil {
			log.Error("scene layout", "error", err)
			os.Exit(1)
		}
		layout = l
	}

	met := metrics.New()
	newController := func() production.Controller {
		return obsws.NewClient(obsws.Options{
			Port:             cfg.OBSPort,
			RequestTimeout:   cfg.RequestTimeout,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           log.With("component", "obsws"),
			Observer:         met,
		})
	}

	repo := production.NewInMemoryRepository()
	svc := production.NewService(repo, newController, production.Config{
		OverlayBaseURL:  cfg.OverlayBaseURL,
		CameraSource:    cfg.CameraSource,
		CameraInputKind: cfg.CameraInputKind,
		Layout:          layout,
	}, log)
	h := production.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler(func() {
		met.SetActiveSessions(svc.ActiveSessionCount())
	}))
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"obs_port", cfg.OBSPort,
		"request_timeout", cfg.RequestTimeout.String(),
		"overlay_base_url", cfg.OverlayBaseURL,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	svc.Close()

	log.Info("server stopped")
}
