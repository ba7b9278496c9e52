// Mixtape Server
//
// Features:
// - Sandbox browsing across link mounts
// - Background copy-and-index imports with SSE progress
// - Prometheus metrics & structured logging (zap)
// - Optional JWT auth on the API
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/api"
	"github.com/fruitsalade/mixtape/internal/app"
	"github.com/fruitsalade/mixtape/internal/auth"
	"github.com/fruitsalade/mixtape/internal/config"
	"github.com/fruitsalade/mixtape/internal/events"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metrics"
	"github.com/fruitsalade/mixtape/internal/tasks"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Mixtape Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("sandbox", cfg.SandboxBackend),
		zap.String("records", cfg.RecordStore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No prompter: only GRANTED_PATHS can be linked or imported.
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		logging.Fatal("app init failed", zap.Error(err))
	}
	defer a.Close()
	if len(cfg.GrantedPaths) == 0 {
		logging.Warn("GRANTED_PATHS is empty, links and imports will be denied")
	}

	if err := a.Worker.Start(ctx); err != nil {
		logging.Fatal("import worker start failed", zap.Error(err))
	}

	broadcaster := events.NewBroadcaster()
	tracker := tasks.NewTracker()

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler, err = auth.New(cfg.JWTSecret)
		if err != nil {
			logging.Fatal("auth init failed", zap.Error(err))
		}
		logging.Info("API authentication enabled")
	} else {
		logging.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	srv := api.NewServer(a, tracker, broadcaster, authHandler)
	go srv.Run(ctx)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		// Request contexts derive from ctx, so this ends SSE streams.
		cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
