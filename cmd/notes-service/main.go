// notes-service is the HTTP API server that turns YouTube videos into study notes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"studynotes/internal/api"
	"studynotes/internal/auth"
	"studynotes/internal/config"
	"studynotes/internal/generator"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"studynotes/internal/observability"
	"studynotes/internal/runner"
	"studynotes/internal/title"
	"syscall"
	"time"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	storageCfg := config.LoadStorageConfig()
	authCfg := auth.LoadConfigFromEnv()
	runnerCfg := runner.LoadConfigFromEnv()
	genCfg := generator.LoadConfigFromEnv()
	titleCfg := title.LoadConfigFromEnv()

	flushSentry, err := observability.InitSentry(observability.SentryOptions{
		DSN:         svcCfg.SentryDSN,
		Environment: svcCfg.SentryEnvironment,
		Release:     svcCfg.Release,
	})
	if err != nil {
		return err
	}
	defer flushSentry()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenManager(svcCfg.JWTSecret, authCfg.TokenTTL)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, storageCfg)
	if err != nil {
		return err
	}
	defer st.close()

	gen, err := generator.New(genCfg)
	if err != nil {
		return err
	}

	var login *auth.GoogleLogin
	if authCfg.GoogleEnabled() {
		login, err = auth.NewGoogleLogin(authCfg, tokens, st.credentials)
		if err != nil {
			return err
		}
		slog.Info("Google sign-in enabled", "redirect", authCfg.GoogleRedirectURL)
	} else {
		slog.Warn("Google sign-in disabled - GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not configured")
	}

	// Background note jobs
	pool := runner.New(runnerCfg, metrics)

	orchestrator := note.NewOrchestrator(note.OrchestratorConfig{
		Records:   st.records,
		Artifacts: st.artifacts,
		Generator: gen,
		Scheduler: pool,
		Metrics:   metrics,
	})
	noteService := note.NewService(note.ServiceConfig{
		Orchestrator: orchestrator,
		Watcher:      note.NewWatcher(st.records, svcCfg.WatchInterval, metrics),
		Records:      st.records,
		Artifacts:    st.artifacts,
		Titles:       title.New(titleCfg),
		TitleTimeout: svcCfg.TitleTimeout,
	})

	healthChecker := health.NewChecker(st.checks)

	// Cancelled when the API server starts shutting down so open event
	// streams end instead of holding Shutdown until its deadline.
	streamCtx, stopStreams := context.WithCancel(ctx)
	defer stopStreams()

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		NoteService:   noteService,
		Tokens:        tokens,
		Login:         login,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		CORSOrigins:   svcCfg.CORSOrigins,
		CookieSecure:  authCfg.CookieSecure,
		Streams:       streamCtx,
	})

	// Create API server. Event streams clear the write deadline for themselves.
	apiServer := &http.Server{
		Addr:              ":" + svcCfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	apiServer.RegisterOnShutdown(stopStreams)

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 2)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		_ = pool.Close(context.Background())
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Stop accepting connections and finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Let running note jobs finish. Jobs cut off here stay in a
	// non-terminal status until the owner resubmits.
	slog.Info("Draining note jobs")
	runnerCtx, runnerCancel := context.WithTimeout(context.Background(), runnerCfg.DrainTimeout)
	defer runnerCancel()
	if err := pool.Close(runnerCtx); err != nil {
		slog.Warn("Runner shutdown error", "error", err)
	}

	stats := pool.Stats()
	slog.Info("Runner stats",
		"queued", stats.Queued,
		"completed", stats.Completed,
		"panicked", stats.Panicked,
		"rejected", stats.Rejected,
	)

	slog.Info("Shutdown complete")
	return nil
}
