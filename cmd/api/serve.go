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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/agrivision/internal/config"
	"github.com/bryanwahyu/agrivision/internal/infra/httpserver"
	"github.com/bryanwahyu/agrivision/internal/infra/observability"
	"github.com/bryanwahyu/agrivision/internal/middleware"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			if serveAddr == "" {
				serveAddr = fmt.Sprintf(":%d", cfg.Server.Port)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :<server.port>)")
	return serve
}

func runServer(ctx context.Context, cfg *config.Config, addr string) error {
	log, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := buildApp(ctx, cfg, log, wireOptions{metrics: observability.NewMetrics(reg)})
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.svc.Registry) == 0 {
		log.Warn("no backends configured; POST /v1/analyses will return 503")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		defer limiter.Stop()
	}

	handler := httpserver.NewRouter(a.svc, httpserver.Options{
		Logger:          log,
		Metrics:         middleware.NewHTTPMetrics(reg),
		Gatherer:        reg,
		APIKeys:         cfg.Auth.APIKeys,
		RateLimiter:     limiter,
		CORSOrigins:     cfg.Server.CORSOrigins,
		DefaultBackends: defaultBackends(cfg, a.svc.Registry),
		AnalysisTimeout: cfg.Analysis.Timeout,
		HealthChecks:    a.health,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.Int("backends", len(a.svc.Registry)),
			zap.String("store", cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error("shutdown error", zap.Error(err))
		return err
	}
	return nil
}
