package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"variantcore/internal/api"
	"variantcore/internal/assignment"
	"variantcore/internal/auth"
	"variantcore/internal/config"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
	"variantcore/internal/registry"
	"variantcore/internal/telemetry"
	"variantcore/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load failed")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.AppEnv == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	reg, err := registry.Load(cfg.RegistryPath, cfg.Env)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("registry load failed")
	}
	logger.Info().
		Int("flags", len(reg.Flags)).
		Int("experiments", len(reg.Experiments)).
		Str("etag", reg.ETag).
		Str("env", cfg.Env).
		Msg("registry loaded")

	telemetry.Init()
	telemetry.RegistryFlags.Set(float64(len(reg.Flags)))
	telemetry.RegistryExperiments.Set(float64(len(reg.Experiments)))

	store, err := assignment.NewStore(ctx, cfg.AssignmentStore, cfg.AssignmentFile, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Str("type", cfg.AssignmentStore).Msg("assignment store init failed")
	}
	defer store.Close()

	evaluator := feature.NewEvaluator(reg.Flags, cfg.Env)
	engine := experiment.NewEngine(ctx, reg.Experiments, store, logger)

	tracker := tracking.NewDispatcher(cfg.WebhookURL, cfg.WebhookSecret, logger)
	tracker.Start()
	defer tracker.Close()

	server := api.NewServer(api.Options{
		Evaluator: evaluator,
		Engine:    engine,
		Env:       cfg.Env,
		Auth:      auth.NewAuthenticator(cfg.AdminAPIKey, nil),
		Tracker:   tracker.Dispatch,
		RateLimit: cfg.RateLimitPerIP,
		Log:       logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	_ = metricsSrv.Shutdown(shutCtx)
	logger.Info().Msg("stopped")
}
