package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abrennan/tv-schedule-service/internal/config"
	httphandler "github.com/abrennan/tv-schedule-service/internal/http"
	"github.com/abrennan/tv-schedule-service/internal/lifecycle"
	"github.com/abrennan/tv-schedule-service/internal/observability"
	"github.com/abrennan/tv-schedule-service/internal/provider"
	"github.com/abrennan/tv-schedule-service/internal/service"
	"github.com/abrennan/tv-schedule-service/internal/store"
	"github.com/abrennan/tv-schedule-service/internal/warming"
	"github.com/abrennan/tv-schedule-service/internal/window"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	epgClient, err := provider.NewEPGClient(cfg.EPGBaseURL, cfg.EPGDomain, cfg.EPGType, cfg.EPGTimeout)
	if err != nil {
		logger.Fatal("epg client", zap.Error(err))
	}

	var scheduleClient provider.Client = epgClient
	if cfg.BreakerEnabled {
		scheduleClient = provider.NewBreakerClient(epgClient, provider.BreakerConfig{
			MaxRequests:  uint32(cfg.BreakerMaxRequests),
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			MinRequests:  uint32(cfg.BreakerMinRequests),
			FailureRatio: cfg.BreakerFailureRatio,
		})
		logger.Info("circuit breaker enabled",
			zap.Float64("failure_ratio", cfg.BreakerFailureRatio),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	bucketStore := store.New()
	observability.RegisterDaysCachedGauge(bucketStore.Days)

	scheduleService := service.NewScheduleService(
		scheduleClient,
		bucketStore,
		cfg.MaxConcurrentFetches,
		cfg.CoalesceEnabled,
		cfg.CoalesceTimeout,
	)

	healthErrors := window.NewCounter(cfg.HealthWindow)
	healthSuccesses := window.NewCounter(cfg.HealthWindow)
	healthConfig := &httphandler.HealthConfig{
		Window:    cfg.HealthWindow,
		ErrorPct:  cfg.HealthErrorPct,
		Errors:    healthErrors,
		Successes: healthSuccesses,
	}

	var limiter *rate.Limiter
	var rlRequests, rlDenials *window.Counter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		rlRequests = window.NewCounter(cfg.HealthWindow)
		rlDenials = window.NewCounter(cfg.HealthWindow)
		observability.RegisterRateLimitGauges(rlRequests, rlDenials, cfg.HealthWindow)
	}

	handler := httphandler.NewHandler(scheduleService, healthConfig, logger)

	warmCtx, warmCancel := context.WithCancel(context.Background())
	defer warmCancel()
	if cfg.WarmingEnabled {
		warmer := warming.NewWarmer(scheduleService, cfg.WarmingDaysAhead, logger)
		go warmer.WarmPeriodic(warmCtx, cfg.WarmingInterval)
		logger.Info("cache warming enabled",
			zap.Int("days_ahead", cfg.WarmingDaysAhead),
			zap.Duration("interval", cfg.WarmingInterval))
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	showsRouter := router.PathPrefix("/api/shows").Subrouter()
	showsRouter.Use(httphandler.RateLimitMiddleware(limiter, rlRequests, rlDenials))
	showsRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	showsRouter.HandleFunc("/aggregatedbytvshow", handler.GetAggregatedByTvShow).Methods("GET")
	showsRouter.HandleFunc("/orderedbyoccurrences", handler.GetOrderedByOccurrences).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	warmCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
