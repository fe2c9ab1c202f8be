// Package main is the entry point for the Trailmark background agent.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/trailmark-app/trailmark/internal/config"
	"github.com/trailmark-app/trailmark/internal/connectivity"
	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/health"
	"github.com/trailmark-app/trailmark/internal/home"
	"github.com/trailmark-app/trailmark/internal/jobs"
	"github.com/trailmark-app/trailmark/internal/lifecycle"
	"github.com/trailmark-app/trailmark/internal/middleware"
	"github.com/trailmark-app/trailmark/internal/notify"
	"github.com/trailmark-app/trailmark/internal/proximity"
	"github.com/trailmark-app/trailmark/internal/recall"
	"github.com/trailmark-app/trailmark/internal/remote"
	"github.com/trailmark-app/trailmark/internal/store"
	syncpkg "github.com/trailmark-app/trailmark/internal/sync"
	"github.com/trailmark-app/trailmark/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Trailmark Background Agent")
		fmt.Println()
		fmt.Println("Usage: agent [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "trailmark-agent",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Remote backend
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	remoteStore := remote.NewPostgres(db, logger)

	// Local device store emulation
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	kv := store.NewRedis(redisClient, cfg.RedisNamespace, 0)
	entity := store.NewEntityStore(kv)

	// Metrics
	registry := prometheus.NewRegistry()
	jobMetrics := jobs.NewMetrics()
	syncMetrics := syncpkg.NewMetrics()
	notifyMetrics := notify.NewMetrics()
	for name, reg := range map[string]func(prometheus.Registerer) error{
		"jobs":   jobMetrics.Register,
		"sync":   syncMetrics.Register,
		"notify": notifyMetrics.Register,
	} {
		if err := reg(registry); err != nil {
			logger.Error("failed to register metrics", "component", name, "error", err)
			os.Exit(1)
		}
	}

	// Push relay
	var push notify.PushChannel
	if cfg.PushConfigured() {
		key, err := notify.LoadSigningKey(cfg.PushPrivateKeyPath)
		if err != nil {
			logger.Error("failed to load push signing key", "error", err)
			os.Exit(1)
		}
		httpPush, err := notify.NewHTTPPush(notify.HTTPPushConfig{
			Endpoint:   cfg.PushEndpoint,
			KeyID:      cfg.PushKeyID,
			TeamID:     cfg.PushTeamID,
			SigningKey: key,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to create push relay", "error", err)
			os.Exit(1)
		}
		push = httpPush
	} else {
		logger.Info("push relay not configured, in-app notifications only")
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Logger:  logger,
		Metrics: notifyMetrics,
	}, remoteStore, push)

	// Detection
	proximityState, err := proximity.LoadState(ctx, kv)
	if err != nil {
		logger.Error("failed to load proximity state", "error", err)
		os.Exit(1)
	}
	estimator := home.NewEstimator(entity, remoteStore, logger)
	proximityDetector := proximity.NewDetector(proximity.Config{
		HomeRadiusMeters:  cfg.HomeRadiusMeters,
		OuterRadiusMeters: cfg.OuterRadiusMeters,
		DeadZoneMeters:    cfg.DeadZoneMeters,
		Cooldown:          time.Duration(cfg.CooldownHours) * time.Hour,
		Logger:            logger,
	}, remoteStore, estimator, proximityState)
	recallDetector := recall.NewDetector(remoteStore, logger)

	runner := lifecycle.NewRunner(proximityDetector, recallDetector, dispatcher, estimator, logger, nil)
	controller := lifecycle.NewController(lifecycle.Config{
		ForegroundInterval: time.Duration(cfg.ForegroundScanIntervalMinutes) * time.Minute,
		PassTimeout:        time.Duration(cfg.PassTimeoutSeconds) * time.Second,
		Logger:             logger,
		JobMetrics:         jobMetrics,
	}, runner, hostPermissions{}, newDailyTickRegistrar(logger), envLocation{logger: logger})

	if err := controller.StartSession(ctx, cfg.OwnerID); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	// The daemon has no host app to background it; it runs as if the app
	// were permanently foregrounded.
	controller.AppForeground(ctx)

	// Reconciliation
	engine := syncpkg.NewEngine(syncpkg.Config{
		Logger:     logger,
		Metrics:    syncMetrics,
		JobMetrics: jobMetrics,
	}, entity, remoteStore)

	if cfg.RealtimeURL != "" {
		watcher, err := connectivity.NewWatcher(
			connectivity.DefaultConfig(cfg.RealtimeURL),
			func(ctx context.Context) {
				go func() {
					if _, err := engine.Reconcile(ctx, cfg.OwnerID); err != nil {
						logger.Error("reconciliation failed", "error", err)
					}
				}()
			},
			logger,
		)
		if err != nil {
			logger.Error("failed to create connectivity watcher", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("connectivity watcher stopped", "error", err)
			}
		}()
	} else {
		logger.Info("no realtime URL configured, reconciling once at startup")
		if _, err := engine.Reconcile(ctx, cfg.OwnerID); err != nil {
			logger.Error("startup reconciliation failed", "error", err)
		}
	}

	// Metrics and health endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health.NewHandler(map[string]health.Checker{
		"postgres": health.NewDBChecker(db),
		"redis":    health.NewRedisChecker(redisClient),
	}))
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.MetricsPort),
		Handler:      middleware.RequestID(middleware.Logging(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "port", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agent...")
	controller.Terminate()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "error", err)
	}

	logger.Info("agent stopped")
}

// hostPermissions stands in for the mobile permission prompt. The daemon
// host always grants location access.
type hostPermissions struct{}

func (hostPermissions) RequestForegroundLocation(context.Context) (bool, error) {
	return true, nil
}

func (hostPermissions) RequestBackgroundLocation(context.Context) (bool, error) {
	return true, nil
}

// dailyTickRegistrar emulates the OS-scheduled daily wake with a plain
// ticker. Location-change wakes have no host equivalent here.
type dailyTickRegistrar struct {
	logger *slog.Logger
	stop   chan struct{}
}

func newDailyTickRegistrar(logger *slog.Logger) *dailyTickRegistrar {
	return &dailyTickRegistrar{logger: logger}
}

func (r *dailyTickRegistrar) Register(ctx context.Context, handler func(ctx context.Context, trigger lifecycle.Trigger)) error {
	r.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				handler(ctx, lifecycle.TriggerDailyTick)
			}
		}
	}()
	return nil
}

func (r *dailyTickRegistrar) Cancel() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// envLocation reads the device position from DEVICE_LAT / DEVICE_LNG.
// The daemon has no GPS; operators set the position explicitly.
type envLocation struct {
	logger *slog.Logger
}

func (l envLocation) Current(context.Context) (geo.Coordinate, error) {
	lat, latErr := strconv.ParseFloat(os.Getenv("DEVICE_LAT"), 64)
	lng, lngErr := strconv.ParseFloat(os.Getenv("DEVICE_LNG"), 64)
	if latErr != nil || lngErr != nil {
		return geo.Coordinate{}, fmt.Errorf("DEVICE_LAT and DEVICE_LNG must be set to valid coordinates")
	}
	return geo.Coordinate{Lat: lat, Lng: lng}, nil
}
