package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kroleg/homelab/internal/config"
	"github.com/kroleg/homelab/internal/coordinator"
	"github.com/kroleg/homelab/internal/dnslog"
	"github.com/kroleg/homelab/internal/httpserver"
	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/keenetic"
	"github.com/kroleg/homelab/internal/logger"
	"github.com/kroleg/homelab/internal/metrics"
	"github.com/kroleg/homelab/internal/optimizer"
	"github.com/kroleg/homelab/internal/redis"
	"github.com/kroleg/homelab/internal/scheduler"
	redisstore "github.com/kroleg/homelab/internal/store/redis"
	"github.com/kroleg/homelab/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	coord       *coordinator.Coordinator
	watcher     *dnslog.Watcher
	reconciler  *scheduler.Reconciler
	seeder      *scheduler.PolicySeeder
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	metrics.Register()

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	// Initialize policy store
	store := redisstore.NewStore(redisClient)

	// Initialize router client. Construction is offline; the first
	// request authenticates lazily.
	router, err := keenetic.New(keenetic.Options{
		BaseURL:  cfg.RouterURL,
		Login:    cfg.RouterLogin,
		Password: cfg.RouterPassword,
		Timeout:  cfg.RouterTimeout,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to create router client: %v", err)
		os.Exit(1)
	}

	coord := coordinator.New(store, router, coordinator.Options{
		FallbackInterface: cfg.FallbackInterface,
		Optimizer: optimizer.Config{
			AggregatePrefixLen: cfg.AggregatePrefix,
			AggregateMinHosts:  cfg.AggregateMinHosts,
		},
	}, loggerClient)

	// Initialize policy seeder (if seed file is configured)
	var seeder *scheduler.PolicySeeder
	if cfg.PolicyFile != "" {
		loggerClient.Info("policy seed file configured",
			logger.String("file", cfg.PolicyFile))
		seeder = scheduler.NewPolicySeeder(cfg.PolicyFile, store, loggerClient)
	}

	watcher := dnslog.NewWatcher(
		cfg.DNSLogFile,
		cfg.DNSLogPollInterval,
		cfg.DNSEventBuffer,
		loggerClient,
	)

	// Create manual reconcile trigger channel
	reconcileTrigger := make(chan struct{}, 1)

	reconciler := scheduler.NewReconciler(
		coord,
		loggerClient,
		cfg.ReconcileInterval,
		reconcileTrigger,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		Store:            store,
		Coordinator:      coord,
		Router:           router,
		InterfaceFilter:  cfg.InterfaceFilter,
		ReconcileTrigger: reconcileTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		coord:       coord,
		watcher:     watcher,
		reconciler:  reconciler,
		seeder:      seeder,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting dnsvpn v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("dnsvpn %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed policies from file before the first reconciliation so the
	// initial cycle sees the full policy set
	if a.seeder != nil {
		if err := a.seeder.Seed(ctx); err != nil {
			a.logger.Warn("failed to seed policies from file",
				logger.Error(err))
		}
	}

	if err := a.coord.RefreshPolicies(ctx); err != nil {
		a.logger.Warn("failed to load policies on startup, will retry next cycle",
			logger.Error(err))
	}

	// Start DNS log watcher. A missing log file is fatal: without it the
	// engine would silently never learn a destination.
	if err := a.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dns log watcher: %w", err)
	}
	a.logger.Info("dns log watcher started",
		logger.String("file", a.cfg.DNSLogFile))

	// Feed DNS events into the coordinator
	go a.coord.Run(ctx, a.watcher.Events())

	// Start reconciler (runs an initial forced cycle, then ticks)
	if err := a.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	a.logger.Info("reconciler started",
		logger.Duration("interval", a.cfg.ReconcileInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	// Stop the watcher first so no new events arrive mid-shutdown
	a.watcher.Stop()

	// Stop reconciler, letting an in-flight cycle finish
	a.reconciler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ dnsvpn stopped cleanly")
	return nil
}
