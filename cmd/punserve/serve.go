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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pundora/punserve/pkg/cache"
	"github.com/pundora/punserve/pkg/config"
	"github.com/pundora/punserve/pkg/generation"
	"github.com/pundora/punserve/pkg/logging"
	"github.com/pundora/punserve/pkg/notify"
	"github.com/pundora/punserve/pkg/ratelimit"
	"github.com/pundora/punserve/pkg/scheduler"
)

func serveCmd() *cobra.Command {
	var prettyLog bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), prettyLog)
		},
	}
	cmd.Flags().BoolVar(&prettyLog, "pretty-log", false, "human-readable console logging")
	return cmd
}

func runServe(ctx context.Context, prettyLog bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty || prettyLog,
		Output: os.Stderr,
	})

	// Durable tier is optional: without Redis everything runs in process
	// memory and delivery state does not survive a restart.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		defer redisClient.Close()
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	} else {
		logger.Warn().Msg("Redis not configured, running memory-only")
	}

	cacheManager := cache.NewManager(
		cache.NewMemoryTier(cfg.Cache.Capacity, cfg.Cache.Shards),
		redisClient,
		cfg.Cache.SweepInterval,
		logging.NewLogger("cache"),
	)

	var gate ratelimit.Gate
	if cfg.RateLimit.Persist {
		gate = ratelimit.NewRedisGate(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window,
			cfg.RateLimit.FailClosed, logging.NewLogger("ratelimit"))
	} else {
		gate = ratelimit.NewLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window,
			logging.NewLogger("ratelimit"))
	}

	genService := generation.NewHTTPService(cfg.Generation.BaseURL, cfg.Generation.Timeout,
		logging.NewLogger("generation"))

	var store scheduler.Store
	if redisClient != nil {
		store = scheduler.NewRedisStore(redisClient, cfg.Scheduler.RetentionTTL,
			logging.NewLogger("scheduler"))
	} else {
		store = scheduler.NewMemoryStore()
	}
	sched := scheduler.New(store, logging.NewLogger("scheduler"))

	notifyLogger := logging.NewLogger("notify")
	registry := notify.NewRegistry(map[notify.Channel]notify.Adapter{
		notify.ChannelEmail:   notify.NewEmail(notifyLogger),
		notify.ChannelWebhook: notify.NewWebhook(notifyLogger),
		notify.ChannelSMS:     notify.NewSMS(notifyLogger),
	})

	resolver := newPayloadResolver(cacheManager, genService, cfg.Cache.DefaultTTL)
	dispatcher := scheduler.NewDispatcher(store, resolver, registry, scheduler.DispatcherConfig{
		PollInterval:   cfg.Scheduler.PollInterval,
		MaxConcurrent:  cfg.Scheduler.MaxConcurrent,
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		BaseBackoff:    cfg.Scheduler.BaseBackoff,
		MaxBackoff:     cfg.Scheduler.MaxBackoff,
		AttemptTimeout: cfg.Scheduler.AttemptTimeout,
		BatchLimit:     cfg.Scheduler.BatchLimit,
	}, logging.NewLogger("dispatcher"))

	srv := newServer(cfg, cacheManager, gate, genService, genService, sched, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cacheManager.Run(runCtx)
	go dispatcher.Run(runCtx)
	if limiter, ok := gate.(*ratelimit.Limiter); ok {
		go sweepLimiter(runCtx, limiter, cfg.RateLimit.Window)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("version", Version).Msg("Server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-runCtx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepLimiter drops expired in-memory rate limit windows so idle
// identities do not accumulate.
func sweepLimiter(ctx context.Context, limiter *ratelimit.Limiter, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep(now)
		}
	}
}
