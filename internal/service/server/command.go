package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/permitdesk/folio/internal/allocator"
	"github.com/permitdesk/folio/internal/api/httpapi"
	"github.com/permitdesk/folio/internal/config"
	"github.com/permitdesk/folio/internal/lifecycle"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/notify"
	"github.com/permitdesk/folio/internal/registry"
	"github.com/permitdesk/folio/internal/storage"
	"github.com/permitdesk/folio/internal/storage/postgres"
	"github.com/permitdesk/folio/internal/storage/rediscache"
)

// Options controls the folio-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
}

// shutdownGrace bounds how long in-flight HTTP requests may drain.
const shutdownGrace = 10 * time.Second

// errDatabaseURLRequired is returned when the settings lack a Postgres
// connection string. Only the server needs one.
var errDatabaseURLRequired = errors.New("database URL must be provided")

// Run starts the folio HTTP server and blocks until the context is
// canceled. Countdown timers live in memory only: a restart loses
// in-flight countdowns, so the allocator re-derives the next available
// identifier from the record store on startup.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "folio-server")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return errDatabaseURLRequired
	}

	listenAddress := cfg.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	// Connect the record store.
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	pgStore := postgres.NewStore(pool)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		return err
	}

	// Optionally decorate reads with the Redis cache. Cache outages are
	// tolerated: the service runs uncached rather than not at all.
	var store storage.Store = pgStore

	if cfg.RedisAddress != "" {
		redisClient, err := rediscache.Connect(ctx, cfg.RedisAddress)
		if err != nil {
			logger.WarnKV(ctx, "Redis unavailable, running without record cache", "error", err)
		} else {
			defer func() {
				_ = redisClient.Close()
			}()

			store = rediscache.NewStore(pgStore, redisClient, cfg.RedisCacheTTL)
		}
	}

	// Pick the notification channel.
	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.TelegramToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramAPIBase, cfg.Timeout)
	}

	// Seed the allocator from the store's highest issued folio.
	alloc, err := allocator.New(ctx, store, allocator.Options{
		Prefix:        cfg.FolioPrefix,
		Seed:          cfg.CounterSeed,
		MaxAttempts:   cfg.MaxAllocAttempts,
		RetryInterval: cfg.AllocRetryInterval,
	})
	if err != nil {
		return err
	}

	controller := lifecycle.NewController(ctx, store, alloc, registry.New(), notifier, lifecycle.Options{
		Countdown:       cfg.CountdownDuration,
		ReminderOffsets: cfg.ReminderOffsets,
	})

	api := httpapi.NewServer(controller, cfg.AdminToken)

	httpServer := &http.Server{
		Addr:              listenAddress,
		Handler:           api.Router(),
		ReadHeaderTimeout: cfg.Timeout,
	}

	logger.InfoKV(ctx, "Folio server listening",
		"listen_address", listenAddress,
		"countdown", cfg.CountdownDuration.String(),
		"reminder_checkpoints", len(cfg.ReminderOffsets))

	// Done channel is closed after Shutdown finishes to ensure we block
	// until in-flight requests drain before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorKV(ctx, "HTTP shutdown failed", "error", err)
		}

		close(done)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done

	// The context cancellation has already signalled every countdown
	// task; wait for them to observe it.
	controller.Shutdown()
	logger.Info(ctx, "Folio server stopped")

	return nil
}
