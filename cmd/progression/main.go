// Package main is the entry point of the progression service.
//
// The service owns points balances, XP and levels, check-in streaks and
// badge awards, and serves a ranked leaderboard over them. It runs:
//   - the HTTP API (commands, queries, health, Prometheus metrics)
//   - an in-process event bus that drives badge evaluation
//   - a scheduler that periodically rebuilds the cached leaderboard
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accountable-hub/progression/config"
	"github.com/accountable-hub/progression/internal/application/command"
	"github.com/accountable-hub/progression/internal/application/eventhandler"
	"github.com/accountable-hub/progression/internal/application/query"
	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/streak"
	"github.com/accountable-hub/progression/internal/domain/xp"
	"github.com/accountable-hub/progression/internal/infrastructure/messaging"
	"github.com/accountable-hub/progression/internal/infrastructure/metrics"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/memory"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/postgres"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/redis"
	"github.com/accountable-hub/progression/internal/infrastructure/scheduler"
	"github.com/accountable-hub/progression/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/accountable-hub/progression/internal/interface/http"
	"github.com/accountable-hub/progression/internal/interface/http/handlers"
	"github.com/accountable-hub/progression/pkg/circuitbreaker"
	"github.com/accountable-hub/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// repositories is the storage backend chosen at start-up.
type repositories struct {
	points      points.Repository
	levels      level.Repository
	xp          xp.Repository
	streaks     streak.Repository
	badges      badge.Repository
	leaderboard leaderboard.Source
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    cfg.Observability.LogFormat,
		AddSource: cfg.App.Debug,
	}).With(slog.String("service", cfg.App.Name))
	slog.SetDefault(log)

	log.Info("starting progression service",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
	)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE (PostgreSQL, or the in-memory store for development)
	// ─────────────────────────────────────────────────────────────────────────
	var repos repositories

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		db, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			db.Close()
		}()
		health.AddCheck("postgres", handlers.NewPingCheck(db))

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(db).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date", slog.Int("applied", applied))
		}

		levelRepo := postgres.NewLevelRepository(db)
		repos = repositories{
			points:      postgres.NewPointsRepository(db),
			levels:      levelRepo,
			xp:          levelRepo,
			streaks:     postgres.NewStreakRepository(db),
			badges:      postgres.NewBadgeRepository(db),
			leaderboard: postgres.NewLeaderboardSource(db),
		}
	} else {
		log.Warn("DATABASE_URL not set, using the in-memory store")
		store := memory.NewStore()
		repos = repositories{
			points:      store.Points(),
			levels:      store.Levels(),
			xp:          store.XP(),
			streaks:     store.Streaks(),
			badges:      store.Badges(),
			leaderboard: store.Leaderboard(),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. LEADERBOARD CACHE (Redis, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var lbCache leaderboard.Cache

	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureLeaderboardCache, "") {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, leaderboard caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			guarded := redis.NewGuardedLeaderboardCache(
				redis.NewLeaderboardCache(cache, cfg.Leaderboard.CacheTTL),
				func(name string, from, to circuitbreaker.State) {
					log.Warn("circuit breaker state changed",
						slog.String("breaker", name),
						slog.String("from", from.String()),
						slog.String("to", to.String()),
					)
				},
			)
			health.AddCheck("leaderboard_cache", handlers.NewBreakerCheck(guarded.Breaker().IsClosed))
			lbCache = guarded
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
		busCfg.Observer = m
	}

	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()
	if m != nil {
		if err := bus.SubscribeAll(m.RecordEvent); err != nil {
			return fmt.Errorf("failed to subscribe metrics: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. BADGE CATALOGUE
	// ─────────────────────────────────────────────────────────────────────────
	catalog, rejected, err := config.LoadBadgeCatalog(cfg.Badges.File)
	if err != nil {
		return fmt.Errorf("failed to load badge catalogue: %w", err)
	}
	for _, rej := range rejected {
		log.Error("badge definition rejected", logger.Err(rej))
	}
	log.Info("badge catalogue loaded", slog.Int("badges", catalog.Len()), slog.Int("rejected", len(rejected)))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	ledgerCfg := command.DefaultLedgerConfig()
	ledgerCfg.MaxAttempts = cfg.Ledger.MaxAttempts
	ledgerCfg.Logger = log

	pointsLedger := command.NewPointsLedger(repos.points, bus, ledgerCfg)
	levelEngine := command.NewLevelEngine(repos.levels, bus, ledgerCfg)
	streakTracker := command.NewStreakTracker(repos.streaks, bus, ledgerCfg)
	badgeEngine := command.NewBadgeEngine(catalog, repos.badges, bus, ledgerCfg)
	xpHistory := query.NewXPHistory(repos.xp)

	aggregator := query.NewLeaderboardAggregator(repos.leaderboard, lbCache, query.LeaderboardAggregatorConfig{
		Logger:         log,
		MissRebuildAge: cfg.Leaderboard.MissRebuildAge,
	})

	handlerCfg := eventhandler.DefaultHandlerConfig()
	handlerCfg.Enabled = cfg.Features.For(config.FeatureBadgeAutoEvaluation)
	if err := eventhandler.Register(bus, badgeEngine, log, handlerCfg); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	rebuildJob := jobs.NewRebuildLeaderboardJob(aggregator, log)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Logger:     log,
			JobTimeout: cfg.Scheduler.JobTimeout,
		})
		if m != nil {
			sched.OnJobComplete(func(res scheduler.JobResult) {
				m.ObserveJob(res.JobName, res.Duration, res.Error)
			})
		}
		var schedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)
		if expr := cfg.Scheduler.RebuildLeaderboardCron; expr != "" {
			cron, err := scheduler.ParseCronExpression(expr)
			if err != nil {
				return fmt.Errorf("invalid SCHEDULER_LEADERBOARD_CRON: %w", err)
			}
			schedule = cron
		}
		if err := sched.Register(rebuildJob, schedule); err != nil {
			return fmt.Errorf("failed to register leaderboard job: %w", err)
		}

		// Warm the cache so the first pages do not wait for the first tick.
		if cfg.Features.IsEnabled(config.FeatureLeaderboardWarmup, "") {
			if _, err := sched.RunNow(ctx, rebuildJob.Name()); err != nil {
				log.Warn("initial leaderboard rebuild failed", logger.Err(err))
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()

		health.AddCheck("leaderboard", handlers.NewLeaderboardCheck(func() time.Time {
			if st := rebuildJob.LastStats(); st != nil {
				return st.CompletedAt
			}
			return time.Time{}
		}, 3*cfg.Scheduler.RebuildLeaderboardInterval))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerSecond = cfg.HTTP.RateLimitPerSecond
	httpCfg.RateLimitBurst = cfg.HTTP.RateLimitBurst
	httpCfg.LeaderboardPageSize = cfg.Leaderboard.DefaultPageSize
	httpCfg.Version = cfg.App.Version

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Points:        pointsLedger,
		Levels:        levelEngine,
		Streaks:       streakTracker,
		Badges:        badgeEngine,
		XPHistory:     xpHistory,
		Leaderboard:   aggregator,
		HealthChecker: health,
		Metrics:       m,
		Logger:        log,
	})
	serverErr := server.StartAsync()

	log.Info("progression service is running", slog.String("address", httpCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown...", slog.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	// Let in-flight badge evaluations finish before the stores close.
	bus.Wait()

	log.Info("shutdown completed successfully")
	return nil
}
