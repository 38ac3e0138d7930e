// Package main is the entry point of the circus progression API.
//
// The server records practice attempts, validates steps on first success
// and serves the derived views: profile statistics, memory decay, grit and
// the XP leaderboards. Storage is PostgreSQL in production and SQLite for
// single-node deployments; Redis optionally caches leaderboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Keldarne/cirque-app-sub003/config"
	"github.com/Keldarne/cirque-app-sub003/internal/application/command"
	"github.com/Keldarne/cirque-app-sub003/internal/application/query"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/decay"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/progress"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/postgres"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/redis"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite"
	apihttp "github.com/Keldarne/cirque-app-sub003/internal/interface/http"
	"github.com/Keldarne/cirque-app-sub003/internal/interface/http/handlers"
	"github.com/Keldarne/cirque-app-sub003/pkg/circuitbreaker"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
	"github.com/Keldarne/cirque-app-sub003/pkg/metrics"
)

// store is what both storage backends provide.
type store interface {
	progress.UnitOfWork
	catalog.Catalog
	user.Directory
	leaderboard.Repository

	Attempts() attempt.Ledger
	Validations() validation.Repository
	Ping(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
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
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddSource: cfg.IsDevelopment(),
		Service:   cfg.App.Name,
	})
	log.Info("starting progression server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("driver", cfg.Database.Driver),
	)

	policy, err := decayPolicy(cfg.Progression)
	if err != nil {
		return fmt.Errorf("invalid decay configuration: %w", err)
	}

	var m *metrics.Manager
	if cfg.Observability.MetricsEnabled {
		m = metrics.NewManager(metricsOptions(cfg.Observability)...)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(st))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. LEADERBOARD CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var boardCache leaderboard.Cache
	if cfg.Redis.Enabled {
		cache, err := redis.NewCache(ctx, redis.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   redis.DefaultConfig().MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, leaderboard caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}, circuitbreaker.WithIsFailure(redis.IsBackendFailure))
			boardCache = redis.NewLeaderboardCache(cache, cfg.Redis.LeaderboardTTL, breaker)
			health.AddOptionalCheck("cache", handlers.NewPingCheck(cache))
			log.Info("leaderboard cache enabled", logger.String("addr", cfg.Redis.Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	deps := apihttp.Dependencies{
		RecordAttempt: command.NewRecordAttemptHandler(command.RecordAttemptDeps{
			UnitOfWork: st,
			Catalog:    st,
			Users:      st,
			Cache:      boardCache,
			Metrics:    m,
			Logger:     log,
		}),
		GetLeaderboard: query.NewGetLeaderboardHandler(query.GetLeaderboardDeps{
			Repository: st,
			Users:      st,
			Cache:      boardCache,
			Config: query.LeaderboardConfig{
				WeeklyWindow: cfg.Progression.WeeklyWindow,
				DefaultLimit: cfg.Progression.LeaderboardDefaultLimit,
				MaxLimit:     cfg.Progression.LeaderboardMaxLimit,
			},
			Metrics: m,
			Logger:  log,
		}),
		GetProfileStatistics: query.NewGetProfileStatisticsHandler(st, st, st.Validations(), m),
		GetDecayProfile: query.NewGetDecayProfileHandler(query.GetDecayProfileDeps{
			Users:       st,
			Catalog:     st,
			Validations: st.Validations(),
			Attempts:    st.Attempts(),
			Policy:      policy,
			Metrics:     m,
		}),
		GetGritScore:    query.NewGetGritScoreHandler(st, st, st.Attempts()),
		GetStepProgress: query.NewGetStepProgressHandler(st, st, st.Attempts(), st.Validations()),
		Logger:          log,
		Metrics:         m,
		HealthChecker:   health,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SERVE UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	server := apihttp.NewServer(apihttp.ConfigFrom(cfg), deps)
	errCh := server.StartAsync()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown completed")
	return nil
}

// openStore opens the configured backend, migrating it when asked to.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pc := postgres.DefaultConfig(cfg.Database.URL)
		pc.MaxConns = cfg.Database.MaxConns
		pc.MinConns = cfg.Database.MinConns
		pc.MaxConnLifetime = cfg.Database.ConnMaxLifetime

		conn, err := postgres.NewConnection(ctx, pc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st := postgres.NewStore(conn, log)
		if cfg.Database.MigrateOnStart {
			if err := st.Migrate(ctx); err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		log.Info("postgres store ready")
		return st, conn.Close, nil

	case config.DriverSQLite:
		// SQLite migrates on open.
		st, err := sqlite.Open(cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("sqlite store ready", logger.String("path", cfg.Database.SQLitePath))
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn("close sqlite store", logger.Err(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// decayPolicy converts the configured day counts into a decay policy.
func decayPolicy(p config.ProgressionConfig) (decay.Policy, error) {
	def, err := decay.ThresholdsFromDays(p.Decay.FragileDays, p.Decay.StaleDays, p.Decay.ForgottenDays)
	if err != nil {
		return decay.Policy{}, err
	}
	policy := decay.Policy{Default: def}
	if len(p.DisciplineDecay) == 0 {
		return policy, nil
	}

	policy.PerDiscipline = make(map[int64]decay.Thresholds, len(p.DisciplineDecay))
	for key, d := range p.DisciplineDecay {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return decay.Policy{}, fmt.Errorf("discipline_decay key %q: %w", key, err)
		}
		t, err := decay.ThresholdsFromDays(d.FragileDays, d.StaleDays, d.ForgottenDays)
		if err != nil {
			return decay.Policy{}, fmt.Errorf("discipline_decay %d: %w", id, err)
		}
		policy.PerDiscipline[id] = t
	}
	if err := policy.Validate(); err != nil {
		return decay.Policy{}, err
	}
	return policy, nil
}

// metricsOptions maps the observability settings onto the metrics manager.
func metricsOptions(o config.ObservabilityConfig) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(o.MetricsNamespace),
		metrics.WithSubsystem(o.MetricsSubsystem),
		metrics.WithHistogramBuckets(o.LatencyBuckets),
	}
}
