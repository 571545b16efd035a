// Package app assembles the services shared by the HTTP and MCP binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/cache"
	"github.com/facility-ops/riskwatch/internal/config"
	"github.com/facility-ops/riskwatch/internal/database"
	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/repository"
	"github.com/facility-ops/riskwatch/internal/rules"
	"github.com/facility-ops/riskwatch/internal/service"
	"github.com/facility-ops/riskwatch/internal/store"
	"github.com/facility-ops/riskwatch/internal/worker"
)

// App holds the wired services and the resources they own.
type App struct {
	Logger      *logrus.Logger
	Clock       clockwork.Clock
	Registry    *rules.Registry
	Store       domain.Store
	Cache       domain.AssessmentCache
	Assessments *service.AssessmentService
	Benchmarks  *service.BenchmarkService
	Issues      *service.IssueService
	Sweeper     *worker.Sweeper
}

// Options are the pieces New wires together.
type Options struct {
	Logger        *logrus.Logger
	Clock         clockwork.Clock
	Registry      *rules.Registry
	Store         domain.Store
	Cache         domain.AssessmentCache
	Policies      map[domain.Severity]domain.EscalationPolicy
	SweepInterval time.Duration
}

// New builds the services on top of an opened store and cache. A nil clock
// selects the real clock.
func New(opts Options) *App {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	issues := service.NewIssueService(opts.Logger, opts.Store, opts.Registry, opts.Policies, clock)

	return &App{
		Logger:      opts.Logger,
		Clock:       clock,
		Registry:    opts.Registry,
		Store:       opts.Store,
		Cache:       opts.Cache,
		Assessments: service.NewAssessmentService(opts.Logger, opts.Registry, opts.Store, opts.Cache, clock),
		Benchmarks:  service.NewBenchmarkService(opts.Logger, opts.Registry),
		Issues:      issues,
		Sweeper:     worker.NewSweeper(issues, opts.SweepInterval, clock, opts.Logger),
	}
}

// NewFromConfig opens PostgreSQL (running pending migrations), the cache
// selected by the cache settings and the rule catalog.
func NewFromConfig(ctx context.Context, cm *config.Manager, logger *logrus.Logger) (*App, error) {
	cfg := cm.GetConfig()

	policies, err := cfg.Escalation.EscalationPolicies()
	if err != nil {
		return nil, err
	}
	registry, err := rules.Load(cfg.Rules.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	migrations, err := database.NewMigrationRunner(cm.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		return nil, err
	}
	err = migrations.Up(ctx)
	if cerr := migrations.Close(); cerr != nil {
		logger.WithError(cerr).Warn("Failed to close migration runner")
	}
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, err
	}
	st := repository.NewPostgresStore(db, logger)

	c, err := OpenCache(cfg.Cache, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return New(Options{
		Logger:        logger,
		Registry:      registry,
		Store:         st,
		Cache:         c,
		Policies:      policies,
		SweepInterval: cfg.Escalation.SweepInterval,
	}), nil
}

// NewLite opens the SQLite store under cfg.DataDir with an in-process cache.
func NewLite(cfg *config.LiteConfig, logger *logrus.Logger) (*App, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	registry, err := rules.Load(cfg.RulesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	return New(Options{
		Logger:        logger,
		Registry:      registry,
		Store:         st,
		Cache:         cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL),
		SweepInterval: cfg.SweepInterval,
	}), nil
}

// OpenCache returns a Redis cache when RedisURL is set, otherwise an
// in-process LRU.
func OpenCache(cfg domain.CacheConfig, logger *logrus.Logger) (domain.AssessmentCache, error) {
	if cfg.RedisURL == "" {
		logger.Info("Using in-memory assessment cache")
		return cache.NewMemoryCache(cfg.MaxEntries, cfg.DefaultTTL), nil
	}
	rc, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Close releases the cache and the store.
func (a *App) Close() error {
	var errs *multierror.Error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	return errs.ErrorOrNil()
}
