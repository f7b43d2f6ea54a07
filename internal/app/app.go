// Package app assembles the circulation engine from configuration. The HTTP
// server and the circctl tool both start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngenohkevin/circulation/internal/config"
	"github.com/ngenohkevin/circulation/internal/database"
	"github.com/ngenohkevin/circulation/internal/database/queries"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/services"
	"github.com/ngenohkevin/circulation/internal/store"
)

// App holds the wired engine and the connections it owns
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB     *database.Database
	Redis  *database.RedisClient
	Store  store.Store
	Locker lock.Locker
	Policy *services.LoanPolicy

	Catalog      *services.CatalogService
	Patrons      *services.PatronService
	Circulation  *services.CirculationService
	Fines        *services.FineService
	Reservations *services.ReservationService
	Auditor      *services.Auditor
}

// Options tune how New connects
type Options struct {
	// Migrate applies pending schema migrations when the postgres store is selected
	Migrate bool
}

// New connects the configured backends and builds every service.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openLocker(); err != nil {
		a.Close()
		return nil, err
	}

	policy, err := services.NewLoanPolicy(cfg.Circulation)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid circulation policy: %w", err)
	}
	a.Policy = policy

	eligibility := services.NewEligibilityChecker(cfg.Circulation.MaxActiveCheckouts)
	svcOpts := []services.Option{services.WithLogger(logger)}

	a.Catalog = services.NewCatalogService(a.Store, a.Locker, svcOpts...)
	a.Patrons = services.NewPatronService(a.Store, a.Locker, eligibility, svcOpts...)
	a.Circulation = services.NewCirculationService(a.Store, a.Locker, policy, eligibility, svcOpts...)
	a.Fines = services.NewFineService(a.Store, a.Locker, svcOpts...)
	a.Reservations = services.NewReservationService(a.Store, a.Locker, policy, svcOpts...)
	a.Auditor = services.NewAuditor(a.Store, svcOpts...)

	return a, nil
}

func (a *App) openStore(ctx context.Context, opts Options) error {
	switch a.Config.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.New(a.Config, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db

		if opts.Migrate {
			applied, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			a.Logger.Info("Database schema ready", "applied", applied, "version", database.LatestSchemaVersion())
		}

		a.Store = database.NewStore(db, queries.WithLogger(a.Logger))
	default:
		a.Logger.Warn("Using in-memory store, data is lost on restart")
		a.Store = store.NewMemoryStore()
	}
	return nil
}

func (a *App) openLocker() error {
	if a.Config.Redis.Enabled {
		client, err := database.NewRedis(a.Config, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
	}

	if a.Config.Locks.Backend != config.LockBackendRedis {
		a.Locker = lock.NewLocalLocker(
			lock.WithLocalMaxWait(time.Duration(a.Config.Locks.MaxWaitSeconds) * time.Second),
		)
		return nil
	}

	if a.Redis == nil {
		return fmt.Errorf("lock backend %q needs a redis connection", a.Config.Locks.Backend)
	}
	a.Locker = lock.NewRedisLocker(a.Redis.Client,
		lock.WithTTL(time.Duration(a.Config.Locks.TTLSeconds)*time.Second),
		lock.WithMaxWait(time.Duration(a.Config.Locks.MaxWaitSeconds)*time.Second),
		lock.WithLogger(a.Logger),
	)
	return nil
}

// Close releases the connections New opened
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
