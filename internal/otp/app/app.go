package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/otpgate/internal/otp/service"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	"github.com/aussiebroadwan/otpgate/internal/otp/store/drivers/memory"
	"github.com/aussiebroadwan/otpgate/internal/otp/store/drivers/redis"
	"github.com/aussiebroadwan/otpgate/internal/otp/store/drivers/sqlite"
	"github.com/aussiebroadwan/otpgate/pkg/clock"
	"github.com/aussiebroadwan/otpgate/pkg/cryptox"
	"github.com/aussiebroadwan/otpgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the otp services to their store and collaborators.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	db store.Store

	issuer              *service.Issuer
	verifier            *service.Verifier
	housekeepingService *service.HousekeepingService
	housekeeping        bool
}

// New creates an Application. Codes are handed to deliverer.
func New(ctx context.Context, cfg Config, deliverer service.Deliverer) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg:   cfg,
		clock: clock.New(),
		logger: slogx.New(slogx.Config{
			Service: "otp",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	if err := app.initServices(deliverer); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run verifies the configured principal against term and reports how the
// session ended. Housekeeping runs in the background until Shutdown.
func (app *Application) Run(ctx context.Context, term service.Terminal) (service.Result, error) {
	if !app.housekeeping {
		app.housekeepingService.Start()
		app.housekeeping = true
	}

	app.logger.Info("otp verification starting",
		"principal", app.cfg.Principal,
		"store", app.cfg.StoreKind,
	)

	res, err := app.verifier.Run(ctx, app.cfg.Principal, term)
	if err != nil {
		return res, fmt.Errorf("verification failed: %w", err)
	}

	app.logger.Info("otp verification finished", "outcome", res.Outcome)
	return res, nil
}

// Store exposes the block and outcome store.
func (app *Application) Store() store.Store { return app.db }

// Shutdown stops background work and closes the store.
func (app *Application) Shutdown() error {
	if app.housekeeping {
		app.housekeepingService.Stop()
		app.housekeeping = false
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Debug("otp application stopped")
	return nil
}

func (app *Application) initStore(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.StoreKind {
	case StoreSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(dsn)
	case StoreRedis:
		db, err = redis.NewStore(ctx, app.cfg.RedisURL)
	default:
		db = memory.NewStore()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", app.cfg.StoreKind, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	app.logger.Debug("store ready", "kind", app.cfg.StoreKind)
	return nil
}

func (app *Application) initServices(deliverer service.Deliverer) error {
	alg, err := cryptox.ParseAlgorithm(app.cfg.HashAlgorithm)
	if err != nil {
		return err
	}
	hasher, err := cryptox.NewHasher(alg)
	if err != nil {
		return err
	}

	app.issuer = &service.Issuer{
		Length:    app.cfg.CodeLength,
		SaltSize:  app.cfg.SaltBytes,
		Hasher:    hasher,
		Deliverer: deliverer,
		Clock:     app.clock,
	}

	app.verifier = &service.Verifier{
		Issuer: app.issuer,
		Store:  app.db,
		Clock:  app.clock,
		Policy: app.cfg.Policy(),
		Logger: app.logger,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.clock,
		app.cfg.HousekeepingInterval,
		app.cfg.OutcomeRetention,
	)

	return nil
}
