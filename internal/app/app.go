// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/element-counter/internal/api"
	"github.com/JakeFAU/element-counter/internal/clock/system"
	"github.com/JakeFAU/element-counter/internal/config"
	"github.com/JakeFAU/element-counter/internal/counter"
	collyfetcher "github.com/JakeFAU/element-counter/internal/fetcher/colly"
	"github.com/JakeFAU/element-counter/internal/logging"
	"github.com/JakeFAU/element-counter/internal/markup"
	"github.com/JakeFAU/element-counter/internal/metrics"
	"github.com/JakeFAU/element-counter/internal/storage/memory"
	"github.com/JakeFAU/element-counter/internal/storage/postgres"
	"github.com/JakeFAU/element-counter/internal/storage/sqlite"
)

// App holds the shared, long-lived services for the application.
// It is initialized once at startup and closed when the command finishes.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   counter.Store
	service *counter.Service
	server  *api.Server
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the configured persistence backend.
func (a *App) GetStore() counter.Store {
	return a.store
}

// GetCounter returns the counting pipeline.
func (a *App) GetCounter() api.Counter {
	return a.service
}

// Handler returns the HTTP handler wired to the service.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// NewApp builds every service from cfg. It fails fast if the logger or store
// cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewAppWithLogger(ctx, cfg, logger)
}

// NewAppWithLogger is NewApp with a caller-supplied logger.
func NewAppWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	clock := system.New()
	store, err := OpenStore(ctx, cfg.Store, clock, logger)
	if err != nil {
		return nil, err
	}

	service := counter.NewService(collyfetcher.New(), markup.New(), store, clock,
		counter.WithLogger(logger.Named("counter")),
		counter.WithObserver(metrics.NewRecorder()),
	)
	server := api.NewServer(service, store, cfg.Location(), cfg.RequestTimeout(), logger.Named("http"))

	logger.Info("application services initialized", zap.String("store", cfg.Store.Driver))
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		service: service,
		server:  server,
	}, nil
}

// OpenStore connects to the backend selected by cfg.Driver and makes sure its
// schema exists.
func OpenStore(ctx context.Context, cfg config.StoreConfig, clock counter.Clock, logger *zap.Logger) (counter.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("Opening SQLite store", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath}, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		logger.Info("Connecting to PostgreSQL...")
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: int32(cfg.MaxConns)}, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Info("Using in-memory store. Request history is lost on exit.")
		return memory.NewStore(clock), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	a.store.Close()
	// Best effort; stderr sync fails on some platforms.
	_ = a.logger.Sync()
}
