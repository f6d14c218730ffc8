package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/element-counter/internal/app"
	"github.com/JakeFAU/element-counter/internal/clock/system"
	"github.com/JakeFAU/element-counter/internal/config"
	"github.com/JakeFAU/element-counter/internal/storage/memory"
	"github.com/JakeFAU/element-counter/internal/storage/sqlite"
)

func baseConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		Store:   config.StoreConfig{Driver: config.DriverMemory},
		Logging: config.LoggingConfig{Development: true},
		Display: config.DisplayConfig{Timezone: "UTC"},
	}
}

func TestNewAppWithMemoryStore(t *testing.T) {
	t.Parallel()

	a, err := app.NewAppWithLogger(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.Store{}, a.GetStore())
	assert.NotNil(t, a.GetCounter())
	assert.NotNil(t, a.GetLogger())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAppWithSQLiteStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "counter.db")}
	a, err := app.NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &sqlite.Store{}, a.GetStore())
	require.NoError(t, a.GetStore().Ping(context.Background()))
	assert.Equal(t, config.DriverSQLite, a.Config().Store.Driver)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := app.OpenStore(context.Background(), config.StoreConfig{Driver: "mysql"}, system.New(), zap.NewNop())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestOpenStoreReportsPostgresFailure(t *testing.T) {
	t.Parallel()

	_, err := app.OpenStore(context.Background(),
		config.StoreConfig{Driver: config.DriverPostgres, DSN: "not a dsn ::", MaxConns: 2},
		system.New(), zap.NewNop())
	require.ErrorContains(t, err, "postgres")
}

func TestNewAppRejectsBadLogLevel(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Logging.Level = "chatty"
	_, err := app.NewApp(context.Background(), cfg)
	require.ErrorContains(t, err, "logger")
}
