package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/element-counter/internal/api"
	"github.com/JakeFAU/element-counter/internal/clock/system"
	"github.com/JakeFAU/element-counter/internal/config"
	"github.com/JakeFAU/element-counter/internal/counter"
	"github.com/JakeFAU/element-counter/internal/storage/memory"
)

type stubCounter struct {
	result counter.Result
	err    error
}

func (s stubCounter) Count(context.Context, string, string) (counter.Result, error) {
	return s.result, s.err
}

type migratingStore struct {
	*memory.Store
	migrated bool
	err      error
}

func (m *migratingStore) Migrate(context.Context) error {
	m.migrated = true
	return m.err
}

type fakeApp struct {
	cfg     config.Config
	store   counter.Store
	counter api.Counter
	closed  bool
}

func (f *fakeApp) Close()                  { f.closed = true }
func (f *fakeApp) Config() config.Config   { return f.cfg }
func (f *fakeApp) GetLogger() *zap.Logger  { return zap.NewNop() }
func (f *fakeApp) GetStore() counter.Store { return f.store }
func (f *fakeApp) GetCounter() api.Counter { return f.counter }
func (f *fakeApp) Handler() http.Handler   { return http.NotFoundHandler() }

// useFakeApp swaps the app factory for the duration of the test.
func useFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })
	t.Setenv("COUNTER_STORE_DRIVER", config.DriverMemory)
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCountCommandPrintsResponse(t *testing.T) {
	fake := &fakeApp{
		cfg: config.Config{Display: config.DisplayConfig{Timezone: "UTC"}},
		counter: stubCounter{result: counter.Result{
			URL:        "https://example.com",
			FetchedAt:  time.Date(2025, 5, 4, 12, 30, 0, 0, time.UTC),
			DurationMS: 42,
			Count:      7,
			Stats:      counter.Stats{DomainURLs: 1, AvgDuration: 42, DomainTotal: 7, AllTotal: 7},
		}},
	}
	useFakeApp(t, fake)

	out, err := runRoot(t, "count", "--url", "https://example.com", "--element", "a")
	require.NoError(t, err)

	var got api.CountResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Success)
	assert.Equal(t, 7, got.Count)
	assert.Equal(t, "04/05/2025 12:30", got.Fetched)
	assert.True(t, fake.closed)
}

func TestCountCommandReportsFailure(t *testing.T) {
	useFakeApp(t, &fakeApp{counter: stubCounter{err: &counter.ValidationError{Reason: counter.ReasonMissingField}}})

	out, err := runRoot(t, "count", "--element", "a")
	require.EqualError(t, err, "Both URL and element are required")

	var got api.FailureResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Success)
}

func TestMigrateCommand(t *testing.T) {
	store := &migratingStore{Store: memory.NewStore(system.New())}
	useFakeApp(t, &fakeApp{store: store, cfg: config.Config{Store: config.StoreConfig{Driver: "sqlite"}}})

	_, err := runRoot(t, "migrate")
	require.NoError(t, err)
	assert.True(t, store.migrated)

	store.err = errors.New("read-only file system")
	_, err = runRoot(t, "migrate")
	require.ErrorContains(t, err, "migrate sqlite store")
}

func TestMigrateCommandWithoutSchema(t *testing.T) {
	useFakeApp(t, &fakeApp{store: memory.NewStore(system.New())})

	_, err := runRoot(t, "migrate")
	require.NoError(t, err)
}

func TestRootRejectsBadConfig(t *testing.T) {
	t.Setenv("COUNTER_STORE_DRIVER", "mysql")

	_, err := runRoot(t, "migrate")
	require.ErrorContains(t, err, "failed to load configuration")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{
		Addr:              addr,
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
