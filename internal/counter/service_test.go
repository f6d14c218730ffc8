package counter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/element-counter/internal/clock/fake"
	"github.com/JakeFAU/element-counter/internal/counter"
	"github.com/JakeFAU/element-counter/internal/markup"
	"github.com/JakeFAU/element-counter/internal/storage/memory"
)

var epoch = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

const page = `<html><body><div><div></div></div><p>a</p><p>b</p><div></div></body></html>`

type stubFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	delay time.Duration
	clock *fake.Clock
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.clock != nil {
		f.clock.Advance(f.delay)
	}
	return f.body, f.err
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []counter.Outcome
	fetches  []time.Duration
}

func (o *recordingObserver) ObserveOutcome(outcome counter.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveFetch(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches = append(o.fetches, d)
}

// failingStore fails SaveRequest and delegates everything else.
type failingStore struct {
	*memory.Store
}

func (failingStore) SaveRequest(context.Context, counter.RequestRecord) (int64, error) {
	return 0, errors.New("database is locked")
}

type harness struct {
	clock    *fake.Clock
	fetcher  *stubFetcher
	store    *memory.Store
	observer *recordingObserver
	svc      *counter.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := fake.New(epoch)
	h := &harness{
		clock:    clk,
		fetcher:  &stubFetcher{body: []byte(page), delay: 120 * time.Millisecond, clock: clk},
		store:    memory.NewStore(clk),
		observer: &recordingObserver{},
	}
	h.svc = counter.NewService(h.fetcher, markup.New(), h.store, clk,
		counter.WithLogger(zaptest.NewLogger(t)),
		counter.WithObserver(h.observer),
	)
	return h
}

func TestCountFetchesAndPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	res, err := h.svc.Count(context.Background(), "https://example.com/page", "DIV")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", res.URL)
	assert.Equal(t, 3, res.Count)
	assert.False(t, res.Cached)
	assert.Equal(t, int64(120), res.DurationMS)
	assert.Equal(t, "01/06/2025 10:00", res.Fetched(time.UTC))
	assert.Equal(t, counter.Stats{DomainURLs: 1, AvgDuration: 120, DomainTotal: 3, AllTotal: 3}, res.Stats)
	assert.Equal(t, 1, h.store.RequestCount())
	assert.Equal(t, []counter.Outcome{counter.OutcomeFetched}, h.observer.outcomes)
	assert.Equal(t, []time.Duration{120 * time.Millisecond}, h.observer.fetches)
}

func TestCountServesCacheWithinWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	first, err := h.svc.Count(ctx, "https://example.com/page", "p")
	require.NoError(t, err)

	h.clock.Advance(4 * time.Minute)
	second, err := h.svc.Count(ctx, "https://example.com/page", "p")
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.DurationMS, second.DurationMS)
	assert.Equal(t, first.Fetched(time.UTC)+" (cached)", second.Fetched(time.UTC))
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, 1, h.fetcher.Calls())
	assert.Equal(t, 1, h.store.RequestCount())
	assert.Equal(t, counter.OutcomeCached, h.observer.outcomes[1])
}

func TestCountRefetchesAfterWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Count(ctx, "https://example.com/page", "p")
	require.NoError(t, err)

	h.clock.Advance(6 * time.Minute)
	res, err := h.svc.Count(ctx, "https://example.com/page", "p")
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, h.fetcher.Calls())
	assert.Equal(t, 2, h.store.RequestCount())
	assert.Equal(t, int64(4), res.Stats.DomainTotal)
	assert.Equal(t, int64(1), res.Stats.DomainURLs)
}

func TestCountCacheIsPerElement(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Count(ctx, "https://example.com/page", "p")
	require.NoError(t, err)
	res, err := h.svc.Count(ctx, "https://example.com/page", "div")
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, h.fetcher.Calls())
	assert.Equal(t, int64(3), res.Stats.DomainTotal)
	assert.Equal(t, int64(3), res.Stats.AllTotal)
}

func TestCountRejectsInvalidInputWithoutIO(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.Count(context.Background(), "ftp://example.com", "div")
	require.Error(t, err)
	assert.True(t, counter.IsValidation(err))
	assert.Equal(t, "Only HTTP and HTTPS URLs are allowed", counter.UserMessage(err))
	assert.Zero(t, h.fetcher.Calls())
	assert.Zero(t, h.store.RequestCount())
	assert.Equal(t, []counter.Outcome{counter.OutcomeInvalid}, h.observer.outcomes)
}

func TestCountFetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.err = errors.New("x509: certificate signed by unknown authority")

	_, err := h.svc.Count(context.Background(), "https://example.com/page", "div")
	require.ErrorIs(t, err, counter.ErrFetchFailed)
	assert.Equal(t, counter.MessageFetchFailed, counter.UserMessage(err))
	assert.NotContains(t, counter.UserMessage(err), "x509")
	assert.Zero(t, h.store.RequestCount())
	assert.Empty(t, h.observer.fetches)
	assert.Equal(t, []counter.Outcome{counter.OutcomeFetchError}, h.observer.outcomes)
}

func TestCountStoreFailureIsGeneric(t *testing.T) {
	t.Parallel()

	clk := fake.New(epoch)
	observer := &recordingObserver{}
	store := failingStore{Store: memory.NewStore(clk)}
	svc := counter.NewService(&stubFetcher{body: []byte(page)}, markup.New(), store, clk,
		counter.WithObserver(observer),
	)

	_, err := svc.Count(context.Background(), "https://example.com/page", "div")
	require.ErrorIs(t, err, counter.ErrStore)
	assert.Equal(t, counter.MessageServerError, counter.UserMessage(err))
	assert.NotContains(t, counter.UserMessage(err), "locked")
	assert.Equal(t, []counter.Outcome{counter.OutcomeStoreError}, observer.outcomes)
}

func TestCountZeroMatchesIsStillRecorded(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.body = []byte("<html><body></body></html>")

	res, err := h.svc.Count(context.Background(), "https://example.com/empty", "table")
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, 1, h.store.RequestCount())
	assert.Equal(t, int64(1), res.Stats.DomainURLs)
}
