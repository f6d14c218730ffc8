package counter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service sequences validation, cache lookup, fetch, count, persistence and
// aggregation for a single request. It keeps no state between requests.
type Service struct {
	fetcher  Fetcher
	elements ElementCounter
	repo     Repository
	cache    *Cache
	stats    *Aggregator
	clock    Clock
	observer Observer
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// NewService wires a Service. The cache and aggregator read from store.
func NewService(fetcher Fetcher, elements ElementCounter, store Store, clock Clock, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		elements: elements,
		repo:     store,
		cache:    NewCache(store, clock),
		stats:    NewAggregator(store, clock),
		clock:    clock,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Count runs the pipeline for (rawURL, element). Errors are a *ValidationError,
// wrap ErrFetchFailed or wrap ErrStore; UserMessage turns them into caller text.
func (s *Service) Count(ctx context.Context, rawURL, element string) (Result, error) {
	target, err := Validate(rawURL, element)
	if err != nil {
		s.logger.Debug("request rejected",
			zap.String("state", string(StateValidating)),
			zap.Error(err),
		)
		s.observer.ObserveOutcome(OutcomeInvalid)
		return Result{}, err
	}
	logger := s.logger.With(
		zap.String("url", target.URL),
		zap.String("element", target.Element),
	)

	cached, hit, err := s.cache.Lookup(ctx, target.URL, target.Element)
	if err != nil {
		return Result{}, s.storeFailure(logger, StateCacheCheck, err)
	}
	if hit {
		stats, err := s.stats.Stats(ctx, cached.Domain, target.Element)
		if err != nil {
			return Result{}, s.storeFailure(logger, StateAggregating, err)
		}
		logger.Debug("served from cache", zap.Time("created_at", cached.CreatedAt))
		s.observer.ObserveOutcome(OutcomeCached)
		return Result{
			URL:        target.URL,
			FetchedAt:  cached.CreatedAt,
			Cached:     true,
			DurationMS: cached.DurationMS,
			Count:      cached.Count,
			Stats:      stats,
		}, nil
	}

	start := s.clock.Now()
	body, err := s.fetcher.Fetch(ctx, target.URL)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		logger.Warn("fetch failed",
			zap.String("state", string(StateFetching)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		s.observer.ObserveOutcome(OutcomeFetchError)
		return Result{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	s.observer.ObserveFetch(elapsed)
	durationMS := max(elapsed.Milliseconds(), 0)

	count := s.elements.Count(body, target.Element)

	if _, err := s.repo.SaveRequest(ctx, RequestRecord{
		Domain:     target.Domain,
		URL:        target.URL,
		Element:    target.Element,
		Count:      count,
		DurationMS: durationMS,
	}); err != nil {
		return Result{}, s.storeFailure(logger, StatePersisting, err)
	}

	stats, err := s.stats.Stats(ctx, target.Domain, target.Element)
	if err != nil {
		return Result{}, s.storeFailure(logger, StateAggregating, err)
	}

	logger.Info("request counted",
		zap.Int("count", count),
		zap.Int64("duration_ms", durationMS),
	)
	s.observer.ObserveOutcome(OutcomeFetched)
	return Result{
		URL:        target.URL,
		FetchedAt:  s.clock.Now(),
		DurationMS: durationMS,
		Count:      count,
		Stats:      stats,
	}, nil
}

func (s *Service) storeFailure(logger *zap.Logger, state State, err error) error {
	logger.Error("store operation failed", zap.String("state", string(state)), zap.Error(err))
	s.observer.ObserveOutcome(OutcomeStoreError)
	return fmt.Errorf("%w: %s: %w", ErrStore, state, err)
}
