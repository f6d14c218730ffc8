package counter

import (
	"context"
	"time"
)

// Fetcher retrieves the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ElementCounter counts elements named tag in an HTML document.
type ElementCounter interface {
	Count(body []byte, tag string) int
}

// Repository persists request records and their reference rows.
type Repository interface {
	GetOrCreateDomain(ctx context.Context, name string) (int64, error)
	GetOrCreateElement(ctx context.Context, name string) (int64, error)
	GetOrCreateURL(ctx context.Context, domainID int64, fullURL string) (int64, error)
	InsertRequest(ctx context.Context, urlID, elementID int64, count int, durationMS int64) (int64, error)
	// SaveRequest resolves the domain, URL and element of rec and appends a
	// request row, atomically where the backend supports it.
	SaveRequest(ctx context.Context, rec RequestRecord) (int64, error)
}

// History answers cache lookups from persisted request rows.
type History interface {
	LatestRequest(ctx context.Context, fullURL, element string, since time.Time) (CachedRequest, bool, error)
}

// StatsSource computes raw aggregates. Rows older than since are excluded from
// the average duration only.
type StatsSource interface {
	Stats(ctx context.Context, domain, element string, since time.Time) (RawStats, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	Repository
	History
	StatsSource
	Ping(ctx context.Context) error
	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveOutcome(outcome Outcome)
	ObserveFetch(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(Outcome)     {}
func (nopObserver) ObserveFetch(time.Duration) {}
