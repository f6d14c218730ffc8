package counter

import "time"

// FetchedLayout renders the fetched timestamp as DD/MM/YYYY HH:MM.
const FetchedLayout = "02/01/2006 15:04"

// cachedSuffix marks a result served from request history.
const cachedSuffix = " (cached)"

// State names a step of the counting pipeline. It is used to tag log lines.
type State string

// Pipeline states.
const (
	StateValidating  State = "validating"
	StateCacheCheck  State = "cache_check"
	StateFetching    State = "fetching"
	StateCounting    State = "counting"
	StatePersisting  State = "persisting"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
)

// Outcome labels how a request ended.
type Outcome string

// Request outcomes.
const (
	OutcomeFetched    Outcome = "fetched"
	OutcomeCached     Outcome = "cached"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeFetchError Outcome = "fetch_error"
	OutcomeStoreError Outcome = "store_error"
)

// Target is a validated (URL, element) pair plus the domain derived from the URL.
type Target struct {
	URL     string
	Element string
	Domain  string
}

// RequestRecord is everything needed to persist one fetch-and-count operation.
type RequestRecord struct {
	Domain     string
	URL        string
	Element    string
	Count      int
	DurationMS int64
}

// CachedRequest is the most recent request row matching a (URL, element) pair.
type CachedRequest struct {
	Domain     string
	Count      int
	DurationMS int64
	CreatedAt  time.Time
}

// RawStats are the unrounded aggregates returned by a store.
type RawStats struct {
	DomainURLs  int64
	AvgDuration float64
	DomainTotal int64
	AllTotal    int64
}

// Stats are the aggregates reported with every successful response.
type Stats struct {
	DomainURLs  int64 `json:"domain_urls"`
	AvgDuration int64 `json:"avg_duration"`
	DomainTotal int64 `json:"domain_total"`
	AllTotal    int64 `json:"all_total"`
}

// Result is the terminal output of a successful pipeline run.
type Result struct {
	URL        string
	FetchedAt  time.Time
	Cached     bool
	DurationMS int64
	Count      int
	Stats      Stats
}

// Fetched formats FetchedAt in loc, suffixed with "(cached)" for cache hits.
func (r Result) Fetched(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	out := r.FetchedAt.In(loc).Format(FetchedLayout)
	if r.Cached {
		out += cachedSuffix
	}
	return out
}
