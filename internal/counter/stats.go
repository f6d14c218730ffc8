package counter

import (
	"context"
	"math"
	"time"
)

// StatsWindow bounds the rows that feed the average fetch duration.
const StatsWindow = 24 * time.Hour

// Aggregator computes per-domain and global statistics on every call.
type Aggregator struct {
	source StatsSource
	clock  Clock
	window time.Duration
}

// NewAggregator builds an Aggregator over source.
func NewAggregator(source StatsSource, clock Clock) *Aggregator {
	return &Aggregator{source: source, clock: clock, window: StatsWindow}
}

// Stats returns the rounded aggregates for domain and element.
func (a *Aggregator) Stats(ctx context.Context, domain, element string) (Stats, error) {
	raw, err := a.source.Stats(ctx, domain, element, a.clock.Now().Add(-a.window))
	if err != nil {
		return Stats{}, err
	}
	avg := raw.AvgDuration
	if math.IsNaN(avg) || avg < 0 {
		avg = 0
	}
	return Stats{
		DomainURLs:  raw.DomainURLs,
		AvgDuration: int64(math.Round(avg)),
		DomainTotal: raw.DomainTotal,
		AllTotal:    raw.AllTotal,
	}, nil
}
