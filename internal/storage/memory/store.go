// Package memory provides an in-memory counter.Store for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/element-counter/internal/counter"
)

type urlRow struct {
	id       int64
	domainID int64
}

type requestRow struct {
	id         int64
	urlID      int64
	elementID  int64
	count      int
	durationMS int64
	createdAt  time.Time
}

// Store keeps domains, URLs, elements and requests in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	clock    counter.Clock
	nextID   int64
	domains  map[string]int64
	urls     map[string]urlRow
	elements map[string]int64
	requests []requestRow
}

// NewStore constructs a Store stamping rows with clock.
func NewStore(clock counter.Clock) *Store {
	return &Store{
		clock:    clock,
		domains:  make(map[string]int64),
		urls:     make(map[string]urlRow),
		elements: make(map[string]int64),
	}
}

// GetOrCreateDomain returns the id for name, creating the row on first use.
func (s *Store) GetOrCreateDomain(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(s.domains, name), nil
}

// GetOrCreateElement returns the id for name, creating the row on first use.
func (s *Store) GetOrCreateElement(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(s.elements, name), nil
}

// GetOrCreateURL returns the id for fullURL, creating it under domainID on first use.
func (s *Store) GetOrCreateURL(_ context.Context, domainID int64, fullURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasDomain(domainID) {
		return 0, errors.New("domain not found")
	}
	return s.getOrCreateURL(domainID, fullURL), nil
}

// InsertRequest appends an immutable request row.
func (s *Store) InsertRequest(
	_ context.Context,
	urlID, elementID int64,
	count int,
	durationMS int64,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRequest(urlID, elementID, count, durationMS), nil
}

// SaveRequest resolves the reference rows and appends a request in one critical section.
func (s *Store) SaveRequest(_ context.Context, rec counter.RequestRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	domainID := s.getOrCreate(s.domains, rec.Domain)
	urlID := s.getOrCreateURL(domainID, rec.URL)
	elementID := s.getOrCreate(s.elements, rec.Element)
	return s.insertRequest(urlID, elementID, rec.Count, rec.DurationMS), nil
}

// LatestRequest returns the newest request for (fullURL, element) created at or after since.
func (s *Store) LatestRequest(
	_ context.Context,
	fullURL, element string,
	since time.Time,
) (counter.CachedRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.urls[fullURL]
	if !ok {
		return counter.CachedRequest{}, false, nil
	}
	elementID, ok := s.elements[element]
	if !ok {
		return counter.CachedRequest{}, false, nil
	}
	var (
		best  requestRow
		found bool
	)
	for _, r := range s.requests {
		if r.urlID != u.id || r.elementID != elementID || r.createdAt.Before(since) {
			continue
		}
		if !found || !r.createdAt.Before(best.createdAt) {
			best, found = r, true
		}
	}
	if !found {
		return counter.CachedRequest{}, false, nil
	}
	return counter.CachedRequest{
		Domain:     s.domainName(u.domainID),
		Count:      best.count,
		DurationMS: best.durationMS,
		CreatedAt:  best.createdAt,
	}, true, nil
}

// Stats aggregates request rows for domain and element.
func (s *Store) Stats(_ context.Context, domain, element string, since time.Time) (counter.RawStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out counter.RawStats
	domainURLs := make(map[int64]struct{})
	if domainID, ok := s.domains[domain]; ok {
		for _, u := range s.urls {
			if u.domainID == domainID {
				out.DomainURLs++
				domainURLs[u.id] = struct{}{}
			}
		}
	}
	elementID, ok := s.elements[element]
	if !ok {
		return out, nil
	}
	var (
		durationSum int64
		recent      int64
	)
	for _, r := range s.requests {
		if r.elementID != elementID {
			continue
		}
		out.AllTotal += int64(r.count)
		if _, ok := domainURLs[r.urlID]; !ok {
			continue
		}
		out.DomainTotal += int64(r.count)
		if !r.createdAt.Before(since) {
			durationSum += r.durationMS
			recent++
		}
	}
	if recent > 0 {
		out.AvgDuration = float64(durationSum) / float64(recent)
	}
	return out, nil
}

// RequestCount reports how many request rows exist.
func (s *Store) RequestCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) getOrCreate(table map[string]int64, key string) int64 {
	if id, ok := table[key]; ok {
		return id
	}
	s.nextID++
	table[key] = s.nextID
	return s.nextID
}

func (s *Store) getOrCreateURL(domainID int64, fullURL string) int64 {
	if u, ok := s.urls[fullURL]; ok {
		return u.id
	}
	s.nextID++
	s.urls[fullURL] = urlRow{id: s.nextID, domainID: domainID}
	return s.nextID
}

func (s *Store) insertRequest(urlID, elementID int64, count int, durationMS int64) int64 {
	s.nextID++
	s.requests = append(s.requests, requestRow{
		id:         s.nextID,
		urlID:      urlID,
		elementID:  elementID,
		count:      count,
		durationMS: durationMS,
		createdAt:  s.clock.Now(),
	})
	return s.nextID
}

func (s *Store) hasDomain(id int64) bool {
	for _, v := range s.domains {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Store) domainName(id int64) string {
	for name, v := range s.domains {
		if v == id {
			return name
		}
	}
	return ""
}
