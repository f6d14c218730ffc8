// Package sqlite provides an embedded, file-backed counter.Store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/element-counter/internal/counter"
)

//go:embed schema.sql
var schema string

const (
	selectDomainSQL  = `SELECT id FROM domains WHERE name = ?`
	insertDomainSQL  = `INSERT INTO domains (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING id`
	selectElementSQL = `SELECT id FROM elements WHERE name = ?`
	insertElementSQL = `INSERT INTO elements (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING id`
	selectURLSQL     = `SELECT id FROM urls WHERE full_url = ?`
	insertURLSQL     = `INSERT INTO urls (domain_id, full_url) VALUES (?, ?) ON CONFLICT (full_url) DO NOTHING RETURNING id`
	insertRequestSQL = `INSERT INTO requests (url_id, element_id, count, duration, created_at)
VALUES (?, ?, ?, ?, ?) RETURNING id`

	latestRequestSQL = `SELECT r.count, r.duration, r.created_at, d.name
FROM requests r
JOIN urls u ON u.id = r.url_id
JOIN domains d ON d.id = u.domain_id
JOIN elements e ON e.id = r.element_id
WHERE u.full_url = ? AND e.name = ? AND r.created_at >= ?
ORDER BY r.created_at DESC, r.id DESC
LIMIT 1`

	// Parameters: domain, domain, element, since, domain, element, element.
	statsSQL = `SELECT
	(SELECT COUNT(u.id)
		FROM urls u JOIN domains d ON d.id = u.domain_id
		WHERE d.name = ?),
	(SELECT COALESCE(AVG(r.duration), 0.0)
		FROM requests r
		JOIN urls u ON u.id = r.url_id
		JOIN domains d ON d.id = u.domain_id
		JOIN elements e ON e.id = r.element_id
		WHERE d.name = ? AND e.name = ? AND r.created_at >= ?),
	(SELECT COALESCE(SUM(r.count), 0)
		FROM requests r
		JOIN urls u ON u.id = r.url_id
		JOIN domains d ON d.id = u.domain_id
		JOIN elements e ON e.id = r.element_id
		WHERE d.name = ? AND e.name = ?),
	(SELECT COALESCE(SUM(r.count), 0)
		FROM requests r
		JOIN elements e ON e.id = r.element_id
		WHERE e.name = ?)`
)

// Config locates the database file.
type Config struct {
	Path string
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements counter.Store on a single SQLite file.
type Store struct {
	db    *sql.DB
	clock counter.Clock
}

// Open opens (creating if needed) the database at cfg.Path and applies the schema.
func Open(ctx context.Context, cfg Config, clock counter.Clock) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store.sqlite_path is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, clock: clock}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// GetOrCreateDomain returns the id of the domain row named name.
func (s *Store) GetOrCreateDomain(ctx context.Context, name string) (int64, error) {
	return getOrCreate(ctx, s.db, selectDomainSQL, insertDomainSQL, name, name)
}

// GetOrCreateElement returns the id of the element row named name.
func (s *Store) GetOrCreateElement(ctx context.Context, name string) (int64, error) {
	return getOrCreate(ctx, s.db, selectElementSQL, insertElementSQL, name, name)
}

// GetOrCreateURL returns the id of the url row for fullURL.
func (s *Store) GetOrCreateURL(ctx context.Context, domainID int64, fullURL string) (int64, error) {
	return getOrCreate(ctx, s.db, selectURLSQL, insertURLSQL, fullURL, domainID, fullURL)
}

// InsertRequest appends a request row stamped with the store clock.
func (s *Store) InsertRequest(
	ctx context.Context,
	urlID, elementID int64,
	count int,
	durationMS int64,
) (int64, error) {
	return s.insertRequest(ctx, s.db, urlID, elementID, count, durationMS)
}

// SaveRequest resolves the reference rows and inserts the request in one transaction.
func (s *Store) SaveRequest(ctx context.Context, rec counter.RequestRecord) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	domainID, err := getOrCreate(ctx, tx, selectDomainSQL, insertDomainSQL, rec.Domain, rec.Domain)
	if err != nil {
		return 0, err
	}
	urlID, err := getOrCreate(ctx, tx, selectURLSQL, insertURLSQL, rec.URL, domainID, rec.URL)
	if err != nil {
		return 0, err
	}
	elementID, err := getOrCreate(ctx, tx, selectElementSQL, insertElementSQL, rec.Element, rec.Element)
	if err != nil {
		return 0, err
	}
	id, err = s.insertRequest(ctx, tx, urlID, elementID, rec.Count, rec.DurationMS)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// LatestRequest returns the newest request for (fullURL, element) created at or after since.
func (s *Store) LatestRequest(
	ctx context.Context,
	fullURL, element string,
	since time.Time,
) (counter.CachedRequest, bool, error) {
	var (
		count, duration, createdMS int64
		domain                     string
	)
	err := s.db.QueryRowContext(ctx, latestRequestSQL, fullURL, element, since.UnixMilli()).
		Scan(&count, &duration, &createdMS, &domain)
	if errors.Is(err, sql.ErrNoRows) {
		return counter.CachedRequest{}, false, nil
	}
	if err != nil {
		return counter.CachedRequest{}, false, fmt.Errorf("select latest request: %w", err)
	}
	return counter.CachedRequest{
		Domain:     domain,
		Count:      int(count),
		DurationMS: duration,
		CreatedAt:  time.UnixMilli(createdMS).UTC(),
	}, true, nil
}

// Stats computes the raw aggregates for domain and element in one round trip.
func (s *Store) Stats(ctx context.Context, domain, element string, since time.Time) (counter.RawStats, error) {
	var out counter.RawStats
	err := s.db.QueryRowContext(ctx, statsSQL,
		domain,
		domain, element, since.UnixMilli(),
		domain, element,
		element,
	).Scan(&out.DomainURLs, &out.AvgDuration, &out.DomainTotal, &out.AllTotal)
	if err != nil {
		return counter.RawStats{}, fmt.Errorf("select stats: %w", err)
	}
	return out, nil
}

func (s *Store) insertRequest(
	ctx context.Context,
	q querier,
	urlID, elementID int64,
	count int,
	durationMS int64,
) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, insertRequestSQL,
		urlID, elementID, count, durationMS, s.clock.Now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

// getOrCreate reads the row keyed by key, inserts it when missing and re-reads
// it when a concurrent caller won the insert.
func getOrCreate(ctx context.Context, q querier, selectSQL, insertSQL, key string, insertArgs ...any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, selectSQL, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select %q: %w", key, err)
	}

	err = q.QueryRowContext(ctx, insertSQL, insertArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert %q: %w", key, err)
	}

	if err := q.QueryRowContext(ctx, selectSQL, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("reselect %q after conflict: %w", key, err)
	}
	return id, nil
}
