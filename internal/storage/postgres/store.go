// Package postgres provides the Postgres-backed counter.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/element-counter/internal/counter"
)

//go:embed schema.sql
var schema string

const (
	selectDomainSQL  = `SELECT id FROM domains WHERE name = $1`
	insertDomainSQL  = `INSERT INTO domains (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`
	selectElementSQL = `SELECT id FROM elements WHERE name = $1`
	insertElementSQL = `INSERT INTO elements (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`
	selectURLSQL     = `SELECT id FROM urls WHERE full_url = $1`
	insertURLSQL     = `INSERT INTO urls (domain_id, full_url) VALUES ($1, $2) ON CONFLICT (full_url) DO NOTHING RETURNING id`
	insertRequestSQL = `INSERT INTO requests (url_id, element_id, count, duration, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`

	latestRequestSQL = `SELECT r.count, r.duration, r.created_at, d.name
FROM requests r
JOIN urls u ON u.id = r.url_id
JOIN domains d ON d.id = u.domain_id
JOIN elements e ON e.id = r.element_id
WHERE u.full_url = $1 AND e.name = $2 AND r.created_at >= $3
ORDER BY r.created_at DESC, r.id DESC
LIMIT 1`

	statsSQL = `SELECT
	(SELECT COUNT(u.id)
		FROM urls u JOIN domains d ON d.id = u.domain_id
		WHERE d.name = $1),
	(SELECT COALESCE(AVG(r.duration), 0)::float8
		FROM requests r
		JOIN urls u ON u.id = r.url_id
		JOIN domains d ON d.id = u.domain_id
		JOIN elements e ON e.id = r.element_id
		WHERE d.name = $1 AND e.name = $2 AND r.created_at >= $3),
	(SELECT COALESCE(SUM(r.count), 0)::bigint
		FROM requests r
		JOIN urls u ON u.id = r.url_id
		JOIN domains d ON d.id = u.domain_id
		JOIN elements e ON e.id = r.element_id
		WHERE d.name = $1 AND e.name = $2),
	(SELECT COALESCE(SUM(r.count), 0)::bigint
		FROM requests r
		JOIN elements e ON e.id = r.element_id
		WHERE e.name = $2)`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements counter.Store on a pgx pool.
type Store struct {
	pool  pool
	clock counter.Clock
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, clock counter.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, clock: clock}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, clock counter.Clock) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	return &Store{pool: p, clock: clock}, nil
}

// Migrate creates the tables and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetOrCreateDomain returns the id of the domain row named name.
func (s *Store) GetOrCreateDomain(ctx context.Context, name string) (int64, error) {
	return getOrCreate(ctx, s.pool, selectDomainSQL, insertDomainSQL, name, name)
}

// GetOrCreateElement returns the id of the element row named name.
func (s *Store) GetOrCreateElement(ctx context.Context, name string) (int64, error) {
	return getOrCreate(ctx, s.pool, selectElementSQL, insertElementSQL, name, name)
}

// GetOrCreateURL returns the id of the url row for fullURL.
func (s *Store) GetOrCreateURL(ctx context.Context, domainID int64, fullURL string) (int64, error) {
	return getOrCreate(ctx, s.pool, selectURLSQL, insertURLSQL, fullURL, domainID, fullURL)
}

// InsertRequest appends a request row stamped with the store clock.
func (s *Store) InsertRequest(
	ctx context.Context,
	urlID, elementID int64,
	count int,
	durationMS int64,
) (int64, error) {
	return s.insertRequest(ctx, s.pool, urlID, elementID, count, durationMS)
}

// SaveRequest resolves the reference rows and inserts the request in one transaction.
func (s *Store) SaveRequest(ctx context.Context, rec counter.RequestRecord) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		domainID, err := getOrCreate(ctx, tx, selectDomainSQL, insertDomainSQL, rec.Domain, rec.Domain)
		if err != nil {
			return err
		}
		urlID, err := getOrCreate(ctx, tx, selectURLSQL, insertURLSQL, rec.URL, domainID, rec.URL)
		if err != nil {
			return err
		}
		elementID, err := getOrCreate(ctx, tx, selectElementSQL, insertElementSQL, rec.Element, rec.Element)
		if err != nil {
			return err
		}
		id, err = s.insertRequest(ctx, tx, urlID, elementID, rec.Count, rec.DurationMS)
		return err
	})
	if err != nil {
		return 0, err
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
		count, duration int64
		out             counter.CachedRequest
	)
	err := s.pool.QueryRow(ctx, latestRequestSQL, fullURL, element, since).
		Scan(&count, &duration, &out.CreatedAt, &out.Domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return counter.CachedRequest{}, false, nil
	}
	if err != nil {
		return counter.CachedRequest{}, false, fmt.Errorf("select latest request: %w", err)
	}
	out.Count = int(count)
	out.DurationMS = duration
	return out, true, nil
}

// Stats computes the raw aggregates for domain and element in one round trip.
func (s *Store) Stats(ctx context.Context, domain, element string, since time.Time) (counter.RawStats, error) {
	var out counter.RawStats
	err := s.pool.QueryRow(ctx, statsSQL, domain, element, since).
		Scan(&out.DomainURLs, &out.AvgDuration, &out.DomainTotal, &out.AllTotal)
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
	err := q.QueryRow(ctx, insertRequestSQL, urlID, elementID, count, durationMS, s.clock.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// getOrCreate reads the row keyed by key, inserts it when missing and re-reads
// it when a concurrent caller won the insert.
func getOrCreate(ctx context.Context, q querier, selectSQL, insertSQL, key string, insertArgs ...any) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, selectSQL, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select %q: %w", key, err)
	}

	err = q.QueryRow(ctx, insertSQL, insertArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert %q: %w", key, err)
	}

	if err := q.QueryRow(ctx, selectSQL, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("reselect %q after conflict: %w", key, err)
	}
	return id, nil
}
