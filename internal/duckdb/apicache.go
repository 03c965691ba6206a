package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inodb/cardiovar/internal/annotate"
)

// DefaultTTL is how long cached responses stay valid.
const DefaultTTL = 24 * time.Hour

// ResponseCache stores live source values in the api_cache table.
// It implements annotate.Cache.
type ResponseCache struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

var _ annotate.Cache = (*ResponseCache)(nil)

// ResponseCache returns a response cache over the store. A ttl of zero or
// less selects DefaultTTL.
func (s *Store) ResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{store: s, ttl: ttl, now: time.Now}
}

// Get returns an unexpired entry.
func (c *ResponseCache) Get(ctx context.Context, source annotate.Source, key string) ([]byte, bool, error) {
	var data []byte
	err := c.store.db.QueryRowContext(ctx,
		`SELECT data FROM api_cache WHERE source=? AND cache_key=? AND expires_at > ?`,
		string(source), key, c.now().UTC()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query api cache: %w", err)
	}
	return data, true, nil
}

// Set stores an entry, replacing any previous value for the key.
func (c *ResponseCache) Set(ctx context.Context, source annotate.Source, key string, data []byte) error {
	now := c.now().UTC()
	_, err := c.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO api_cache (source, cache_key, data, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		string(source), key, data, now, now.Add(c.ttl))
	if err != nil {
		return fmt.Errorf("write api cache: %w", err)
	}
	return nil
}

// Invalidate removes a single entry.
func (c *ResponseCache) Invalidate(ctx context.Context, source annotate.Source, key string) error {
	_, err := c.store.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE source=? AND cache_key=?`, string(source), key)
	if err != nil {
		return fmt.Errorf("invalidate api cache: %w", err)
	}
	return nil
}

// Prune removes expired entries and returns how many were removed.
func (c *ResponseCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.store.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE expires_at <= ?`, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("prune api cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries for a source, or every entry if source is empty.
func (c *ResponseCache) Clear(ctx context.Context, source annotate.Source) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if source == "" {
		res, err = c.store.db.ExecContext(ctx, `DELETE FROM api_cache`)
	} else {
		res, err = c.store.db.ExecContext(ctx, `DELETE FROM api_cache WHERE source=?`, string(source))
	}
	if err != nil {
		return 0, fmt.Errorf("clear api cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheStat counts cached entries for one source.
type CacheStat struct {
	Source  annotate.Source `json:"source" yaml:"source"`
	Entries int64           `json:"entries" yaml:"entries"`
	Expired int64           `json:"expired" yaml:"expired"`
	Bytes   int64           `json:"bytes" yaml:"bytes"`
}

// Stats returns per-source entry counts, ordered by source name.
func (c *ResponseCache) Stats(ctx context.Context) ([]CacheStat, error) {
	rows, err := c.store.db.QueryContext(ctx, `SELECT
		source,
		count(*),
		count(*) FILTER (WHERE expires_at <= ?),
		CAST(coalesce(sum(octet_length(data)), 0) AS BIGINT)
		FROM api_cache
		GROUP BY source
		ORDER BY source`, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("query api cache stats: %w", err)
	}
	defer rows.Close()

	var stats []CacheStat
	for rows.Next() {
		var st CacheStat
		var source string
		if err := rows.Scan(&source, &st.Entries, &st.Expired, &st.Bytes); err != nil {
			return nil, fmt.Errorf("scan api cache stats: %w", err)
		}
		st.Source = annotate.Source(source)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api cache stats: %w", err)
	}
	return stats, nil
}
