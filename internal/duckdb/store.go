// Package duckdb persists API responses and fetched annotation results.
// Responses are cached with an expiry (api_cache).
// Results are kept as an append-only log (annotation_results).
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store manages a DuckDB connection for cached responses and results.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	if err := s.ensureSchema(); err != nil {
		return nil, multierr.Append(fmt.Errorf("ensure schema: %w", err), db.Close())
	}

	return s, nil
}

// SetLogger sets the logger for store diagnostics.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Close checkpoints a file-backed database and closes the connection.
func (s *Store) Close() error {
	var err error
	if s.path != "" {
		if _, cerr := s.db.Exec("CHECKPOINT"); cerr != nil {
			err = fmt.Errorf("checkpoint: %w", cerr)
		}
	}
	return multierr.Append(err, s.db.Close())
}

// Path returns the database file path; empty for in-memory databases.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS api_cache (
			source VARCHAR,
			cache_key VARCHAR,
			data BLOB,
			created_at TIMESTAMP,
			expires_at TIMESTAMP,
			PRIMARY KEY (source, cache_key)
		)`,
		`CREATE TABLE IF NOT EXISTS annotation_results (
			request_id VARCHAR,
			chrom VARCHAR,
			pos BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			gene VARCHAR,
			gene_inferred BOOLEAN,
			source VARCHAR,
			provenance VARCHAR,
			cached BOOLEAN,
			value VARCHAR,
			reason VARCHAR,
			fetched_at TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
