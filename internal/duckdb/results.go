package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
)

// StoredOutcome is one source outcome of a stored result.
type StoredOutcome struct {
	RequestID    string              `json:"request_id" yaml:"request_id"`
	Locus        genome.Locus        `json:"variant" yaml:"variant"`
	Gene         string              `json:"gene,omitempty" yaml:"gene,omitempty"`
	GeneInferred bool                `json:"gene_inferred,omitempty" yaml:"gene_inferred,omitempty"`
	Source       annotate.Source     `json:"source" yaml:"source"`
	Provenance   annotate.Provenance `json:"provenance" yaml:"provenance"`
	Cached       bool                `json:"cached,omitempty" yaml:"cached,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty" yaml:"-"`
	Reason       string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	FetchedAt    time.Time           `json:"fetched_at" yaml:"fetched_at"`
}

// WriteResults appends one row per source of each result using the Appender API.
func (s *Store) WriteResults(ctx context.Context, results []*annotate.Result) error {
	if len(results) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "annotation_results")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	now := time.Now().UTC()
	for _, r := range results {
		entries := r.Entries()
		for _, src := range annotate.AllSources {
			e := entries[src]
			var value any
			if data := e.Data(); data != nil {
				b, err := json.Marshal(data)
				if err != nil {
					return fmt.Errorf("encode %s value: %w", src, err)
				}
				value = string(b)
			}
			var reason any
			if msg := e.Reason(); msg != "" {
				reason = msg
			}
			if err := appender.AppendRow(
				r.RequestID, r.Locus.Chrom, r.Locus.Pos, r.Locus.Ref, r.Locus.Alt,
				r.Gene, r.GeneInferred, string(src), e.Tag().String(), e.FromCache(),
				value, reason, now,
			); err != nil {
				return fmt.Errorf("append result: %w", err)
			}
		}
	}

	return appender.Flush()
}

// ClearResults removes all stored results.
func (s *Store) ClearResults(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM annotation_results")
	return err
}

const resultColumns = `request_id, chrom, pos, ref, alt, gene, gene_inferred,
	source, provenance, cached, value, reason, fetched_at`

// LookupVariant returns the most recent outcome per source for a variant.
func (s *Store) LookupVariant(ctx context.Context, l genome.Locus) ([]StoredOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+`
		FROM annotation_results
		WHERE chrom=? AND pos=? AND ref=? AND alt=?
		QUALIFY row_number() OVER (PARTITION BY source ORDER BY fetched_at DESC) = 1
		ORDER BY source`,
		l.Chrom, l.Pos, l.Ref, l.Alt)
	if err != nil {
		return nil, fmt.Errorf("query variant: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// SearchByGene returns all stored outcomes for a gene symbol, matched case-insensitively.
func (s *Store) SearchByGene(ctx context.Context, gene string) ([]StoredOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+`
		FROM annotation_results
		WHERE upper(gene)=upper(?)
		ORDER BY chrom, pos, ref, alt, source, fetched_at`, gene)
	if err != nil {
		return nil, fmt.Errorf("query by gene: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// SearchByProvenance returns stored outcomes with the given tag. An empty
// source matches every source.
func (s *Store) SearchByProvenance(ctx context.Context, source annotate.Source, p annotate.Provenance) ([]StoredOutcome, error) {
	query := `SELECT ` + resultColumns + ` FROM annotation_results WHERE provenance=?`
	args := []any{p.String()}
	if source != "" {
		query += ` AND source=?`
		args = append(args, string(source))
	}
	query += ` ORDER BY chrom, pos, ref, alt, source, fetched_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by provenance: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// scanOutcomes scans rows into StoredOutcome slices.
func scanOutcomes(rows *sql.Rows) ([]StoredOutcome, error) {
	var out []StoredOutcome
	for rows.Next() {
		var (
			o                  StoredOutcome
			source, provenance string
			value, reason      sql.NullString
		)
		if err := rows.Scan(
			&o.RequestID, &o.Locus.Chrom, &o.Locus.Pos, &o.Locus.Ref, &o.Locus.Alt,
			&o.Gene, &o.GeneInferred, &source, &provenance, &o.Cached,
			&value, &reason, &o.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		p, err := annotate.ParseProvenance(provenance)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		o.Source = annotate.Source(source)
		o.Provenance = p
		if value.Valid {
			o.Value = json.RawMessage(value.String)
		}
		o.Reason = reason.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
