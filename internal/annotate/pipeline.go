package annotate

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/inodb/cardiovar/internal/vcf"
)

// ResultWriter defines the interface for writing fetched results.
// rec is the input record a result was fetched for; nil when the locus did
// not come from a VCF.
type ResultWriter interface {
	WriteHeader() error
	Write(rec *vcf.Record, r *Result) error
	Flush() error
}

// FetchAll fetches annotations for every record from a parser and writes
// them in input order. Multi-allelic records are split, one result per allele.
// If workers is 0, runtime.NumCPU() is used.
//
// Records already queued when ctx is cancelled are still written, resolved
// through the fallback path. The remaining input is not read and FetchAll
// returns an error wrapping ctx.Err().
func (f *Fetcher) FetchAll(ctx context.Context, parser vcf.RecordParser, writer ResultWriter, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	items := make(chan WorkItem, 2*workers)
	var parseErr error
	recordCount := 0
	exhausted := false

	go func() {
		defer close(items)
		seq := 0
		for {
			if ctx.Err() != nil {
				return
			}
			rec, err := parser.Next()
			if err != nil {
				parseErr = fmt.Errorf("read record: %w", err)
				return
			}
			if rec == nil {
				exhausted = true
				return
			}
			recordCount++

			for _, split := range vcf.SplitMultiAllelic(rec) {
				select {
				case items <- WorkItem{Seq: seq, Locus: split.Locus, Gene: split.Gene(), Extra: split}:
				case <-ctx.Done():
					return
				}
				seq++
			}
		}
	}()

	results := f.ParallelFetch(ctx, items, workers)

	if err := writer.WriteHeader(); err != nil {
		for range results {
		}
		return fmt.Errorf("write header: %w", err)
	}

	written := 0
	if err := OrderedCollect(results, func(r WorkResult) error {
		rec, _ := r.Extra.(*vcf.Record)
		if err := writer.Write(rec, r.Result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		written++
		return nil
	}); err != nil {
		return err
	}

	if parseErr != nil {
		return parseErr
	}

	if !exhausted {
		f.logger.Warn("batch interrupted",
			zap.Int("records", recordCount),
			zap.Int("results", written))
		return multierr.Append(
			fmt.Errorf("batch interrupted after %d results: %w", written, ctx.Err()),
			writer.Flush())
	}

	f.logger.Info("batch complete",
		zap.Int("records", recordCount),
		zap.Int("results", written))

	return writer.Flush()
}
