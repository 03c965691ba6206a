package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/duckdb"
	"github.com/inodb/cardiovar/internal/output"
	"github.com/inodb/cardiovar/internal/vcf"
)

func newBatchCmd() *cobra.Command {
	var (
		workers    int
		format     string
		outputFile string
		record     bool
	)

	cmd := &cobra.Command{
		Use:   "batch <input.vcf>",
		Short: "Fetch annotations for every variant in a VCF file",
		Long: `Fetch annotations for every variant in a VCF file (plain or gzipped; use
'-' for stdin). Multi-allelic records are split into one result per allele.
Results are written in input order. The gene is taken from the GENE, SYMBOL
or GENEINFO INFO field when present.`,
		Example: `  cardiovar batch variants.vcf
  cardiovar batch -w 8 --store -o results.tsv variants.vcf.gz
  cat variants.vcf | cardiovar batch -f json -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], workers, format, outputFile, record)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Number of variants fetched concurrently")
	cmd.Flags().StringVarP(&format, "format", "f", "tab", "Output format: "+strings.Join(output.Formats, ", "))
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&record, "store", false, "Record results in the result store")

	return cmd
}

func runBatch(cmd *cobra.Command, inputPath string, workers int, format, outputFile string, record bool) (err error) {
	parser, err := vcf.NewParser(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w (check that the file path is correct)", err)
		}
		return err
	}
	defer parser.Close()

	out := cmd.OutOrStdout()
	if outputFile != "" {
		file, cerr := os.Create(outputFile)
		if cerr != nil {
			return fmt.Errorf("create output file: %w", cerr)
		}
		defer func() { err = multierr.Append(err, file.Close()) }()
		out = file
	}

	writer, err := output.NewWriter(format, out)
	if err != nil {
		return usageError{err}
	}
	if format == "vcf" {
		writer = output.NewVCFWriter(out, parser.Header())
	}

	a, err := newApp(record)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	if record {
		writer = newStoreWriter(ctx, a.store, writer)
	}

	f := a.newFetcher()
	if err := f.FetchAll(ctx, parser, writer, workers); err != nil {
		return err
	}

	a.logger.Info("batch written",
		zap.String("input", inputPath),
		zap.Int("lines", parser.LineNumber()))
	return nil
}

// storeBatchSize is the number of results appended to the store at once.
const storeBatchSize = 256

// storeWriter records results in the result store as they are written.
type storeWriter struct {
	ctx     context.Context
	store   *duckdb.Store
	next    annotate.ResultWriter
	pending []*annotate.Result
}

func newStoreWriter(ctx context.Context, store *duckdb.Store, next annotate.ResultWriter) *storeWriter {
	return &storeWriter{ctx: ctx, store: store, next: next}
}

func (w *storeWriter) WriteHeader() error {
	return w.next.WriteHeader()
}

func (w *storeWriter) Write(rec *vcf.Record, r *annotate.Result) error {
	w.pending = append(w.pending, r)
	if len(w.pending) >= storeBatchSize {
		if err := w.drain(); err != nil {
			return err
		}
	}
	return w.next.Write(rec, r)
}

func (w *storeWriter) Flush() error {
	return multierr.Append(w.drain(), w.next.Flush())
}

func (w *storeWriter) drain() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := recordResults(w.ctx, w.store, w.pending); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}

// recordResults appends results to the store. The write ignores cancellation
// of ctx so an interrupted run still records the results it produced.
func recordResults(ctx context.Context, store *duckdb.Store, results []*annotate.Result) error {
	if err := store.WriteResults(context.WithoutCancel(ctx), results); err != nil {
		return fmt.Errorf("record results: %w", err)
	}
	return nil
}
