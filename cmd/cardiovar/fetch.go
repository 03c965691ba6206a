package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
	"github.com/inodb/cardiovar/internal/output"
)

func newFetchCmd() *cobra.Command {
	var (
		gene   string
		format string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <chrom> <pos> <ref> <alt>",
		Short: "Fetch annotations for a single variant",
		Long: `Fetch every annotation source for one variant. Sources that fail fall back
to the bundled dataset; the output tags each value live, fallback or
unavailable. Without --gene the gene is inferred from the bundled gene
coordinates.`,
		Example: `  cardiovar fetch 22 36191400 A C --gene MYH9
  cardiovar fetch chr1 156137204 G A -f json`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLocus(args)
			if err != nil {
				return usageError{err}
			}
			return runFetch(cmd, l, gene, format, record)
		},
	}

	cmd.Flags().StringVarP(&gene, "gene", "g", "", "Gene symbol for gene-level sources")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: "+strings.Join(output.Formats, ", "))
	cmd.Flags().BoolVar(&record, "store", false, "Record the result in the result store")

	return cmd
}

// parseLocus parses CHROM POS REF ALT arguments.
func parseLocus(args []string) (genome.Locus, error) {
	pos, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || pos < 1 {
		return genome.Locus{}, fmt.Errorf("invalid position %q", args[1])
	}
	if strings.TrimSpace(args[0]) == "" || strings.TrimSpace(args[2]) == "" || strings.TrimSpace(args[3]) == "" {
		return genome.Locus{}, fmt.Errorf("chromosome and alleles must not be empty")
	}
	return genome.Locus{
		Chrom: args[0],
		Pos:   pos,
		Ref:   strings.ToUpper(args[2]),
		Alt:   strings.ToUpper(args[3]),
	}, nil
}

func runFetch(cmd *cobra.Command, l genome.Locus, gene, format string, record bool) (err error) {
	w, err := output.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return usageError{err}
	}

	a, err := newApp(record)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	r := a.newFetcher().Fetch(ctx, l, gene)

	if record {
		if err := recordResults(ctx, a.store, []*annotate.Result{r}); err != nil {
			return err
		}
	}

	if err := writeOne(w, r); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), r)
	return nil
}

func writeOne(w annotate.ResultWriter, r *annotate.Result) error {
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.Write(nil, r); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return w.Flush()
}

// printSummary reports degraded sources.
func printSummary(w io.Writer, r *annotate.Result) {
	counts := r.Counts()
	if counts[annotate.Live] == len(annotate.AllSources) {
		return
	}
	fmt.Fprintf(w, "%s: %d live, %d fallback, %d unavailable\n",
		r.Locus, counts[annotate.Live], counts[annotate.Fallback], counts[annotate.Unavailable])
	entries := r.Entries()
	for _, s := range annotate.AllSources {
		if e := entries[s]; e.Reason() != "" {
			fmt.Fprintf(w, "  %s (%s): %s\n", s, e.Tag(), e.Reason())
		}
	}
}

// commandContext returns the command's context, or a background context
// when the command is run outside Execute (in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
