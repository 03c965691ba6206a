package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/duckdb"
)

func newSearchCmd() *cobra.Command {
	var (
		gene       string
		provenance string
		source     string
		variant    string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search recorded results",
		Long: `Search results recorded with --store. Exactly one of --gene, --variant or
--provenance selects the rows; --source narrows a provenance search to one
source.`,
		Example: `  cardiovar search --gene MYH9
  cardiovar search --variant 22:36191400:A:C -f json
  cardiovar search --provenance fallback --source conservation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			n := 0
			for _, s := range []string{gene, provenance, variant} {
				if s != "" {
					n++
				}
			}
			if n != 1 {
				return usageError{fmt.Errorf("exactly one of --gene, --variant or --provenance is required")}
			}
			if source != "" && !isSource(annotate.Source(source)) {
				return usageError{fmt.Errorf("unknown source %q", source)}
			}
			if format != "tab" && format != "json" && format != "yaml" {
				return usageError{fmt.Errorf("unknown output format %q", format)}
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			ctx := commandContext(cmd)
			var rows []duckdb.StoredOutcome
			switch {
			case gene != "":
				rows, err = a.store.SearchByGene(ctx, gene)
			case variant != "":
				parts := strings.Split(variant, ":")
				if len(parts) != 4 {
					return usageError{fmt.Errorf("invalid variant %q (want chrom:pos:ref:alt)", variant)}
				}
				l, perr := parseLocus(parts)
				if perr != nil {
					return usageError{perr}
				}
				rows, err = a.store.LookupVariant(ctx, l)
			default:
				p, perr := annotate.ParseProvenance(provenance)
				if perr != nil {
					return usageError{perr}
				}
				rows, err = a.store.SearchByProvenance(ctx, annotate.Source(source), p)
			}
			if err != nil {
				return err
			}
			return writeOutcomes(cmd.OutOrStdout(), format, rows)
		},
	}

	cmd.Flags().StringVar(&gene, "gene", "", "Gene symbol (case-insensitive)")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant as chrom:pos:ref:alt (latest outcome per source)")
	cmd.Flags().StringVar(&provenance, "provenance", "", "Provenance tag: live, fallback or unavailable")
	cmd.Flags().StringVar(&source, "source", "", "Limit a provenance search to one source")
	cmd.Flags().StringVarP(&format, "format", "f", "tab", "Output format: tab, json, yaml")

	return cmd
}

func isSource(s annotate.Source) bool {
	for _, known := range annotate.AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// writeOutcomes renders stored outcomes.
func writeOutcomes(w io.Writer, format string, rows []duckdb.StoredOutcome) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#Variant\tGene\tSource\tProvenance\tCached\tFetched_at\tReason")
	for _, r := range rows {
		gene := r.Gene
		if gene == "" {
			gene = "-"
		}
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			r.Locus.Key(), gene, r.Source, r.Provenance, r.Cached,
			r.FetchedAt.Format(time.RFC3339), reason)
	}
	return bw.Flush()
}
