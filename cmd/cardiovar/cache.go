package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/inodb/cardiovar/internal/annotate"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persistent response cache",
		Long:  "Inspect and maintain cached live responses in the result store (store.path).",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached entries per source",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired entries",
		Args:  cobra.NoArgs,
		RunE:  runCachePrune,
	})

	var source string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd, source)
		},
	}
	clearCmd.Flags().StringVar(&source, "source", "", "Only clear entries for this source")
	cmd.AddCommand(clearCmd)

	return cmd
}

func runCacheStats(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	stats, err := a.store.ResponseCache(a.cfg.CacheTTL).Stats(commandContext(cmd))
	if err != nil {
		return err
	}

	w := bufio.NewWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Cache: %s\n", a.store.Path())
	fmt.Fprintln(w, "#Source\tEntries\tExpired\tBytes")
	var total int64
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", st.Source, st.Entries, st.Expired, st.Bytes)
		total += st.Entries
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}

func runCachePrune(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	n, err := a.store.ResponseCache(a.cfg.CacheTTL).Prune(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries\n", n)
	return nil
}

func runCacheClear(cmd *cobra.Command, source string) (err error) {
	if source != "" && !isSource(annotate.Source(source)) {
		return usageError{fmt.Errorf("unknown source %q", source)}
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	n, err := a.store.ResponseCache(a.cfg.CacheTTL).Clear(commandContext(cmd), annotate.Source(source))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", n)
	return nil
}
