package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/cardiovar/internal/fallback"
)

func newFallbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Inspect or export the fallback dataset",
		Long: `The fallback dataset answers for a source when its service fails. The
bundled copy is used unless fallback.dir points to a directory holding the
same files.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load every fallback file and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFallbackCheck(cmd.OutOrStdout(), viper.GetString("fallback.dir"))
		},
	})

	var force bool
	export := &cobra.Command{
		Use:   "export [dir]",
		Short: "Copy the bundled fallback files to a directory for editing",
		Example: `  cardiovar fallback export
  cardiovar fallback export /data/cardiovar-fallback
  cardiovar config set fallback.dir /data/cardiovar-fallback`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(defaultDataDir(), "fallback")
			if len(args) == 1 {
				dir = args[0]
			}
			return runFallbackExport(cmd.OutOrStdout(), afero.NewOsFs(), dir, force)
		},
	}
	export.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.AddCommand(export)

	return cmd
}

func runFallbackCheck(w io.Writer, dir string) error {
	var store *fallback.Store
	if dir == "" {
		fmt.Fprintln(w, "Fallback: bundled")
		store = fallback.NewBundled()
	} else {
		fmt.Fprintf(w, "Fallback: %s\n", dir)
		store = fallback.New(fallback.Dir(dir))
	}

	if err := store.Check(); err != nil {
		return fmt.Errorf("fallback dataset has problems: %w", err)
	}
	fmt.Fprintf(w, "All %d files OK\n", len(fallback.Files))
	return nil
}

// runFallbackExport copies the bundled files into dir on dst. Existing files
// are kept unless force is set.
func runFallbackExport(w io.Writer, dst afero.Fs, dir string, force bool) error {
	if err := dst.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}

	src := fallback.Bundled()
	fmt.Fprintf(w, "Exporting fallback dataset to %s\n", dir)

	for _, name := range fallback.Files {
		destPath := filepath.Join(dir, name)
		if info, err := dst.Stat(destPath); err == nil && !force {
			fmt.Fprintf(w, "  %s already exists (%s), skipping\n", name, formatSize(info.Size()))
			continue
		}

		data, err := afero.ReadFile(src, name)
		if err != nil {
			return fmt.Errorf("read bundled %s: %w", name, err)
		}

		tmpPath := destPath + ".tmp"
		if err := afero.WriteFile(dst, tmpPath, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := dst.Rename(tmpPath, destPath); err != nil {
			_ = dst.Remove(tmpPath)
			return fmt.Errorf("rename %s: %w", name, err)
		}
		fmt.Fprintf(w, "  %s (%s)\n", name, formatSize(int64(len(data))))
	}

	fmt.Fprintf(w, "\nTo use the exported files, run:\n")
	fmt.Fprintf(w, "  cardiovar config set fallback.dir %s\n", dir)
	return nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
