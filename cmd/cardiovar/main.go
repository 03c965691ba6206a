// Package main provides the cardiovar command-line tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks errors caused by bad arguments.
type usageError struct{ error }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "cardiovar",
		Short: "Cardiovascular variant annotation fetcher",
		Long: `cardiovar fetches population frequency, gene information, clinical
significance, conservation, tissue expression and reference sequence for a
variant from public services. Each source falls back to a bundled dataset
when its service fails, and every value is tagged live, fallback or
unavailable.`,
		Example: `  cardiovar fetch 22 36191400 A C --gene MYH9
  cardiovar batch variants.vcf.gz --store results.duckdb
  cardiovar search --gene MYH9`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.cardiovar.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newFallbackCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cardiovar version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// initConfig reads the config file and environment into viper.
func initConfig(cfgFile string) error {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".cardiovar")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CARDIOVAR")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// newLogger builds the process logger. Verbose mode logs debug output in
// console format; otherwise only warnings and errors are written as JSON.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// defaultDataDir returns ~/.cardiovar, or the working directory if the home
// directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cardiovar"
	}
	return filepath.Join(home, ".cardiovar")
}
