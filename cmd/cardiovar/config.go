package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/cache"
	"github.com/inodb/cardiovar/internal/datasource/ensembl"
	"github.com/inodb/cardiovar/internal/datasource/gnomad"
	"github.com/inodb/cardiovar/internal/datasource/gtex"
	"github.com/inodb/cardiovar/internal/datasource/ucsc"
	"github.com/inodb/cardiovar/internal/duckdb"
	"github.com/inodb/cardiovar/internal/rest"
)

// envKeyReplacer maps nested keys to env names: gnomad.url -> CARDIOVAR_GNOMAD_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("rest.user_agent", rest.DefaultUserAgent)
	v.SetDefault("rest.rate_limit", 0)
	v.SetDefault("rest.retries", 0)
	v.SetDefault("rest.retry_wait", time.Second)

	v.SetDefault("gnomad.url", gnomad.DefaultURL)
	v.SetDefault("gnomad.dataset", gnomad.DefaultDataset)
	v.SetDefault("gnomad.timeout", gnomad.DefaultTimeout)
	v.SetDefault("ensembl.url", ensembl.DefaultURL)
	v.SetDefault("ensembl.timeout", ensembl.DefaultTimeout)
	v.SetDefault("ucsc.url", ucsc.DefaultURL)
	v.SetDefault("ucsc.conservation_timeout", ucsc.DefaultConservationTimeout)
	v.SetDefault("ucsc.sequence_timeout", ucsc.DefaultSequenceTimeout)
	v.SetDefault("gtex.url", gtex.DefaultURL)
	v.SetDefault("gtex.timeout", gtex.DefaultTimeout)

	v.SetDefault("fetch.concurrency", 0)
	v.SetDefault("fetch.conservation_flank", annotate.DefaultConservationFlank)
	v.SetDefault("fetch.sequence_length", annotate.DefaultSequenceLength)
	v.SetDefault("fetch.infer_gene", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_ttl", cache.DefaultMemoryTTL)
	v.SetDefault("cache.ttl", duckdb.DefaultTTL)

	v.SetDefault("store.path", filepath.Join(defaultDataDir(), "cardiovar.duckdb"))
	v.SetDefault("fallback.dir", "")
}

// settings is the resolved runtime configuration.
type settings struct {
	Verbose bool

	UserAgent string
	RateLimit float64
	Retries   int
	RetryWait time.Duration

	GnomadURL           string
	GnomadDataset       string
	GnomadTimeout       time.Duration
	EnsemblURL          string
	EnsemblTimeout      time.Duration
	UCSCURL             string
	ConservationTimeout time.Duration
	SequenceTimeout     time.Duration
	GTExURL             string
	GTExTimeout         time.Duration

	Concurrency       int
	ConservationFlank int64
	SequenceLength    int64
	InferGene         bool

	CacheEnabled   bool
	MemoryCacheTTL time.Duration
	CacheTTL       time.Duration

	StorePath   string
	FallbackDir string
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		Verbose: v.GetBool("verbose"),

		UserAgent: v.GetString("rest.user_agent"),
		RateLimit: v.GetFloat64("rest.rate_limit"),
		Retries:   v.GetInt("rest.retries"),
		RetryWait: v.GetDuration("rest.retry_wait"),

		GnomadURL:           v.GetString("gnomad.url"),
		GnomadDataset:       v.GetString("gnomad.dataset"),
		GnomadTimeout:       v.GetDuration("gnomad.timeout"),
		EnsemblURL:          v.GetString("ensembl.url"),
		EnsemblTimeout:      v.GetDuration("ensembl.timeout"),
		UCSCURL:             v.GetString("ucsc.url"),
		ConservationTimeout: v.GetDuration("ucsc.conservation_timeout"),
		SequenceTimeout:     v.GetDuration("ucsc.sequence_timeout"),
		GTExURL:             v.GetString("gtex.url"),
		GTExTimeout:         v.GetDuration("gtex.timeout"),

		Concurrency:       v.GetInt("fetch.concurrency"),
		ConservationFlank: v.GetInt64("fetch.conservation_flank"),
		SequenceLength:    v.GetInt64("fetch.sequence_length"),
		InferGene:         v.GetBool("fetch.infer_gene"),

		CacheEnabled:   v.GetBool("cache.enabled"),
		MemoryCacheTTL: v.GetDuration("cache.memory_ttl"),
		CacheTTL:       v.GetDuration("cache.ttl"),

		StorePath:   v.GetString("store.path"),
		FallbackDir: v.GetString("fallback.dir"),
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cardiovar configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.cardiovar.yaml.",
		Example: `  cardiovar config                                 # show all config
  cardiovar config set gnomad.dataset gnomad_r2_1   # query gnomAD v2
  cardiovar config set fetch.concurrency 1          # fetch sources sequentially
  cardiovar config get ucsc.sequence_timeout        # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0])
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if f := viper.ConfigFileUsed(); f != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# Config file: %s\n", f)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# No config file; showing defaults. Config file: ~/.cardiovar.yaml")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	// Parse boolean-like values
	switch value {
	case "true", "yes", "on":
		viper.Set(key, true)
	case "false", "no", "off":
		viper.Set(key, false)
	default:
		viper.Set(key, value)
	}

	// Ensure config file exists
	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".cardiovar.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(cmd *cobra.Command, key string) error {
	if !viper.IsSet(key) {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), viper.Get(key))
	return nil
}
