package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/cache"
	"github.com/inodb/cardiovar/internal/datasource/clinvar"
	"github.com/inodb/cardiovar/internal/datasource/ensembl"
	"github.com/inodb/cardiovar/internal/datasource/gnomad"
	"github.com/inodb/cardiovar/internal/datasource/gtex"
	"github.com/inodb/cardiovar/internal/datasource/ucsc"
	"github.com/inodb/cardiovar/internal/duckdb"
	"github.com/inodb/cardiovar/internal/fallback"
	"github.com/inodb/cardiovar/internal/rest"
)

// app holds the components shared by commands.
type app struct {
	cfg      settings
	logger   *zap.Logger
	store    *duckdb.Store // nil when the store is not needed or failed to open
	fallback *fallback.Store
}

// newApp loads settings and builds the logger. The store is opened when
// needStore is set or the response cache is enabled.
func newApp(needStore bool) (*app, error) {
	cfg := loadSettings(viper.GetViper())

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.FallbackDir != "" {
		a.fallback = fallback.New(fallback.Dir(cfg.FallbackDir))
	} else {
		a.fallback = fallback.NewBundled()
	}

	if needStore || cfg.CacheEnabled {
		store, err := duckdb.Open(cfg.StorePath)
		switch {
		case err == nil:
			store.SetLogger(logger.Named("store"))
			a.store = store
		case needStore:
			return nil, fmt.Errorf("open result store: %w", err)
		default:
			logger.Warn("persistent cache disabled", zap.String("path", cfg.StorePath), zap.Error(err))
		}
	}

	return a, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	return multierr.Append(err, syncLogger(a.logger))
}

// newFetcher wires the live adapters, fallback dataset and response cache.
func (a *app) newFetcher() *annotate.Fetcher {
	cfg := a.cfg

	client := rest.NewClient(rest.Options{
		UserAgent: cfg.UserAgent,
		RateLimit: cfg.RateLimit,
		Retries:   cfg.Retries,
		RetryWait: cfg.RetryWait,
	})
	client.SetLogger(a.logger.Named("rest"))

	freq := gnomad.New(client, cfg.GnomadURL, cfg.GnomadTimeout)
	freq.SetDataset(cfg.GnomadDataset)

	genes := ensembl.New(client, cfg.EnsemblURL, cfg.EnsemblTimeout)
	genes.SetLogger(a.logger.Named("ensembl"))

	genome := ucsc.New(client, cfg.UCSCURL)
	genome.SetTimeouts(cfg.ConservationTimeout, cfg.SequenceTimeout)

	f := annotate.NewFetcher(annotate.Sources{
		Frequency:    freq,
		Gene:         genes,
		Clinical:     clinvar.New(),
		Conservation: genome,
		Expression:   gtex.New(client, cfg.GTExURL, cfg.GTExTimeout),
		Sequence:     genome,
	})
	f.SetLogger(a.logger.Named("fetch"))
	f.SetFallback(a.fallback)
	f.SetConcurrency(cfg.Concurrency)
	f.SetConservationFlank(cfg.ConservationFlank)
	f.SetSequenceLength(cfg.SequenceLength)
	f.SetInferGene(cfg.InferGene)

	if cfg.CacheEnabled {
		var persistent annotate.Cache
		if a.store != nil {
			persistent = a.store.ResponseCache(cfg.CacheTTL)
		}
		layered := cache.NewLayered(cache.NewMemory(cfg.MemoryCacheTTL), persistent)
		layered.SetLogger(a.logger.Named("cache"))
		f.SetCache(layered)
	}

	return f
}

// syncLogger flushes the logger, ignoring the error stderr returns on
// terminals that do not support fsync.
func syncLogger(l *zap.Logger) error {
	if err := l.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return err
	}
	return nil
}
