package cache

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/inodb/cardiovar/internal/annotate"
)

// Layered reads through a list of caches, fastest first. A hit in a slower
// tier is copied into the faster tiers above it. Writes go to every tier.
type Layered struct {
	tiers  []annotate.Cache
	logger *zap.Logger
}

var _ annotate.Cache = (*Layered)(nil)

// NewLayered combines tiers, ordered fastest first. Nil tiers are skipped.
func NewLayered(tiers ...annotate.Cache) *Layered {
	l := &Layered{logger: zap.NewNop()}
	for _, t := range tiers {
		if t != nil {
			l.tiers = append(l.tiers, t)
		}
	}
	return l
}

// SetLogger sets the logger for tier failures.
func (l *Layered) SetLogger(logger *zap.Logger) {
	l.logger = logger
}

// Get returns the first hit. Tier errors are skipped; they are returned only
// when no tier had the entry.
func (l *Layered) Get(ctx context.Context, source annotate.Source, key string) ([]byte, bool, error) {
	var errs error
	for i, t := range l.tiers {
		data, ok, err := t.Get(ctx, source, key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for _, upper := range l.tiers[:i] {
			if err := upper.Set(ctx, source, key, data); err != nil {
				l.logger.Warn("cache back-fill failed",
					zap.String("source", string(source)),
					zap.Error(err))
			}
		}
		return data, true, nil
	}
	return nil, false, errs
}

// Set writes to every tier and returns all failures.
func (l *Layered) Set(ctx context.Context, source annotate.Source, key string, data []byte) error {
	var errs error
	for _, t := range l.tiers {
		errs = multierr.Append(errs, t.Set(ctx, source, key, data))
	}
	return errs
}
