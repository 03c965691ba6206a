// Package annotate fetches provenance-tagged variant annotations from
// independent remote sources, degrading per source to bundled fallback data.
package annotate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/cardiovar/internal/genome"
)

// Default request windows.
const (
	DefaultConservationFlank = 100
	DefaultSequenceLength    = 196_608 // Enformer input length
)

// Cache stores live source values keyed by (source, query key).
type Cache interface {
	Get(ctx context.Context, source Source, key string) ([]byte, bool, error)
	Set(ctx context.Context, source Source, key string, data []byte) error
}

// Fetcher runs every source for a request and assembles the Result.
type Fetcher struct {
	sources           Sources
	fallback          FallbackSource
	cache             Cache
	logger            *zap.Logger
	concurrency       int
	conservationFlank int64
	sequenceLength    int64
	inferGene         bool
}

// NewFetcher creates a fetcher over the given live adapters.
func NewFetcher(sources Sources) *Fetcher {
	return &Fetcher{
		sources:           sources,
		logger:            zap.NewNop(),
		conservationFlank: DefaultConservationFlank,
		sequenceLength:    DefaultSequenceLength,
		inferGene:         true,
	}
}

// SetLogger sets the logger for source failures and fallback use.
func (f *Fetcher) SetLogger(l *zap.Logger) {
	f.logger = l
}

// SetFallback sets the bundled dataset consulted when a live source fails.
func (f *Fetcher) SetFallback(fb FallbackSource) {
	f.fallback = fb
}

// SetCache sets the response cache. Only live values are stored.
func (f *Fetcher) SetCache(c Cache) {
	f.cache = c
}

// SetConcurrency limits how many sources are fetched at once.
// 1 fetches sequentially; 0 or less fetches all sources in parallel.
func (f *Fetcher) SetConcurrency(n int) {
	f.concurrency = n
}

// SetConservationFlank sets the number of bases scored on each side of the variant.
func (f *Fetcher) SetConservationFlank(flank int64) {
	f.conservationFlank = flank
}

// SetSequenceLength sets the length of the sequence window centred on the variant.
func (f *Fetcher) SetSequenceLength(n int64) {
	f.sequenceLength = n
}

// SetInferGene controls whether a missing gene symbol is looked up from the
// fallback gene coordinates.
func (f *Fetcher) SetInferGene(infer bool) {
	f.inferGene = infer
}

// Fetch retrieves all sources for a locus. geneSymbol may be empty.
// The returned Result always carries an outcome for every source.
func (f *Fetcher) Fetch(ctx context.Context, l genome.Locus, geneSymbol string) *Result {
	r := &Result{
		RequestID: uuid.NewString(),
		Locus:     l,
		Gene:      strings.TrimSpace(geneSymbol),
	}
	if r.Gene == "" && f.inferGene && f.fallback != nil {
		if sym, ok := f.fallback.GeneAt(l.Chrom, l.Pos); ok {
			r.Gene = sym
			r.GeneInferred = true
		}
	}

	log := f.logger.With(
		zap.String("request_id", r.RequestID),
		zap.Stringer("variant", l),
		zap.String("gene", r.Gene))

	consIv := l.Window(f.conservationFlank)
	seqIv := l.Centered(f.sequenceLength)

	tasks := []struct {
		source Source
		run    func(context.Context)
	}{
		{SourcePopulationFrequency, func(ctx context.Context) {
			r.PopulationFrequency = run(ctx, f, log, f.frequencyStep(l))
		}},
		{SourceGeneInfo, func(ctx context.Context) {
			r.GeneInfo = run(ctx, f, log, f.geneStep(r.Gene))
		}},
		{SourceClinicalVariants, func(ctx context.Context) {
			r.ClinicalVariants = run(ctx, f, log, f.clinicalStep(l))
		}},
		{SourceConservation, func(ctx context.Context) {
			r.Conservation = run(ctx, f, log, f.conservationStep(consIv))
		}},
		{SourceTissueExpression, func(ctx context.Context) {
			r.TissueExpression = run(ctx, f, log, f.expressionStep(r.Gene))
		}},
		{SourceSequence, func(ctx context.Context) {
			r.Sequence = run(ctx, f, log, f.sequenceStep(seqIv))
		}},
	}

	var g errgroup.Group
	if f.concurrency > 0 {
		g.SetLimit(f.concurrency)
	}
	for _, t := range tasks {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Error("source panicked",
						zap.String("source", string(t.source)),
						zap.Any("panic", p))
				}
			}()
			t.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	// A recovered panic leaves its slot zero-valued; tag it explicitly.
	r.fillMissing()

	counts := r.Counts()
	log.Debug("fetched annotations",
		zap.Int("live", counts[Live]),
		zap.Int("fallback", counts[Fallback]),
		zap.Int("unavailable", counts[Unavailable]))
	return r
}

func (r *Result) fillMissing() {
	missing := Errorf(NetworkFailure, "source did not complete")
	if r.PopulationFrequency.Source == "" {
		r.PopulationFrequency = unavailable[float64](SourcePopulationFrequency, missing)
	}
	if r.GeneInfo.Source == "" {
		r.GeneInfo = unavailable[*GeneInfo](SourceGeneInfo, missing)
	}
	if r.ClinicalVariants.Source == "" {
		r.ClinicalVariants = unavailable[[]ClinicalRecord](SourceClinicalVariants, missing)
	}
	if r.Conservation.Source == "" {
		r.Conservation = unavailable[[]float64](SourceConservation, missing)
	}
	if r.TissueExpression.Source == "" {
		r.TissueExpression = unavailable[[]TissueExpression](SourceTissueExpression, missing)
	}
	if r.Sequence.Source == "" {
		r.Sequence = unavailable[string](SourceSequence, missing)
	}
}

// step describes how one source is resolved.
type step[T any] struct {
	source   Source
	key      string                           // cache key; empty disables caching
	live     func(context.Context) (T, error) // nil when no adapter is configured
	fallback func() (T, error)                // nil when no fallback applies
	usable   func(T) bool                     // nil accepts any value
	skip     error                            // set when the query cannot be issued
}

func run[T any](ctx context.Context, f *Fetcher, log *zap.Logger, s step[T]) Outcome[T] {
	log = log.With(zap.String("source", string(s.source)))

	if s.skip != nil {
		log.Debug("source skipped", zap.Error(s.skip))
		return unavailable[T](s.source, attribute(s.source, s.skip))
	}

	if v, ok := cacheGet[T](ctx, f, log, s); ok {
		return Outcome[T]{Source: s.source, Provenance: Live, Value: v, Cached: true}
	}

	var cause error
	if s.live == nil {
		cause = attribute(s.source, Errorf(NotFound, "no live adapter configured"))
	} else {
		v, err := s.live(ctx)
		if err == nil && s.usable != nil && !s.usable(v) {
			err = Errorf(NotFound, "no usable data")
		}
		if err == nil {
			cachePut(ctx, f, log, s, v)
			return Outcome[T]{Source: s.source, Provenance: Live, Value: v}
		}
		cause = attribute(s.source, err)
		log.Warn("live source failed",
			zap.Stringer("kind", Classify(cause)),
			zap.Error(cause))
	}

	if s.fallback != nil {
		v, err := s.fallback()
		if err == nil && s.usable != nil && !s.usable(v) {
			err = ErrNotFound
		}
		if err == nil {
			log.Info("using fallback data")
			return Outcome[T]{Source: s.source, Provenance: Fallback, Value: v, Cause: cause}
		}
		if Classify(err) == NotFound {
			log.Debug("no fallback entry")
		} else {
			log.Warn("fallback lookup failed", zap.Error(err))
		}
	}

	return unavailable[T](s.source, cause)
}

func cacheGet[T any](ctx context.Context, f *Fetcher, log *zap.Logger, s step[T]) (T, bool) {
	var v T
	if f.cache == nil || s.key == "" {
		return v, false
	}
	data, ok, err := f.cache.Get(ctx, s.source, s.key)
	if err != nil {
		log.Warn("cache read failed", zap.Error(err))
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn("discarding undecodable cache entry", zap.Error(err))
		return v, false
	}
	log.Debug("cache hit", zap.String("key", s.key))
	return v, true
}

func cachePut[T any](ctx context.Context, f *Fetcher, log *zap.Logger, s step[T], v T) {
	if f.cache == nil || s.key == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := f.cache.Set(ctx, s.source, s.key, data); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
}

var errNoGene = Errorf(NotFound, "no gene symbol supplied or inferred")

// geneKey normalises a symbol for cache keys.
func geneKey(symbol string) string {
	return strings.ToUpper(symbol)
}

func (f *Fetcher) frequencyStep(l genome.Locus) step[float64] {
	s := step[float64]{source: SourcePopulationFrequency, key: l.GnomadID()}
	if f.sources.Frequency != nil {
		s.live = func(ctx context.Context) (float64, error) {
			return f.sources.Frequency.AlleleFrequency(ctx, l)
		}
	}
	if f.fallback != nil {
		s.fallback = func() (float64, error) { return f.fallback.AlleleFrequency(l) }
	}
	return s
}

func (f *Fetcher) geneStep(symbol string) step[*GeneInfo] {
	s := step[*GeneInfo]{
		source: SourceGeneInfo,
		key:    geneKey(symbol),
		usable: func(g *GeneInfo) bool { return g != nil },
	}
	if symbol == "" {
		s.skip = errNoGene
		return s
	}
	if f.sources.Gene != nil {
		s.live = func(ctx context.Context) (*GeneInfo, error) {
			return f.sources.Gene.GeneInfo(ctx, symbol)
		}
	}
	if f.fallback != nil {
		s.fallback = func() (*GeneInfo, error) { return f.fallback.Gene(symbol) }
	}
	return s
}

func (f *Fetcher) clinicalStep(l genome.Locus) step[[]ClinicalRecord] {
	s := step[[]ClinicalRecord]{
		source: SourceClinicalVariants,
		key:    l.Key(),
		usable: func(recs []ClinicalRecord) bool { return len(recs) > 0 },
	}
	if f.sources.Clinical != nil {
		s.live = func(ctx context.Context) ([]ClinicalRecord, error) {
			return f.sources.Clinical.ClinicalVariants(ctx, l)
		}
	}
	if f.fallback != nil {
		s.fallback = func() ([]ClinicalRecord, error) { return f.fallback.RelatedVariants(l) }
	}
	return s
}

func (f *Fetcher) conservationStep(iv genome.Interval) step[[]float64] {
	s := step[[]float64]{
		source: SourceConservation,
		key:    iv.Key(),
		usable: func(scores []float64) bool { return int64(len(scores)) == iv.Width() },
	}
	if f.sources.Conservation != nil {
		s.live = func(ctx context.Context) ([]float64, error) {
			return f.sources.Conservation.Conservation(ctx, iv)
		}
	}
	if f.fallback != nil {
		s.fallback = func() ([]float64, error) { return f.fallback.Conservation(iv) }
	}
	return s
}

func (f *Fetcher) expressionStep(symbol string) step[[]TissueExpression] {
	s := step[[]TissueExpression]{
		source: SourceTissueExpression,
		key:    geneKey(symbol),
		usable: func(t []TissueExpression) bool { return t != nil },
	}
	if symbol == "" {
		s.skip = errNoGene
		return s
	}
	if f.sources.Expression != nil {
		s.live = func(ctx context.Context) ([]TissueExpression, error) {
			return f.sources.Expression.TissueExpression(ctx, symbol)
		}
	}
	if f.fallback != nil {
		s.fallback = func() ([]TissueExpression, error) { return f.fallback.TissueExpression(symbol) }
	}
	return s
}

func (f *Fetcher) sequenceStep(iv genome.Interval) step[string] {
	s := step[string]{
		source: SourceSequence,
		key:    iv.Key(),
		usable: func(seq string) bool { return seq != "" },
	}
	if f.sources.Sequence != nil {
		s.live = func(ctx context.Context) (string, error) {
			return f.sources.Sequence.Sequence(ctx, iv)
		}
	}
	return s
}
