package annotate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inodb/cardiovar/internal/genome"
)

// fakeSources implements every live adapter interface. Each method returns
// the configured value or error and counts its calls.
type fakeSources struct {
	freq     float64
	freqErr  error
	gene     *GeneInfo
	geneErr  error
	clinical []ClinicalRecord
	clinErr  error
	scores   []float64
	consErr  error
	tissues  []TissueExpression
	exprErr  error
	seq      string
	seqErr   error
	delay    time.Duration
	panicIn  Source

	calls sync.Map // Source -> *atomic.Int32
}

func (f *fakeSources) hit(ctx context.Context, s Source) error {
	v, _ := f.calls.LoadOrStore(s, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
	if f.panicIn == s {
		panic("adapter bug")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeSources) count(s Source) int {
	v, ok := f.calls.Load(s)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func (f *fakeSources) AlleleFrequency(ctx context.Context, _ genome.Locus) (float64, error) {
	if err := f.hit(ctx, SourcePopulationFrequency); err != nil {
		return 0, err
	}
	return f.freq, f.freqErr
}

func (f *fakeSources) GeneInfo(ctx context.Context, _ string) (*GeneInfo, error) {
	if err := f.hit(ctx, SourceGeneInfo); err != nil {
		return nil, err
	}
	return f.gene, f.geneErr
}

func (f *fakeSources) ClinicalVariants(ctx context.Context, _ genome.Locus) ([]ClinicalRecord, error) {
	if err := f.hit(ctx, SourceClinicalVariants); err != nil {
		return nil, err
	}
	return f.clinical, f.clinErr
}

func (f *fakeSources) Conservation(ctx context.Context, _ genome.Interval) ([]float64, error) {
	if err := f.hit(ctx, SourceConservation); err != nil {
		return nil, err
	}
	return f.scores, f.consErr
}

func (f *fakeSources) TissueExpression(ctx context.Context, _ string) ([]TissueExpression, error) {
	if err := f.hit(ctx, SourceTissueExpression); err != nil {
		return nil, err
	}
	return f.tissues, f.exprErr
}

func (f *fakeSources) Sequence(ctx context.Context, _ genome.Interval) (string, error) {
	if err := f.hit(ctx, SourceSequence); err != nil {
		return "", err
	}
	return f.seq, f.seqErr
}

func (f *fakeSources) all() Sources {
	return Sources{
		Frequency:    f,
		Gene:         f,
		Clinical:     f,
		Conservation: f,
		Expression:   f,
		Sequence:     f,
	}
}

// fakeFallback is an in-memory FallbackSource.
type fakeFallback struct {
	freqs   map[string]float64
	genes   map[string]*GeneInfo
	related map[string][]ClinicalRecord
	scores  map[string][]float64
	tissues map[string][]TissueExpression
	geneAt  string
	broken  error
}

func (f *fakeFallback) AlleleFrequency(l genome.Locus) (float64, error) {
	if f.broken != nil {
		return 0, f.broken
	}
	af, ok := f.freqs[l.GnomadID()]
	if !ok {
		return 0, ErrNotFound
	}
	return af, nil
}

func (f *fakeFallback) Gene(symbol string) (*GeneInfo, error) {
	if f.broken != nil {
		return nil, f.broken
	}
	g, ok := f.genes[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (f *fakeFallback) RelatedVariants(l genome.Locus) ([]ClinicalRecord, error) {
	if f.broken != nil {
		return nil, f.broken
	}
	return append([]ClinicalRecord{}, f.related[l.Key()]...), nil
}

func (f *fakeFallback) Conservation(iv genome.Interval) ([]float64, error) {
	if f.broken != nil {
		return nil, f.broken
	}
	s, ok := f.scores[iv.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (f *fakeFallback) TissueExpression(symbol string) ([]TissueExpression, error) {
	if f.broken != nil {
		return nil, f.broken
	}
	t, ok := f.tissues[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeFallback) GeneAt(string, int64) (string, bool) {
	return f.geneAt, f.geneAt != ""
}

// memCache is a map-backed Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, s Source, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[string(s)+"|"+key]
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, s Source, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[string(s)+"|"+key] = data
	c.sets++
	return nil
}
