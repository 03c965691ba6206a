package duckdb

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/cardiovar/internal/annotate"
	"github.com/inodb/cardiovar/internal/genome"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	myh9 = genome.Locus{Chrom: "22", Pos: 36191400, Ref: "A", Alt: "C"}
	lmna = genome.Locus{Chrom: "1", Pos: 156137204, Ref: "G", Alt: "A"}
)

func makeResult(l genome.Locus, gene string) *annotate.Result {
	notFound := annotate.Errorf(annotate.NotFound, "no record")
	return &annotate.Result{
		RequestID: "req-" + gene,
		Locus:     l,
		Gene:      gene,
		PopulationFrequency: annotate.Outcome[float64]{
			Source: annotate.SourcePopulationFrequency, Provenance: annotate.Live, Value: 0.00005,
		},
		GeneInfo: annotate.Outcome[*annotate.GeneInfo]{
			Source: annotate.SourceGeneInfo, Provenance: annotate.Fallback,
			Value: &annotate.GeneInfo{Symbol: gene}, Cause: notFound,
		},
		ClinicalVariants: annotate.Outcome[[]annotate.ClinicalRecord]{
			Source: annotate.SourceClinicalVariants, Provenance: annotate.Unavailable, Cause: notFound,
		},
		Conservation: annotate.Outcome[[]float64]{
			Source: annotate.SourceConservation, Provenance: annotate.Live, Value: []float64{0.1, 0.2}, Cached: true,
		},
		TissueExpression: annotate.Outcome[[]annotate.TissueExpression]{
			Source: annotate.SourceTissueExpression, Provenance: annotate.Live,
			Value: []annotate.TissueExpression{{Tissue: "Heart LV", TPM: 12.4}},
		},
		Sequence: annotate.Outcome[string]{
			Source: annotate.SourceSequence, Provenance: annotate.Unavailable,
			Cause: annotate.Errorf(annotate.NetworkFailure, "timeout"),
		},
	}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Equal(t, "", s.Path())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cardiovar.duckdb")
	s, err := Open(path)
	require.NoError(t, err)

	c := s.ResponseCache(time.Hour)
	require.NoError(t, c.Set(context.Background(), annotate.SourceSequence, "k", []byte(`"ACGT"`)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	data, ok, err := s.ResponseCache(time.Hour).Get(context.Background(), annotate.SourceSequence, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"ACGT"`, string(data))
}

// --- Response cache ---

func TestResponseCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := openInMemory(t).ResponseCache(0)

	_, ok, err := c.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, annotate.SourceGeneInfo, "MYH9", []byte(`{"symbol":"MYH9"}`)))
	data, ok, err := c.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"symbol":"MYH9"}`, string(data))

	// Key includes the source.
	_, ok, err = c.Get(ctx, annotate.SourceTissueExpression, "MYH9")
	require.NoError(t, err)
	assert.False(t, ok)

	// Replace.
	require.NoError(t, c.Set(ctx, annotate.SourceGeneInfo, "MYH9", []byte(`{"symbol":"X"}`)))
	data, _, err = c.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"X"}`, string(data))
}

func TestResponseCache_ExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	c := openInMemory(t).ResponseCache(time.Hour)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, annotate.SourcePopulationFrequency, "old", []byte("0.1")))

	now = now.Add(30 * time.Minute)
	require.NoError(t, c.Set(ctx, annotate.SourcePopulationFrequency, "new", []byte("0.2")))

	now = now.Add(45 * time.Minute)
	_, ok, err := c.Get(ctx, annotate.SourcePopulationFrequency, "old")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be served")
	_, ok, err = c.Get(ctx, annotate.SourcePopulationFrequency, "new")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Entries)
	assert.Equal(t, int64(1), stats[0].Expired)
	assert.Equal(t, int64(6), stats[0].Bytes)

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[0].Entries)
}

func TestResponseCache_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	c := openInMemory(t).ResponseCache(time.Hour)

	require.NoError(t, c.Set(ctx, annotate.SourceGeneInfo, "MYH9", []byte("1")))
	require.NoError(t, c.Set(ctx, annotate.SourceGeneInfo, "LMNA", []byte("2")))
	require.NoError(t, c.Set(ctx, annotate.SourceSequence, "chr1:0:10", []byte("3")))

	require.NoError(t, c.Invalidate(ctx, annotate.SourceGeneInfo, "MYH9"))
	_, ok, err := c.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Clear(ctx, annotate.SourceGeneInfo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

// --- Result log ---

func TestWriteAndLookupResults(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{makeResult(myh9, "MYH9")}))

	outs, err := s.LookupVariant(ctx, myh9)
	require.NoError(t, err)
	require.Len(t, outs, len(annotate.AllSources))

	bySource := make(map[annotate.Source]StoredOutcome)
	for _, o := range outs {
		bySource[o.Source] = o
		assert.Equal(t, myh9, o.Locus)
		assert.Equal(t, "MYH9", o.Gene)
	}

	freq := bySource[annotate.SourcePopulationFrequency]
	assert.Equal(t, annotate.Live, freq.Provenance)
	var af float64
	require.NoError(t, json.Unmarshal(freq.Value, &af))
	assert.Equal(t, 0.00005, af)

	assert.True(t, bySource[annotate.SourceConservation].Cached)

	gene := bySource[annotate.SourceGeneInfo]
	assert.Equal(t, annotate.Fallback, gene.Provenance)
	assert.Contains(t, gene.Reason, "not_found")

	clin := bySource[annotate.SourceClinicalVariants]
	assert.Equal(t, annotate.Unavailable, clin.Provenance)
	assert.Nil(t, clin.Value)

	outs, err = s.LookupVariant(ctx, lmna)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestLookupVariant_LatestWins(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	first := makeResult(myh9, "MYH9")
	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{first}))

	time.Sleep(5 * time.Millisecond)
	second := makeResult(myh9, "MYH9")
	second.RequestID = "second"
	second.Sequence = annotate.Outcome[string]{
		Source: annotate.SourceSequence, Provenance: annotate.Live, Value: "ACGT",
	}
	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{second}))

	outs, err := s.LookupVariant(ctx, myh9)
	require.NoError(t, err)
	require.Len(t, outs, len(annotate.AllSources))
	for _, o := range outs {
		assert.Equal(t, "second", o.RequestID)
	}
}

func TestSearchByGene(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{
		makeResult(myh9, "MYH9"),
		makeResult(lmna, "LMNA"),
	}))

	outs, err := s.SearchByGene(ctx, "myh9")
	require.NoError(t, err)
	assert.Len(t, outs, len(annotate.AllSources))

	outs, err = s.SearchByGene(ctx, "TTN")
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestSearchByProvenance(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{
		makeResult(myh9, "MYH9"),
		makeResult(lmna, "LMNA"),
	}))

	outs, err := s.SearchByProvenance(ctx, "", annotate.Fallback)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, o := range outs {
		assert.Equal(t, annotate.SourceGeneInfo, o.Source)
	}

	outs, err = s.SearchByProvenance(ctx, annotate.SourceSequence, annotate.Unavailable)
	require.NoError(t, err)
	assert.Len(t, outs, 2)

	outs, err = s.SearchByProvenance(ctx, annotate.SourceSequence, annotate.Live)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestClearResults(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	require.NoError(t, s.WriteResults(ctx, []*annotate.Result{makeResult(myh9, "MYH9")}))
	require.NoError(t, s.ClearResults(ctx))

	outs, err := s.LookupVariant(ctx, myh9)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestWriteResults_Empty(t *testing.T) {
	assert.NoError(t, openInMemory(t).WriteResults(context.Background(), nil))
}

func TestResponseCache_CanceledContext(t *testing.T) {
	c := openInMemory(t).ResponseCache(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
