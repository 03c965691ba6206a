package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/cardiovar/internal/annotate"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	_, ok, err := m.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	assert.False(t, ok)

	data := []byte(`{"symbol":"MYH9"}`)
	require.NoError(t, m.Set(ctx, annotate.SourceGeneInfo, "MYH9", data))
	data[0] = 'X'

	got, ok, err := m.Get(ctx, annotate.SourceGeneInfo, "MYH9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"symbol":"MYH9"}`, string(got))

	_, ok, _ = m.Get(ctx, annotate.SourceTissueExpression, "MYH9")
	assert.False(t, ok, "keys are scoped by source")

	assert.Equal(t, 1, m.Len())
	m.Flush()
	assert.Equal(t, 0, m.Len())
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20 * time.Millisecond)

	require.NoError(t, m.Set(ctx, annotate.SourceSequence, "k", []byte("x")))
	time.Sleep(40 * time.Millisecond)

	_, ok, err := m.Get(ctx, annotate.SourceSequence, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// failingCache errors on every call.
type failingCache struct{}

var errTier = errors.New("tier down")

func (failingCache) Get(context.Context, annotate.Source, string) ([]byte, bool, error) {
	return nil, false, errTier
}

func (failingCache) Set(context.Context, annotate.Source, string, []byte) error {
	return errTier
}

func TestLayered_BackFill(t *testing.T) {
	ctx := context.Background()
	fast := NewMemory(time.Minute)
	slow := NewMemory(time.Minute)
	l := NewLayered(fast, nil, slow)

	require.NoError(t, slow.Set(ctx, annotate.SourceGeneInfo, "LMNA", []byte("1")))

	got, ok, err := l.Get(ctx, annotate.SourceGeneInfo, "LMNA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(got))

	got, ok, err = fast.Get(ctx, annotate.SourceGeneInfo, "LMNA")
	require.NoError(t, err)
	assert.True(t, ok, "hit in slow tier is copied to fast tier")
	assert.Equal(t, "1", string(got))
}

func TestLayered_SetWritesAllTiers(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemory(time.Minute), NewMemory(time.Minute)
	l := NewLayered(a, b)

	require.NoError(t, l.Set(ctx, annotate.SourceConservation, "chr1:0:2", []byte("[0,1]")))
	for _, tier := range []*Memory{a, b} {
		_, ok, err := tier.Get(ctx, annotate.SourceConservation, "chr1:0:2")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestLayered_TierErrors(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(time.Minute)
	l := NewLayered(failingCache{}, mem)

	// Set reports the failing tier but still writes the healthy one.
	err := l.Set(ctx, annotate.SourceGeneInfo, "TTN", []byte("1"))
	assert.ErrorIs(t, err, errTier)

	got, ok, err := l.Get(ctx, annotate.SourceGeneInfo, "TTN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(got))

	_, ok, err = l.Get(ctx, annotate.SourceGeneInfo, "MISSING")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errTier)
}
