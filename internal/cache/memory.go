// Package cache provides response caches for the annotation fetcher.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/inodb/cardiovar/internal/annotate"
)

// Default lifetimes for the in-process tier.
const (
	DefaultMemoryTTL     = 15 * time.Minute
	DefaultCleanupPeriod = 5 * time.Minute
)

// Memory is an in-process TTL cache. It implements annotate.Cache.
type Memory struct {
	items *gocache.Cache
}

var _ annotate.Cache = (*Memory)(nil)

// NewMemory creates a memory cache. A ttl of zero or less selects DefaultMemoryTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &Memory{items: gocache.New(ttl, DefaultCleanupPeriod)}
}

func memoryKey(source annotate.Source, key string) string {
	return string(source) + "|" + key
}

// Get returns a copy of the cached bytes.
func (m *Memory) Get(_ context.Context, source annotate.Source, key string) ([]byte, bool, error) {
	v, ok := m.items.Get(memoryKey(source, key))
	if !ok {
		return nil, false, nil
	}
	data := v.([]byte)
	return append([]byte(nil), data...), true, nil
}

// Set stores a copy of data with the default TTL.
func (m *Memory) Set(_ context.Context, source annotate.Source, key string, data []byte) error {
	m.items.SetDefault(memoryKey(source, key), append([]byte(nil), data...))
	return nil
}

// Len returns the number of entries, including expired ones not yet cleaned up.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Flush removes all entries.
func (m *Memory) Flush() {
	m.items.Flush()
}
