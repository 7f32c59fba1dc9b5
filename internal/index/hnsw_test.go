// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package index_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/strata-dev/strata/internal/index"
	strataerr "github.com/strata-dev/strata/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T, dim int) *index.Index {
	t.Helper()
	ix, err := index.New(index.DefaultConfig(dim))
	require.NoError(t, err)
	return ix
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*index.Config)
	}{
		{"zero dimension", func(c *index.Config) { c.Dimension = 0 }},
		{"zero max_connections", func(c *index.Config) { c.MaxConnections = 0 }},
		{"zero ef_construction", func(c *index.Config) { c.EfConstruction = 0 }},
		{"zero ef_search", func(c *index.Config) { c.EfSearch = 0 }},
		{"zero max_elements", func(c *index.Config) { c.MaxElements = 0 }},
		{"zero max_layers", func(c *index.Config) { c.MaxLayers = 0 }},
		{"ef_construction below max_connections", func(c *index.Config) {
			c.MaxConnections = 32
			c.EfConstruction = 16
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := index.DefaultConfig(8)
			tt.mutate(&cfg)
			_, err := index.New(cfg)
			require.Error(t, err)
			assert.True(t, strataerr.IsValidation(err))
		})
	}
}

func TestPresetsAreValid(t *testing.T) {
	for name, cfg := range map[string]index.Config{
		"default":       index.DefaultConfig(384),
		"high quality":  index.HighQuality(384),
		"ultra fast":    index.UltraFast(384),
		"small dataset": index.SmallDataset(384),
		"large dataset": index.LargeDataset(384),
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestAddAndSearchExactMatch(t *testing.T) {
	ctx := context.Background()
	ix := testIndex(t, 3)

	require.NoError(t, ix.Add("east", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("north", []float32{0, 1, 0}))
	require.NoError(t, ix.Add("up", []float32{0, 0, 1}))

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	ix := testIndex(t, 3)

	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))

	_, err := ix.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
	assert.True(t, strataerr.IsValidation(err))

	err = ix.Add("b", []float32{1, 0, 0, 0})
	require.Error(t, err)
	assert.True(t, strataerr.IsValidation(err))
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := testIndex(t, 3)
	results, err := ix.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	ix := testIndex(t, 3)

	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	assert.True(t, ix.Remove("a"))
	assert.False(t, ix.Remove("a"))
	assert.False(t, ix.Remove("never existed"))
	assert.Equal(t, 1, ix.Len())

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestAddReplacesExisting(t *testing.T) {
	ctx := context.Background()
	ix := testIndex(t, 3)

	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("a", []float32{0, 1, 0}))
	assert.Equal(t, 1, ix.Len())

	results, err := ix.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestGraphSearchRecallAboveLinearThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := index.DefaultConfig(16)
	cfg.LinearScanThreshold = 1 // force graph traversal
	ix, err := index.New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(42, 0))
	items := make(map[string][]float32, 500)
	for i := 0; i < 500; i++ {
		vec := make([]float32, 16)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		items[fmt.Sprintf("v%03d", i)] = vec
	}
	require.NoError(t, ix.AddBatch(items))
	assert.Equal(t, 500, ix.Len())

	// The query equals a stored vector; the graph must surface it at rank 1.
	query := items["v042"]
	results, err := ix.Search(ctx, query, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "v042", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestRebuildAfterManyRemovals(t *testing.T) {
	ctx := context.Background()
	cfg := index.DefaultConfig(8)
	cfg.RebuildThreshold = 10
	ix, err := index.New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 0))
	for i := 0; i < 100; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		require.NoError(t, ix.Add(fmt.Sprintf("v%02d", i), vec))
	}

	for i := 0; i < 50; i++ {
		require.True(t, ix.Remove(fmt.Sprintf("v%02d", i)))
	}
	assert.Equal(t, 50, ix.Len())

	// Search still works over the rebuilt graph.
	vec := make([]float32, 8)
	vec[0] = 1
	results, err := ix.Search(ctx, vec, 10)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.ID, "v50", "removed element %s must not surface", r.ID)
	}
}

func TestSearchTimeout(t *testing.T) {
	ix := testIndex(t, 3)
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := ix.Search(ctx, []float32{1, 0, 0}, 1)
	require.Error(t, err)
	assert.True(t, strataerr.IsTimeout(err))
}

func TestCapacityExceeded(t *testing.T) {
	cfg := index.DefaultConfig(3)
	cfg.MaxElements = 2
	ix, err := index.New(cfg)
	require.NoError(t, err)

	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	err = ix.Add("c", []float32{0, 0, 1})
	require.Error(t, err)
	assert.True(t, strataerr.HasCode(err, strataerr.CodeIndexCapacityExceeded))
}

func TestReplaceAtCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := index.DefaultConfig(3)
	cfg.MaxElements = 2
	ix, err := index.New(cfg)
	require.NoError(t, err)

	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	// Replacing an existing id does not grow the index, so it must be
	// accepted even when live count equals max_elements.
	require.NoError(t, ix.Add("a", []float32{0, 0, 1}))
	assert.Equal(t, 2, ix.Len())

	results, err := ix.Search(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	// A genuinely new id is still rejected.
	err = ix.Add("c", []float32{1, 1, 0})
	require.Error(t, err)
	assert.True(t, strataerr.HasCode(err, strataerr.CodeIndexCapacityExceeded))
}

func TestStats(t *testing.T) {
	ix := testIndex(t, 3)
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	stats := ix.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Greater(t, stats.MemoryBytes, int64(0))
}

func TestConcurrentReadWrite(t *testing.T) {
	ctx := context.Background()
	ix := testIndex(t, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rng := rand.New(rand.NewPCG(1, 0))
		for i := 0; i < 200; i++ {
			vec := make([]float32, 8)
			for j := range vec {
				vec[j] = float32(rng.NormFloat64())
			}
			_ = ix.Add(fmt.Sprintf("w%03d", i), vec)
		}
	}()

	vec := make([]float32, 8)
	vec[0] = 1
	for i := 0; i < 100; i++ {
		_, err := ix.Search(ctx, vec, 5)
		require.NoError(t, err)
	}
	<-done
	assert.Equal(t, 200, ix.Len())
}
