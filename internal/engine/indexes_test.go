// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/internal/index"
	"github.com/strata-dev/strata/internal/store"
	"github.com/strata-dev/strata/internal/store/sqlite"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

func testIndexes(t *testing.T) *TierIndexes {
	t.Helper()
	ti, err := NewTierIndexes(index.SmallDataset(3), nil)
	require.NoError(t, err)
	return ti
}

func TestSearchBeforeReadyIsResourceError(t *testing.T) {
	ti := testIndexes(t)

	_, err := ti.Search(context.Background(), store.LayerInteract, []float32{1, 0, 0}, 5)
	require.Error(t, err)
	assert.True(t, strataerr.IsResource(err), "not-ready must be retryable")
	assert.Equal(t, strataerr.CodeIndexNotReady, strataerr.CodeOf(err))
}

func TestMutationsAcceptedWhileLoading(t *testing.T) {
	ti := testIndexes(t)

	require.NoError(t, ti.Add(store.LayerInteract, "r1", []float32{1, 0, 0}))
	assert.True(t, ti.Remove(store.LayerInteract, "r1"))
}

func TestMarkReadyOpensAllTiers(t *testing.T) {
	ctx := context.Background()
	ti := testIndexes(t)
	ti.MarkReady()

	for _, layer := range store.Layers() {
		_, err := ti.Search(ctx, layer, []float32{1, 0, 0}, 5)
		assert.NoError(t, err, "tier %s", layer)
	}
}

func TestWarmLoadAbsorbsStoredRecords(t *testing.T) {
	ctx := context.Background()
	ts, err := sqlite.New(t.TempDir(), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })

	embedded := store.NewRecord("has a vector")
	embedded.Embedding = []float32{1, 0, 0}
	require.NoError(t, ts.Insert(ctx, embedded))

	// No embedding: skipped by the warm load, not an error.
	bare := store.NewRecord("text only")
	require.NoError(t, ts.Insert(ctx, bare))

	archived := store.NewRecord("in assets")
	archived.Layer = store.LayerAssets
	archived.Embedding = []float32{0, 1, 0}
	require.NoError(t, ts.Insert(ctx, archived))

	ti := testIndexes(t)
	require.NoError(t, ti.WarmLoad(ctx, ts))

	stats := ti.Stats()
	assert.Equal(t, 1, stats[store.LayerInteract].Count)
	assert.Equal(t, 0, stats[store.LayerInsights].Count)
	assert.Equal(t, 1, stats[store.LayerAssets].Count)

	results, err := ti.Search(ctx, store.LayerInteract, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, embedded.ID, results[0].ID)
}

func TestResetPreservesReadiness(t *testing.T) {
	ctx := context.Background()
	ti := testIndexes(t)

	require.NoError(t, ti.Reset(store.LayerInteract))
	_, err := ti.Search(ctx, store.LayerInteract, []float32{1, 0, 0}, 5)
	require.Error(t, err, "resetting an offline tier keeps it offline")

	ti.MarkReady()
	require.NoError(t, ti.Add(store.LayerInteract, "r1", []float32{1, 0, 0}))
	require.NoError(t, ti.Reset(store.LayerInteract))

	results, err := ti.Search(ctx, store.LayerInteract, []float32{1, 0, 0}, 5)
	require.NoError(t, err, "resetting a ready tier keeps it searchable")
	assert.Empty(t, results)
}

func TestUnknownTierRejected(t *testing.T) {
	ti := testIndexes(t)
	_, err := ti.Search(context.Background(), "scratch", []float32{1, 0, 0}, 5)
	require.Error(t, err)
	assert.False(t, ti.Remove("scratch", "r1"))
}
