// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package query

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/internal/store"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	emb := NewHashEmbedder(384)

	a, err := emb.Embed(ctx, "the same text")
	require.NoError(t, err)
	b, err := emb.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := emb.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 384)
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	emb := NewHashEmbedder(64)
	vec, err := emb.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestFallbackEmbedderServesPrimary(t *testing.T) {
	ctx := context.Background()
	primary := &stubEmbedder{vectors: map[string][]float32{"hello": {1, 0, 0}}}
	fb := NewFallbackEmbedder(primary)

	vec, model, err := fb.EmbedSource(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, "stub-v1", model)
	assert.Equal(t, "stub-v1", fb.Model())
}

func TestFallbackEmbedderDegrades(t *testing.T) {
	ctx := context.Background()
	primary := &stubEmbedder{fail: true}
	fb := NewFallbackEmbedder(primary)

	vec, model, err := fb.EmbedSource(ctx, "provider is down")
	require.NoError(t, err, "degradation absorbs the provider failure")
	assert.Equal(t, "strata-hash-v1", model, "the fallback model is reported as the source")
	assert.Len(t, vec, testDims)

	again, _, err := fb.EmbedSource(ctx, "provider is down")
	require.NoError(t, err)
	assert.Equal(t, vec, again, "degraded embeddings stay deterministic")
}

func TestFallbackEmbedderHonorsCancellation(t *testing.T) {
	primary := &stubEmbedder{fail: true}
	fb := NewFallbackEmbedder(primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fb.EmbedSource(ctx, "cancelled")
	require.Error(t, err, "cancellation is not degraded away")
}

func TestKeywordRerankerPromotesLexicalMatches(t *testing.T) {
	recA := &store.Record{ID: "a", Text: "quarterly revenue report for finance"}
	recB := &store.Record{ID: "b", Text: "holiday photo album"}

	results := []Result{
		{Record: recB, Score: 0.9},
		{Record: recA, Score: 0.8},
	}

	rr := &KeywordReranker{}
	out, err := rr.Rerank(context.Background(), "quarterly revenue report", results)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Record.ID)

	// Input order is untouched.
	assert.Equal(t, "b", results[0].Record.ID)
}

func TestKeywordRerankerEmptyQuery(t *testing.T) {
	results := []Result{{Record: &store.Record{ID: "a", Text: "x"}, Score: 0.5}}
	out, err := (&KeywordReranker{}).Rerank(context.Background(), "   ", results)
	require.NoError(t, err)
	assert.Equal(t, results, out)
}
