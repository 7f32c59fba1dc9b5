// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package query coordinates a search request across the embedding cache,
// the per-tier vector indexes, and the tiered store, and degrades to a
// deterministic local embedder when the configured provider fails.
package query

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"strings"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding space. Vectors from different models are
	// never comparable, so the name is part of every cache key.
	Model() string
	Dimensions() int
}

// Reranker reorders search results against the original query text.
// Implementations return the same set of candidates with revised scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result) ([]Result, error)
}

// HashEmbedder is a deterministic local embedder: an FNV-1a hash of the
// text seeds a linear congruential generator, and the output is unit
// normalized. It carries no semantic signal but is always available,
// which makes it the degradation target when a real provider is down.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder producing dims-length vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string   { return "strata-hash-v1" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed never fails and always returns the same vector for the same text.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	vec := make([]float32, h.dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// FallbackEmbedder decorates a primary embedder with hash-embedder
// degradation: when the primary fails, the request is served locally and
// the failure is logged once per call rather than propagated. The two
// embedders share a dimension so degraded vectors stay index-compatible,
// but they are distinct models and cache under distinct keys.
type FallbackEmbedder struct {
	primary  Embedder
	fallback *HashEmbedder
	logger   *slog.Logger
}

// NewFallbackEmbedder wraps primary with hash-embedder degradation.
func NewFallbackEmbedder(primary Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{
		primary:  primary,
		fallback: NewHashEmbedder(primary.Dimensions()),
		logger:   slog.Default(),
	}
}

func (f *FallbackEmbedder) Model() string   { return f.primary.Model() }
func (f *FallbackEmbedder) Dimensions() int { return f.primary.Dimensions() }

// Embed returns the primary embedding, or the deterministic local one
// when the primary fails. Context cancellation is not degraded; the
// caller asked to stop, not the provider.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := f.EmbedSource(ctx, text)
	return vec, err
}

// EmbedSource embeds text and reports which model actually produced the
// vector. Degraded vectors must not poison the primary model's cache
// namespace, so the coordinator checks the returned name before caching.
func (f *FallbackEmbedder) EmbedSource(ctx context.Context, text string) ([]float32, string, error) {
	vec, err := f.primary.Embed(ctx, text)
	if err == nil {
		return vec, f.primary.Model(), nil
	}
	if ctx.Err() != nil {
		return nil, "", err
	}

	f.logger.Warn("embedding provider failed; serving degraded hash embedding",
		slog.String("model", f.primary.Model()),
		slog.String("error", err.Error()),
	)
	dvec, derr := f.fallback.Embed(ctx, text)
	if derr != nil {
		return nil, "", strataerr.Wrap(err, strataerr.CodeProviderEmbedFailure, "primary and fallback embedders both failed")
	}
	return dvec, f.fallback.Model(), nil
}

// KeywordReranker is a lightweight lexical reranker: result scores are
// blended with the fraction of query terms present in the record text.
// It needs no external service, making it the default when no provider
// reranker is configured but reranking is requested.
type KeywordReranker struct {
	// Blend is the weight of the lexical signal, in [0, 1].
	Blend float64
}

// Rerank reorders results by blended vector and lexical score.
func (r *KeywordReranker) Rerank(_ context.Context, query string, results []Result) ([]Result, error) {
	blend := r.Blend
	if blend <= 0 || blend > 1 {
		blend = 0.3
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return results, nil
	}

	reranked := make([]Result, len(results))
	copy(reranked, results)
	for i := range reranked {
		text := strings.ToLower(reranked[i].Record.Text)
		matched := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched++
			}
		}
		lexical := float64(matched) / float64(len(terms))
		reranked[i].Score = (1-blend)*reranked[i].Score + blend*lexical
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, nil
}
