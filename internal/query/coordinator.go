// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package query

import (
	"context"
	"log/slog"
	"sort"

	"github.com/strata-dev/strata/internal/cache"
	"github.com/strata-dev/strata/internal/index"
	"github.com/strata-dev/strata/internal/retry"
	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// defaultTopK bounds a request that does not say how many results it wants.
const defaultTopK = 10

// overFetch is how many extra index candidates are pulled per tier so
// metadata filtering and hydration drop-outs still leave TopK results.
const overFetch = 3

// Result pairs a hydrated record with its similarity score in [0, 1].
type Result struct {
	Record *store.Record
	Score  float64
}

// TierSearcher is the per-tier in-memory index surface the coordinator
// searches. A tier whose index is still warm-loading returns a
// resource-class not-ready error, which the retry policy absorbs.
type TierSearcher interface {
	Search(ctx context.Context, layer store.Layer, vec []float32, k int) ([]index.Result, error)
}

// Request describes one search.
type Request struct {
	Text string
	// Layers restricts the search; empty means all three tiers.
	Layers []store.Layer
	TopK   int
	Filter store.RecordFilter
	// Rerank reorders results with the configured reranker (or a lexical
	// fallback) before truncation.
	Rerank bool
	// Hybrid additionally consults the store's exact KNN scan and merges,
	// covering records the in-memory index has not absorbed yet.
	Hybrid bool
}

// Options wires a Coordinator. Store, Searcher and Embedder are required;
// Cache and Reranker are optional.
type Options struct {
	Store    store.TieredStore
	Cache    *cache.Cache
	Searcher TierSearcher
	Embedder Embedder
	Reranker Reranker

	// Zero-valued policies fall back to the package presets.
	IndexPolicy   retry.Policy
	StoragePolicy retry.Policy

	Logger *slog.Logger
}

// Coordinator executes search requests: embed (through the cache), search
// each tier's index under retry, hydrate from the store, filter, optionally
// rerank, and rank the merged result set.
type Coordinator struct {
	store    store.TieredStore
	cache    *cache.Cache
	searcher TierSearcher
	embedder Embedder
	reranker Reranker

	indexPolicy   retry.Policy
	storagePolicy retry.Policy
	logger        *slog.Logger
}

// New validates options and builds a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "coordinator requires a tiered store")
	}
	if opts.Searcher == nil {
		return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "coordinator requires a tier searcher")
	}
	if opts.Embedder == nil {
		return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "coordinator requires an embedder")
	}
	if opts.IndexPolicy.MaxAttempts == 0 {
		opts.IndexPolicy = retry.IndexPolicy()
	}
	if opts.StoragePolicy.MaxAttempts == 0 {
		opts.StoragePolicy = retry.StoragePolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:         opts.Store,
		cache:         opts.Cache,
		searcher:      opts.Searcher,
		embedder:      opts.Embedder,
		reranker:      opts.Reranker,
		indexPolicy:   opts.IndexPolicy,
		storagePolicy: opts.StoragePolicy,
		logger:        opts.Logger,
	}, nil
}

// Embedding returns the vector for text, consulting the cache first and
// populating it on a provider round trip. Cache failures are logged and
// bypassed; the cache is an accelerator, never a gate.
func (c *Coordinator) Embedding(ctx context.Context, text string) ([]float32, error) {
	model := c.embedder.Model()
	if c.cache != nil {
		vec, ok, err := c.cache.Get(ctx, text, model)
		if err != nil {
			c.logger.Warn("embedding cache read failed; falling through to provider",
				slog.String("error", err.Error()))
		}
		if ok {
			return vec, nil
		}
	}

	vec, usedModel, err := c.embedSource(ctx, text)
	if err != nil {
		return nil, err
	}
	// Degraded vectors are never cached: the hash fallback is deterministic
	// and cheap, and reads only consult the primary model's namespace, so a
	// fallback entry could never be served anyway.
	if c.cache != nil && usedModel == model {
		if err := c.cache.Insert(ctx, text, model, vec); err != nil {
			c.logger.Warn("embedding cache write failed",
				slog.String("model", model),
				slog.String("error", err.Error()))
		}
	}
	return vec, nil
}

func (c *Coordinator) embedSource(ctx context.Context, text string) ([]float32, string, error) {
	type sourced interface {
		EmbedSource(ctx context.Context, text string) ([]float32, string, error)
	}
	if se, ok := c.embedder.(sourced); ok {
		return se.EmbedSource(ctx, text)
	}
	vec, err := c.embedder.Embed(ctx, text)
	return vec, c.embedder.Model(), err
}

// Search runs one request end to end. A tier whose index search fails is
// logged and skipped so one degraded tier cannot blank the whole result;
// the search only errors when every tier failed and nothing was found.
func (c *Coordinator) Search(ctx context.Context, req Request) ([]Result, error) {
	if req.Text == "" {
		return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "search text is empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	layers := req.Layers
	if len(layers) == 0 {
		layers = store.Layers()
	}
	for _, layer := range layers {
		if !layer.Valid() {
			return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "unknown tier in search request",
				strataerr.FieldLayer(string(layer)))
		}
	}

	vec, err := c.Embedding(ctx, req.Text)
	if err != nil {
		return nil, strataerr.Wrap(err, strataerr.CodeQuerySearchFailure, "embedding the query failed")
	}

	fetch := topK * overFetch
	merged := make(map[string]Result)
	var lastErr error
	failedTiers := 0

	for _, layer := range layers {
		matches, err := retry.Value(ctx, c.indexPolicy, "index.search", func() ([]index.Result, error) {
			return c.searcher.Search(ctx, layer, vec, fetch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, strataerr.Wrap(err, strataerr.CodeQuerySearchTimeout, "search interrupted",
					strataerr.FieldLayer(string(layer)))
			}
			c.logger.Warn("tier index search failed; continuing with remaining tiers",
				slog.String("layer", string(layer)),
				slog.String("error", err.Error()))
			lastErr = err
			failedTiers++
			continue
		}
		c.hydrate(ctx, layer, matches, req.Filter, merged)

		if req.Hybrid {
			c.hybridScan(ctx, layer, vec, fetch, req.Filter, merged)
		}
	}

	if failedTiers == len(layers) && len(merged) == 0 {
		return nil, strataerr.Wrap(lastErr, strataerr.CodeQuerySearchFailure, "every tier failed to search")
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}

	if req.Rerank {
		results, err = c.rerank(ctx, req.Text, results)
		if err != nil {
			c.logger.Warn("rerank failed; returning vector ordering",
				slog.String("error", err.Error()))
		}
	}

	rank(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// hydrate loads records for index matches and folds them into merged.
// Reads go through GetByID so a search hit counts as an access. A match
// whose record is gone is a benign race with expiry or promotion.
func (c *Coordinator) hydrate(ctx context.Context, layer store.Layer, matches []index.Result, f store.RecordFilter, merged map[string]Result) {
	for _, m := range matches {
		rec, err := retry.Value(ctx, c.storagePolicy, "store.record.get", func() (*store.Record, error) {
			return c.store.GetByID(ctx, m.ID, layer)
		})
		if err != nil {
			if !strataerr.IsNotFound(err) {
				c.logger.Warn("dropping match that failed to hydrate",
					slog.String("record_id", m.ID),
					slog.String("layer", string(layer)),
					slog.String("error", err.Error()))
			}
			continue
		}
		if !matchesFilter(rec, f) {
			continue
		}
		fold(merged, Result{Record: rec, Score: m.Score})
	}
}

// hybridScan merges exact store-side KNN matches into the result set,
// catching records that were inserted after the last index warm load.
// Failures degrade to index-only results.
func (c *Coordinator) hybridScan(ctx context.Context, layer store.Layer, vec []float32, k int, f store.RecordFilter, merged map[string]Result) {
	matches, err := retry.Value(ctx, c.storagePolicy, "store.vector.search", func() ([]store.VectorMatch, error) {
		return c.store.SearchVectors(ctx, layer, vec, k)
	})
	if err != nil {
		c.logger.Warn("store-side vector scan failed; using index results only",
			slog.String("layer", string(layer)),
			slog.String("error", err.Error()))
		return
	}
	allowed := c.filterScan(ctx, layer, f)
	for _, m := range matches {
		score := 1 - m.Distance
		if score < 0 {
			score = 0
		}
		if allowed != nil {
			if rec, ok := allowed[m.ID]; ok {
				fold(merged, Result{Record: rec, Score: score})
			}
			continue
		}
		rec, err := c.store.PeekByID(ctx, m.ID, layer)
		if err != nil {
			continue
		}
		if !matchesFilter(rec, f) {
			continue
		}
		fold(merged, Result{Record: rec, Score: score})
	}
}

// filterScanCap bounds the metadata pre-scan. A filter matching more
// records than this cannot be resolved to a complete set up front.
const filterScanCap = 1024

// filterScan resolves a non-empty filter to its matching records in one
// store query so KNN hits intersect against a set instead of a peek per
// hit. Returns nil when the filter is empty, the scan fails, or the match
// set overflows the cap; callers then fall back to per-record filtering.
func (c *Coordinator) filterScan(ctx context.Context, layer store.Layer, f store.RecordFilter) map[string]*store.Record {
	if f.Kind == "" && f.Project == "" && f.Session == "" && f.MinScore <= 0 && len(f.Tags) == 0 {
		return nil
	}
	pf := f
	pf.Limit = filterScanCap
	recs, err := c.store.FilterByMetadata(ctx, layer, pf)
	if err != nil {
		c.logger.Warn("metadata pre-scan failed; filtering per record",
			slog.String("layer", string(layer)),
			slog.String("error", err.Error()))
		return nil
	}
	if len(recs) >= filterScanCap {
		return nil
	}
	allowed := make(map[string]*store.Record, len(recs))
	for _, rec := range recs {
		allowed[rec.ID] = rec
	}
	return allowed
}

func (c *Coordinator) rerank(ctx context.Context, text string, results []Result) ([]Result, error) {
	rr := c.reranker
	if rr == nil {
		rr = &KeywordReranker{}
	}
	reranked, err := rr.Rerank(ctx, text, results)
	if err != nil {
		return results, strataerr.Wrap(err, strataerr.CodeProviderRerankFailure, "reranking results")
	}
	return reranked, nil
}

// fold keeps the best score per record id.
func fold(merged map[string]Result, r Result) {
	if prev, ok := merged[r.Record.ID]; ok && prev.Score >= r.Score {
		return
	}
	merged[r.Record.ID] = r
}

// rank orders by score descending, breaking ties by most recent access.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.LastAccess.After(results[j].Record.LastAccess)
	})
}

func matchesFilter(rec *store.Record, f store.RecordFilter) bool {
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.Project != "" && rec.Project != f.Project {
		return false
	}
	if f.Session != "" && rec.Session != f.Session {
		return false
	}
	if f.MinScore > 0 && rec.Score < f.MinScore {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range rec.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
