// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package engine composes the tiered store, per-tier vector indexes,
// embedding cache, query coordinator, and promotion engines into one
// runtime, and owns the background promotion loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strata-dev/strata/internal/cache"
	"github.com/strata-dev/strata/internal/config"
	"github.com/strata-dev/strata/internal/index"
	"github.com/strata-dev/strata/internal/promotion"
	"github.com/strata-dev/strata/internal/query"
	"github.com/strata-dev/strata/internal/retry"
	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Option customizes engine construction.
type Option func(*options)

type options struct {
	embedder query.Embedder
	reranker query.Reranker
	logger   *slog.Logger
}

// WithEmbedder injects a provider embedder in place of the built-in
// deterministic one. When provider.fallback is enabled it is wrapped
// with hash-embedder degradation.
func WithEmbedder(e query.Embedder) Option { return func(o *options) { o.embedder = e } }

// WithReranker injects a provider reranker.
func WithReranker(r query.Reranker) Option { return func(o *options) { o.reranker = r } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Engine is the assembled memory runtime.
type Engine struct {
	cfg     *config.Config
	store   store.TieredStore
	cache   *cache.Cache
	indexes *TierIndexes
	coord   *query.Coordinator
	logger  *slog.Logger

	promoRules *promotion.Engine
	promoML    *promotion.MLEngine

	storagePolicy retry.Policy

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New wires an engine from configuration, in dependency order: store,
// cache, indexes, embedder, coordinator, promotion. The indexes start
// empty and unsearchable; Start warm-loads them in the background.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}

	ts, err := store.NewTieredStore(&store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorDimensions: cfg.Storage.VectorDimensions,
	}, dataDir)
	if err != nil {
		return nil, err
	}

	cachePath, err := cfg.ResolveCachePath()
	if err != nil {
		_ = ts.Close()
		return nil, err
	}
	ec, err := cache.New(cachePath, cache.Config{MaxCost: cfg.Cache.MaxCostBytes})
	if err != nil {
		_ = ts.Close()
		return nil, err
	}

	idxCfg, err := indexConfig(cfg)
	if err != nil {
		_ = ec.Close()
		_ = ts.Close()
		return nil, err
	}
	indexes, err := NewTierIndexes(idxCfg, o.logger)
	if err != nil {
		_ = ec.Close()
		_ = ts.Close()
		return nil, err
	}

	embedder := o.embedder
	if embedder == nil {
		embedder = query.NewHashEmbedder(cfg.Storage.VectorDimensions)
	} else if cfg.Provider.Fallback {
		embedder = query.NewFallbackEmbedder(embedder)
	}

	coord, err := query.New(query.Options{
		Store:    ts,
		Cache:    ec,
		Searcher: indexes,
		Embedder: embedder,
		Reranker: o.reranker,
		Logger:   o.logger,
	})
	if err != nil {
		_ = ec.Close()
		_ = ts.Close()
		return nil, err
	}

	eng := &Engine{
		cfg:           cfg,
		store:         ts,
		cache:         ec,
		indexes:       indexes,
		coord:         coord,
		logger:        o.logger,
		storagePolicy: retry.StoragePolicy(),
		stop:          make(chan struct{}),
	}

	ruleCfg := promotion.Config{
		InteractTTLHours: cfg.Promotion.InteractTTLHours,
		InsightsTTLDays:  cfg.Promotion.InsightsTTLDays,
		PromoteThreshold: cfg.Promotion.PromoteThreshold,
		DecayFactor:      cfg.Promotion.DecayFactor,
	}
	eng.promoRules = promotion.NewEngine(ts, indexes, ruleCfg)
	if cfg.Promotion.Engine == "ml" {
		eng.promoML = promotion.NewMLEngine(ts, indexes, promotion.MLConfig{
			MinAccessThreshold:    cfg.Promotion.ML.MinAccessThreshold,
			TemporalWeight:        cfg.Promotion.ML.TemporalWeight,
			SemanticWeight:        cfg.Promotion.ML.SemanticWeight,
			UsageWeight:           cfg.Promotion.ML.UsageWeight,
			PromotionThreshold:    cfg.Promotion.ML.PromotionThreshold,
			BatchSize:             cfg.Promotion.ML.BatchSize,
			TrainingIntervalHours: cfg.Promotion.ML.TrainingIntervalHours,
		})
	}

	return eng, nil
}

// indexConfig materializes the index preset and applies any explicit
// overrides from configuration.
func indexConfig(cfg *config.Config) (index.Config, error) {
	dim := cfg.Storage.VectorDimensions
	var base index.Config
	switch cfg.Index.Preset {
	case "", "default":
		base = index.DefaultConfig(dim)
	case "high_quality":
		base = index.HighQuality(dim)
	case "ultra_fast":
		base = index.UltraFast(dim)
	case "small_dataset":
		base = index.SmallDataset(dim)
	case "large_dataset":
		base = index.LargeDataset(dim)
	default:
		return index.Config{}, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"unknown index preset %q", cfg.Index.Preset)
	}

	if cfg.Index.MaxConnections > 0 {
		base.MaxConnections = cfg.Index.MaxConnections
	}
	if cfg.Index.EfConstruction > 0 {
		base.EfConstruction = cfg.Index.EfConstruction
	}
	if cfg.Index.EfSearch > 0 {
		base.EfSearch = cfg.Index.EfSearch
	}
	if cfg.Index.MaxElements > 0 {
		base.MaxElements = cfg.Index.MaxElements
	}
	if cfg.Index.MaxLayers > 0 {
		base.MaxLayers = cfg.Index.MaxLayers
	}
	if cfg.Index.UseParallel {
		base.UseParallel = true
	}
	if cfg.Index.LinearScanThreshold > 0 {
		base.LinearScanThreshold = cfg.Index.LinearScanThreshold
	}
	if cfg.Index.RebuildThreshold > 0 {
		base.RebuildThreshold = cfg.Index.RebuildThreshold
	}
	if err := base.Validate(); err != nil {
		return index.Config{}, err
	}
	return base, nil
}

// Start warm-loads the indexes and begins the background promotion loop.
// It returns immediately; searches issued before the warm load finishes
// are retried against the not-ready tiers by the coordinator.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.indexes.WarmLoad(ctx, e.store); err != nil {
			e.logger.Error("index warm load failed; indexes remain offline",
				slog.String("error", err.Error()))
		}
	}()

	interval := time.Duration(e.cfg.Promotion.IntervalMinutes) * time.Minute
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := e.RunPromotionCycle(ctx)
				if err != nil {
					e.logger.Error("promotion cycle failed",
						slog.String("error", err.Error()))
					continue
				}
				e.logger.Info("promotion cycle complete",
					slog.Int("interact_to_insights", stats.InteractToInsights),
					slog.Int("insights_to_assets", stats.InsightsToAssets),
					slog.Int("expired_interact", stats.ExpiredInteract),
					slog.Int("expired_insights", stats.ExpiredInsights),
					slog.Int("failed", stats.Failed),
				)
			}
		}
	}()
}

// WarmLoad synchronously absorbs durable state into the indexes. One-shot
// command invocations use this instead of Start.
func (e *Engine) WarmLoad(ctx context.Context) error {
	return e.indexes.WarmLoad(ctx, e.store)
}

// Stop halts background work and waits for in-flight cycles to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Close stops background work and releases all resources.
func (e *Engine) Close() error {
	e.Stop()
	cerr := e.cache.Close()
	serr := e.store.Close()
	if cerr != nil || serr != nil {
		return strataerr.Join(cerr, serr)
	}
	return nil
}

// Insert stores a record and indexes its embedding. A record without an
// embedding is embedded first (through the cache). The record's Layer
// field selects the tier; empty defaults to Interact.
func (e *Engine) Insert(ctx context.Context, rec *store.Record) error {
	if rec == nil || rec.Text == "" {
		return strataerr.New(strataerr.CodeStoreRecordInvalid, "record text is empty")
	}
	if rec.Layer == "" {
		rec.Layer = store.LayerInteract
	}
	if !rec.Layer.Valid() {
		return strataerr.New(strataerr.CodeStoreRecordInvalid, "unknown tier",
			strataerr.FieldLayer(string(rec.Layer)))
	}

	if len(rec.Embedding) == 0 {
		vec, err := e.coord.Embedding(ctx, rec.Text)
		if err != nil {
			return err
		}
		rec.Embedding = vec
	}

	err := retry.Do(ctx, e.storagePolicy, "store.record.insert", func() error {
		return e.store.Insert(ctx, rec)
	})
	if err != nil {
		return err
	}

	if err := e.indexes.Add(rec.Layer, rec.ID, rec.Embedding); err != nil {
		// Durable state is authoritative; the index catches up on the
		// next warm load.
		e.logger.Warn("record stored but not indexed",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()))
	}
	return nil
}

// InsertBatch stores and indexes a batch atomically per tier.
func (e *Engine) InsertBatch(ctx context.Context, recs []*store.Record) error {
	for _, rec := range recs {
		if rec == nil || rec.Text == "" {
			return strataerr.New(strataerr.CodeStoreRecordInvalid, "record text is empty")
		}
		if rec.Layer == "" {
			rec.Layer = store.LayerInteract
		}
		if len(rec.Embedding) == 0 {
			vec, err := e.coord.Embedding(ctx, rec.Text)
			if err != nil {
				return err
			}
			rec.Embedding = vec
		}
	}

	err := retry.Do(ctx, e.storagePolicy, "store.record.insert", func() error {
		return e.store.InsertBatch(ctx, recs)
	})
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := e.indexes.Add(rec.Layer, rec.ID, rec.Embedding); err != nil {
			e.logger.Warn("record stored but not indexed",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Search runs a query. Only TopK is defaulted from configuration; the
// request's booleans are taken as given, since a false there cannot be
// told apart from unset. Callers resolving them from config use
// SearchDefaults.
func (e *Engine) Search(ctx context.Context, req query.Request) ([]query.Result, error) {
	if req.TopK <= 0 {
		req.TopK = e.cfg.Query.TopK
	}
	return e.coord.Search(ctx, req)
}

// SearchDefaults exposes the configured hybrid and rerank defaults for
// callers that want config-driven behavior unless explicitly overridden.
func (e *Engine) SearchDefaults() (hybrid, rerank bool) {
	return e.cfg.Query.Hybrid, e.cfg.Query.Rerank
}

// Get fetches a record by id, bumping its access accounting.
func (e *Engine) Get(ctx context.Context, id string, layer store.Layer) (*store.Record, error) {
	return retry.Value(ctx, e.storagePolicy, "store.record.get", func() (*store.Record, error) {
		return e.store.GetByID(ctx, id, layer)
	})
}

// Resolve re-resolves a weak cross-tier reference.
func (e *Engine) Resolve(ctx context.Context, ref store.MemRef) (*store.Record, error) {
	return e.store.Resolve(ctx, ref)
}

// Delete removes a record from its tier and index.
func (e *Engine) Delete(ctx context.Context, id string, layer store.Layer) error {
	err := retry.Do(ctx, e.storagePolicy, "store.record.delete", func() error {
		return e.store.DeleteByID(ctx, id, layer)
	})
	if err != nil {
		return err
	}
	e.indexes.Remove(layer, id)
	return nil
}

// MigrateStats reports one pass over the durable state.
type MigrateStats struct {
	Scanned    int
	Reembedded int
}

// Migrate scans every tier and re-embeds records whose stored vector is
// missing or does not match the configured dimension, refreshing the
// shadow vectors alongside. Run it after changing the embedding model or
// vector_dimensions, before the engine warm-loads.
func (e *Engine) Migrate(ctx context.Context) (MigrateStats, error) {
	var stats MigrateStats
	dims := e.cfg.Storage.VectorDimensions

	for _, layer := range store.Layers() {
		var fixes []*store.Record
		err := e.store.ForEach(ctx, layer, func(rec *store.Record) error {
			stats.Scanned++
			if len(rec.Embedding) == dims {
				return nil
			}
			vec, err := e.coord.Embedding(ctx, rec.Text)
			if err != nil {
				return err
			}
			rec.Embedding = vec
			fixes = append(fixes, rec)
			return nil
		})
		if err != nil {
			return stats, err
		}
		if len(fixes) == 0 {
			continue
		}

		// Writes happen after the scan so the read cursor is closed.
		err = retry.Do(ctx, e.storagePolicy, "store.record.insert", func() error {
			return e.store.InsertBatch(ctx, fixes)
		})
		if err != nil {
			return stats, err
		}
		stats.Reembedded += len(fixes)
	}
	return stats, nil
}

// RunPromotionCycle executes one promotion pass with the configured
// engine and returns unified stats.
func (e *Engine) RunPromotionCycle(ctx context.Context) (promotion.Stats, error) {
	if e.promoML != nil {
		mlStats, err := e.promoML.RunCycle(ctx)
		if err != nil {
			return promotion.Stats{}, err
		}
		// TTL expiry still applies under the learned gate.
		expiry, err := e.promoRules.RunExpiry(ctx)
		if err != nil {
			return mlStats.AsRuleStats(), err
		}
		combined := mlStats.AsRuleStats()
		combined.ExpiredInteract = expiry.ExpiredInteract
		combined.ExpiredInsights = expiry.ExpiredInsights
		combined.Failed += expiry.Failed
		return combined, nil
	}
	return e.promoRules.RunCycle(ctx)
}

// Clear wipes one tier's records and index.
func (e *Engine) Clear(ctx context.Context, layer store.Layer) error {
	if err := e.store.Clear(ctx, layer); err != nil {
		return err
	}
	return e.indexes.Reset(layer)
}

// Stats aggregates tier counts, index occupancy, and cache effectiveness.
type Stats struct {
	Tiers        store.TierCounts
	Indexes      map[store.Layer]index.Stats
	Cache        cache.Stats
	CacheHitRate float64
	CacheEntries int64
}

// Stats reports the engine's current state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	entries, err := e.cache.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Tiers:        counts,
		Indexes:      e.indexes.Stats(),
		Cache:        e.cache.Stats(),
		CacheHitRate: e.cache.HitRate(),
		CacheEntries: entries,
	}, nil
}

// BenchmarkResult reports a synthetic load run.
type BenchmarkResult struct {
	Records      int
	InsertTime   time.Duration
	Searches     int
	SearchTime   time.Duration
	AvgSearch    time.Duration
	ResultsFound int
}

// Benchmark inserts n synthetic records into Interact and runs searches
// against them, reporting wall-clock timings. Intended for sizing runs
// against a throwaway data directory.
func (e *Engine) Benchmark(ctx context.Context, n, searches int) (BenchmarkResult, error) {
	if n <= 0 {
		return BenchmarkResult{}, strataerr.New(strataerr.CodeCLIInputInvalid, "benchmark record count must be positive")
	}
	if searches <= 0 {
		searches = n / 10
		if searches == 0 {
			searches = 1
		}
	}
	// Benchmarks run against a throwaway data directory; there is no
	// durable state to warm load.
	e.indexes.MarkReady()

	recs := make([]*store.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := store.NewRecord(fmt.Sprintf("synthetic benchmark record %d", i))
		rec.Kind = "benchmark"
		recs = append(recs, rec)
	}

	start := time.Now()
	if err := e.InsertBatch(ctx, recs); err != nil {
		return BenchmarkResult{}, err
	}
	insertTime := time.Since(start)

	res := BenchmarkResult{Records: n, InsertTime: insertTime, Searches: searches}
	start = time.Now()
	for i := 0; i < searches; i++ {
		found, err := e.Search(ctx, query.Request{
			Text:   fmt.Sprintf("synthetic benchmark record %d", i%n),
			Layers: []store.Layer{store.LayerInteract},
		})
		if err != nil {
			return res, err
		}
		res.ResultsFound += len(found)
	}
	res.SearchTime = time.Since(start)
	res.AvgSearch = res.SearchTime / time.Duration(searches)
	return res, nil
}
