// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package promotion migrates records between tiers and expires stale ones.
// The rule engine applies fixed TTL and score thresholds; the ML engine
// (ml.go) replaces the gate with a learned feature score.
package promotion

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/strata-dev/strata/internal/store"
)

// TierIndexes is the slice of the vector index surface the promotion
// engines need: keeping per-tier index membership in step with migrations.
// Implementations tolerate ids that are absent from the index.
type TierIndexes interface {
	Add(layer store.Layer, id string, vec []float32) error
	Remove(layer store.Layer, id string) bool
}

// Config holds the rule-based promotion thresholds.
type Config struct {
	InteractTTLHours float64
	InsightsTTLDays  float64
	PromoteThreshold float32
	DecayFactor      float32
	// BatchLimit caps candidates fetched per transition per cycle.
	BatchLimit int
}

// DefaultConfig returns the standard promotion policy.
func DefaultConfig() Config {
	return Config{
		InteractTTLHours: 24,
		InsightsTTLDays:  7,
		PromoteThreshold: 0.5,
		DecayFactor:      0.9,
		BatchLimit:       500,
	}
}

// Stats reports one cycle's outcomes.
type Stats struct {
	InteractToInsights int
	InsightsToAssets   int
	ExpiredInteract    int
	ExpiredInsights    int
	Failed             int
}

// Total returns promotions plus expirations.
func (s Stats) Total() int {
	return s.InteractToInsights + s.InsightsToAssets + s.ExpiredInteract + s.ExpiredInsights
}

// Engine is the rule-based promotion engine.
type Engine struct {
	store   store.TieredStore
	indexes TierIndexes
	cfg     Config
	logger  *slog.Logger
	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a rule-based promotion engine. indexes may be nil when
// no vector index is attached (e.g. store-only deployments).
func NewEngine(ts store.TieredStore, indexes TierIndexes, cfg Config) *Engine {
	if cfg.InteractTTLHours <= 0 {
		cfg.InteractTTLHours = 24
	}
	if cfg.InsightsTTLDays <= 0 {
		cfg.InsightsTTLDays = 7
	}
	if cfg.DecayFactor <= 0 {
		cfg.DecayFactor = 0.9
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	return &Engine{
		store:   ts,
		indexes: indexes,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// PromotionScore ranks candidates for tie-breaking. It is not the gating
// threshold: 0.6*score + 0.2*recency + 0.2*access, where recency decays
// over days and access grows logarithmically.
func PromotionScore(rec *store.Record, now time.Time) float64 {
	ageHours := now.Sub(rec.CreatedAt).Hours()
	recency := 1 / (1 + ageHours/24)
	access := math.Log(1+float64(rec.AccessCount)) / 10
	return 0.6*float64(rec.Score) + 0.2*recency + 0.2*access
}

// RunCycle executes one full promotion pass:
//
//  1. Interact -> Insights for records older than the interact TTL with
//     score >= threshold and at least 2 accesses; promoted scores decay.
//  2. Insights -> Assets for records older than the insights TTL with
//     score >= 1.2*threshold and at least 5 accesses; assets is permanent.
//  3. Expiration: interact records older than twice the TTL and insights
//     records past their TTL that were not promoted are deleted.
//
// Step order is load-bearing: a record stuck in interact past the
// insights TTL cascades through both transitions in one pass, so step 3
// never expires a record that still qualifies for assets. Individual
// record failures are logged and skipped; the cycle never aborts on a
// single record.
func (e *Engine) RunCycle(ctx context.Context) (Stats, error) {
	var stats Stats
	now := e.now()

	interactTTL := time.Duration(e.cfg.InteractTTLHours * float64(time.Hour))
	insightsTTL := time.Duration(e.cfg.InsightsTTLDays * 24 * float64(time.Hour))

	// 1. Interact -> Insights.
	promoted, failed := e.promote(ctx, store.LayerInteract, store.LayerInsights, store.CandidateQuery{
		Before:         now.Add(-interactTTL),
		MinScore:       e.cfg.PromoteThreshold,
		MinAccessCount: 2,
		Limit:          e.cfg.BatchLimit,
	}, now, true)
	stats.InteractToInsights = promoted
	stats.Failed += failed

	// 2. Insights -> Assets. No further decay: assets is permanent.
	promoted, failed = e.promote(ctx, store.LayerInsights, store.LayerAssets, store.CandidateQuery{
		Before:         now.Add(-insightsTTL),
		MinScore:       e.cfg.PromoteThreshold * 1.2,
		MinAccessCount: 5,
		Limit:          e.cfg.BatchLimit,
	}, now, false)
	stats.InsightsToAssets = promoted
	stats.Failed += failed

	// 3. Expiration.
	expiry, err := e.RunExpiry(ctx)
	if err != nil {
		return stats, err
	}
	stats.ExpiredInteract = expiry.ExpiredInteract
	stats.ExpiredInsights = expiry.ExpiredInsights
	stats.Failed += expiry.Failed

	return stats, nil
}

// RunExpiry runs only the TTL sweeps: interact records older than twice
// the TTL and insights records past their TTL are deleted. The learned
// promotion engine pairs with this so TTLs still apply under its gate.
func (e *Engine) RunExpiry(ctx context.Context) (Stats, error) {
	var stats Stats
	now := e.now()

	interactTTL := time.Duration(e.cfg.InteractTTLHours * float64(time.Hour))
	insightsTTL := time.Duration(e.cfg.InsightsTTLDays * 24 * float64(time.Hour))

	expired, failed := e.expire(ctx, store.LayerInteract, now.Add(-2*interactTTL))
	stats.ExpiredInteract = expired
	stats.Failed += failed

	expired, failed = e.expire(ctx, store.LayerInsights, now.Add(-insightsTTL))
	stats.ExpiredInsights = expired
	stats.Failed += failed

	return stats, nil
}

// promote migrates eligible records from one tier to the next, best
// candidates first.
func (e *Engine) promote(ctx context.Context, from, to store.Layer, q store.CandidateQuery, now time.Time, decay bool) (promoted, failed int) {
	cands, err := e.store.PromotionCandidates(ctx, from, q)
	if err != nil {
		e.logger.Warn("skipping promotion transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		return 0, 1
	}

	sort.Slice(cands, func(i, j int) bool {
		return PromotionScore(cands[i], now) > PromotionScore(cands[j], now)
	})

	for _, rec := range cands {
		if decay {
			rec.Score *= e.cfg.DecayFactor
			if rec.Score > 1 {
				rec.Score = 1
			}
		}

		if err := e.store.Move(ctx, rec, from, to); err != nil {
			e.logger.Warn("skipping record that failed to migrate",
				slog.String("record_id", rec.ID),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}

		if e.indexes != nil {
			e.indexes.Remove(from, rec.ID)
			if len(rec.Embedding) > 0 {
				if err := e.indexes.Add(to, rec.ID, rec.Embedding); err != nil {
					// The store move already happened; the index catches up
					// on the next warm load or rebuild.
					e.logger.Warn("promoted record not re-indexed",
						slog.String("record_id", rec.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		promoted++
	}
	return promoted, failed
}

// expire deletes records created before the cutoff, one by one so the
// index stays in step and a single failure cannot abort the sweep.
func (e *Engine) expire(ctx context.Context, layer store.Layer, before time.Time) (expired, failed int) {
	// MinScore/MinAccessCount of zero turn the candidate query into a
	// plain age scan.
	cands, err := e.store.PromotionCandidates(ctx, layer, store.CandidateQuery{
		Before: before,
		Limit:  e.cfg.BatchLimit,
	})
	if err != nil {
		e.logger.Warn("skipping expiry sweep",
			slog.String("layer", string(layer)),
			slog.String("error", err.Error()),
		)
		return 0, 1
	}

	for _, rec := range cands {
		if err := e.store.DeleteByID(ctx, rec.ID, layer); err != nil {
			e.logger.Warn("skipping record that failed to expire",
				slog.String("record_id", rec.ID),
				slog.String("layer", string(layer)),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		if e.indexes != nil {
			e.indexes.Remove(layer, rec.ID)
		}
		expired++
	}
	return expired, failed
}
