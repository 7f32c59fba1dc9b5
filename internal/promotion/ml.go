// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package promotion

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// MLConfig holds the learned promotion engine's tunables.
type MLConfig struct {
	// MinAccessThreshold filters candidates before scoring; records below
	// it are never evaluated.
	MinAccessThreshold int
	// TemporalWeight, SemanticWeight and UsageWeight blend the three
	// feature groups. They are renormalized to sum to 1 at construction.
	TemporalWeight float64
	SemanticWeight float64
	UsageWeight    float64
	// PromotionThreshold is the predicted score a record must exceed.
	PromotionThreshold float64
	// BatchSize caps records evaluated per transition per cycle.
	BatchSize int
	// TrainingIntervalHours is how often the weights are refit against
	// the promoted-vs-retained population.
	TrainingIntervalHours float64
}

// DefaultMLConfig returns the standard learned-promotion policy.
func DefaultMLConfig() MLConfig {
	return MLConfig{
		MinAccessThreshold:    2,
		TemporalWeight:        0.3,
		SemanticWeight:        0.4,
		UsageWeight:           0.3,
		PromotionThreshold:    0.7,
		BatchSize:             100,
		TrainingIntervalHours: 24,
	}
}

// Features is the per-record input to the promotion model.
type Features struct {
	AgeHours       float64
	Recency        float64 // decays with time since last access
	Frequency      float64 // log-scaled access count, clamped to [0,1]
	SemanticScore  float64 // the record's stored relevance score
	KeywordDensity float64 // unique words over total words
	TopicRelevance float64 // tag coverage signal
	LayerAffinity  float64 // prior for the record's current tier
}

// MLStats reports one learned-promotion cycle.
type MLStats struct {
	Evaluated int
	Promoted  int
	Skipped   int
	Failed    int
	Retrained bool
}

// AsRuleStats adapts learned-cycle outcomes to the rule engine's stats
// shape so callers can aggregate both engines uniformly. Promotions are
// attributed to Interact->Insights; the learned engine never expires.
func (s MLStats) AsRuleStats() Stats {
	return Stats{
		InteractToInsights: s.Promoted,
		Failed:             s.Failed,
	}
}

// MLEngine gates promotion on a weighted linear model over extracted
// features instead of fixed thresholds. Weights are periodically refit
// from the observed promoted-vs-retained populations.
type MLEngine struct {
	store   store.TieredStore
	indexes TierIndexes
	cfg     MLConfig
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	wTemporal   float64
	wSemantic   float64
	wUsage      float64
	lastTrained time.Time
}

// NewMLEngine creates a learned promotion engine.
func NewMLEngine(ts store.TieredStore, indexes TierIndexes, cfg MLConfig) *MLEngine {
	def := DefaultMLConfig()
	if cfg.MinAccessThreshold <= 0 {
		cfg.MinAccessThreshold = def.MinAccessThreshold
	}
	if cfg.PromotionThreshold <= 0 {
		cfg.PromotionThreshold = def.PromotionThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TrainingIntervalHours <= 0 {
		cfg.TrainingIntervalHours = def.TrainingIntervalHours
	}
	wt, ws, wu := normalizeWeights(cfg.TemporalWeight, cfg.SemanticWeight, cfg.UsageWeight)
	return &MLEngine{
		store:     ts,
		indexes:   indexes,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		wTemporal: wt,
		wSemantic: ws,
		wUsage:    wu,
	}
}

func normalizeWeights(wt, ws, wu float64) (float64, float64, float64) {
	if wt <= 0 && ws <= 0 && wu <= 0 {
		return 0.3, 0.4, 0.3
	}
	sum := math.Max(wt, 0) + math.Max(ws, 0) + math.Max(wu, 0)
	return math.Max(wt, 0) / sum, math.Max(ws, 0) / sum, math.Max(wu, 0) / sum
}

// ExtractFeatures computes the model input for a record. Records with
// neither text nor an embedding carry no usable signal and are rejected.
func ExtractFeatures(rec *store.Record, now time.Time) (Features, error) {
	if rec == nil {
		return Features{}, strataerr.New(strataerr.CodePromotionCycleFailure, "cannot extract features from nil record")
	}
	if rec.Text == "" && len(rec.Embedding) == 0 {
		return Features{}, strataerr.New(strataerr.CodePromotionCycleFailure, "record carries neither text nor embedding",
			strataerr.FieldRecordID(rec.ID))
	}

	f := Features{
		AgeHours:      now.Sub(rec.CreatedAt).Hours(),
		SemanticScore: clamp01(float64(rec.Score)),
	}

	sinceAccess := now.Sub(rec.LastAccess).Hours()
	if rec.LastAccess.IsZero() {
		sinceAccess = f.AgeHours
	}
	f.Recency = 1 / (1 + sinceAccess/24)
	f.Frequency = clamp01(math.Log(1+float64(rec.AccessCount)) / 10)
	f.KeywordDensity = keywordDensity(rec.Text)
	f.TopicRelevance = clamp01(float64(len(rec.Tags)) / 5)
	f.LayerAffinity = layerAffinity(rec.Layer)
	return f, nil
}

// keywordDensity is the unique-to-total word ratio, a cheap proxy for
// information content. Empty text scores zero.
func keywordDensity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.Trim(w, ".,;:!?\"'()")] = struct{}{}
	}
	return clamp01(float64(len(unique)) / float64(len(words)))
}

// layerAffinity encodes how favorable each tier is as a promotion source.
func layerAffinity(layer store.Layer) float64 {
	switch layer {
	case store.LayerInteract:
		return 0.8
	case store.LayerInsights:
		return 0.5
	default:
		return 0.2
	}
}

// PredictScore runs the weighted linear model. The result is in [0, 1].
func (e *MLEngine) PredictScore(f Features) float64 {
	e.mu.Lock()
	wt, ws, wu := e.wTemporal, e.wSemantic, e.wUsage
	e.mu.Unlock()

	temporal := clamp01((f.Recency + 1/(1+f.AgeHours/168)) / 2)
	semantic := clamp01(0.5*f.SemanticScore + 0.3*f.KeywordDensity + 0.2*f.TopicRelevance)
	usage := clamp01((f.Frequency + f.LayerAffinity) / 2)

	return clamp01(wt*temporal + ws*semantic + wu*usage)
}

// RunCycle evaluates promotion candidates through the model and migrates
// those scoring above the threshold. Interact candidates move to Insights;
// Insights candidates, held to a doubled access bar, move to Assets.
// Retraining runs first when the training interval has elapsed.
func (e *MLEngine) RunCycle(ctx context.Context) (MLStats, error) {
	var stats MLStats
	now := e.now()

	if e.shouldTrain(now) {
		if err := e.Retrain(ctx); err != nil {
			e.logger.Warn("retraining failed; keeping current weights",
				slog.String("error", err.Error()))
		} else {
			stats.Retrained = true
		}
	}

	// Top-down so a record moves at most one tier per cycle.
	e.evaluate(ctx, store.LayerInsights, store.LayerAssets, e.cfg.MinAccessThreshold*2, now, &stats)
	e.evaluate(ctx, store.LayerInteract, store.LayerInsights, e.cfg.MinAccessThreshold, now, &stats)
	return stats, nil
}

func (e *MLEngine) shouldTrain(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastTrained).Hours() >= e.cfg.TrainingIntervalHours
}

func (e *MLEngine) evaluate(ctx context.Context, from, to store.Layer, minAccess int, now time.Time, stats *MLStats) {
	cands, err := e.store.PromotionCandidates(ctx, from, store.CandidateQuery{
		MinAccessCount: int64(minAccess),
		Before:         now,
		Limit:          e.cfg.BatchSize,
	})
	if err != nil {
		e.logger.Warn("skipping learned transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		stats.Failed++
		return
	}

	for _, rec := range cands {
		feats, err := ExtractFeatures(rec, now)
		if err != nil {
			e.logger.Warn("skipping record that failed feature extraction",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
			stats.Failed++
			continue
		}
		stats.Evaluated++

		if e.PredictScore(feats) <= e.cfg.PromotionThreshold {
			stats.Skipped++
			continue
		}

		if err := e.store.Move(ctx, rec, from, to); err != nil {
			e.logger.Warn("skipping record that failed to migrate",
				slog.String("record_id", rec.ID),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
				slog.String("error", err.Error()),
			)
			stats.Failed++
			continue
		}
		if e.indexes != nil {
			e.indexes.Remove(from, rec.ID)
			if len(rec.Embedding) > 0 {
				if err := e.indexes.Add(to, rec.ID, rec.Embedding); err != nil {
					e.logger.Warn("promoted record not re-indexed",
						slog.String("record_id", rec.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		stats.Promoted++
	}
}

// Retrain refits the feature-group weights from the current populations:
// records that have reached Insights or Assets are positive examples,
// records still in Interact are negative. Each group's weight shifts
// toward its discriminative power, bounded so a skewed sample cannot
// zero out a group.
func (e *MLEngine) Retrain(ctx context.Context) error {
	now := e.now()

	positives, err := e.trainingSample(ctx, store.LayerInsights, store.LayerAssets)
	if err != nil {
		return strataerr.Wrap(err, strataerr.CodePromotionCycleFailure, "loading positive training sample")
	}
	negatives, err := e.trainingSample(ctx, store.LayerInteract)
	if err != nil {
		return strataerr.Wrap(err, strataerr.CodePromotionCycleFailure, "loading negative training sample")
	}
	if len(positives) == 0 || len(negatives) == 0 {
		// Not enough signal yet; keep the current weights.
		e.mu.Lock()
		e.lastTrained = now
		e.mu.Unlock()
		return nil
	}

	posT, posS, posU := groupMeans(positives, now)
	negT, negS, negU := groupMeans(negatives, now)

	// A group's separation between classes is its discriminative power.
	// Floor each at 0.05 so no group can be eliminated outright.
	st := math.Max(math.Abs(posT-negT), 0.05)
	ss := math.Max(math.Abs(posS-negS), 0.05)
	su := math.Max(math.Abs(posU-negU), 0.05)

	e.mu.Lock()
	e.wTemporal, e.wSemantic, e.wUsage = normalizeWeights(st, ss, su)
	e.lastTrained = now
	e.mu.Unlock()

	e.logger.Info("promotion model retrained",
		slog.Int("positives", len(positives)),
		slog.Int("negatives", len(negatives)),
		slog.Float64("temporal_weight", st/(st+ss+su)),
		slog.Float64("semantic_weight", ss/(st+ss+su)),
		slog.Float64("usage_weight", su/(st+ss+su)),
	)
	return nil
}

func (e *MLEngine) trainingSample(ctx context.Context, layers ...store.Layer) ([]*store.Record, error) {
	var sample []*store.Record
	for _, layer := range layers {
		recs, err := e.store.PromotionCandidates(ctx, layer, store.CandidateQuery{
			Before: e.now(),
			Limit:  e.cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		sample = append(sample, recs...)
	}
	return sample, nil
}

// groupMeans averages each feature group's activation over a sample.
func groupMeans(recs []*store.Record, now time.Time) (temporal, semantic, usage float64) {
	n := 0
	for _, rec := range recs {
		f, err := ExtractFeatures(rec, now)
		if err != nil {
			continue
		}
		temporal += clamp01((f.Recency + 1/(1+f.AgeHours/168)) / 2)
		semantic += clamp01(0.5*f.SemanticScore + 0.3*f.KeywordDensity + 0.2*f.TopicRelevance)
		usage += clamp01((f.Frequency + f.LayerAffinity) / 2)
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	fn := float64(n)
	return temporal / fn, semantic / fn, usage / fn
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
