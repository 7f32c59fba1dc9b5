// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/internal/store"
	"github.com/strata-dev/strata/internal/store/sqlite"
)

const testDims = 3

func testStore(t *testing.T) *sqlite.TieredStore {
	t.Helper()
	ts, err := sqlite.New(t.TempDir(), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })
	return ts
}

func testEngine(ts store.TieredStore, now time.Time) *Engine {
	e := NewEngine(ts, nil, DefaultConfig())
	e.now = func() time.Time { return now }
	return e
}

func insertAged(t *testing.T, ts store.TieredStore, layer store.Layer, text string, age time.Duration, score float32, access int64) *store.Record {
	t.Helper()
	rec := store.NewRecord(text)
	rec.Embedding = []float32{1, 0, 0}
	rec.Layer = layer
	rec.CreatedAt = time.Now().Add(-age)
	rec.LastAccess = rec.CreatedAt
	rec.Score = score
	rec.AccessCount = access
	require.NoError(t, ts.Insert(context.Background(), rec))
	return rec
}

func TestRunCyclePromotesEligibleInteract(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	eligible := insertAged(t, ts, store.LayerInteract, "promoted", 30*time.Hour, 0.8, 3)
	tooYoung := insertAged(t, ts, store.LayerInteract, "too young", 1*time.Hour, 0.9, 5)
	lowScore := insertAged(t, ts, store.LayerInteract, "low score", 30*time.Hour, 0.2, 5)
	coldRecord := insertAged(t, ts, store.LayerInteract, "cold", 30*time.Hour, 0.8, 1)

	stats, err := testEngine(ts, now).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InteractToInsights)
	assert.Zero(t, stats.Failed)

	moved, err := ts.PeekByID(ctx, eligible.ID, store.LayerInsights)
	require.NoError(t, err)
	assert.InDelta(t, 0.8*0.9, moved.Score, 1e-4, "promoted score decays")

	for _, rec := range []*store.Record{tooYoung, lowScore, coldRecord} {
		_, err := ts.PeekByID(ctx, rec.ID, store.LayerInteract)
		assert.NoError(t, err, "ineligible record %q must stay in interact", rec.Text)
	}
}

func TestRunCyclePromotesInsightsToAssets(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	eligible := insertAged(t, ts, store.LayerInsights, "archival", 8*24*time.Hour, 0.9, 6)
	// Meets the interact bar but not the stricter assets bar.
	borderline := insertAged(t, ts, store.LayerInsights, "borderline", 8*24*time.Hour, 0.55, 6)

	stats, err := testEngine(ts, now).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InsightsToAssets)

	moved, err := ts.PeekByID(ctx, eligible.ID, store.LayerAssets)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, moved.Score, 1e-4, "assets promotion does not decay")

	_, err = ts.PeekByID(ctx, borderline.ID, store.LayerInsights)
	assert.Error(t, err, "borderline record expires instead of promoting")
}

func TestRunCycleCascadesLongStuckRecord(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	// A record stuck in interact past the insights TTL clears both gates
	// in one pass (decayed 0.72 >= 0.6, access 6 >= 5) and must land in
	// assets, not linger in insights where step 3 would expire it.
	stuck := insertAged(t, ts, store.LayerInteract, "stuck in interact", 8*24*time.Hour, 0.8, 6)

	stats, err := testEngine(ts, now).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InteractToInsights)
	assert.Equal(t, 1, stats.InsightsToAssets)
	assert.Zero(t, stats.ExpiredInsights)

	moved, err := ts.PeekByID(ctx, stuck.ID, store.LayerAssets)
	require.NoError(t, err)
	assert.InDelta(t, 0.8*0.9, moved.Score, 1e-4, "only the first hop decays")
}

func TestRunCycleExpiration(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	// Past twice the interact TTL with too few accesses to promote.
	stale := insertAged(t, ts, store.LayerInteract, "stale", 49*time.Hour, 0.9, 1)
	// Between one and two TTLs: retained even though unpromotable.
	graceRecord := insertAged(t, ts, store.LayerInteract, "grace", 30*time.Hour, 0.1, 0)
	// Insights past its TTL and below the assets bar.
	unpromoted := insertAged(t, ts, store.LayerInsights, "unpromoted", 8*24*time.Hour, 0.3, 1)

	stats, err := testEngine(ts, now).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ExpiredInteract)
	assert.Equal(t, 1, stats.ExpiredInsights)

	_, err = ts.PeekByID(ctx, stale.ID, store.LayerInteract)
	assert.Error(t, err)
	_, err = ts.PeekByID(ctx, unpromoted.ID, store.LayerInsights)
	assert.Error(t, err)
	_, err = ts.PeekByID(ctx, graceRecord.ID, store.LayerInteract)
	assert.NoError(t, err)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	insertAged(t, ts, store.LayerInteract, "promoted once", 30*time.Hour, 0.8, 3)
	insertAged(t, ts, store.LayerInteract, "expires once", 49*time.Hour, 0.1, 0)
	insertAged(t, ts, store.LayerInteract, "untouched", 1*time.Hour, 0.9, 9)

	eng := testEngine(ts, now)
	first, err := eng.RunCycle(ctx)
	require.NoError(t, err)
	require.Positive(t, first.Total())

	second, err := eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Total(), "second cycle with no intervening activity changes nothing")
	assert.Zero(t, second.Failed)
}

func TestRunCycleConservation(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	insertAged(t, ts, store.LayerInteract, "a", 30*time.Hour, 0.8, 3)
	insertAged(t, ts, store.LayerInteract, "b", 49*time.Hour, 0.1, 0)
	insertAged(t, ts, store.LayerInteract, "c", 1*time.Hour, 0.5, 1)
	insertAged(t, ts, store.LayerInsights, "d", 8*24*time.Hour, 0.9, 6)

	before, err := ts.Counts(ctx)
	require.NoError(t, err)

	stats, err := testEngine(ts, now).RunCycle(ctx)
	require.NoError(t, err)

	after, err := ts.Counts(ctx)
	require.NoError(t, err)
	expired := int64(stats.ExpiredInteract + stats.ExpiredInsights)
	assert.Equal(t, before.Total()-expired, after.Total(), "promotion moves, only expiry removes")
}

func TestPromotionScoreOrdering(t *testing.T) {
	now := time.Now()
	hot := &store.Record{Score: 0.9, CreatedAt: now.Add(-1 * time.Hour), AccessCount: 20}
	cold := &store.Record{Score: 0.3, CreatedAt: now.Add(-200 * time.Hour), AccessCount: 0}

	assert.Greater(t, PromotionScore(hot, now), PromotionScore(cold, now))
}

type recordingIndexes struct {
	added   []string
	removed []string
}

func (r *recordingIndexes) Add(_ store.Layer, id string, _ []float32) error {
	r.added = append(r.added, id)
	return nil
}

func (r *recordingIndexes) Remove(_ store.Layer, id string) bool {
	r.removed = append(r.removed, id)
	return true
}

func TestRunCycleMaintainsIndexes(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)
	now := time.Now()

	promotedRec := insertAged(t, ts, store.LayerInteract, "promoted", 30*time.Hour, 0.8, 3)
	expiredRec := insertAged(t, ts, store.LayerInteract, "expired", 49*time.Hour, 0.1, 0)

	idx := &recordingIndexes{}
	eng := NewEngine(ts, idx, DefaultConfig())
	eng.now = func() time.Time { return now }

	_, err := eng.RunCycle(ctx)
	require.NoError(t, err)

	assert.Contains(t, idx.added, promotedRec.ID)
	assert.Contains(t, idx.removed, promotedRec.ID)
	assert.Contains(t, idx.removed, expiredRec.ID)
	assert.NotContains(t, idx.added, expiredRec.ID)
}
