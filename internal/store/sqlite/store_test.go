// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(id, text string, layer store.Layer) *store.Record {
	now := time.Now().UTC()
	return &store.Record{
		ID:         id,
		Text:       text,
		Embedding:  []float32{1, 0, 0},
		Layer:      layer,
		Kind:       "note",
		CreatedAt:  now,
		LastAccess: now,
		Score:      0.5,
	}
}

func TestInsertAndPeek(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("r1", "apple pie recipe", store.LayerInteract)
	rec.Tags = []string{"food", "recipe"}
	rec.Project = "cooking"
	require.NoError(t, ts.Insert(ctx, rec))

	got, err := ts.PeekByID(ctx, "r1", store.LayerInteract)
	require.NoError(t, err)
	assert.Equal(t, "apple pie recipe", got.Text)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)
	assert.Equal(t, []string{"food", "recipe"}, got.Tags)
	assert.Equal(t, "cooking", got.Project)
	assert.Equal(t, store.LayerInteract, got.Layer)
	assert.EqualValues(t, 0, got.AccessCount)
}

func TestGetByIDTouchesAccessAccounting(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("r1", "hello", store.LayerInteract)
	require.NoError(t, ts.Insert(ctx, rec))

	got, err := ts.GetByID(ctx, "r1", store.LayerInteract)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount)

	got, err = ts.GetByID(ctx, "r1", store.LayerInteract)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.AccessCount)
	assert.False(t, got.LastAccess.IsZero())

	// Peek must not bump further.
	got, err = ts.PeekByID(ctx, "r1", store.LayerInteract)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.AccessCount)
}

func TestGetByIDNotFound(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	_, err := ts.GetByID(ctx, "missing", store.LayerInteract)
	require.Error(t, err)
	assert.True(t, strataerr.IsNotFound(err))
}

func TestRecordsAreTierScoped(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	require.NoError(t, ts.Insert(ctx, newTestRecord("r1", "warm", store.LayerInsights)))

	_, err := ts.PeekByID(ctx, "r1", store.LayerInteract)
	assert.True(t, strataerr.IsNotFound(err))

	got, err := ts.PeekByID(ctx, "r1", store.LayerInsights)
	require.NoError(t, err)
	assert.Equal(t, store.LayerInsights, got.Layer)
}

func TestInsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("r1", "bad dims", store.LayerInteract)
	rec.Embedding = []float32{1, 2, 3, 4, 5}

	err := ts.Insert(ctx, rec)
	require.Error(t, err)
	assert.True(t, strataerr.IsValidation(err))
}

func TestInsertBatchAtomic(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	recs := []*store.Record{
		newTestRecord("b1", "one", store.LayerInteract),
		newTestRecord("b2", "two", store.LayerInteract),
		newTestRecord("b3", "three", store.LayerInsights),
	}
	require.NoError(t, ts.InsertBatch(ctx, recs))

	n, err := ts.Count(ctx, store.LayerInteract)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = ts.Count(ctx, store.LayerInsights)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	require.NoError(t, ts.Insert(ctx, newTestRecord("r1", "gone soon", store.LayerInteract)))
	require.NoError(t, ts.DeleteByID(ctx, "r1", store.LayerInteract))

	_, err := ts.PeekByID(ctx, "r1", store.LayerInteract)
	assert.True(t, strataerr.IsNotFound(err))

	err = ts.DeleteByID(ctx, "r1", store.LayerInteract)
	assert.True(t, strataerr.IsNotFound(err))
}

func TestFilterByMetadata(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	r1 := newTestRecord("f1", "tagged", store.LayerInteract)
	r1.Tags = []string{"alpha", "beta"}
	r1.Project = "p1"
	r1.Score = 0.9

	r2 := newTestRecord("f2", "other project", store.LayerInteract)
	r2.Tags = []string{"alpha"}
	r2.Project = "p2"
	r2.Score = 0.4

	r3 := newTestRecord("f3", "low score", store.LayerInteract)
	r3.Project = "p1"
	r3.Score = 0.1

	require.NoError(t, ts.InsertBatch(ctx, []*store.Record{r1, r2, r3}))

	got, err := ts.FilterByMetadata(ctx, store.LayerInteract, store.RecordFilter{Project: "p1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].ID) // ordered by score desc

	got, err = ts.FilterByMetadata(ctx, store.LayerInteract, store.RecordFilter{Tags: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].ID)

	got, err = ts.FilterByMetadata(ctx, store.LayerInteract, store.RecordFilter{MinScore: 0.3})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	old := newTestRecord("old", "stale", store.LayerInteract)
	old.CreatedAt = time.Now().Add(-3 * time.Hour)
	fresh := newTestRecord("fresh", "recent", store.LayerInteract)
	require.NoError(t, ts.InsertBatch(ctx, []*store.Record{old, fresh}))

	n, err := ts.DeleteExpired(ctx, store.LayerInteract, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = ts.PeekByID(ctx, "old", store.LayerInteract)
	assert.True(t, strataerr.IsNotFound(err))
	_, err = ts.PeekByID(ctx, "fresh", store.LayerInteract)
	assert.NoError(t, err)
}

func TestPromotionCandidates(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	eligible := newTestRecord("c1", "promote me", store.LayerInteract)
	eligible.CreatedAt = time.Now().Add(-2 * time.Hour)
	eligible.AccessCount = 5
	eligible.Score = 0.8

	tooFresh := newTestRecord("c2", "too new", store.LayerInteract)
	tooFresh.AccessCount = 5
	tooFresh.Score = 0.8

	tooCold := newTestRecord("c3", "unused", store.LayerInteract)
	tooCold.CreatedAt = time.Now().Add(-2 * time.Hour)
	tooCold.AccessCount = 0
	tooCold.Score = 0.8

	require.NoError(t, ts.InsertBatch(ctx, []*store.Record{eligible, tooFresh, tooCold}))

	got, err := ts.PromotionCandidates(ctx, store.LayerInteract, store.CandidateQuery{
		Before:         time.Now().Add(-time.Hour),
		MinScore:       0.5,
		MinAccessCount: 2,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestMoveBetweenTiers(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("m1", "moving up", store.LayerInteract)
	require.NoError(t, ts.Insert(ctx, rec))

	require.NoError(t, ts.Move(ctx, rec, store.LayerInteract, store.LayerInsights))

	_, err := ts.PeekByID(ctx, "m1", store.LayerInteract)
	assert.True(t, strataerr.IsNotFound(err))

	got, err := ts.PeekByID(ctx, "m1", store.LayerInsights)
	require.NoError(t, err)
	assert.Equal(t, store.LayerInsights, got.Layer)
	assert.Equal(t, "moving up", got.Text)
}

func TestResolveMemRef(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("w1", "weakly referenced", store.LayerInteract)
	require.NoError(t, ts.Insert(ctx, rec))

	ref := rec.Ref()
	got, err := ts.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "w1", got.ID)

	// After a move the old ref must resolve to not-found, a benign outcome.
	require.NoError(t, ts.Move(ctx, rec, store.LayerInteract, store.LayerAssets))
	_, err = ts.Resolve(ctx, ref)
	assert.True(t, strataerr.IsNotFound(err))
}

func TestSearchVectors(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	r1 := newTestRecord("v1", "east", store.LayerInteract)
	r1.Embedding = []float32{1, 0, 0}
	r2 := newTestRecord("v2", "north", store.LayerInteract)
	r2.Embedding = []float32{0, 1, 0}
	r3 := newTestRecord("v3", "mostly east", store.LayerInteract)
	r3.Embedding = []float32{0.9, 0.1, 0}
	require.NoError(t, ts.InsertBatch(ctx, []*store.Record{r1, r2, r3}))

	matches, err := ts.SearchVectors(ctx, store.LayerInteract, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "v1", matches[0].ID)
	assert.Equal(t, "v3", matches[1].ID)
}

func TestSearchVectorsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	_, err := ts.SearchVectors(ctx, store.LayerInteract, []float32{1, 0}, 2)
	require.Error(t, err)
	assert.True(t, strataerr.IsValidation(err))
}

func TestClearAndCounts(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	require.NoError(t, ts.InsertBatch(ctx, []*store.Record{
		newTestRecord("a", "one", store.LayerInteract),
		newTestRecord("b", "two", store.LayerInsights),
		newTestRecord("c", "three", store.LayerAssets),
	}))

	counts, err := ts.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Total())

	require.NoError(t, ts.Clear(ctx, store.LayerInteract))

	counts, err = ts.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts.Interact)
	assert.EqualValues(t, 2, counts.Total())
}

func TestEmptyEmbeddingAllowed(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	rec := newTestRecord("e1", "not yet embedded", store.LayerInteract)
	rec.Embedding = nil
	require.NoError(t, ts.Insert(ctx, rec))

	got, err := ts.PeekByID(ctx, "e1", store.LayerInteract)
	require.NoError(t, err)
	assert.Empty(t, got.Embedding)

	// A record without an embedding is invisible to the vector scan.
	matches, err := ts.SearchVectors(ctx, store.LayerInteract, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestForEachStreamsTier(t *testing.T) {
	ctx := context.Background()
	ts := testStore(t)

	require.NoError(t, ts.Insert(ctx, newTestRecord("a", "first", store.LayerInteract)))
	require.NoError(t, ts.Insert(ctx, newTestRecord("b", "second", store.LayerInteract)))
	require.NoError(t, ts.Insert(ctx, newTestRecord("c", "other tier", store.LayerInsights)))

	var ids []string
	err := ts.ForEach(ctx, store.LayerInteract, func(rec *store.Record) error {
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	// A callback error stops the scan and propagates unchanged.
	sentinel := strataerr.New(strataerr.CodeInternalFailure, "stop")
	err = ts.ForEach(ctx, store.LayerInteract, func(*store.Record) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
