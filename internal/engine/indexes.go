// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/strata-dev/strata/internal/index"
	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// tierEntry pairs an index with its warm-load state. Mutations are
// accepted while loading; searches are refused until the durable state
// has been absorbed, with a resource-class error the retry policy waits
// out.
type tierEntry struct {
	ix    *index.Index
	ready atomic.Bool
}

// TierIndexes holds one in-memory vector index per tier and keeps their
// membership in step with the store. It satisfies both the query
// coordinator's searcher and the promotion engines' index surface.
type TierIndexes struct {
	mu      sync.RWMutex
	entries map[store.Layer]*tierEntry
	cfg     index.Config
	logger  *slog.Logger
}

// NewTierIndexes builds empty indexes for all tiers from one config.
func NewTierIndexes(cfg index.Config, logger *slog.Logger) (*TierIndexes, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries := make(map[store.Layer]*tierEntry, 3)
	for _, layer := range store.Layers() {
		ix, err := index.New(cfg)
		if err != nil {
			return nil, err
		}
		entries[layer] = &tierEntry{ix: ix}
	}
	return &TierIndexes{entries: entries, cfg: cfg, logger: logger}, nil
}

func (t *TierIndexes) entry(layer store.Layer) (*tierEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[layer]
	if !ok {
		return nil, strataerr.New(strataerr.CodeQueryRequestInvalid, "unknown tier",
			strataerr.FieldLayer(string(layer)))
	}
	return e, nil
}

// WarmLoad absorbs every stored record with an embedding into its tier's
// index, then marks the tier searchable. Records that fail to index are
// logged and skipped so one bad row cannot keep a tier offline.
func (t *TierIndexes) WarmLoad(ctx context.Context, ts store.TieredStore) error {
	for _, layer := range store.Layers() {
		e, err := t.entry(layer)
		if err != nil {
			return err
		}

		loaded, skipped := 0, 0
		err = ts.ForEach(ctx, layer, func(rec *store.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(rec.Embedding) == 0 {
				return nil
			}
			if err := e.ix.Add(rec.ID, rec.Embedding); err != nil {
				t.logger.Warn("skipping record during index warm load",
					slog.String("record_id", rec.ID),
					slog.String("layer", string(layer)),
					slog.String("error", err.Error()),
				)
				skipped++
				return nil
			}
			loaded++
			return nil
		})
		if err != nil {
			return strataerr.Wrap(err, strataerr.CodeIndexNotReady, "index warm load interrupted",
				strataerr.FieldLayer(string(layer)))
		}

		e.ready.Store(true)
		t.logger.Info("tier index warm load complete",
			slog.String("layer", string(layer)),
			slog.Int("loaded", loaded),
			slog.Int("skipped", skipped),
		)
	}
	return nil
}

// MarkReady makes all tiers searchable without a warm load. Fresh
// deployments with empty stores use this to skip the scan.
func (t *TierIndexes) MarkReady() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		e.ready.Store(true)
	}
}

// Search queries one tier's index. A tier still warm-loading returns a
// not-ready resource error.
func (t *TierIndexes) Search(ctx context.Context, layer store.Layer, vec []float32, k int) ([]index.Result, error) {
	e, err := t.entry(layer)
	if err != nil {
		return nil, err
	}
	if !e.ready.Load() {
		return nil, strataerr.New(strataerr.CodeIndexNotReady, "tier index is still warm loading",
			strataerr.FieldLayer(string(layer)))
	}
	return e.ix.Search(ctx, vec, k)
}

// Add indexes a vector in its tier. Mutations are accepted during warm
// load; Add replaces any existing entry for the id, so absorbing the same
// record twice is harmless.
func (t *TierIndexes) Add(layer store.Layer, id string, vec []float32) error {
	e, err := t.entry(layer)
	if err != nil {
		return err
	}
	return e.ix.Add(id, vec)
}

// Remove drops an id from its tier's index.
func (t *TierIndexes) Remove(layer store.Layer, id string) bool {
	e, err := t.entry(layer)
	if err != nil {
		return false
	}
	return e.ix.Remove(id)
}

// Reset replaces one tier's index with an empty one, preserving readiness.
func (t *TierIndexes) Reset(layer store.Layer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[layer]
	if !ok {
		return strataerr.New(strataerr.CodeQueryRequestInvalid, "unknown tier",
			strataerr.FieldLayer(string(layer)))
	}
	ix, err := index.New(t.cfg)
	if err != nil {
		return err
	}
	wasReady := e.ready.Load()
	fresh := &tierEntry{ix: ix}
	fresh.ready.Store(wasReady)
	t.entries[layer] = fresh
	return nil
}

// Stats reports occupancy per tier.
func (t *TierIndexes) Stats() map[store.Layer]index.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := make(map[store.Layer]index.Stats, len(t.entries))
	for layer, e := range t.entries {
		stats[layer] = e.ix.Stats()
	}
	return stats
}
