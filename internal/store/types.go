// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package store

import (
	"time"

	"github.com/google/uuid"
)

// Layer identifies one of the three durability/latency tiers.
type Layer string

const (
	// LayerInteract is the hot tier: short-lived, high-churn records.
	LayerInteract Layer = "interact"
	// LayerInsights is the warm tier: promoted, medium-lived records.
	LayerInsights Layer = "insights"
	// LayerAssets is the cold tier: permanent records, no further decay.
	LayerAssets Layer = "assets"
)

// Layers returns all tiers ordered hot to cold.
func Layers() []Layer {
	return []Layer{LayerInteract, LayerInsights, LayerAssets}
}

// Valid reports whether l names a known tier.
func (l Layer) Valid() bool {
	switch l {
	case LayerInteract, LayerInsights, LayerAssets:
		return true
	}
	return false
}

// Record is the unit of storage. A record lives in exactly one tier at any
// instant; promotion moves it whole. Embedding may be empty until computed
// by the embedding provider.
type Record struct {
	ID          string
	Text        string
	Embedding   []float32
	Layer       Layer
	Kind        string
	Tags        []string
	Project     string
	Session     string
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount int64
	// Score is expected in [0,1] by convention. Callers supply normalized
	// values; the store does not enforce the range.
	Score float32
}

// NewRecord creates a record in the interact tier with a fresh ID and
// timestamps set to now.
func NewRecord(text string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:         uuid.NewString(),
		Text:       text,
		Layer:      LayerInteract,
		CreatedAt:  now,
		LastAccess: now,
	}
}

// Age returns the record's age relative to now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Ref returns a weak reference to this record's current location.
func (r *Record) Ref() MemRef {
	return MemRef{Layer: r.Layer, Key: r.ID, CreatedAt: r.CreatedAt}
}

// MemRef is a weak reference to a record's location. It never owns the
// record: the referent may have been promoted or expired since the ref was
// taken, so every use must re-resolve against the store and treat
// not-found as a normal outcome.
type MemRef struct {
	Layer     Layer
	Key       string
	CreatedAt time.Time
}

// RecordFilter selects records by metadata during a scan.
// Zero-valued fields are ignored. Tags match if the record carries every
// listed tag.
type RecordFilter struct {
	Kind     string
	Tags     []string
	Project  string
	Session  string
	MinScore float32
	Limit    int
}

// CandidateQuery selects promotion candidates within a tier.
type CandidateQuery struct {
	Before         time.Time
	MinScore       float32
	MinAccessCount int64
	Limit          int
}

// TierCounts reports the number of records per tier.
type TierCounts struct {
	Interact int64
	Insights int64
	Assets   int64
}

// Total returns the record count across all tiers.
func (c TierCounts) Total() int64 {
	return c.Interact + c.Insights + c.Assets
}
