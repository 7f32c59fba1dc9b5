// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package store

import (
	"context"
	"time"
)

// TieredStore is durable key/value + metadata storage for the three tiers.
// It has no knowledge of vector semantics beyond holding embeddings as
// opaque payloads; the vector index owns similarity search.
//
// Implementations must guarantee that a batch insert is atomic per batch,
// that reads observe a consistent snapshot at call time, and that writers
// to different tiers do not block each other. Transient lock contention is
// surfaced as a resource-class error (see pkg/errors.IsResource) and is
// retried by the resilience wrapper, not by the store itself.
type TieredStore interface {
	// Insert stores a record in its Layer tier.
	Insert(ctx context.Context, rec *Record) error

	// InsertBatch stores all records or none (single transaction per tier).
	InsertBatch(ctx context.Context, recs []*Record) error

	// GetByID fetches a record and bumps its access accounting
	// (last_access, access_count) in the same operation.
	GetByID(ctx context.Context, id string, layer Layer) (*Record, error)

	// PeekByID fetches a record without touching access accounting.
	// Promotion cycles use this so scans do not skew usage signals.
	PeekByID(ctx context.Context, id string, layer Layer) (*Record, error)

	// DeleteByID removes a record from a tier. Deleting a missing record
	// is a not-found error.
	DeleteByID(ctx context.Context, id string, layer Layer) error

	// FilterByMetadata scans a tier for records matching the filter.
	FilterByMetadata(ctx context.Context, layer Layer, f RecordFilter) ([]*Record, error)

	// ForEach streams every record in a tier to fn in id order. A non-nil
	// error from fn stops the scan and is returned unchanged. Index warm
	// loads use this to absorb durable state at startup.
	ForEach(ctx context.Context, layer Layer, fn func(*Record) error) error

	// DeleteExpired removes records created before the cutoff and returns
	// the number deleted.
	DeleteExpired(ctx context.Context, layer Layer, before time.Time) (int64, error)

	// PromotionCandidates returns records eligible for promotion out of a
	// tier: created before q.Before, score >= q.MinScore, access_count >=
	// q.MinAccessCount.
	PromotionCandidates(ctx context.Context, layer Layer, q CandidateQuery) ([]*Record, error)

	// Move copies a record into the destination tier and deletes it from
	// the source. The two tiers live in separate databases, so the move is
	// best-effort rather than atomic: a crash between the copy and the
	// delete leaves the record visible in both tiers until the next
	// promotion cycle re-derives candidates.
	Move(ctx context.Context, rec *Record, from, to Layer) error

	// Resolve re-resolves a weak reference. Not-found is a normal outcome;
	// the referent may have migrated or expired.
	Resolve(ctx context.Context, ref MemRef) (*Record, error)

	// SearchVectors runs an exact KNN scan over a tier's stored embeddings.
	// It is the store-side search path: slower than the in-memory index but
	// always consistent with durable state. The coordinator uses it for
	// hybrid pre-scans and as a fallback while the index warms up.
	SearchVectors(ctx context.Context, layer Layer, query []float32, k int) ([]VectorMatch, error)

	// Count returns the number of records in a tier.
	Count(ctx context.Context, layer Layer) (int64, error)

	// Counts returns record counts for all tiers.
	Counts(ctx context.Context) (TierCounts, error)

	// Clear deletes every record in a tier.
	Clear(ctx context.Context, layer Layer) error

	Close() error
}

// VectorMatch is a single result of a store-side vector scan.
// Distance is a metric distance: lower is more similar.
type VectorMatch struct {
	ID       string
	Distance float64
}
