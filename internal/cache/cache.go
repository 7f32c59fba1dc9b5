// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package cache provides a content-addressed embedding cache: identical
// (text, model) pairs always resolve to the same stored vector until the
// entry is overwritten or the cache is cleared.
//
// The durable layer is SQLite; a ristretto admission-controlled front
// absorbs hot lookups. Ristretto may decline to admit an entry, so the
// SQLite layer is always authoritative.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// defaultMaxCost bounds the in-memory front at 64 MiB of vector payload.
const defaultMaxCost = 64 << 20

// Config tunes the cache.
type Config struct {
	// MaxCost bounds the in-memory front in bytes. Zero uses the default.
	MaxCost int64
}

// entry is the persisted cache payload. Unknown fields are ignored on
// read, permitting forward-compatible schema evolution.
type entry struct {
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Inserts int64
}

// Cache is a persistent embedding cache keyed by model + ":" + sha256(text).
type Cache struct {
	db     *sql.DB
	front  *ristretto.Cache
	logger *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	inserts atomic.Int64
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string, cfg Config) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "opening cache db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "pinging cache db: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
	key        TEXT PRIMARY KEY,
	entry      TEXT NOT NULL,
	created_at TEXT NOT NULL
)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "migrating cache table: %w", err)
	}

	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	front, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 20,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		_ = db.Close()
		return nil, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "creating cache front: %w", err)
	}

	return &Cache{db: db, front: front, logger: slog.Default()}, nil
}

// Key derives the content address for a (text, model) pair.
func Key(text, model string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for (text, model). A corrupt persisted
// entry is treated as a miss, not an error: the caller re-embeds and the
// next Insert overwrites the bad row.
func (c *Cache) Get(ctx context.Context, text, model string) ([]float32, bool, error) {
	key := Key(text, model)

	if v, ok := c.front.Get(key); ok {
		c.hits.Add(1)
		return v.([]float32), true, nil
	}

	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT entry FROM embeddings WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "reading cache entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || len(e.Embedding) == 0 {
		c.logger.Warn("treating corrupt cache entry as miss",
			slog.String("key", key),
		)
		c.misses.Add(1)
		return nil, false, nil
	}

	c.front.Set(key, e.Embedding, int64(len(e.Embedding))*4)
	c.hits.Add(1)
	return e.Embedding, true, nil
}

// GetBatch returns one slot per input text; missing entries are nil.
func (c *Cache) GetBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok, err := c.Get(ctx, text, model)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = vec
		}
	}
	return out, nil
}

// Insert stores (or overwrites) the embedding for (text, model).
func (c *Cache) Insert(ctx context.Context, text, model string, vec []float32) error {
	return c.InsertBatch(ctx, map[string][]float32{text: vec}, model)
}

// InsertBatch stores all items in one transaction.
func (c *Cache) InsertBatch(ctx context.Context, items map[string][]float32, model string) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "beginning cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO embeddings (key, entry, created_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET entry = excluded.entry, created_at = excluded.created_at`

	now := time.Now().UTC()
	for text, vec := range items {
		key := Key(text, model)
		raw, err := json.Marshal(entry{Embedding: vec, CreatedAt: now})
		if err != nil {
			return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "marshalling cache entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, key, string(raw), now.Format(time.RFC3339Nano)); err != nil {
			return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "upserting cache entry: %w", err)
		}
		c.front.Set(key, vec, int64(len(vec))*4)
		c.inserts.Add(1)
	}

	if err := tx.Commit(); err != nil {
		return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "committing cache batch: %w", err)
	}
	return nil
}

// Stats returns the hit/miss/insert counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Inserts: c.inserts.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Len returns the number of durable entries.
func (c *Cache) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "counting cache entries: %w", err)
	}
	return n, nil
}

// Clear drops every entry from both layers. Counters are reset.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "clearing cache: %w", err)
	}
	c.front.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
	c.inserts.Store(0)
	return nil
}

// Close releases the front and the database handle.
func (c *Cache) Close() error {
	c.front.Close()
	if err := c.db.Close(); err != nil {
		return strataerr.Errorf(strataerr.CodeCacheDatabaseFailure, "closing cache db: %w", err)
	}
	return nil
}
