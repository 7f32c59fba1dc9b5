// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/goccy/go-json"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/strata-dev/strata/internal/store"
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.TieredStore = (*TieredStore)(nil)

// TieredStore implements store.TieredStore backed by one SQLite database
// per tier. Separate databases give each tier its own WAL, so concurrent
// writers to different tiers never contend on the same lock.
type TieredStore struct {
	dbs    map[store.Layer]*sql.DB
	dims   int
	logger *slog.Logger
}

// New opens (or creates) one database per tier under dataPath and
// initialises the records table and the vec0 shadow table in each.
func New(dataPath string, dims int) (*TieredStore, error) {
	if dims <= 0 {
		return nil, strataerr.Errorf(strataerr.CodeStoreRecordInvalid, "vector dimensions must be > 0, got %d", dims)
	}

	dbs := make(map[store.Layer]*sql.DB, 3)
	cleanup := func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	}

	for _, layer := range store.Layers() {
		path := filepath.Join(dataPath, string(layer)+".db")
		db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			cleanup()
			return nil, strataerr.Errorf(strataerr.CodeStoreDatabaseFailure, "opening %s db: %w", layer, err)
		}

		if err := db.Ping(); err != nil {
			_ = db.Close()
			cleanup()
			return nil, strataerr.Errorf(strataerr.CodeStoreDatabaseFailure, "pinging %s db: %w", layer, err)
		}

		if err := migrate(db, dims); err != nil {
			_ = db.Close()
			cleanup()
			return nil, strataerr.Errorf(strataerr.CodeStoreDatabaseFailure, "migrating %s db: %w", layer, err)
		}

		dbs[layer] = db
	}

	return &TieredStore{dbs: dbs, dims: dims, logger: slog.Default()}, nil
}

func migrate(db *sql.DB, dims int) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	text         TEXT NOT NULL,
	embedding    BLOB,
	kind         TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	project      TEXT NOT NULL DEFAULT '',
	session      TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	last_access  TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	score        REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_candidates ON records(created_at, score, access_count);
CREATE INDEX IF NOT EXISTS idx_records_project ON records(project);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	// vec0 shadow table mirrors the embedding column for exact KNN scans.
	// Cosine distance so store-side scans rank the same way as the
	// in-memory index.
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dims,
	)
	_, err := db.Exec(vecDDL)
	return err
}

func (s *TieredStore) db(layer store.Layer) (*sql.DB, error) {
	db, ok := s.dbs[layer]
	if !ok {
		return nil, strataerr.New(strataerr.CodeStoreRecordInvalid, "unknown tier", strataerr.FieldLayer(string(layer)))
	}
	return db, nil
}

// mapDBErr classifies a database error: SQLITE_BUSY/SQLITE_LOCKED become
// resource-class errors the resilience wrapper retries; anything else is a
// permanent database failure.
func mapDBErr(err error, code strataerr.Code, msg string, fields ...strataerr.Attr) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return strataerr.Wrap(err, strataerr.CodeStoreDatabaseBusy, msg, fields...)
		}
	}
	return strataerr.Wrap(err, code, msg, fields...)
}

func (s *TieredStore) validate(rec *store.Record) error {
	if rec.ID == "" {
		return strataerr.New(strataerr.CodeStoreRecordInvalid, "record id is empty")
	}
	if !rec.Layer.Valid() {
		return strataerr.New(strataerr.CodeStoreRecordInvalid, "record has unknown tier", strataerr.FieldLayer(string(rec.Layer)))
	}
	if len(rec.Embedding) > 0 && len(rec.Embedding) != s.dims {
		return strataerr.Errorf(strataerr.CodeIndexDimensionMismatch,
			"record %s embedding has %d dims, store configured for %d", rec.ID, len(rec.Embedding), s.dims)
	}
	return nil
}

// Insert stores a record in its tier, mirroring a populated embedding into
// the vec0 shadow table.
func (s *TieredStore) Insert(ctx context.Context, rec *store.Record) error {
	return s.InsertBatch(ctx, []*store.Record{rec})
}

// InsertBatch stores all records in a single transaction per tier:
// all-or-nothing relative to concurrent readers of that tier.
func (s *TieredStore) InsertBatch(ctx context.Context, recs []*store.Record) error {
	if len(recs) == 0 {
		return nil
	}

	byLayer := make(map[store.Layer][]*store.Record)
	for _, rec := range recs {
		if err := s.validate(rec); err != nil {
			return err
		}
		byLayer[rec.Layer] = append(byLayer[rec.Layer], rec)
	}

	for layer, batch := range byLayer {
		if err := s.insertTier(ctx, layer, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *TieredStore) insertTier(ctx context.Context, layer store.Layer, batch []*store.Record) error {
	db, err := s.db(layer)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "beginning insert transaction", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO records (id, text, embedding, kind, tags, project, session, created_at, last_access, access_count, score)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	text = excluded.text,
	embedding = excluded.embedding,
	kind = excluded.kind,
	tags = excluded.tags,
	project = excluded.project,
	session = excluded.session,
	last_access = excluded.last_access,
	access_count = excluded.access_count,
	score = excluded.score`

	for _, rec := range batch {
		var blob []byte
		if len(rec.Embedding) > 0 {
			blob, err = sqlite_vec.SerializeFloat32(rec.Embedding)
			if err != nil {
				return strataerr.Wrap(err, strataerr.CodeStoreDatabaseFailure, "serializing embedding", strataerr.FieldRecordID(rec.ID))
			}
		}

		tags, err := json.Marshal(rec.Tags)
		if err != nil {
			return strataerr.Wrap(err, strataerr.CodeStoreRecordInvalid, "marshalling tags", strataerr.FieldRecordID(rec.ID))
		}

		if _, err := tx.ExecContext(ctx, q,
			rec.ID, rec.Text, blob, rec.Kind, string(tags), rec.Project, rec.Session,
			formatTime(rec.CreatedAt), formatTime(rec.LastAccess), rec.AccessCount, rec.Score,
		); err != nil {
			return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "inserting record", strataerr.FieldRecordID(rec.ID))
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, rec.ID); err != nil {
			return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "clearing shadow vector", strataerr.FieldRecordID(rec.ID))
		}
		if len(blob) > 0 {
			if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, rec.ID, blob); err != nil {
				return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "inserting shadow vector", strataerr.FieldRecordID(rec.ID))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "committing insert batch", strataerr.FieldLayer(string(layer)))
	}
	return nil
}

const recordColumns = `id, text, embedding, kind, tags, project, session, created_at, last_access, access_count, score`

func scanRecord(row interface{ Scan(...any) error }, layer store.Layer) (*store.Record, error) {
	var (
		rec       store.Record
		blob      []byte
		tagsJSON  string
		createdAt string
		lastAcc   string
	)

	if err := row.Scan(&rec.ID, &rec.Text, &blob, &rec.Kind, &tagsJSON, &rec.Project, &rec.Session,
		&createdAt, &lastAcc, &rec.AccessCount, &rec.Score); err != nil {
		return nil, err
	}

	rec.Layer = layer
	rec.Embedding = decodeVector(blob)

	if tagsJSON != "" && tagsJSON != "[]" {
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			// Corrupt tags degrade to an untagged record rather than
			// failing the read.
			slog.Warn("dropping corrupt record tags",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
			rec.Tags = nil
		}
	}

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.LastAccess, err = parseTime(lastAcc); err != nil {
		return nil, err
	}

	return &rec, nil
}

// GetByID fetches a record and bumps last_access and access_count in the
// same transaction, keeping access accounting monotonic.
func (s *TieredStore) GetByID(ctx context.Context, id string, layer store.Layer) (*store.Record, error) {
	db, err := s.db(layer)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "beginning get transaction", strataerr.FieldRecordID(id))
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET last_access = ?, access_count = access_count + 1 WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "touching record", strataerr.FieldRecordID(id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, strataerr.New(strataerr.CodeStoreRecordNotFound, "record not found",
			strataerr.FieldRecordID(id), strataerr.FieldLayer(string(layer)))
	}

	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row, layer)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning record", strataerr.FieldRecordID(id))
	}

	if err := tx.Commit(); err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "committing get", strataerr.FieldRecordID(id))
	}
	return rec, nil
}

// PeekByID fetches a record without touching access accounting.
func (s *TieredStore) PeekByID(ctx context.Context, id string, layer store.Layer) (*store.Record, error) {
	db, err := s.db(layer)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row, layer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, strataerr.New(strataerr.CodeStoreRecordNotFound, "record not found",
				strataerr.FieldRecordID(id), strataerr.FieldLayer(string(layer)))
		}
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning record", strataerr.FieldRecordID(id))
	}
	return rec, nil
}

// DeleteByID removes a record and its shadow vector from a tier.
func (s *TieredStore) DeleteByID(ctx context.Context, id string, layer store.Layer) error {
	db, err := s.db(layer)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "beginning delete transaction", strataerr.FieldRecordID(id))
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "deleting record", strataerr.FieldRecordID(id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return strataerr.New(strataerr.CodeStoreRecordNotFound, "record not found",
			strataerr.FieldRecordID(id), strataerr.FieldLayer(string(layer)))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "deleting shadow vector", strataerr.FieldRecordID(id))
	}

	if err := tx.Commit(); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "committing delete", strataerr.FieldRecordID(id))
	}
	return nil
}

// FilterByMetadata scans a tier for records matching the filter. Tag
// matching requires the record to carry every listed tag.
func (s *TieredStore) FilterByMetadata(ctx context.Context, layer store.Layer, f store.RecordFilter) ([]*store.Record, error) {
	db, err := s.db(layer)
	if err != nil {
		return nil, err
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT ` + recordColumns + ` FROM records WHERE 1=1`)

	if f.Kind != "" {
		qb.WriteString(` AND kind = ?`)
		args = append(args, f.Kind)
	}
	if f.Project != "" {
		qb.WriteString(` AND project = ?`)
		args = append(args, f.Project)
	}
	if f.Session != "" {
		qb.WriteString(` AND session = ?`)
		args = append(args, f.Session)
	}
	if f.MinScore > 0 {
		qb.WriteString(` AND score >= ?`)
		args = append(args, f.MinScore)
	}
	for _, tag := range f.Tags {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(records.tags) WHERE json_each.value = ?)`)
		args = append(args, tag)
	}

	qb.WriteString(` ORDER BY score DESC, last_access DESC`)

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "filtering records", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = rows.Close() }()

	var recs []*store.Record
	for rows.Next() {
		rec, err := scanRecord(rows, layer)
		if err != nil {
			return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning filtered record", strataerr.FieldLayer(string(layer)))
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "iterating filtered records", strataerr.FieldLayer(string(layer)))
	}

	return recs, nil
}

// ForEach streams every record in the tier to fn in id order.
func (s *TieredStore) ForEach(ctx context.Context, layer store.Layer, fn func(*store.Record) error) error {
	db, err := s.db(layer)
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY id`)
	if err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning records", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows, layer)
		if err != nil {
			return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning record", strataerr.FieldLayer(string(layer)))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteExpired removes records created before the cutoff.
func (s *TieredStore) DeleteExpired(ctx context.Context, layer store.Layer, before time.Time) (int64, error) {
	db, err := s.db(layer)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "beginning expiry transaction", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vectors WHERE id IN (SELECT id FROM records WHERE created_at < ?)`,
		formatTime(before),
	); err != nil {
		return 0, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "deleting expired shadow vectors", strataerr.FieldLayer(string(layer)))
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "deleting expired records", strataerr.FieldLayer(string(layer)))
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "committing expiry", strataerr.FieldLayer(string(layer)))
	}
	return n, nil
}

// PromotionCandidates returns records eligible to leave a tier, oldest first.
func (s *TieredStore) PromotionCandidates(ctx context.Context, layer store.Layer, q store.CandidateQuery) ([]*store.Record, error) {
	db, err := s.db(layer)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}

	const query = `SELECT ` + recordColumns + ` FROM records
WHERE created_at < ? AND score >= ? AND access_count >= ?
ORDER BY created_at ASC
LIMIT ?`

	rows, err := db.QueryContext(ctx, query, formatTime(q.Before), q.MinScore, q.MinAccessCount, limit)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "querying promotion candidates", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = rows.Close() }()

	var recs []*store.Record
	for rows.Next() {
		rec, err := scanRecord(rows, layer)
		if err != nil {
			return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning candidate", strataerr.FieldLayer(string(layer)))
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "iterating candidates", strataerr.FieldLayer(string(layer)))
	}

	return recs, nil
}

// Move copies a record to the destination tier then deletes the source
// copy. Tiers live in separate databases, so a crash in between leaves a
// transient duplicate that the next promotion cycle resolves.
func (s *TieredStore) Move(ctx context.Context, rec *store.Record, from, to store.Layer) error {
	if from == to {
		return strataerr.New(strataerr.CodeStoreRecordInvalid, "move source and destination tiers are equal",
			strataerr.FieldLayer(string(from)))
	}

	moved := *rec
	moved.Layer = to
	if err := s.insertTier(ctx, to, []*store.Record{&moved}); err != nil {
		return err
	}

	if err := s.DeleteByID(ctx, rec.ID, from); err != nil {
		if strataerr.IsNotFound(err) {
			// Another cycle already removed the source copy; the record
			// was modified concurrently.
			return strataerr.Wrap(err, strataerr.CodePromotionRecordConflict, "source record vanished during move",
				strataerr.FieldRecordID(rec.ID))
		}
		return err
	}
	return nil
}

// Resolve re-resolves a weak reference against the current tier contents.
func (s *TieredStore) Resolve(ctx context.Context, ref store.MemRef) (*store.Record, error) {
	return s.PeekByID(ctx, ref.Key, ref.Layer)
}

// SearchVectors runs an exact KNN scan over the tier's vec0 shadow table.
func (s *TieredStore) SearchVectors(ctx context.Context, layer store.Layer, query []float32, k int) ([]store.VectorMatch, error) {
	db, err := s.db(layer)
	if err != nil {
		return nil, err
	}
	if len(query) != s.dims {
		return nil, strataerr.Errorf(strataerr.CodeIndexDimensionMismatch,
			"query has %d dims, store configured for %d", len(query), s.dims)
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, strataerr.Wrap(err, strataerr.CodeStoreDatabaseFailure, "serializing query vector")
	}

	const q = `SELECT id, distance FROM vectors WHERE embedding MATCH ? AND k = ? ORDER BY distance`

	rows, err := db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning tier vectors", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = rows.Close() }()

	var matches []store.VectorMatch
	for rows.Next() {
		var m store.VectorMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "scanning vector match", strataerr.FieldLayer(string(layer)))
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "iterating vector matches", strataerr.FieldLayer(string(layer)))
	}

	return matches, nil
}

// Count returns the number of records in a tier.
func (s *TieredStore) Count(ctx context.Context, layer store.Layer) (int64, error) {
	db, err := s.db(layer)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "counting records", strataerr.FieldLayer(string(layer)))
	}
	return n, nil
}

// Counts returns record counts for all tiers.
func (s *TieredStore) Counts(ctx context.Context) (store.TierCounts, error) {
	var c store.TierCounts
	for _, layer := range store.Layers() {
		n, err := s.Count(ctx, layer)
		if err != nil {
			return store.TierCounts{}, err
		}
		switch layer {
		case store.LayerInteract:
			c.Interact = n
		case store.LayerInsights:
			c.Insights = n
		case store.LayerAssets:
			c.Assets = n
		}
	}
	return c, nil
}

// Clear deletes every record in a tier.
func (s *TieredStore) Clear(ctx context.Context, layer store.Layer) error {
	db, err := s.db(layer)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "beginning clear transaction", strataerr.FieldLayer(string(layer)))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "clearing shadow vectors", strataerr.FieldLayer(string(layer)))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "clearing records", strataerr.FieldLayer(string(layer)))
	}

	if err := tx.Commit(); err != nil {
		return mapDBErr(err, strataerr.CodeStoreDatabaseFailure, "committing clear", strataerr.FieldLayer(string(layer)))
	}
	return nil
}

// Close closes all tier databases.
func (s *TieredStore) Close() error {
	var errs []error
	for layer, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, strataerr.Wrap(err, strataerr.CodeStoreDatabaseFailure, "closing "+string(layer)+" db"))
		}
	}
	if len(errs) > 0 {
		return strataerr.Join(errs...)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
