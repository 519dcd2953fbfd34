package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/docsift/docsift/internal/model"
)

// SQLite is a persistent vector index backed by a single SQLite file.
// Vectors are stored as little-endian float32 blobs and scanned brute
// force at query time; document replacement runs in one transaction so
// readers never observe a half-upserted document.
type SQLite struct {
	db  *sql.DB
	dim int

	// modernc SQLite allows one writer at a time; serializing writes here
	// avoids SQLITE_BUSY churn under concurrent ingestion.
	writeMu sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	doc_order   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	chunk_id     TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(document_id),
	seq          INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	text         TEXT NOT NULL,
	vector       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_document ON entries(document_id);
`

// OpenSQLite opens (or creates) a SQLite-backed index at path. Pass
// ":memory:" for an ephemeral database. The dimensionality recorded in the
// file must match the requested one; a mismatch means the embedding model
// changed and the index needs a rebuild.
func OpenSQLite(path string, dimension int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Brute-force scans stream rows; a second concurrent connection would
	// only invite writer lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLite{db: db, dim: dimension}
	if err := s.checkDimension(dimension); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// checkDimension records the dimensionality on first open and verifies it
// on every subsequent one.
func (s *SQLite) checkDimension(dimension int) error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`,
			strconv.Itoa(dimension))
		if err != nil {
			return fmt.Errorf("record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read dimension: %w", err)
	}

	got, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("%w: stored dimension %q", ErrCorrupted, stored)
	}
	if got != dimension {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, embedder produces %d",
			ErrDimensionMismatch, got, dimension)
	}
	return nil
}

// Dimension returns the index's fixed vector dimensionality.
func (s *SQLite) Dimension() int { return s.dim }

// Upsert replaces the document's entries in a single transaction.
func (s *SQLite) Upsert(ctx context.Context, documentID string, entries []model.IndexEntry) error {
	if err := checkEntries(s.dim, entries); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Keep the document's original ordering slot across re-ingestion so
	// tie-breaking stays deterministic.
	var order int
	err = tx.QueryRowContext(ctx,
		`SELECT doc_order FROM documents WHERE document_id = ?`, documentID).Scan(&order)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(doc_order), -1) + 1 FROM documents`).Scan(&order)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (document_id, doc_order) VALUES (?, ?)`, documentID, order)
		}
	}
	if err != nil {
		return fmt.Errorf("document order: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("clear prior entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (chunk_id, document_id, seq, start_offset, end_offset, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.DocumentID, e.Sequence,
			e.StartOffset, e.EndOffset, e.Text, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Delete removes the document and all of its entries.
func (s *SQLite) Delete(ctx context.Context, documentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}

// Search streams every stored entry and scores it in Go.
func (s *SQLite) Search(ctx context.Context, query []float32, k int, filter *Filter) (model.RetrievalResult, error) {
	if len(query) != s.dim {
		return model.RetrievalResult{}, ErrDimensionMismatch
	}
	if k <= 0 {
		return model.RetrievalResult{}, nil
	}

	q := `
		SELECT e.chunk_id, e.document_id, e.start_offset, e.end_offset, e.text, e.vector
		FROM entries e
		JOIN documents d ON d.document_id = e.document_id`
	var args []any
	if filter != nil && len(filter.DocumentIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.DocumentIDs)), ",")
		q += ` WHERE e.document_id IN (` + placeholders + `)`
		for _, id := range filter.DocumentIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY d.doc_order, e.seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("scan entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []candidate
	seq := 0
	for rows.Next() {
		var hit model.RetrievalHit
		var blob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.StartOffset,
			&hit.EndOffset, &hit.Text, &blob); err != nil {
			return model.RetrievalResult{}, fmt.Errorf("scan row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != s.dim {
			return model.RetrievalResult{}, fmt.Errorf("%w: chunk %s", ErrCorrupted, hit.ChunkID)
		}
		hit.Score = Cosine(query, vec)
		candidates = append(candidates, candidate{hit: hit, seq: seq})
		seq++
	}
	if err := rows.Err(); err != nil {
		return model.RetrievalResult{}, fmt.Errorf("scan entries: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	result := model.RetrievalResult{}
	for _, c := range candidates[:k] {
		result.Hits = append(result.Hits, c.hit)
	}
	return result, nil
}

// Contains reports whether a chunk is currently indexed.
func (s *SQLite) Contains(ctx context.Context, chunkID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM entries WHERE chunk_id = ?`, chunkID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup chunk: %w", err)
	}
	return true, nil
}

// Len returns the total number of indexed entries.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// DocumentIDs returns indexed document IDs in first-insertion order.
func (s *SQLite) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM documents ORDER BY doc_order`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// encodeVector packs a vector as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
