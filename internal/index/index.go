// Package index persists tool index entries in a disk-resident SQLite
// table and serves vector, keyword, and hybrid queries over it.
package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flexigpt/skillcore-go/spec"
)

// SearchHit is one row returned by Search/SearchHybrid: the entry plus the
// store's native distance (smaller = more similar).
type SearchHit struct {
	Entry    spec.IndexEntry
	Distance float64
}

// Index is the Vector + Keyword Index. Writes are single-table-atomic
// (each call holds the write lock for its whole SQLite transaction);
// readers concurrent with a writer observe either the pre- or post-write
// state, never a torn row.
type Index struct {
	db  *sql.DB
	dim int

	mu sync.RWMutex
}

// Open creates or attaches to a SQLite-backed index at dbPath with a fixed
// vector dimensionality. Dimensionality is enforced on every Upsert; it
// cannot change without a Drop.
func Open(dbPath string, dim int) (*Index, error) {
	if dim <= 0 {
		return nil, spec.NewError(spec.KindIndexConflict, "index.Open", fmt.Errorf("dimension must be positive"))
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, spec.NewError(spec.KindInternal, "index.Open", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, spec.NewError(spec.KindInternal, "index.Open", err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers anyway; avoid lock contention across goroutines.

	idx := &Index{db: db, dim: dim}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS tool_index (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		vector BLOB NOT NULL,
		source_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		keywords TEXT,
		tool_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_index_source ON tool_index(source_path);
	`
	_, err := x.db.Exec(schema)
	if err != nil {
		return spec.NewError(spec.KindInternal, "index.initSchema", err)
	}
	return nil
}

// Upsert replaces the entry with entry.ID, enforcing the table's fixed
// vector dimension.
func (x *Index) Upsert(entry spec.IndexEntry) error {
	if len(entry.Vector) != x.dim {
		return spec.NewError(spec.KindIndexConflict, "index.Upsert",
			fmt.Errorf("vector has %d dims, index is %d", len(entry.Vector), x.dim))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	vecBlob, err := encodeVector(entry.Vector)
	if err != nil {
		return spec.NewError(spec.KindInternal, "index.Upsert", err)
	}
	kwJSON, err := json.Marshal(entry.Keywords)
	if err != nil {
		return spec.NewError(spec.KindInternal, "index.Upsert", err)
	}
	toolJSON, err := json.Marshal(entry.Tool)
	if err != nil {
		return spec.NewError(spec.KindInternal, "index.Upsert", err)
	}

	_, err = x.db.Exec(`
		INSERT INTO tool_index (id, content, vector, source_path, content_hash, keywords, tool_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, vector=excluded.vector, source_path=excluded.source_path,
			content_hash=excluded.content_hash, keywords=excluded.keywords, tool_json=excluded.tool_json`,
		entry.ID, entry.Content, vecBlob, entry.SourcePath, entry.ContentHash, string(kwJSON), string(toolJSON))
	if err != nil {
		return spec.NewError(spec.KindInternal, "index.Upsert", err)
	}
	return nil
}

// DeleteByID removes one entry.
func (x *Index) DeleteByID(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.Exec(`DELETE FROM tool_index WHERE id = ?`, id); err != nil {
		return spec.NewError(spec.KindInternal, "index.DeleteByID", err)
	}
	return nil
}

// DeleteBySource removes every entry whose SourcePath matches path.
func (x *Index) DeleteBySource(path string) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec(`DELETE FROM tool_index WHERE source_path = ?`, path)
	if err != nil {
		return 0, spec.NewError(spec.KindInternal, "index.DeleteBySource", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of rows currently indexed.
func (x *Index) Count() (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var n int
	if err := x.db.QueryRow(`SELECT COUNT(*) FROM tool_index`).Scan(&n); err != nil {
		return 0, spec.NewError(spec.KindInternal, "index.Count", err)
	}
	return n, nil
}

// Drop removes the table entirely, used for a clean rebuild.
func (x *Index) Drop() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.Exec(`DROP TABLE IF EXISTS tool_index`); err != nil {
		return spec.NewError(spec.KindInternal, "index.Drop", err)
	}
	return x.initSchema()
}

// Close releases the underlying database handle.
func (x *Index) Close() error {
	return x.db.Close()
}

// Search returns the top-k entries by vector distance, computed as a
// brute-force cosine scan in Go over every row. Building with the
// "sqlite_vec,cgo" tags registers the sqlite-vec extension (vecaccel.go),
// but Search does not use it.
func (x *Index) Search(vector []float32, k int) ([]SearchHit, error) {
	if len(vector) != x.dim {
		return nil, spec.NewError(spec.KindIndexConflict, "index.Search",
			fmt.Errorf("query vector has %d dims, index is %d", len(vector), x.dim))
	}

	rows, err := x.allEntries()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, spec.NewError(spec.KindNotFound, "index.Search", nil)
	}

	hits := make([]SearchHit, 0, len(rows))
	for _, e := range rows {
		hits = append(hits, SearchHit{Entry: e, Distance: cosineDistance(vector, e.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// SearchHybrid orders every entry by how many of keywords it shares (most
// first), breaking ties by vector distance, and returns the top k. The two
// signals are not fused into one score: an entry with more keyword overlap
// ranks above a closer entry with less, and each hit's Distance is the
// plain vector distance. The Router layers its own composite scoring on top
// of this.
func (x *Index) SearchHybrid(vector []float32, keywords []string, k int) ([]SearchHit, error) {
	hits, err := x.Search(vector, 0)
	if err != nil {
		return nil, err
	}

	kwSet := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kwSet[strings.ToLower(kw)] = true
	}

	sort.Slice(hits, func(i, j int) bool {
		oi, oj := keywordOverlap(hits[i].Entry.Keywords, kwSet), keywordOverlap(hits[j].Entry.Keywords, kwSet)
		if oi != oj {
			return oi > oj
		}
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func keywordOverlap(entryKeywords []string, query map[string]bool) int {
	n := 0
	for _, kw := range entryKeywords {
		if query[strings.ToLower(kw)] {
			n++
		}
	}
	return n
}

func (x *Index) allEntries() ([]spec.IndexEntry, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rows, err := x.db.Query(`SELECT id, content, vector, source_path, content_hash, keywords, tool_json FROM tool_index`)
	if err != nil {
		return nil, spec.NewError(spec.KindInternal, "index.allEntries", err)
	}
	defer rows.Close()

	var out []spec.IndexEntry
	for rows.Next() {
		var e spec.IndexEntry
		var vecBlob []byte
		var kwJSON, toolJSON string
		if err := rows.Scan(&e.ID, &e.Content, &vecBlob, &e.SourcePath, &e.ContentHash, &kwJSON, &toolJSON); err != nil {
			return nil, spec.NewError(spec.KindInternal, "index.allEntries", err)
		}
		vec, err := decodeVector(vecBlob)
		if err != nil {
			return nil, spec.NewError(spec.KindInternal, "index.allEntries", err)
		}
		e.Vector = vec
		if kwJSON != "" {
			json.Unmarshal([]byte(kwJSON), &e.Keywords)
		}
		if toolJSON != "" {
			json.Unmarshal([]byte(toolJSON), &e.Tool)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}

func encodeVector(v []float32) ([]byte, error) {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf, nil
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob: length %d not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4+0]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
