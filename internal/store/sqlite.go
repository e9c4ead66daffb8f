package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore persists documents and embedding records in a single SQLite
// database. It implements DocumentStore and EmbeddingStore.
//
// Post-write hooks registered with Subscribe fire after every successful
// Put or Delete, on the caller's goroutine.
type SQLiteStore struct {
	mu          sync.RWMutex
	db          *sql.DB
	subscribers []NotifyFunc
	closed      bool
}

// Verify interface implementations at compile time.
var (
	_ DocumentStore  = (*SQLiteStore)(nil)
	_ EmbeddingStore = (*SQLiteStore)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	extracted  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
	doc_id   INTEGER NOT NULL,
	model_id TEXT NOT NULL,
	vector   BLOB NOT NULL,
	dims     INTEGER NOT NULL,
	PRIMARY KEY (doc_id, model_id)
);
`

// NewSQLiteStore opens (creating if needed) the database at path.
// An empty path opens an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The in-memory database exists per connection.
	if path == "" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Subscribe registers a post-write notification hook.
func (s *SQLiteStore) Subscribe(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *SQLiteStore) notify(docID int64) {
	s.mu.RLock()
	subs := make([]NotifyFunc, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(docID)
	}
}

// Put inserts or replaces a document. A zero ID assigns the next available
// ID and sets it on doc. The post-write hook fires on success.
func (s *SQLiteStore) Put(ctx context.Context, doc *Document) error {
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if doc.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (title, summary, body, tags, extracted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			doc.Title, doc.Summary, doc.Body, string(tags), doc.Extracted,
			doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		doc.ID = id
	} else {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO documents (id, title, summary, body, tags, extracted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Title, doc.Summary, doc.Body, string(tags), doc.Extracted,
			doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert document %d: %w", doc.ID, err)
		}
	}

	s.notify(doc.ID)
	return nil
}

// Get returns the document with the given ID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, summary, body, tags, extracted, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListAll returns every document ordered by ascending ID.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, body, tags, extracted, created_at, updated_at
		 FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document and its embeddings. Missing IDs are a no-op,
// but the hook still fires so indexes can drop stale entries.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	if err := s.DeleteEmbeddings(ctx, id); err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// SaveEmbedding upserts the record for its (document, model) pair.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (doc_id, model_id, vector, dims) VALUES (?, ?, ?, ?)`,
		rec.DocID, rec.ModelID, encodeVector(rec.Vector), len(rec.Vector))
	if err != nil {
		return fmt.Errorf("save embedding (%d, %s): %w", rec.DocID, rec.ModelID, err)
	}
	return nil
}

// ListEmbeddings returns every record for a model, ordered by document ID.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context, modelID string) ([]EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, vector FROM embeddings WHERE model_id = ? ORDER BY doc_id ASC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var recs []EmbeddingRecord
	for rows.Next() {
		var rec EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&rec.DocID, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		rec.ModelID = modelID
		rec.Vector = decodeVector(blob)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteEmbeddings removes all of a document's embedding records.
func (s *SQLiteStore) DeleteEmbeddings(ctx context.Context, docID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("delete embeddings for %d: %w", docID, err)
	}
	return nil
}

// Close closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var tags string
	var created, updated int64
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Summary, &doc.Body, &tags, &doc.Extracted, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	doc.CreatedAt = time.Unix(created, 0).UTC()
	doc.UpdatedAt = time.Unix(updated, 0).UTC()
	return &doc, nil
}

// encodeVector serializes a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
