// Package store persists documents, hierarchical chunks, and quantized
// embeddings in a single SQLite database, and maintains an in-memory
// vector matrix for dot-product search.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	Metadata    string `json:"metadata,omitempty"` // JSON-encoded map[string]string
	ContentHash string `json:"content_hash"`
	CreatedAt   string `json:"created_at"`
}

// Level identifies a chunk's place in the two-level hierarchy.
type Level int

const (
	LevelSection   Level = 0 // L0: section container, not directly searched
	LevelParagraph Level = 1 // L1: paragraph unit, the searchable leaf
)

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID            int64  `json:"id"`
	DocumentID    int64  `json:"document_id"`
	Level         Level  `json:"level"`
	Ordinal       int    `json:"ordinal"`
	ParentChunkID *int64 `json:"parent_chunk_id,omitempty"` // L1's owning L0; nil for L0
	Heading       string `json:"heading,omitempty"`
	Text          string `json:"text"`
	EnrichedText  string `json:"enriched_text,omitempty"`
	ContentHash   string `json:"content_hash"`
}

// Stats holds counts of key database objects.
type Stats struct {
	Documents  int `json:"documents"`
	ChunksL0   int `json:"chunks_l0"`
	ChunksL1   int `json:"chunks_l1"`
	Embeddings int `json:"embeddings"`
}

// Store wraps the SQLite database for all MindSage persistence plus the
// lazily-built in-memory vector matrix used by VectorSearch.
type Store struct {
	db           *sql.DB
	embeddingDim int

	vecMu  sync.Mutex
	vecIdx *vectorIndex // nil until first VectorSearch
}

// New opens (or creates) a SQLite database at the given path and
// initializes the schema and FTS5 index.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStoreIO, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrStoreIO, err)
	}

	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrStoreIO, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %v", ErrSchemaMismatch, err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// AddDocument inserts a document keyed by content hash. A duplicate hash
// returns the existing document's id without writing — documents are
// immutable after creation, so this is insert-or-return, never
// insert-or-update.
func (s *Store) AddDocument(ctx context.Context, text string, metadataJSON string) (int64, error) {
	hash := hashText(text)

	var existing int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE content_hash = ?", hash).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (text, metadata, content_hash) VALUES (?, ?, ?)
	`, text, metadataJSON, hash)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return res.LastInsertId()
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	doc := &Document{}
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, text, metadata, content_hash, created_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Text, &metadata, &doc.ContentHash, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	doc.Metadata = metadata.String
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, content_hash, created_at FROM documents ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var metadata sql.NullString
		if err := rows.Scan(&d.ID, &d.Text, &metadata, &d.ContentHash, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		d.Metadata = metadata.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and cascades to its chunks, FTS rows,
// and embeddings in a single transaction. It returns ErrDocumentNotFound
// when no document has that id.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chunk_embeddings WHERE chunk_id IN (
				SELECT id FROM chunks WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrDocumentNotFound
		}
		return nil
	})
	if err == ErrDocumentNotFound {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	s.invalidateVectorIndex()
	return nil
}

// Stats returns counts of documents, L0/L1 chunks, and embeddings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM chunks WHERE level = 0", &st.ChunksL0},
		{"SELECT COUNT(*) FROM chunks WHERE level = 1", &st.ChunksL1},
		{"SELECT COUNT(*) FROM chunk_embeddings", &st.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("%w: counting %s: %v", ErrStoreIO, q.query, err)
		}
	}
	return st, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// hashText returns the SHA-256 hex digest of text, used as the
// content-hash for document deduplication.
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
