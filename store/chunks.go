package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Section is an L0 input to AddChunks: a container with its own ordinal
// and the ordered L1 paragraph texts that belong to it.
type Section struct {
	Heading    string
	Text       string // L0 container text (may be empty — heading-only sections are valid)
	Paragraphs []string
}

// AddChunks atomically inserts L0 section rows and their L1 paragraph
// rows for a document, populating FTS rows for the L1 rows via trigger.
// All sections/paragraphs are inserted in one transaction — add_chunks
// is all-or-nothing, per the store's transactional contract.
func (s *Store) AddChunks(ctx context.Context, documentID int64, sections []Section) ([]Chunk, error) {
	var inserted []Chunk

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sectionStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash)
			VALUES (?, 0, ?, NULL, ?, ?, '', ?)
		`)
		if err != nil {
			return err
		}
		defer sectionStmt.Close()

		paragraphStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash)
			VALUES (?, 1, ?, ?, ?, ?, '', ?)
		`)
		if err != nil {
			return err
		}
		defer paragraphStmt.Close()

		ordinal := 0
		for _, sec := range sections {
			res, err := sectionStmt.ExecContext(ctx, documentID, ordinal, sec.Heading, sec.Text, hashText(sec.Heading+"\x00"+sec.Text))
			if err != nil {
				return err
			}
			l0ID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			inserted = append(inserted, Chunk{
				ID: l0ID, DocumentID: documentID, Level: LevelSection,
				Ordinal: ordinal, Heading: sec.Heading, Text: sec.Text,
			})
			ordinal++

			for pOrd, para := range sec.Paragraphs {
				pres, err := paragraphStmt.ExecContext(ctx, documentID, pOrd, l0ID, sec.Heading, para, hashText(para))
				if err != nil {
					return err
				}
				pID, err := pres.LastInsertId()
				if err != nil {
					return err
				}
				inserted = append(inserted, Chunk{
					ID: pID, DocumentID: documentID, Level: LevelParagraph,
					Ordinal: pOrd, ParentChunkID: &l0ID, Heading: sec.Heading, Text: para,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return inserted, nil
}

// GetChunksByDocument returns all chunks (both levels) for a document,
// ordered by level then ordinal.
func (s *Store) GetChunksByDocument(ctx context.Context, documentID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash
		FROM chunks WHERE document_id = ? ORDER BY level, ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunk retrieves a single chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	var c Chunk
	var parent sql.NullInt64
	var heading sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash
		FROM chunks WHERE id = ?
	`, id).Scan(&c.ID, &c.DocumentID, &c.Level, &c.Ordinal, &parent, &heading, &c.Text, &c.EnrichedText, &c.ContentHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChunkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if parent.Valid {
		v := parent.Int64
		c.ParentChunkID = &v
	}
	c.Heading = heading.String
	return &c, nil
}

// GetChunksByIDs fetches chunks by id in a single query, order
// unspecified. Used by the retriever to hydrate (chunk_id, score) hits
// returned by BM25Search/VectorSearch.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []int64) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `
		SELECT id, document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash
		FROM chunks WHERE id IN (?` + repeatPlaceholders(len(ids)-1) + `)
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksMissingEmbedding returns L1 chunks that have no row in
// chunk_embeddings, used by distill() to catch up missing vectors.
func (s *Store) ChunksMissingEmbedding(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.level, c.ordinal, c.parent_chunk_id, c.heading, c.text, c.enriched_text, c.content_hash
		FROM chunks c
		LEFT JOIN chunk_embeddings e ON e.chunk_id = c.id
		WHERE c.level = 1 AND e.chunk_id IS NULL
		ORDER BY c.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksMissingEnrichment returns L1 chunks whose enriched_text is empty,
// used by distill() to catch up missing extraction.
func (s *Store) ChunksMissingEnrichment(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, level, ordinal, parent_chunk_id, heading, text, enriched_text, content_hash
		FROM chunks WHERE level = 1 AND enriched_text = ''
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SetEnriched updates a chunk's enriched_text. The chunks_au trigger
// rebuilds its FTS row as part of the same statement's side effects.
func (s *Store) SetEnriched(ctx context.Context, chunkID int64, enrichedText string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chunks SET enriched_text = ? WHERE id = ?", enrichedText, chunkID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if n == 0 {
		return ErrChunkNotFound
	}
	return nil
}

// scanChunks reads every row it can and logs-and-skips any row that
// fails to scan (e.g. a column holding a value of the wrong type)
// rather than discarding the whole result set over one bad row.
func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var parent sql.NullInt64
		var heading sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Level, &c.Ordinal, &parent, &heading, &c.Text, &c.EnrichedText, &c.ContentHash); err != nil {
			slog.Warn("store: skipping corrupt chunk row", "error", fmt.Errorf("%w: %v", ErrCorrupt, err))
			continue
		}
		if parent.Valid {
			v := parent.Int64
			c.ParentChunkID = &v
		}
		c.Heading = heading.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
