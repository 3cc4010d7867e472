package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// SearchHit is a ranked (chunk_id, score) pair returned by BM25Search and
// VectorSearch.
type SearchHit struct {
	ChunkID int64
	Score   float64
}

// QuantizeEmbedding converts a float32 vector to uint8 components plus the
// scale/offset needed to reconstruct it: scale=(max-min)/255,
// offset=min, component=round((v-offset)/scale) clamped to [0,255].
func QuantizeEmbedding(v []float32) (components []uint8, scale float32, offset float32) {
	if len(v) == 0 {
		return nil, 0, 0
	}
	min, max := v[0], v[0]
	for _, f := range v {
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	offset = min
	scale = (max - min) / 255
	components = make([]uint8, len(v))
	if scale == 0 {
		// Degenerate (constant) vector: every component maps to offset.
		return components, scale, offset
	}
	for i, f := range v {
		q := math.Round(float64((f - offset) / scale))
		if q < 0 {
			q = 0
		}
		if q > 255 {
			q = 255
		}
		components[i] = uint8(q)
	}
	return components, scale, offset
}

// DequantizeEmbedding reconstructs a float32 vector from uint8 components
// plus scale/offset: v̂ = component*scale + offset.
func DequantizeEmbedding(components []uint8, scale, offset float32) []float32 {
	out := make([]float32, len(components))
	for i, c := range components {
		out[i] = float32(c)*scale + offset
	}
	return out
}

// SetEmbedding quantizes and stores a chunk's embedding, overwriting any
// existing row, then appends it to the in-memory vector matrix so a
// subsequent VectorSearch sees it without a full rebuild.
func (s *Store) SetEmbedding(ctx context.Context, chunkID int64, vector []float32) error {
	components, scale, offset := QuantizeEmbedding(vector)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, bytes, scale, offset_) VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET bytes = excluded.bytes, scale = excluded.scale, offset_ = excluded.offset_
	`, chunkID, components, scale, offset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	if s.vecIdx != nil {
		s.vecIdx.upsert(chunkID, components, scale, offset)
	}
	return nil
}

// HasEmbedding reports whether a chunk has a stored embedding.
func (s *Store) HasEmbedding(ctx context.Context, chunkID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunk_embeddings WHERE chunk_id = ?", chunkID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return count > 0, nil
}

// BM25Search performs a full-text search over L1 chunks using FTS5 BM25
// ranking, returning results best-first.
func (s *Store) BM25Search(ctx context.Context, ftsQuery string, limit int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rowid, f.rank
		FROM chunks_fts f
		WHERE chunks_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		// FTS5 rank is negative (lower = better); flip to a positive score.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// vectorIndex is the in-memory (N, 384) matrix of quantized components
// plus parallel scale/offset vectors, built lazily from disk and appended
// to on SetEmbedding. It tolerates trailing-row staleness relative to the
// database by design — callers read a snapshot, not a live join.
type vectorIndex struct {
	chunkIDs   []int64
	components [][]uint8
	scales     []float32
	offsets    []float32
	pos        map[int64]int
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{pos: make(map[int64]int)}
}

func (v *vectorIndex) upsert(chunkID int64, components []uint8, scale, offset float32) {
	if i, ok := v.pos[chunkID]; ok {
		v.components[i] = components
		v.scales[i] = scale
		v.offsets[i] = offset
		return
	}
	v.pos[chunkID] = len(v.chunkIDs)
	v.chunkIDs = append(v.chunkIDs, chunkID)
	v.components = append(v.components, components)
	v.scales = append(v.scales, scale)
	v.offsets = append(v.offsets, offset)
}

// ensureVectorIndex builds the in-memory matrix from disk on first use.
func (s *Store) ensureVectorIndex(ctx context.Context) error {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	if s.vecIdx != nil {
		return nil
	}
	idx, err := s.loadVectorIndex(ctx)
	if err != nil {
		return err
	}
	s.vecIdx = idx
	return nil
}

func (s *Store) loadVectorIndex(ctx context.Context) (*vectorIndex, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id, bytes, scale, offset_ FROM chunk_embeddings ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer rows.Close()

	idx := newVectorIndex()
	for rows.Next() {
		var chunkID int64
		var bytes []byte
		var scale, offset float32
		if err := rows.Scan(&chunkID, &bytes, &scale, &offset); err != nil {
			slog.Warn("store: skipping corrupt embedding row", "error", fmt.Errorf("%w: %v", ErrCorrupt, err))
			continue
		}
		if len(bytes) != s.embeddingDim {
			// A truncated or oversized blob would dequantize into a
			// vector of the wrong length; skip it rather than feed it
			// into VectorSearch. Left in place for consolidation's
			// corrupt-row sweep to clear, which re-queues the owning
			// chunk for re-embedding.
			slog.Warn("store: skipping embedding row with mismatched length", "chunk_id", chunkID, "want", s.embeddingDim, "got", len(bytes), "error", ErrCorrupt)
			continue
		}
		idx.upsert(chunkID, bytes, scale, offset)
	}
	return idx, rows.Err()
}

// PruneCorruptEmbeddings deletes chunk_embeddings rows whose bytes
// length doesn't match the store's embedding dimension — the on-disk
// counterpart of loadVectorIndex's read-time skip. Deleting the row
// makes its owning chunk reappear in ChunksMissingEmbedding, so the
// next Distill call re-embeds it. Returns the number of rows removed.
func (s *Store) PruneCorruptEmbeddings(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id, length(bytes) FROM chunk_embeddings")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	var bad []int64
	for rows.Next() {
		var chunkID int64
		var n int
		if err := rows.Scan(&chunkID, &n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		if n != s.embeddingDim {
			bad = append(bad, chunkID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	rows.Close()

	for _, chunkID := range bad {
		slog.Warn("store: pruning corrupt embedding row", "chunk_id", chunkID, "error", ErrCorrupt)
		if _, err := s.db.ExecContext(ctx, "DELETE FROM chunk_embeddings WHERE chunk_id = ?", chunkID); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	if len(bad) > 0 {
		s.invalidateVectorIndex()
	}
	return len(bad), nil
}

// invalidateVectorIndex forces the next VectorSearch to rebuild the
// in-memory matrix from disk, used after bulk deletes.
func (s *Store) invalidateVectorIndex() {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	s.vecIdx = nil
}

// VectorSearch dequantizes the in-memory matrix on read and ranks chunks
// by dot product against queryVector (both are ℓ2-normalized, so the dot
// product is cosine similarity). The matrix is built lazily on first call
// and kept up to date by SetEmbedding thereafter.
func (s *Store) VectorSearch(ctx context.Context, queryVector []float32, limit int) ([]SearchHit, error) {
	if err := s.ensureVectorIndex(ctx); err != nil {
		return nil, err
	}

	s.vecMu.Lock()
	idx := s.vecIdx
	s.vecMu.Unlock()

	hits := make([]SearchHit, 0, len(idx.chunkIDs))
	for i, chunkID := range idx.chunkIDs {
		vec := DequantizeEmbedding(idx.components[i], idx.scales[i], idx.offsets[i])
		score := dot(vec, queryVector)
		hits = append(hits, SearchHit{ChunkID: chunkID, Score: float64(score)})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
