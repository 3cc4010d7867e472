// Package consolidate keeps a store within a capability tier's capacity
// envelope by pruning orphaned rows, deduplicating documents that share
// a content hash, and evicting the oldest documents once a threshold is
// exceeded.
package consolidate

import (
	"context"
	"fmt"

	"mindsage/store"
	"mindsage/tier"
)

// Report summarizes what a Run call changed.
type Report struct {
	Pruned         int
	Deduped        int
	Evicted        int
	CorruptFlagged int
}

// Run executes the consolidation phases in fixed order: prune orphans,
// prune corrupt embedding rows flagged by the store's read path, dedupe,
// evict. Each phase completes (or fails) independently — a failure in
// one phase does not undo an earlier phase's committed work, and every
// individual row deletion it performs is itself atomic
// (store.DeleteDocument's own transaction, or this package's own
// single-transaction orphan sweep).
func Run(ctx context.Context, s *store.Store, t tier.Tier) (Report, error) {
	var report Report

	pruned, err := pruneOrphans(ctx, s)
	if err != nil {
		return report, fmt.Errorf("consolidate: prune: %w", err)
	}
	report.Pruned = pruned

	corrupt, err := s.PruneCorruptEmbeddings(ctx)
	if err != nil {
		return report, fmt.Errorf("consolidate: prune corrupt embeddings: %w", err)
	}
	report.CorruptFlagged = corrupt

	deduped, err := dedupeByContentHash(ctx, s)
	if err != nil {
		return report, fmt.Errorf("consolidate: dedupe: %w", err)
	}
	report.Deduped = deduped

	evicted, err := evictOldest(ctx, s, t)
	if err != nil {
		return report, fmt.Errorf("consolidate: evict: %w", err)
	}
	report.Evicted = evicted

	return report, nil
}

// pruneOrphans deletes chunk_embeddings rows whose owning chunk no
// longer exists and chunks rows whose owning document no longer exists,
// in a single transaction. Under normal operation store.DeleteDocument's
// own cascading transaction prevents orphans from ever appearing; this
// phase exists as a defensive sweep against partial writes from outside
// the store's own API (e.g. a restored backup taken mid-write).
func pruneOrphans(ctx context.Context, s *store.Store) (int, error) {
	db := s.DB()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var pruned int

	res, err := tx.ExecContext(ctx, `
		DELETE FROM chunk_embeddings WHERE chunk_id NOT IN (SELECT id FROM chunks)
	`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	pruned += int(n)

	res, err = tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE document_id NOT IN (SELECT id FROM documents)
	`)
	if err != nil {
		return 0, err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, err
	}
	pruned += int(n)

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return pruned, nil
}

// dedupeByContentHash finds documents sharing a content hash and deletes
// every copy but the lowest (oldest) id. Under normal operation
// store.AddDocument's insert-or-return-existing-id behavior and the
// unique index on documents.content_hash prevent this from ever finding
// work; it only finds duplicates in a database whose index was dropped
// and which was then written by a path other than AddDocument.
func dedupeByContentHash(ctx context.Context, s *store.Store) (int, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	byHash := make(map[string][]store.Document)
	for _, d := range docs {
		byHash[d.ContentHash] = append(byHash[d.ContentHash], d)
	}

	var deduped int
	for _, group := range byHash {
		if len(group) < 2 {
			continue
		}
		keepID := group[0].ID
		for _, d := range group[1:] {
			if d.ID < keepID {
				keepID = d.ID
			}
		}
		for _, d := range group {
			if d.ID == keepID {
				continue
			}
			if err := s.DeleteDocument(ctx, d.ID); err != nil {
				return deduped, err
			}
			deduped++
		}
	}
	return deduped, nil
}

// evictOldest deletes the oldest documents (by created_at, then id)
// until both the document count and chunk count are within tier t's
// thresholds.
func evictOldest(ctx context.Context, s *store.Store, t tier.Tier) (int, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	documentCount := stats.Documents
	chunkCount := stats.ChunksL0 + stats.ChunksL1 // both levels count against the tier's chunk ceiling

	maxDocs := t.MaxDocuments()
	maxChunks := t.MaxChunks()

	var evicted int
	for i := 0; i < len(docs); i++ {
		if documentCount <= maxDocs && chunkCount <= maxChunks {
			break
		}
		d := docs[i]
		chunksInDoc, err := s.GetChunksByDocument(ctx, d.ID)
		if err != nil {
			return evicted, err
		}
		if err := s.DeleteDocument(ctx, d.ID); err != nil {
			return evicted, err
		}
		evicted++
		documentCount--
		chunkCount -= len(chunksInDoc)
	}
	return evicted, nil
}
