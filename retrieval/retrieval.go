// Package retrieval implements MindSage's hybrid search: BM25 keyword
// search and quantized vector search fused by Reciprocal Rank Fusion,
// boosted by query-entity matches and deduplicated per owning document.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mindsage/embedder"
	"mindsage/extractor"
	"mindsage/store"
	"mindsage/tier"
)

// fanoutMultiplier widens each branch's fetch window beyond the
// requested limit so RRF has enough candidates to fuse meaningfully.
const fanoutMultiplier = 3

// ResolverKind tags which branch(es) produced a result, for observability.
type ResolverKind string

const (
	Keyword ResolverKind = "keyword"
	Vector  ResolverKind = "vector"
	Hybrid  ResolverKind = "hybrid"
)

// Result is one ranked hit from Search.
type Result struct {
	Chunk    store.Chunk
	Score    float64
	Resolver ResolverKind
}

// Engine performs hybrid retrieval combining BM25 and vector search.
type Engine struct {
	store *store.Store
	embed embedder.Embedder
}

// New creates a retrieval engine. embed may be embedder.NewNoOp() when
// no neural model is configured; the engine degrades to BM25-only.
func New(s *store.Store, embed embedder.Embedder) *Engine {
	return &Engine{store: s, embed: embed}
}

// Search runs the tier-gated hybrid strategy and returns up to limit
// results, one per owning document, best first.
func (e *Engine) Search(ctx context.Context, query string, limit int, t tier.Tier) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	fetchLimit := limit * fanoutMultiplier

	useVector := t.HybridEligible() && e.embed != nil && e.embed.Available()

	type bm25Outcome struct {
		hits []store.SearchHit
		err  error
	}
	type vecOutcome struct {
		hits []store.SearchHit
		err  error
	}

	bm25Ch := make(chan bm25Outcome, 1)
	go func() {
		hits, err := e.store.BM25Search(ctx, sanitizeFTSQuery(query), fetchLimit)
		bm25Ch <- bm25Outcome{hits, err}
	}()

	var vecCh chan vecOutcome
	if useVector {
		vecCh = make(chan vecOutcome, 1)
		go func() {
			vec, err := e.embed.EmbedQuery(ctx, query)
			if err != nil {
				vecCh <- vecOutcome{nil, fmt.Errorf("embed query: %w", err)}
				return
			}
			hits, err := e.store.VectorSearch(ctx, vec, fetchLimit)
			vecCh <- vecOutcome{hits, err}
		}()
	}

	bm25Res := <-bm25Ch
	if bm25Res.err != nil {
		return nil, fmt.Errorf("bm25 search: %w", bm25Res.err)
	}

	var vecHits []store.SearchHit
	if useVector {
		vecRes := <-vecCh
		if vecRes.err != nil {
			slog.Warn("retrieval: vector search failed, continuing with keyword results only", "error", vecRes.err)
		} else {
			vecHits = vecRes.hits
		}
	}

	fused := fuseRRF(bm25Res.hits, vecHits)
	if len(fused) == 0 {
		return nil, nil
	}

	ids := sortedChunkIDs(fused)
	chunks, err := e.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	chunksByID := make(map[int64]store.Chunk, len(chunks))
	for _, c := range chunks {
		chunksByID[c.ID] = c
	}

	queryEntities := extractor.Extract(query).EntityTexts()

	all := make([]Result, 0, len(ids))
	for _, id := range ids {
		c, ok := chunksByID[id]
		if !ok {
			continue
		}
		entry := fused[id]
		score := entry.score
		if hasEntityMatch(queryEntities, c.EnrichedText) {
			score += entityBoost
		}
		all = append(all, Result{Chunk: c, Score: score, Resolver: entry.resolverKind()})
	}

	deduped := dedupeByDocument(all)
	return topN(deduped, limit), nil
}

// hasEntityMatch reports whether any query entity appears as a
// case-insensitive substring of enrichedText.
func hasEntityMatch(entities []string, enrichedText string) bool {
	if enrichedText == "" {
		return false
	}
	lower := strings.ToLower(enrichedText)
	for _, e := range entities {
		if e == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

// dedupeByDocument keeps only the highest-scoring chunk per owning
// document id.
func dedupeByDocument(results []Result) []Result {
	best := make(map[int64]Result, len(results))
	for _, r := range results {
		cur, ok := best[r.Chunk.DocumentID]
		if !ok || r.Score > cur.Score {
			best[r.Chunk.DocumentID] = r
		}
	}
	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

// topN sorts results by descending score, breaking ties by earliest
// chunk ordinal, and returns at most n.
func topN(results []Result, n int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}
