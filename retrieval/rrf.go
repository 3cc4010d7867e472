package retrieval

import (
	"sort"

	"mindsage/store"
)

// rrfK is the Reciprocal Rank Fusion constant. Fixed per the retrieval
// contract, never exposed as a tunable.
const rrfK = 60

// entityBoost is added to a chunk's fused score when a query entity
// appears in the chunk's enriched text. Fixed, not a tunable.
const entityBoost = 0.15

// method identifies which branch(es) contributed to a fused result.
type method string

const (
	methodKeyword method = "keyword"
	methodVector  method = "vector"
)

type fusedEntry struct {
	chunkID int64
	score   float64
	methods map[method]bool
}

// fuseRRF combines BM25 and vector hit lists into a single ranked set
// using score(c) = Σ 1/(k + rank), rank 1-based. A chunk present in only
// one list contributes only that list's term.
func fuseRRF(bm25Hits, vecHits []store.SearchHit) map[int64]*fusedEntry {
	fused := make(map[int64]*fusedEntry)

	get := func(chunkID int64) *fusedEntry {
		e, ok := fused[chunkID]
		if !ok {
			e = &fusedEntry{chunkID: chunkID, methods: make(map[method]bool)}
			fused[chunkID] = e
		}
		return e
	}

	for rank, h := range bm25Hits {
		e := get(h.ChunkID)
		e.score += 1 / float64(rrfK+rank+1)
		e.methods[methodKeyword] = true
	}
	for rank, h := range vecHits {
		e := get(h.ChunkID)
		e.score += 1 / float64(rrfK+rank+1)
		e.methods[methodVector] = true
	}

	return fused
}

// resolverKind derives the observability tag for a fused entry: Keyword
// or Vector if only one branch contributed, Hybrid if both did.
func (e *fusedEntry) resolverKind() ResolverKind {
	if e.methods[methodKeyword] && e.methods[methodVector] {
		return Hybrid
	}
	if e.methods[methodVector] {
		return Vector
	}
	return Keyword
}

// sortedChunkIDs returns the fused map's chunk ids ordered by descending
// score, purely for deterministic downstream processing before the
// final dedup/sort pass applies entity boost and ordinal tie-breaks.
func sortedChunkIDs(fused map[int64]*fusedEntry) []int64 {
	ids := make([]int64, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return fused[ids[i]].score > fused[ids[j]].score
	})
	return ids
}
