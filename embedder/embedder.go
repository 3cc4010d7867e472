// Package embedder turns chunk and query text into dense float32
// vectors. It exposes a closed two-member variant — a neural ONNX
// embedder for hardware that can run one, and a no-op embedder that
// lets the rest of the pipeline degrade to BM25-only retrieval when no
// model is configured.
package embedder

import "context"

// EmbeddingDim is the output dimension of the configured embedding
// model (all-MiniLM-L6-v2 class models: 384).
const EmbeddingDim = 384

// QueryPrefix is prepended to query text (never to document chunk text)
// before embedding, matching the asymmetric instruction-tuning most
// small retrieval models are trained with.
const QueryPrefix = "Represent this sentence for searching relevant passages: "

// Embedder turns text into ℓ2-normalized float32 vectors. Implementations
// must be safe for concurrent use.
type Embedder interface {
	// Embed embeds document chunk text, unprefixed.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string with QueryPrefix applied.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	// Available reports whether this embedder can produce real vectors.
	// The no-op variant reports false so callers can fall back to a
	// BM25-only retrieval path instead of indexing zero vectors.
	Available() bool
	// Close releases any underlying resources (model session, cache).
	Close() error
}
