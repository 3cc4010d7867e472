package embedder

import "context"

// NoOpEmbedder is used on tiers or configurations where no embedding
// model is loaded. It degrades gracefully when no model is configured
// rather than erroring.
type NoOpEmbedder struct{}

// NewNoOp returns an Embedder that produces no vectors.
func NewNoOp() *NoOpEmbedder { return &NoOpEmbedder{} }

func (e *NoOpEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (e *NoOpEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

func (e *NoOpEmbedder) Available() bool { return false }

func (e *NoOpEmbedder) Close() error { return nil }
