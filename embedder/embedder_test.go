package embedder

import (
	"context"
	"math"
	"testing"
)

func TestNoOpEmbedderEmbedReturnsNilVectors(t *testing.T) {
	e := NewNoOp()
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v != nil {
			t.Errorf("vec[%d] = %v, want nil", i, v)
		}
	}
}

func TestNoOpEmbedderEmbedQueryReturnsNil(t *testing.T) {
	e := NewNoOp()
	v, err := e.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil vector, got %v", v)
	}
}

func TestNoOpEmbedderNotAvailable(t *testing.T) {
	if NewNoOp().Available() {
		t.Error("NoOpEmbedder should never be Available")
	}
}

func TestNoOpEmbedderCloseIsNoop(t *testing.T) {
	if err := NewNoOp().Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestL2NormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4, 0}
	l2Normalize(v)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-6 {
		t.Errorf("expected unit length, got %f", math.Sqrt(sum))
	}
}

func TestL2NormalizeZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	l2Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Errorf("expected zero vector to stay zero, got %v", v)
		}
	}
}

func TestMeanPoolAveragesOverMaskedPositions(t *testing.T) {
	seqLen := 3
	hidden := make([]float32, seqLen*EmbeddingDim)
	for t := 0; t < seqLen; t++ {
		for d := 0; d < EmbeddingDim; d++ {
			hidden[t*EmbeddingDim+d] = float32(t + 1)
		}
	}
	mask := []int64{1, 1, 0}

	vec := meanPool(hidden, mask, 0, seqLen)
	want := float32(1.5)
	for d, v := range vec {
		if v != want {
			t.Fatalf("vec[%d] = %f, want %f", d, v, want)
		}
	}
}

func TestQueryCacheRoundTrip(t *testing.T) {
	c := newQueryCache(0)
	vec := []float32{1, 2, 3}
	c.put("what is go", vec)

	got, ok := c.get("what is go")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(vec) {
		t.Fatalf("got %v, want %v", got, vec)
	}
}

func TestQueryCacheMiss(t *testing.T) {
	c := newQueryCache(0)
	if _, ok := c.get("never cached"); ok {
		t.Error("expected cache miss")
	}
}

func TestQueryCacheEvictsAtCapacity(t *testing.T) {
	c := newQueryCache(2)
	c.put("a", []float32{1})
	c.put("b", []float32{2})
	c.put("c", []float32{3})

	if _, ok := c.get("a"); ok {
		t.Error("expected oldest entry to be evicted at capacity 2")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("expected most recent entry to still be cached")
	}
}
