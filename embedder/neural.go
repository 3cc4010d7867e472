package embedder

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// maxSeqLen caps tokenized input length. 256 tokens comfortably
	// covers a 512-character L1 chunk while keeping the O(seqLen²)
	// attention matrix small enough for CPU inference on edge hardware.
	maxSeqLen = 256
	// defaultBatchSize keeps memory and latency bounded on low-end CPUs.
	defaultBatchSize = 8
)

// Config configures a NeuralEmbedder.
type Config struct {
	// ModelDir must contain model.onnx and tokenizer.json.
	ModelDir string
	// OrtLibPath is the path to onnxruntime's shared library. Empty
	// uses the system default search path.
	OrtLibPath string
	// NumThreads controls intra-op parallelism. 0 means
	// min(4, runtime.NumCPU()).
	NumThreads int
	// CacheSize is the query-embedding cache's entry capacity. 0 uses
	// DefaultCacheSize.
	CacheSize int
}

// NeuralEmbedder wraps an ONNX session and a HuggingFace tokenizer
// behind the Embedder interface. The session is not safe for concurrent
// Run calls, so all inference is serialized behind sessionMu.
type NeuralEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	sessionMu sync.Mutex

	cache *queryCache
}

// New loads the ONNX model and tokenizer from cfg.ModelDir.
func New(cfg Config) (*NeuralEmbedder, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokenPath := filepath.Join(cfg.ModelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("tokenizer not found at %s: %w", tokenPath, err)
	}

	if cfg.OrtLibPath != "" {
		ort.SetSharedLibraryPath(cfg.OrtLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &NeuralEmbedder{
		session:   session,
		tokenizer: tk,
		cache:     newQueryCache(cfg.CacheSize),
	}, nil
}

func (e *NeuralEmbedder) Available() bool { return true }

func (e *NeuralEmbedder) Close() error {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	return nil
}

// Embed embeds document chunk texts in batches of defaultBatchSize.
func (e *NeuralEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += defaultBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := i + defaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", i, end, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

// EmbedQuery embeds a single query with QueryPrefix applied, checking
// the query cache first.
func (e *NeuralEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v, ok := e.cache.get(query); ok {
		return v, nil
	}
	vecs, err := e.Embed(ctx, []string{QueryPrefix + query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder: empty result for query")
	}
	e.cache.put(query, vecs[0])
	return vecs[0], nil
}

type encoded struct {
	ids  []int64
	mask []int64
}

// embedBatch tokenizes, runs one ONNX inference call, mean-pools over
// non-padding positions, and ℓ2-normalizes each resulting vector.
func (e *NeuralEmbedder) embedBatch(texts []string) ([][]float32, error) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	batchSize := len(texts)
	all := make([]encoded, batchSize)
	maxLen := 0
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j := range ids64 {
			ids64[j] = int64(ids[j])
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all texts tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnxruntime run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want *Tensor[float32])")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := meanPool(hidden, all[i].mask, i, seqLen)
		l2Normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

// meanPool averages hidden-state vectors over non-padding token
// positions for sequence i, generalizing a CLS-only pool to a
// mean pool over the attention mask.
func meanPool(hidden []float32, mask []int64, i, seqLen int) []float32 {
	vec := make([]float32, EmbeddingDim)
	base := i * seqLen * EmbeddingDim
	var count float32
	for t := 0; t < seqLen; t++ {
		if t < len(mask) && mask[t] == 0 {
			continue
		}
		off := base + t*EmbeddingDim
		for d := 0; d < EmbeddingDim; d++ {
			vec[d] += hidden[off+d]
		}
		count++
	}
	if count == 0 {
		return vec
	}
	for d := range vec {
		vec[d] /= count
	}
	return vec
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}
