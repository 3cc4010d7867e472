package mindsage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mindsage/chunker"
	"mindsage/consolidate"
	"mindsage/embedder"
	"mindsage/extractor"
	"mindsage/parser"
	"mindsage/retrieval"
	"mindsage/store"
	"mindsage/tier"
)

// defaultMaxIngestBytes bounds a single Ingest call when Config doesn't
// set MaxIngestBytes.
const defaultMaxIngestBytes = 8 << 20 // 8MB

const embedBatchSize = 32

// Document is a caller-facing view of a stored document.
type Document struct {
	ID          int64             `json:"id"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   string            `json:"created_at"`
}

// Result is a caller-facing view of one recall hit.
type Result struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Heading    string  `json:"heading,omitempty"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Resolver   string  `json:"resolver"`
}

// Engine wires the store, chunker, extractor, embedder, and retriever
// into MindSage's four verbs (Ingest, Distill, Recall, Consolidate) plus
// a bounded background indexing queue for file-based ingestion.
type Engine struct {
	cfg     Config
	tier    tier.Tier
	store   *store.Store
	chunkr  *chunker.Chunker
	embed   embedder.Embedder
	retr    *retrieval.Engine
	parsers *parser.Registry

	queue          chan ingestJob
	seenPathHashes map[string]string // touched only by the single queue worker
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	closeOnce      sync.Once
}

// New opens the store at cfg's resolved database path, wires every
// component, starts the background indexing worker, and — if a neural
// embedder is available — runs one Distill pass so a process restarted
// after an interruption catches up any chunk left unembedded or
// unenriched.
func New(cfg Config) (*Engine, error) {
	dbPath := cfg.resolveDBPath()

	t := cfg.Tier
	if cfg.AutoDetectTier {
		t = tier.Detect()
	}

	s, err := store.New(dbPath, embedder.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("mindsage: opening store: %w", err)
	}

	var embed embedder.Embedder = embedder.NewNoOp()
	if cfg.EmbedderModelDir != "" {
		neural, err := embedder.New(embedder.Config{
			ModelDir:   cfg.EmbedderModelDir,
			OrtLibPath: cfg.EmbedderOrtLibPath,
		})
		if err != nil {
			slog.Warn("mindsage: embedder model load failed, degrading to keyword-only search",
				"model_dir", cfg.EmbedderModelDir, "error", fmt.Errorf("%w: %v", ErrModelLoad, err))
		} else {
			embed = neural
		}
	}

	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = defaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:            cfg,
		tier:           t,
		store:          s,
		chunkr:         chunker.New(chunker.Config{}),
		embed:          embed,
		retr:           retrieval.New(s, embed),
		parsers:        parser.NewRegistry(),
		queue:          make(chan ingestJob, queueCap),
		seenPathHashes: make(map[string]string),
		cancel:         cancel,
	}

	e.wg.Add(1)
	go e.runQueue(ctx)

	if embed.Available() {
		if enriched, embedded, err := e.Distill(context.Background()); err != nil {
			slog.Warn("mindsage: startup catch-up distill failed", "error", err)
		} else if enriched > 0 || embedded > 0 {
			slog.Info("mindsage: startup catch-up distill", "enriched", enriched, "embedded", embedded)
		}
	}

	slog.Info("mindsage: engine ready", "tier", t, "db", dbPath, "hybrid_available", embed.Available())
	return e, nil
}

// Ingest chunks, extracts, and — when a neural embedder is available —
// embeds text, storing it as a new document. Ingest is idempotent by
// content hash: re-ingesting identical text returns the existing
// document's id without duplicating chunks.
func (e *Engine) Ingest(ctx context.Context, text string, metadata map[string]string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	maxBytes := e.cfg.MaxIngestBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxIngestBytes
	}
	if len(text) > maxBytes {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d byte cap", ErrInputTooLarge, len(text), maxBytes)
	}

	var metadataJSON string
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("mindsage: encoding metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	docID, err := e.store.AddDocument(ctx, text, metadataJSON)
	if err != nil {
		return 0, fmt.Errorf("mindsage: %w", err)
	}

	existing, err := e.store.GetChunksByDocument(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("mindsage: %w", err)
	}
	if len(existing) > 0 {
		return docID, nil // identical content already chunked; nothing to redo
	}

	sections := e.chunkr.Chunk(text)
	chunks, err := e.store.AddChunks(ctx, docID, sections)
	if err != nil {
		return 0, fmt.Errorf("mindsage: %w", err)
	}

	e.enrichAndEmbed(ctx, chunks)
	return docID, nil
}

// enrichAndEmbed extracts entities/topics/passages and (if available)
// embeds each L1 leaf chunk. Extraction and embedding are best-effort: a
// failure on one chunk is logged and never fails the surrounding Ingest
// call.
func (e *Engine) enrichAndEmbed(ctx context.Context, chunks []store.Chunk) {
	var leaves []store.Chunk
	for _, c := range chunks {
		if c.Level == store.LevelParagraph {
			leaves = append(leaves, c)
		}
	}
	if len(leaves) == 0 {
		return
	}

	for _, c := range leaves {
		enriched := extractor.Extract(c.Text).EnrichedText()
		if err := e.store.SetEnriched(ctx, c.ID, enriched); err != nil {
			slog.Warn("mindsage: enrichment failed, chunk stays keyword-only", "chunk_id", c.ID, "error", err)
		}
	}

	if !e.embed.Available() {
		return
	}
	e.embedChunks(ctx, leaves)
}

// embedChunks embeds leaf chunks in batches, falling back to embedding
// one text at a time when a batch call fails — a single oversized or
// malformed input then loses only itself, not the whole batch. Returns
// the number of chunks whose embedding was actually stored; an input
// that yields an absent vector surfaces ErrModelInference in the log
// and is not counted.
func (e *Engine) embedChunks(ctx context.Context, leaves []store.Chunk) int {
	embedded := 0
	for i := 0; i < len(leaves); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(leaves) {
			end = len(leaves)
		}
		batch := leaves[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := e.embed.Embed(ctx, texts)
		if err != nil {
			slog.Warn("mindsage: embedding batch failed, falling back to individual", "error", err)
			for _, c := range batch {
				single, serr := e.embed.Embed(ctx, []string{c.Text})
				if serr != nil || len(single) == 0 || single[0] == nil {
					slog.Warn("mindsage: embedding single chunk failed", "chunk_id", c.ID, "error", fmt.Errorf("%w: %v", ErrModelInference, serr))
					continue
				}
				if serr := e.store.SetEmbedding(ctx, c.ID, single[0]); serr != nil {
					slog.Warn("mindsage: storing embedding failed", "chunk_id", c.ID, "error", serr)
					continue
				}
				embedded++
			}
			continue
		}

		for j, v := range vectors {
			if v == nil {
				slog.Warn("mindsage: embedding absent for input", "chunk_id", batch[j].ID, "error", ErrModelInference)
				continue
			}
			if err := e.store.SetEmbedding(ctx, batch[j].ID, v); err != nil {
				slog.Warn("mindsage: storing embedding failed", "chunk_id", batch[j].ID, "error", err)
				continue
			}
			embedded++
		}
	}
	return embedded
}

// Distill catches up any L1 chunk missing enrichment or an embedding —
// run once at startup when an embedder is available, and safe to call
// at any time as a maintenance pass. It returns the number of chunks
// enriched and embedded during the call; a fixpoint has been reached
// once a call returns (0, 0).
func (e *Engine) Distill(ctx context.Context) (enriched, embedded int, err error) {
	if cerr := ctx.Err(); cerr != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCancelled, cerr)
	}

	const batchLimit = 256

	for {
		chunks, err := e.store.ChunksMissingEnrichment(ctx, batchLimit)
		if err != nil {
			return enriched, embedded, fmt.Errorf("mindsage: distill: listing unenriched chunks: %w", err)
		}
		for _, c := range chunks {
			text := extractor.Extract(c.Text).EnrichedText()
			if err := e.store.SetEnriched(ctx, c.ID, text); err != nil {
				slog.Warn("mindsage: distill enrichment failed", "chunk_id", c.ID, "error", err)
				continue
			}
			enriched++
		}
		if len(chunks) < batchLimit {
			break
		}
	}

	if !e.embed.Available() {
		return enriched, embedded, nil
	}

	for {
		chunks, err := e.store.ChunksMissingEmbedding(ctx, batchLimit)
		if err != nil {
			return enriched, embedded, fmt.Errorf("mindsage: distill: listing unembedded chunks: %w", err)
		}
		if len(chunks) == 0 {
			break
		}
		embedded += e.embedChunks(ctx, chunks)
		if len(chunks) < batchLimit {
			break
		}
	}
	return enriched, embedded, nil
}

// Recall runs tier-gated hybrid retrieval and returns up to limit
// results, best first, one per owning document.
func (e *Engine) Recall(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	hits, err := e.retr.Search(ctx, query, limit, e.tier)
	if err != nil {
		return nil, fmt.Errorf("mindsage: recall: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ChunkID:    h.Chunk.ID,
			DocumentID: h.Chunk.DocumentID,
			Heading:    h.Chunk.Heading,
			Content:    h.Chunk.Text,
			Score:      h.Score,
			Resolver:   string(h.Resolver),
		}
	}
	return results, nil
}

// Consolidate prunes orphaned rows, dedupes by content hash, and evicts
// the oldest documents past the engine's tier threshold.
func (e *Engine) Consolidate(ctx context.Context) (consolidate.Report, error) {
	report, err := consolidate.Run(ctx, e.store, e.tier)
	if err != nil {
		return report, fmt.Errorf("mindsage: %w", err)
	}
	return report, nil
}

// GetDocument retrieves a single document by id.
func (e *Engine) GetDocument(ctx context.Context, documentID int64) (Document, error) {
	d, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, fmt.Errorf("mindsage: %w", err)
	}
	out := Document{ID: d.ID, Text: d.Text, ContentHash: d.ContentHash, CreatedAt: d.CreatedAt}
	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &out.Metadata)
	}
	return out, nil
}

// ListDocuments returns all ingested documents, oldest first.
func (e *Engine) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("mindsage: %w", err)
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Text: d.Text, ContentHash: d.ContentHash, CreatedAt: d.CreatedAt}
		if d.Metadata != "" {
			_ = json.Unmarshal([]byte(d.Metadata), &out[i].Metadata)
		}
	}
	return out, nil
}

// Delete removes a document and all of its chunks and embeddings.
func (e *Engine) Delete(ctx context.Context, documentID int64) error {
	if err := e.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("mindsage: %w", err)
	}
	return nil
}

// Tier returns the capability tier this engine was constructed with.
func (e *Engine) Tier() tier.Tier { return e.tier }

// Store returns the underlying store for diagnostic access.
func (e *Engine) Store() *store.Store { return e.store }

// Close stops the background worker — draining whatever was already
// queued rather than dropping it — closes the embedder, and closes the
// store.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
	if err := e.embed.Close(); err != nil {
		slog.Warn("mindsage: closing embedder", "error", err)
	}
	return e.store.Close()
}
