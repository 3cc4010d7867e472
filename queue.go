package mindsage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mindsage/parser"
)

// defaultQueueCapacity bounds the background indexing queue. Producers
// (a watched-directory scanner, an upload handler, a connector
// importer) block in EnqueueFile/EnqueueBytes once the queue is full —
// back-pressure on a bounded channel, rather than letting an unbounded
// queue grow without limit.
const defaultQueueCapacity = 64

// ingestJob is one unit of background indexing work: a file already on
// disk, or raw bytes the caller wants treated as a given format.
type ingestJob struct {
	id       string
	path     string
	data     []byte
	format   string
	metadata map[string]string
}

// EnqueueFile schedules a file for background parsing and ingestion,
// dispatched by its extension. It blocks if the queue is full, applying
// back-pressure to the caller; ctx cancellation unblocks it. Returns a
// job id the caller can use to correlate log lines.
func (e *Engine) EnqueueFile(ctx context.Context, path string, metadata map[string]string) (string, error) {
	job := ingestJob{
		id:       uuid.NewString(),
		path:     path,
		format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		metadata: metadata,
	}
	select {
	case e.queue <- job:
		return job.id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// EnqueueBytes schedules raw bytes of the given format (e.g. "md",
// "txt", "zip") for background parsing and ingestion — the shape a
// device-to-device file transfer or an upload handler hands over. The
// bytes are written to a temporary file so the path-based parser
// registry handles them the same way as an on-disk file.
func (e *Engine) EnqueueBytes(ctx context.Context, data []byte, format string, metadata map[string]string) (string, error) {
	job := ingestJob{
		id:       uuid.NewString(),
		data:     data,
		format:   format,
		metadata: metadata,
	}
	select {
	case e.queue <- job:
		return job.id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// runQueue is the single background worker: it dequeues jobs in order,
// parses each into text via the file-type-specific extractor, and calls
// Ingest. A failure on one job is logged and does not stop the worker —
// the producer/consumer shape and cancellation-then-drain discipline
// are grounded on an embedding worker's trigger-channel pattern, adapted
// here to a true bounded work queue instead of a poll-the-database loop.
func (e *Engine) runQueue(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.drainQueue()
			return
		case job := <-e.queue:
			e.processJob(ctx, job)
		}
	}
}

// drainQueue processes whatever remains in the queue after Close
// cancels the worker's context, so jobs already accepted by EnqueueFile
// or EnqueueBytes are not silently dropped on shutdown.
func (e *Engine) drainQueue() {
	for {
		select {
		case job := <-e.queue:
			e.processJob(context.Background(), job)
		default:
			return
		}
	}
}

func (e *Engine) processJob(ctx context.Context, job ingestJob) {
	path := job.path

	if job.data == nil && job.path != "" {
		// Re-enqueueing a path whose file content is unchanged since this
		// process last saw it short-circuits before re-parsing it.
		if hash, err := fileHash(job.path); err == nil {
			if prev, ok := e.seenPathHashes[job.path]; ok && prev == hash {
				return
			}
			e.seenPathHashes[job.path] = hash
		}
	}

	if job.data != nil {
		tmp, err := os.CreateTemp("", "mindsage-ingest-*")
		if err != nil {
			slog.Warn("mindsage: queue: creating temp file failed", "job", job.id, "error", err)
			return
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(job.data); err != nil {
			tmp.Close()
			slog.Warn("mindsage: queue: writing temp file failed", "job", job.id, "error", err)
			return
		}
		tmp.Close()
		path = tmp.Name()
	}

	p, err := e.parsers.Get(job.format)
	if err != nil {
		slog.Warn("mindsage: queue: unsupported format", "job", job.id, "format", job.format, "error", err)
		return
	}

	parsed, err := p.Parse(ctx, path)
	if err != nil {
		slog.Warn("mindsage: queue: parsing failed", "job", job.id, "path", job.path, "error", err)
		return
	}

	text := flattenSections(parsed.Sections)
	if strings.TrimSpace(text) == "" {
		slog.Warn("mindsage: queue: parsed document had no text", "job", job.id, "format", job.format)
		return
	}

	metadata := job.metadata
	if job.path != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["source_path"] = job.path
	}

	if _, err := e.Ingest(ctx, text, metadata); err != nil {
		slog.Warn("mindsage: queue: ingest failed", "job", job.id, "error", err)
	}
}

// flattenSections joins a parsed document's sections back into a single
// text blob, heading first, so the chunker can re-derive its own L0/L1
// hierarchy independent of how the source parser grouped content.
func flattenSections(sections []parser.Section) string {
	var b strings.Builder
	for _, s := range sections {
		if s.Heading != "" {
			b.WriteString(s.Heading)
			b.WriteString("\n\n")
		}
		if s.Content != "" {
			b.WriteString(s.Content)
			b.WriteString("\n\n")
		}
		if len(s.Children) > 0 {
			b.WriteString(flattenSections(s.Children))
		}
	}
	return b.String()
}

// fileHash returns the SHA-256 hex digest of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
