package mindsage

import "errors"

var (
	// ErrModelLoad wraps the error logged when the neural embedder's
	// model or tokenizer cannot be loaded from its configured directory.
	// New never returns it — a load failure logs a warning and downgrades
	// to the no-op embedder instead.
	ErrModelLoad = errors.New("mindsage: embedder model load failed")

	// ErrModelInference wraps the error logged when a single input fails
	// tokenization or the embedder's forward pass. It is not returned:
	// that input is skipped and the rest of the batch proceeds.
	ErrModelInference = errors.New("mindsage: embedder inference failed")

	// ErrInputTooLarge is returned when Ingest is called with text
	// larger than Config.MaxIngestBytes.
	ErrInputTooLarge = errors.New("mindsage: input exceeds configured byte cap")

	// ErrCancelled is returned when a context is cancelled mid-operation.
	ErrCancelled = errors.New("mindsage: operation cancelled")

	// ErrDocumentNotFound is returned when a document id does not exist.
	ErrDocumentNotFound = errors.New("mindsage: document not found")
)
