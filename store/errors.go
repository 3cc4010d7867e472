package store

import "errors"

var (
	// ErrStoreIO is returned on database open/read/write failure.
	ErrStoreIO = errors.New("store: I/O failure")

	// ErrSchemaMismatch is returned when the on-disk schema cannot be
	// brought to the expected version at startup.
	ErrSchemaMismatch = errors.New("store: schema mismatch")

	// ErrCorrupt wraps the warning logged when a chunk or embedding row
	// cannot be read or is inconsistent with its owning chunk. It is not
	// returned: the row is skipped (or, in PruneCorruptEmbeddings, deleted).
	ErrCorrupt = errors.New("store: corrupt row")

	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("store: document not found")

	// ErrChunkNotFound is returned when a chunk ID does not exist.
	ErrChunkNotFound = errors.New("store: chunk not found")
)
