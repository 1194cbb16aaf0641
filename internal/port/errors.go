package port

import "errors"

// Sentinel errors used across ports. Adapters wrap backend failures with the
// matching sentinel so callers can classify them with errors.Is.
var (
	// ErrInitialization means an embedding model or store backend could not be brought up.
	ErrInitialization = errors.New("initialization failed")
	// ErrStorage means a read or write against the persisted collection failed.
	ErrStorage = errors.New("storage failure")
	// ErrSearch means a single similarity search failed.
	ErrSearch = errors.New("search failed")
	// ErrEmbedding means a batch or query embedding failed.
	ErrEmbedding = errors.New("embedding failed")

	ErrInvalidSession  = errors.New("invalid session id")
	ErrNoChunks        = errors.New("no chunks to store")
	ErrUnembeddedChunk = errors.New("chunk has no embedding")
	ErrInvalidArgument = errors.New("invalid argument")
)
