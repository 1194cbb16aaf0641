package port

import (
	"context"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

// ChunkStore persists embedded chunks namespaced by session.
//
// Storage is append-only per session. Search must only ever return chunks
// stored under the requested session id.
type ChunkStore interface {
	// Store persists chunks under sessionID, generating a new id when it is
	// empty, and returns the session id. Every chunk must carry an embedding.
	Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error)

	// Search returns up to topK chunks of sessionID nearest to the query
	// vector, ordered by ascending cosine distance.
	Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error)

	// Stats counts the chunks of a session by chunk type.
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, error)

	// ListSessions returns every known session, oldest first.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// Evict deletes every session except the keepRecent most recently
	// created ones and returns the ids it removed.
	Evict(ctx context.Context, keepRecent int) ([]string, error)

	// Reset drops all persisted data.
	Reset(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
