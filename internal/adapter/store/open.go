package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// Backend names accepted by Open.
const (
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// Config selects and configures the vector store backend.
type Config struct {
	Backend     string
	BoltPath    string
	SQLitePath  string
	DatabaseURL string
	QdrantHost  string
	QdrantPort  int
	Collection  string
	Timeout     time.Duration // per operation, 0 = none
}

// Open builds the ChunkStore named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (port.ChunkStore, error) {
	var (
		s   port.ChunkStore
		err error
	)
	switch cfg.Backend {
	case BackendBolt, "":
		s, err = NewBoltStore(cfg.BoltPath)
	case BackendSQLite:
		s, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	case BackendPostgres:
		s, err = NewPostgresStore(ctx, cfg.DatabaseURL)
	case BackendQdrant:
		s, err = NewQdrantStore(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.Collection)
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", port.ErrInitialization, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", port.ErrInitialization, cfg.Backend, err)
	}
	if cfg.Timeout > 0 {
		s = WithTimeout(s, cfg.Timeout)
	}
	return s, nil
}

// timeoutStore bounds every call on the wrapped store.
type timeoutStore struct {
	next    port.ChunkStore
	timeout time.Duration
}

// WithTimeout wraps s so each operation fails once d elapses.
func WithTimeout(s port.ChunkStore, d time.Duration) port.ChunkStore {
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Store(ctx, chunks, sessionID)
}

func (t *timeoutStore) Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Search(ctx, query, sessionID, topK)
}

func (t *timeoutStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Stats(ctx, sessionID)
}

func (t *timeoutStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ListSessions(ctx)
}

func (t *timeoutStore) Evict(ctx context.Context, keepRecent int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Evict(ctx, keepRecent)
}

func (t *timeoutStore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Reset(ctx)
}

func (t *timeoutStore) Close() error {
	return t.next.Close()
}
