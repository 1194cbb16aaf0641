package service

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// EmbeddingService turns chunks and queries into vectors using one shared provider.
type EmbeddingService struct {
	provider port.EmbeddingProvider
	cache    *lru.Cache[string, []float32] // nil when disabled
}

// NewEmbeddingService creates an embedding service. cacheSize bounds the
// query-vector cache; 0 disables it.
func NewEmbeddingService(provider port.EmbeddingProvider, cacheSize int) (*EmbeddingService, error) {
	s := &EmbeddingService{provider: provider}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// ModelName returns the provider's model identifier.
func (s *EmbeddingService) ModelName() string {
	return s.provider.ModelName()
}

// embeddingDocument prefixes chunk text with its filename and type so both
// are part of what gets embedded.
func embeddingDocument(c domain.Chunk) string {
	return fmt.Sprintf("File: %s\nType: %s\nCode:\n%s", c.Filename, c.Type, c.Text)
}

// EmbedChunks embeds every chunk in a single batch call and returns copies
// carrying their vectors. Any failure fails the whole batch.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	docs := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = embeddingDocument(c)
	}

	slog.Info("generating embeddings", "chunks", len(chunks), "model", s.provider.ModelName())
	vectors, err := s.provider.EmbedBatch(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: embed batch: %w", port.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", port.ErrEmbedding, len(vectors), len(chunks))
	}

	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("%w: empty vector for %s:%d", port.ErrEmbedding, c.Filename, c.StartLine)
		}
		c.Embedding = vectors[i]
		out[i] = c
	}
	return out, nil
}

// EmbedQuery embeds raw query text, served from the cache when possible.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(text); ok {
			return v, nil
		}
	}

	v, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", port.ErrEmbedding, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", port.ErrEmbedding)
	}

	if s.cache != nil {
		s.cache.Add(text, v)
	}
	return v, nil
}
