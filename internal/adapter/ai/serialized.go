package ai

import (
	"context"
	"sync"

	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// serialized guards a provider that is not safe for concurrent use.
type serialized struct {
	mu   sync.Mutex
	next port.EmbeddingProvider
}

// Serialized wraps p so that at most one embedding call runs at a time.
func Serialized(p port.EmbeddingProvider) port.EmbeddingProvider {
	return &serialized{next: p}
}

func (s *serialized) ModelName() string {
	return s.next.ModelName()
}

func (s *serialized) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Embed(ctx, text)
}

func (s *serialized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.EmbedBatch(ctx, texts)
}

func (s *serialized) Ping(ctx context.Context) error {
	p, ok := s.next.(port.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
