// Package bootstrap wires configuration into the retrieval services shared by
// the HTTP server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/arturoeanton/go-code-retriever/internal/adapter/ai"
	"github.com/arturoeanton/go-code-retriever/internal/adapter/store"
	"github.com/arturoeanton/go-code-retriever/internal/port"
	"github.com/arturoeanton/go-code-retriever/internal/service"
	"github.com/arturoeanton/go-code-retriever/pkg/config"
)

// App holds the wired services. Close releases the store.
type App struct {
	Store port.ChunkStore
	RAG   *service.RAGService
}

// New builds the embedding provider, opens the vector store and assembles
// the RAG service from cfg. A remote embedding backend must answer a ping
// before anything else is opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	provider, err := ai.NewProvider(ai.ProviderConfig{
		Name: cfg.EmbedProvider,
		Ollama: ai.OllamaConfig{
			BaseURL: cfg.OllamaEmbedURL,
			Model:   cfg.OllamaEmbedModel,
			Token:   cfg.OllamaEmbedToken,
			Timeout: cfg.EmbedTimeout,
		},
		OpenAI: ai.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIEmbedModel,
			Timeout: cfg.EmbedTimeout,
		},
		Dimension: cfg.EmbeddingDimension,
		Serialize: cfg.EmbedSerialize,
	})
	if err != nil {
		return nil, err
	}
	if p, ok := provider.(port.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: embedding backend %s unreachable: %w", port.ErrInitialization, cfg.EmbedProvider, err)
		}
	}

	embedder, err := service.NewEmbeddingService(provider, cfg.QueryCacheSize)
	if err != nil {
		return nil, err
	}

	chunkStore, err := store.Open(ctx, store.Config{
		Backend:     cfg.VectorBackend,
		BoltPath:    cfg.BoltPath,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		QdrantHost:  cfg.QdrantHost,
		QdrantPort:  cfg.QdrantPort,
		Collection:  cfg.CollectionName,
		Timeout:     cfg.StoreTimeout,
	})
	if err != nil {
		return nil, err
	}

	retriever := service.NewRetrievalService(embedder, chunkStore, service.RetrievalOptions{
		MaxChunks:         cfg.DefaultMaxChunks,
		MaxQueryVariants:  cfg.MaxQueryVariants,
		ContextCharBudget: cfg.ContextCharBudget,
	})
	rag := service.NewRAGService(embedder, chunkStore, retriever, service.RAGOptions{
		MaxChunkSize:       cfg.MaxChunkSize,
		SplitOnBlocks:      cfg.ChunkSplitOnBlocks,
		KeepRecentSessions: cfg.KeepRecentSessions,
	})

	return &App{Store: chunkStore, RAG: rag}, nil
}

// Close releases the vector store.
func (a *App) Close() error {
	return a.Store.Close()
}
