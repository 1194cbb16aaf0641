package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL string // empty = api.openai.com
	APIKey  string
	Model   string // e.g. text-embedding-3-small
	Timeout time.Duration
}

// OpenAIProvider implements port.EmbeddingProvider against any server that
// speaks the OpenAI embeddings API (OpenAI, vLLM, LM Studio, LocalAI).
type OpenAIProvider struct {
	model  string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// ModelName returns the embedding model identifier.
func (o *OpenAIProvider) ModelName() string {
	return o.model
}

// Embed generates a vector embedding for the given text.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call. Results are
// placed by their response index, so server-side reordering is tolerated.
func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Ping embeds a single word. The embeddings endpoint is the only one every
// compatible server is known to implement.
func (o *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := o.EmbedBatch(ctx, []string{"ping"}); err != nil {
		return err
	}
	return nil
}
