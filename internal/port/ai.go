package port

import "context"

// EmbeddingProvider abstracts the embedding backend.
// Implementations can target Ollama, OpenAI-compatible servers, or a local model.
type EmbeddingProvider interface {
	// ModelName returns the identifier of the model being used.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result has exactly one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger is implemented by embedding providers backed by a remote service.
// Ping fails when the service cannot be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}
