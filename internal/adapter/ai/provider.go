package ai

import (
	"fmt"
	"log/slog"

	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// Provider names accepted by NewProvider.
const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// ProviderConfig selects and configures one embedding backend.
type ProviderConfig struct {
	Name      string
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Dimension int  // hashing provider only
	Serialize bool // guard the provider with a mutex
}

// NewProvider builds the embedding provider named in cfg.
func NewProvider(cfg ProviderConfig) (port.EmbeddingProvider, error) {
	var p port.EmbeddingProvider
	switch cfg.Name {
	case ProviderOllama, "":
		op, err := NewOllamaProvider(cfg.Ollama)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", port.ErrInitialization, err)
		}
		p = op
	case ProviderOpenAI:
		p = NewOpenAIProvider(cfg.OpenAI)
	case ProviderHashing:
		p = NewHashingProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", port.ErrInitialization, cfg.Name)
	}

	if cfg.Serialize {
		p = Serialized(p)
	}
	slog.Info("embedding provider ready", "provider", cfg.Name, "model", p.ModelName(), "serialized", cfg.Serialize)
	return p, nil
}
