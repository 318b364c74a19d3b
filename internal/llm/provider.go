package llm

import (
	"context"
	"fmt"

	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

// Clients agrupa os dois adapters de um provider.
type Clients struct {
	Embeddings rag.EmbeddingsClient
	Completion rag.CompletionClient
}

// NewClients builds the adapters for cfg.LLMProvider. For Bedrock the
// credentials are resolved first so a missing secret fails before any call.
func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	switch cfg.LLMProvider {
	case config.ProviderBedrock, "":
		creds, err := config.ResolveCredentials()
		if err != nil {
			return nil, err
		}
		c, err := NewBedrockClient(ctx, creds, BedrockOptionsFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &Clients{Embeddings: c, Completion: c}, nil

	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, GeminiOptions{MaxTokens: cfg.MaxTokens, TopP: cfg.TopP})
		if err != nil {
			return nil, err
		}
		return &Clients{Embeddings: c, Completion: c}, nil

	default:
		return nil, &config.ConfigurationError{Reason: fmt.Sprintf("unknown llm provider %q", cfg.LLMProvider)}
	}
}
