// Package memory seeds a vector store with documents and exposes it to the
// planner as MemoryPlugin.
package memory

import (
	"context"
	"errors"
	"fmt"

	"kernelapi/pkg/config"
)

// ErrUnknownEmbedder is returned for an unsupported embeddingProvider.
var ErrUnknownEmbedder = errors.New("unknown embedding provider")

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the backend and model for logs.
	Name() string
}

// NewEmbedder builds the embedder selected by settings.EmbeddingProvider.
func NewEmbedder(ctx context.Context, settings config.Settings) (Embedder, error) {
	switch settings.EmbeddingProvider {
	case "openai":
		return NewOpenAIEmbedder(settings.APIKey, settings.BaseURL, settings.EmbeddingModel)
	case "gemini":
		return NewGenAIEmbedder(ctx, settings.APIKey, settings.EmbeddingModel)
	case "ollama":
		return NewOllamaEmbedder(settings.BaseURL, settings.EmbeddingModel)
	case "local":
		return NewLocalEmbedder(0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmbedder, settings.EmbeddingProvider)
	}
}

// embedOne embeds a single text through EmbedBatch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 embedding, got %d", e.Name(), len(vecs))
	}
	return vecs[0], nil
}
