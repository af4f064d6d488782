package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// Embedder turns text into a vector of fixed dimensionality
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// knownDimensions lists output sizes of common embedding models
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// ModelDimensions returns the output size for model. An override > 0 wins;
// provider prefixes such as "openai/" are ignored for the table lookup.
func ModelDimensions(model string, override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	name := model
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if dims, ok := knownDimensions[name]; ok {
		return dims, nil
	}
	return 0, apperrors.NewConfigValidationFailed("EmbeddingDimensions",
		fmt.Sprintf("unknown embedding model %q; set EMBEDDING_DIMENSIONS", model))
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint (OpenAI,
// LiteLLM, OpenRouter)
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	requestDim bool
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder. baseURL must include the API version
// path, e.g. https://api.openai.com/v1.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensionsOverride int, logger *zap.Logger) (*OpenAIEmbedder, error) {
	dims, err := ModelDimensions(model, dimensionsOverride)
	if err != nil {
		return nil, err
	}

	// LiteLLM and local gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dims,
		requestDim: dimensionsOverride > 0 && strings.Contains(model, "text-embedding-3"),
		logger:     logger,
	}, nil
}

// Dimensions returns the vector size this embedder produces
func (a *OpenAIEmbedder) Dimensions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dimensions
}

// Model returns the configured model id
func (a *OpenAIEmbedder) Model() string {
	return a.model
}

// Embed returns the embedding of text. Failures are not retried.
func (a *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.model),
	}
	if a.requestDim {
		req.Dimensions = a.Dimensions()
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("embed", ctx.Err())
		}
		a.logger.Error("Embedding request failed",
			zap.String("model", a.model),
			zap.Error(err),
		)
		return nil, apperrors.NewEmbeddingFailed(a.model, err)
	}

	if len(resp.Data) == 0 {
		return nil, apperrors.NewEmbeddingFailed(a.model, fmt.Errorf("no embeddings in response"))
	}

	vector := resp.Data[0].Embedding
	if expected := a.Dimensions(); len(vector) != expected {
		return nil, apperrors.NewEmbeddingFailed(a.model,
			fmt.Errorf("expected %d dimensions, got %d", expected, len(vector)))
	}

	a.logger.Debug("Embedding generated",
		zap.String("model", a.model),
		zap.Int("chars", len(text)),
		zap.Int("dimensions", len(vector)),
	)
	return vector, nil
}
