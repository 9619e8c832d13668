package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider identifies a language-model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// ConnectorOptions configures a model connection.
type ConnectorOptions struct {
	Provider       Provider `json:"provider"`
	APIKey         string   `json:"api_key"`
	BaseURL        string   `json:"base_url,omitempty"`
	Model          string   `json:"model,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Temperature    float64  `json:"temperature,omitempty"`
}

// Connector wraps a langchaingo model as the extraction-service Client, and
// can derive an Embedder from the same backend.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Msg("creating model connector")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, options)
	case ProviderOllama:
		model, err = createOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{provider: options.Provider, llm: model, options: options}, nil
}

// Complete generates a raw completion for the prompt.
func (c *Connector) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.options.Temperature)}
	if c.options.Model != "" {
		opts = append(opts, llms.WithModel(c.options.Model))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return out, nil
}

// NewEmbedder builds an Embedder backed by the same provider. Not every
// backend exposes embeddings; the caller treats a nil embedder as degraded
// mode for the related-request matcher.
func NewEmbedder(ctx context.Context, options ConnectorOptions) (Embedder, error) {
	var client embeddings.EmbedderClient
	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(options.APIKey)}
		if options.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(options.EmbeddingModel))
		}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		client = model
	case ProviderGemini:
		model, err := googleai.New(ctx, googleai.WithAPIKey(options.APIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		client = model
	case ProviderOllama:
		opts := []ollama.Option{}
		if options.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(options.BaseURL))
		}
		if options.EmbeddingModel != "" {
			opts = append(opts, ollama.WithModel(options.EmbeddingModel))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		client = model
	default:
		return nil, fmt.Errorf("provider %s does not support embeddings", options.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &unitEmbedder{inner: embedder}, nil
}

// unitEmbedder L2-normalizes backend vectors so downstream cosine similarity
// reduces to a dot product.
type unitEmbedder struct {
	inner *embeddings.EmbedderImpl
}

func (u *unitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := u.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return NormalizeVector(vec), nil
}

// NormalizeVector scales a vector to unit length. Zero vectors pass through
// unchanged.
func NormalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * norm
	}
	return out
}

func createOpenAIModel(options ConnectorOptions) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(options.Model))
	}
	return googleai.New(ctx, opts...)
}

func createOllamaModel(options ConnectorOptions) (llms.Model, error) {
	opts := []ollama.Option{}
	if options.Model != "" {
		opts = append(opts, ollama.WithModel(options.Model))
	}
	if options.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(options.BaseURL))
	}
	return ollama.New(opts...)
}
