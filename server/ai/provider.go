package ai

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/profile"
)

// ProviderConfig holds the embedding provider configuration.
type ProviderConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dims       int
	MaxRetries int
	Timeout    time.Duration
}

// DefaultProviderConfig returns the default configuration.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dims:       1536,
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// ProviderConfigFromProfile builds a provider config from the server profile.
func ProviderConfigFromProfile(p *profile.Profile) *ProviderConfig {
	cfg := DefaultProviderConfig()
	if p.EmbeddingBaseURL != "" {
		cfg.BaseURL = p.EmbeddingBaseURL
	}
	cfg.APIKey = p.EmbeddingAPIKey
	if p.EmbeddingModel != "" {
		cfg.Model = p.EmbeddingModel
	}
	if p.EmbeddingDims > 0 {
		cfg.Dims = p.EmbeddingDims
	}
	return cfg
}

// Provider generates embedding vectors through an OpenAI-compatible API.
type Provider struct {
	client *openai.Client
	config *ProviderConfig
}

// NewProvider creates a new embedding provider.
func NewProvider(cfg *ProviderConfig) *Provider {
	if cfg == nil {
		cfg = DefaultProviderConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dims == 0 {
		cfg.Dims = 1536
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Dims returns the declared dimensionality of vectors from this provider.
func (p *Provider) Dims() int {
	return p.config.Dims
}

// Configured reports whether credentials are present. Without them every
// call degrades to the fallback vector.
func (p *Provider) Configured() bool {
	return p.config.APIKey != ""
}

// EmbedBatch generates one embedding vector per input text, preserving
// order. The whole batch fails or succeeds together.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Configured() {
		return nil, apperr.EmbeddingUnavailable("no embedding credentials configured", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var result [][]float32
	err := p.doWithRetry(ctx, func() error {
		req := openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.config.Model),
		}
		resp, err := p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return errors.Errorf("embedding response length mismatch: want %d, got %d", len(texts), len(resp.Data))
		}
		result = make([][]float32, len(texts))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(texts) {
				return errors.Errorf("embedding response index out of range: %d", item.Index)
			}
			result[item.Index] = item.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, apperr.EmbeddingUnavailable("failed to generate embeddings", err)
	}

	for i, vec := range result {
		if len(vec) != p.config.Dims {
			return nil, apperr.DimensionMismatch(p.config.Dims, len(result[i]))
		}
	}
	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("embedding request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
