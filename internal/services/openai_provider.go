package services

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/store"
)

// OpenAIProvider embeds text with the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIProvider creates a new OpenAI embedding provider. Without an
// API key the provider is built disabled. baseURL overrides the API
// endpoint (proxies, tests); empty keeps the default.
func NewOpenAIProvider(apiKey, modelID, baseURL string) *OpenAIProvider {
	if modelID == "" {
		modelID = string(openai.AdaEmbeddingV2)
	}

	var dim int
	switch modelID {
	case string(openai.AdaEmbeddingV2), string(openai.SmallEmbedding3):
		dim = 1536
	case string(openai.LargeEmbedding3):
		dim = 3072
	default:
		log.Warnf("Unknown OpenAI embedding model '%s', defaulting dimension to 1536", modelID)
		dim = 1536
	}

	p := &OpenAIProvider{model: openai.EmbeddingModel(modelID), dim: dim}
	if apiKey == "" {
		log.Warn("OpenAI API key not provided. OpenAI provider will be disabled.")
		return p
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	p.client = openai.NewClientWithConfig(cfg)
	log.Infof("OpenAI provider initialized with model %s (dimension %d)", modelID, dim)
	return p
}

func (p *OpenAIProvider) Name() string      { return "openai" }
func (p *OpenAIProvider) ModelName() string { return string(p.model) }
func (p *OpenAIProvider) Dimension() int    { return p.dim }

func (p *OpenAIProvider) Status() store.ProviderStatus {
	if p.client == nil {
		return store.ProviderStatusDisabled
	}
	return store.ProviderStatusActive
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	if p.client == nil {
		return EmbeddingResult{}, ErrProviderDisabled
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("OpenAI API error generating embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return EmbeddingResult{}, fmt.Errorf("OpenAI API returned no embedding data")
	}

	return EmbeddingResult{
		Vector:     models.Embedding(resp.Data[0].Embedding),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

var _ EmbeddingProvider = (*OpenAIProvider)(nil)
