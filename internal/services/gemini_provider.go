package services

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"skald/internal/models"
	"skald/internal/store"
)

// GeminiProvider embeds text with Google's Gemini embedding models. The
// API does not report token usage, so results carry TokensUsed == 0 and
// settle at the estimate.
type GeminiProvider struct {
	client         *genai.Client
	embeddingModel string
	dim            int
}

// NewGeminiProvider creates a new Gemini embedding provider.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	if modelName == "" {
		modelName = "models/text-embedding-004"
	}

	var dim int
	switch modelName {
	case "models/embedding-001", "models/text-embedding-004", "embedding-001", "text-embedding-004":
		dim = 768
	default:
		log.Warnf("Unknown Gemini embedding model '%s', defaulting dimension to 768", modelName)
		dim = 768
	}

	p := &GeminiProvider{embeddingModel: modelName, dim: dim}
	if apiKey == "" {
		log.Warn("Gemini API key not provided. Gemini provider will be disabled.")
		return p, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	log.Infof("Gemini provider initialized with model %s (dimension %d)", modelName, dim)
	return p, nil
}

func (p *GeminiProvider) Name() string      { return "gemini" }
func (p *GeminiProvider) ModelName() string { return p.embeddingModel }
func (p *GeminiProvider) Dimension() int    { return p.dim }

func (p *GeminiProvider) Status() store.ProviderStatus {
	if p.client == nil {
		return store.ProviderStatusDisabled
	}
	return store.ProviderStatusActive
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	if p.client == nil {
		return EmbeddingResult{}, ErrProviderDisabled
	}

	res, err := p.client.EmbeddingModel(p.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("Gemini API error generating embedding: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return EmbeddingResult{}, fmt.Errorf("Gemini API returned no embedding data")
	}
	return EmbeddingResult{Vector: models.Embedding(res.Embedding.Values)}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

var _ EmbeddingProvider = (*GeminiProvider)(nil)
