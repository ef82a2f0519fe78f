package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skald/internal/ledger"
	"skald/internal/metrics"
	"skald/internal/models"
	"skald/internal/ranker"
)

const DefaultSearchCount = 5

type SearchConfig struct {
	DefaultCount int
	MaxCount     int // at most ranker.MaxK
	ChargeSearch bool
}

type SearchService struct {
	catalog   *CatalogService
	ledger    *LedgerService
	embedder  EmbeddingProvider
	estimator CostEstimator
	cfg       SearchConfig
	metrics   *metrics.Metrics
}

func NewSearchService(catalog *CatalogService, ledgerSvc *LedgerService, embedder EmbeddingProvider, estimator CostEstimator, cfg SearchConfig, m *metrics.Metrics) *SearchService {
	if cfg.MaxCount <= 0 || cfg.MaxCount > ranker.MaxK {
		cfg.MaxCount = ranker.MaxK
	}
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = DefaultSearchCount
	}
	return &SearchService{
		catalog:   catalog,
		ledger:    ledgerSvc,
		embedder:  embedder,
		estimator: estimator,
		cfg:       cfg,
		metrics:   m,
	}
}

// --- Parameter Structs ---

type SearchParams struct {
	Query string
	Count int // 0 selects the default; clamped to 1..MaxCount
}

// Search ranks the tenant's products against the query by cosine
// similarity of their embeddings. Products without an embedding rank
// last; products whose embedding length differs from the query's are
// left out.
func (s *SearchService) Search(ctx context.Context, tenant models.TenantKey, params SearchParams) ([]models.ScoredProduct, error) {
	start := time.Now()
	defer s.metrics.ObserveSearch(start)

	query := strings.TrimSpace(params.Query)
	if query == "" {
		verr := &models.ValidationError{}
		verr.Add("query", "required", "query must not be empty")
		return nil, verr
	}
	count := params.Count
	if count == 0 {
		count = s.cfg.DefaultCount
	}
	if count > s.cfg.MaxCount {
		count = s.cfg.MaxCount
	}
	count = ranker.ClampK(count)

	products, err := s.catalog.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return []models.ScoredProduct{}, nil
	}

	vec, err := s.embedQuery(ctx, tenant, query)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Product, len(products))
	candidates := make([]ranker.Candidate, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		candidates = append(candidates, ranker.Candidate{ID: p.ID, Vector: p.Embedding})
	}

	ranked := ranker.TopK(vec, candidates, count, func(uuid.UUID, int, int) {
		s.metrics.DimensionMismatch()
	})

	out := make([]models.ScoredProduct, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.ScoredProduct{Product: byID[r.ID], Similarity: roundSimilarity(r.Similarity)})
	}
	return out, nil
}

func (s *SearchService) embedQuery(ctx context.Context, tenant models.TenantKey, query string) (models.Embedding, error) {
	if s.embedder == nil {
		return nil, &models.EmbeddingProviderError{Provider: "none", Err: ErrProviderDisabled}
	}
	if !s.cfg.ChargeSearch {
		res, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		return res.Vector, nil
	}

	estTokens, estimate := s.estimator.Estimate(query)
	reservation, err := s.ledger.Reserve(ctx, tenant, estimate)
	if err != nil {
		return nil, err
	}

	res, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if rerr := s.ledger.Release(ctx, reservation); rerr != nil {
			log.WithError(rerr).WithField("tenant", tenant.ProjectID).Error("Failed to release credit hold")
		}
		return nil, err
	}

	tokens := res.TokensUsed
	if tokens <= 0 {
		tokens = estTokens
	}
	_, _, err = s.ledger.Settle(ctx, reservation, ledger.Charge{
		Amount:      s.estimator.CostForTokens(tokens),
		Tokens:      tokens,
		Category:    models.CategorySearchEmbedding,
		Description: "Search embedding",
	})
	if err != nil {
		return nil, err
	}
	return res.Vector, nil
}

func roundSimilarity(v float64) float64 {
	return math.Round(v*10000) / 10000
}
