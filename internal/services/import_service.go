package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skald/internal/ledger"
	"skald/internal/metrics"
	"skald/internal/models"
	"skald/internal/money"
)

const (
	DefaultMaxImportItems = 500
)

// DefaultBulkItemFee is the flat per-item preflight charge estimate.
var DefaultBulkItemFee = money.MustParseUSD("0.001")

type ImportConfig struct {
	BulkItemFee money.Amount
	MaxItems    int
}

// ImportService adds products to a tenant's catalog, embedding them and
// charging the tenant's ledger for each embedding.
type ImportService struct {
	catalog   *CatalogService
	ledger    *LedgerService
	embedder  EmbeddingProvider
	estimator CostEstimator
	cfg       ImportConfig
	metrics   *metrics.Metrics
}

// NewImportService accepts a nil embedder; products then can only be
// added with SkipEmbedding.
func NewImportService(catalog *CatalogService, ledgerSvc *LedgerService, embedder EmbeddingProvider, estimator CostEstimator, cfg ImportConfig, m *metrics.Metrics) *ImportService {
	if cfg.BulkItemFee <= 0 {
		cfg.BulkItemFee = DefaultBulkItemFee
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxImportItems
	}
	return &ImportService{
		catalog:   catalog,
		ledger:    ledgerSvc,
		embedder:  embedder,
		estimator: estimator,
		cfg:       cfg,
		metrics:   m,
	}
}

type AddProductParams struct {
	Draft         models.ProductDraft
	SkipEmbedding bool
}

type AddProductResult struct {
	Product *models.Product
	Charge  *models.UsageRecord // nil when nothing was charged
	Balance money.Amount
}

// AddProduct validates, gates, embeds and stores a single product.
func (s *ImportService) AddProduct(ctx context.Context, tenant models.TenantKey, params AddProductParams) (*AddProductResult, error) {
	d := s.catalog.Normalize(params.Draft)
	if err := s.catalog.Validate(d); err != nil {
		return nil, err
	}

	if params.SkipEmbedding {
		return s.addWithoutEmbedding(ctx, tenant, d)
	}
	return s.embedAndStore(ctx, tenant, d)
}

func (s *ImportService) addWithoutEmbedding(ctx context.Context, tenant models.TenantKey, d models.ProductDraft) (*AddProductResult, error) {
	result := &AddProductResult{}
	err := s.ledger.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		p, err := s.catalog.Add(ctx, tenant, d, nil)
		if err != nil {
			return err
		}
		acct := ls.Account()
		result.Product = p
		result.Balance = acct.Balance()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// embedAndStore runs the paid part of an add: reserve under the tenant
// lock, call the provider with the lock released, then settle and insert
// under the lock again. A product that turns out to be a duplicate after
// its embedding was paid for is still charged.
func (s *ImportService) embedAndStore(ctx context.Context, tenant models.TenantKey, d models.ProductDraft) (*AddProductResult, error) {
	if s.embedder == nil {
		return nil, &models.EmbeddingProviderError{Provider: "none", Err: ErrProviderDisabled}
	}

	text := d.EmbeddingText()
	estTokens, estimate := s.estimator.Estimate(text)

	var res Reservation
	err := s.ledger.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		exists, err := s.catalog.NameExists(ctx, tenant, d.Name)
		if err != nil {
			return err
		}
		if exists {
			return &models.DuplicateProductError{Name: d.Name}
		}
		res, err = ls.Reserve(estimate)
		return err
	})
	if err != nil {
		return nil, err
	}

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if rerr := s.ledger.Release(ctx, res); rerr != nil {
			log.WithError(rerr).WithField("tenant", tenant.ProjectID).Error("Failed to release credit hold")
		}
		return nil, err
	}

	tokens := emb.TokensUsed
	if tokens <= 0 {
		tokens = estTokens
	}
	charge := ledger.Charge{
		Amount:      s.estimator.CostForTokens(tokens),
		Tokens:      tokens,
		Category:    models.CategoryProductEmbedding,
		Description: "Product embedding: " + d.Name,
	}

	detached := context.WithoutCancel(ctx)
	result := &AddProductResult{}
	err = s.ledger.WithTenant(detached, tenant, func(ls *LedgerSession) error {
		usage := ls.Settle(res, charge)
		acct := ls.Account()
		result.Charge = &usage
		result.Balance = acct.Balance()

		p, err := s.catalog.Add(detached, tenant, d, emb.Vector)
		result.Product = p
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tenant":     tenant.ProjectID,
		"product_id": result.Product.ID,
		"tokens":     tokens,
		"cost_usd":   charge.Amount.String(),
	}).Info("Product embedded and added")
	return result, nil
}

type BulkOptions struct {
	// OnProgress is called after each row with the number of rows done.
	OnProgress func(done, total int)
}

type BulkResult struct {
	Added     []uuid.UUID  `json:"added"`
	Errors    []string     `json:"errors"`
	Balance   money.Amount `json:"balance_usd"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

// BulkAdd imports drafts in order. After a flat-fee preflight over the
// whole batch, each row succeeds or contributes one "Row N: ..." error;
// one bad row never aborts the others. When ctx is cancelled, rows not
// yet started are reported as cancelled and charges already settled
// stand.
func (s *ImportService) BulkAdd(ctx context.Context, tenant models.TenantKey, drafts []models.ProductDraft, opts BulkOptions) (*BulkResult, error) {
	verr := &models.ValidationError{}
	switch {
	case len(drafts) == 0:
		verr.Add("products", "empty", "products must contain at least one item")
	case len(drafts) > s.cfg.MaxItems:
		verr.Add("products", "too_many", fmt.Sprintf("products must contain at most %d items", s.cfg.MaxItems))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	total := len(drafts)
	if err := s.ledger.CheckAffordable(ctx, tenant, s.cfg.BulkItemFee.Mul(int64(total))); err != nil {
		return nil, err
	}

	names, err := s.catalog.NameSnapshot(ctx, tenant)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Added: []uuid.UUID{}, Errors: []string{}}
	fail := func(row int, outcome, msg string) {
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row, msg))
		s.metrics.ImportItem(outcome)
	}

	for i, raw := range drafts {
		row := i + 1
		if ctx.Err() != nil {
			for r := row; r <= total; r++ {
				fail(r, "cancelled", "import cancelled")
			}
			result.Cancelled = true
			break
		}

		d := s.catalog.Normalize(raw)
		if err := s.catalog.Validate(d); err != nil {
			fail(row, "invalid", err.Error())
		} else if _, dup := names[models.NameKey(d.Name)]; dup {
			fail(row, "duplicate", (&models.DuplicateProductError{Name: d.Name}).Error())
		} else if added, err := s.embedAndStore(ctx, tenant, d); err != nil {
			// A provider timeout also wraps context.DeadlineExceeded, so
			// only the caller's own context marks the row cancelled.
			switch {
			case ctx.Err() != nil:
				fail(row, "cancelled", "import cancelled")
			case errors.Is(err, models.ErrEmbeddingProvider):
				fail(row, "failed", err.Error())
			case errors.Is(err, models.ErrInsufficientBalance):
				fail(row, "unaffordable", err.Error())
			case errors.Is(err, models.ErrDuplicateProduct):
				fail(row, "duplicate", err.Error())
			default:
				fail(row, "failed", err.Error())
			}
		} else {
			result.Added = append(result.Added, added.Product.ID)
			names[models.NameKey(d.Name)] = struct{}{}
			s.metrics.ImportItem("added")
		}

		if opts.OnProgress != nil {
			opts.OnProgress(row, total)
		}
	}

	balance, err := s.ledger.Balance(context.WithoutCancel(ctx), tenant)
	if err != nil {
		return nil, err
	}
	result.Balance = balance

	log.WithFields(log.Fields{
		"tenant":  tenant.ProjectID,
		"total":   total,
		"added":   len(result.Added),
		"errors":  len(result.Errors),
		"balance": balance.String(),
	}).Info("Bulk import finished")
	return result, nil
}
