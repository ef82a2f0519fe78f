package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/store"
)

const (
	MinNameLength        = 3
	MaxNameLength        = 200
	MinDescriptionLength = 10
)

// CatalogService validates drafts and owns the tenant-scoped product set.
// It never charges; callers pair it with LedgerService.
type CatalogService struct {
	store store.ProductStore
	now   func() time.Time
}

func NewCatalogService(st store.ProductStore) *CatalogService {
	return &CatalogService{store: st, now: time.Now}
}

// Normalize trims fields, strips markup from the description and
// deduplicates tags.
func (c *CatalogService) Normalize(d models.ProductDraft) models.ProductDraft {
	return models.ProductDraft{
		Name:        strings.TrimSpace(d.Name),
		Description: PlainText(d.Description),
		Tags:        models.NormalizeTags(d.Tags),
		ImageURL:    strings.TrimSpace(d.ImageURL),
		ProductURL:  strings.TrimSpace(d.ProductURL),
	}
}

// Validate reports every failing field at once as *models.ValidationError.
func (c *CatalogService) Validate(d models.ProductDraft) error {
	verr := &models.ValidationError{}

	switch n := utf8.RuneCountInString(d.Name); {
	case n < MinNameLength:
		verr.Add("name", "too_short", fmt.Sprintf("name must be at least %d characters", MinNameLength))
	case n > MaxNameLength:
		verr.Add("name", "too_long", fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	if utf8.RuneCountInString(d.Description) < MinDescriptionLength {
		verr.Add("description", "too_short", fmt.Sprintf("description must be at least %d characters", MinDescriptionLength))
	}
	if !isWebURL(d.ImageURL) {
		verr.Add("image_url", "invalid_url", "image_url must be a valid http or https URL")
	}
	if !isWebURL(d.ProductURL) {
		verr.Add("product_url", "invalid_url", "product_url must be a valid http or https URL")
	}
	return verr.OrNil()
}

func isWebURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Add stores a validated draft. A name already taken by the tenant, in
// any letter case, yields *models.DuplicateProductError.
func (c *CatalogService) Add(ctx context.Context, tenant models.TenantKey, d models.ProductDraft, emb models.Embedding) (*models.Product, error) {
	if err := c.Validate(d); err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:          uuid.New(),
		Tenant:      tenant,
		Name:        d.Name,
		Description: d.Description,
		Tags:        d.Tags,
		ImageURL:    d.ImageURL,
		ProductURL:  d.ProductURL,
		Embedding:   emb,
		CreatedAt:   c.now().UTC(),
	}
	if p.Tags == nil {
		p.Tags = models.Tags{}
	}

	if err := c.store.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &models.DuplicateProductError{Name: d.Name}
		}
		return nil, fmt.Errorf("failed to store product: %w", err)
	}
	log.WithFields(log.Fields{"tenant": tenant.ProjectID, "product_id": p.ID, "embedded": p.HasEmbedding()}).Debug("Product added")
	return p, nil
}

// List returns the tenant's products, newest first.
func (c *CatalogService) List(ctx context.Context, tenant models.TenantKey) ([]*models.Product, error) {
	products, err := c.store.ListProducts(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Delete removes one product. It returns false when the tenant has no
// product with that id.
func (c *CatalogService) Delete(ctx context.Context, tenant models.TenantKey, id uuid.UUID) (bool, error) {
	ok, err := c.store.DeleteProduct(ctx, tenant, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return ok, nil
}

func (c *CatalogService) NameExists(ctx context.Context, tenant models.TenantKey, name string) (bool, error) {
	ok, err := c.store.ProductNameExists(ctx, tenant, name)
	if err != nil {
		return false, fmt.Errorf("failed to check product name: %w", err)
	}
	return ok, nil
}

// NameSnapshot returns the tenant's product names keyed by models.NameKey.
func (c *CatalogService) NameSnapshot(ctx context.Context, tenant models.TenantKey) (map[string]struct{}, error) {
	products, err := c.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(products))
	for _, p := range products {
		names[models.NameKey(p.Name)] = struct{}{}
	}
	return names, nil
}
