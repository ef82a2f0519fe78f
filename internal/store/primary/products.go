package primary

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"skald/internal/models"
	"skald/internal/store"
)

const uniqueViolation = "23505"

func (s *StoreImpl) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var emb any
	if p.Embedding.Present() {
		emb = pgvector.NewVector(p.Embedding)
	}
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO products (id, project_id, credential_hash, name, description, tags, image_url, product_url, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		RETURNING created_at
	`
	var createdAt any
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt
	}
	err := s.db.QueryRow(ctx, query,
		p.ID, p.Tenant.ProjectID, p.Tenant.CredentialHash,
		p.Name, p.Description, tags, p.ImageURL, p.ProductURL, emb, createdAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *StoreImpl) ListProducts(ctx context.Context, tenant models.TenantKey) ([]*models.Product, error) {
	query := `
		SELECT id, name, description, tags, image_url, product_url, embedding::text, created_at
		FROM products
		WHERE project_id = $1 AND credential_hash = $2
		ORDER BY created_at DESC, seq DESC
	`
	rows, err := s.db.Query(ctx, query, tenant.ProjectID, tenant.CredentialHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Product, error) {
		p := &models.Product{Tenant: tenant}
		var tags []string
		var emb *string
		if err := row.Scan(&p.ID, &p.Name, &p.Description, &tags, &p.ImageURL, &p.ProductURL, &emb, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Tags = tags
		if emb != nil {
			var v pgvector.Vector
			if err := v.Scan(*emb); err != nil {
				return nil, fmt.Errorf("decode embedding of %s: %w", p.ID, err)
			}
			p.Embedding = v.Slice()
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return products, nil
}

func (s *StoreImpl) DeleteProduct(ctx context.Context, tenant models.TenantKey, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND project_id = $2 AND credential_hash = $3`,
		id, tenant.ProjectID, tenant.CredentialHash)
	if err != nil {
		return false, fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *StoreImpl) ProductNameExists(ctx context.Context, tenant models.TenantKey, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE project_id = $1 AND credential_hash = $2 AND lower(name) = $3)`,
		tenant.ProjectID, tenant.CredentialHash, models.NameKey(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product name: %w", err)
	}
	return exists, nil
}
