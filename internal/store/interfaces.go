package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"skald/internal/models"
)

// --- Provider Status (here so services and handlers share it without a cycle) ---

type ProviderStatus int

const (
	ProviderStatusUnknown  ProviderStatus = iota // Default zero value
	ProviderStatusActive                         // Provider is operational
	ProviderStatusInactive                       // Provider is temporarily unavailable (e.g., network, rate limit)
	ProviderStatusDisabled                       // Provider is not configured or explicitly disabled
)

func (s ProviderStatus) String() string {
	switch s {
	case ProviderStatusActive:
		return "active"
	case ProviderStatusInactive:
		return "inactive"
	case ProviderStatusDisabled:
		return "disabled"
	}
	return "unknown"
}

// --- Product Store ---

type ProductStore interface {
	// CreateProduct returns ErrDuplicate when the tenant already has a
	// product whose name matches case-insensitively.
	CreateProduct(ctx context.Context, p *models.Product) error
	// ListProducts returns the tenant's products, newest first.
	ListProducts(ctx context.Context, tenant models.TenantKey) ([]*models.Product, error)
	DeleteProduct(ctx context.Context, tenant models.TenantKey, id uuid.UUID) (bool, error)
	ProductNameExists(ctx context.Context, tenant models.TenantKey, name string) (bool, error)
}

// --- Ledger Store ---

type LedgerStore interface {
	// GetAccount returns ErrNotFound for a tenant without a ledger.
	GetAccount(ctx context.Context, tenant models.TenantKey) (*models.CreditAccount, error)
	// SaveAccount upserts the account and appends entries atomically.
	SaveAccount(ctx context.Context, acct *models.CreditAccount, entries ...models.LedgerEntry) error
	ListUsage(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.UsageRecord, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
	// UsageSummary aggregates usage records created at or after since.
	UsageSummary(ctx context.Context, accountID uuid.UUID, since time.Time) ([]models.UsageSummary, error)
}

// Store is what a backend must provide as a whole.
type Store interface {
	ProductStore
	LedgerStore
	Ping(ctx context.Context) error
	Close() error
}

// --- Job Client ---

// ImportJob is the state of an asynchronous bulk import.
// Tenant is the owner recorded in the task payload.
type ImportJob struct {
	ID     string           `json:"id"`
	Tenant models.TenantKey `json:"-"`
	State  string           `json:"state"`
	Error  string           `json:"error,omitempty"`
	Result []byte           `json:"-"`
}

type JobClient interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueImport(ctx context.Context, tenant models.TenantKey, drafts []models.ProductDraft) (string, error)
	ImportStatus(ctx context.Context, id string) (*ImportJob, error)
	Close() error
}
