package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"skald/internal/money"
)

// Embedding is a dense vector produced by an embedding provider.
// A nil or empty Embedding means the product has none.
type Embedding []float32

// Present reports whether the embedding holds any components.
func (e Embedding) Present() bool { return len(e) > 0 }

// Dim returns the vector length, zero when absent.
func (e Embedding) Dim() int { return len(e) }

// Product is a catalog entry scoped to one tenant.
// Embedding is never serialized to API clients.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Tenant      TenantKey `json:"-" db:"-"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Tags        Tags      `json:"tags" db:"tags"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	ProductURL  string    `json:"product_url" db:"product_url"`
	Embedding   Embedding `json:"-" db:"embedding"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// HasEmbedding is exposed to clients in place of the vector itself.
func (p *Product) HasEmbedding() bool { return p.Embedding.Present() }

// ProductDraft is the caller-supplied shape of a product before it is
// validated and stored.
type ProductDraft struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Tags        Tags   `json:"tags" yaml:"tags"`
	ImageURL    string `json:"image_url" yaml:"image_url"`
	ProductURL  string `json:"product_url" yaml:"product_url"`
}

// EmbeddingText is the text sent to the embedding provider for a draft.
func (d ProductDraft) EmbeddingText() string {
	return "Name: " + d.Name + "; Description: " + d.Description + "; Tags: " + strings.Join(d.Tags, ", ")
}

// NameKey is the case-insensitive uniqueness key for product names.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type TransactionType string

const (
	TransactionDeduction TransactionType = "deduction"
	TransactionPurchase  TransactionType = "purchase"
)

const (
	CategoryProductEmbedding = "product_embedding"
	CategorySearchEmbedding  = "search_embedding"

	StatusCompleted = "completed"
)

// CreditAccount is the per-tenant ledger record.
type CreditAccount struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	Tenant             TenantKey    `json:"-" db:"-"`
	CreditLimit        money.Amount `json:"credit_limit_usd" db:"credit_limit"`
	CreditsUsed        money.Amount `json:"credits_used_usd" db:"credits_used"`
	CreditsHeld        money.Amount `json:"credits_held_usd" db:"credits_held"`
	HoldsExpireAt      time.Time    `json:"holds_expire_at" db:"holds_expire_at"`
	BillingPeriodStart time.Time    `json:"billing_period_start" db:"billing_period_start"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// Balance is creditLimit minus creditsUsed. It can be negative when a
// measured charge exceeded its estimate.
func (a *CreditAccount) Balance() money.Amount {
	return a.CreditLimit - a.CreditsUsed
}

// Available is the balance left after open reservations.
func (a *CreditAccount) Available() money.Amount {
	return a.Balance() - a.CreditsHeld
}

// UsageRecord is one half of an append-only charge pair.
type UsageRecord struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	AccountID   uuid.UUID    `json:"account_id" db:"account_id"`
	Amount      money.Amount `json:"amount_usd" db:"amount"`
	Tokens      int          `json:"tokens" db:"tokens"`
	Category    string       `json:"category" db:"category"`
	Description string       `json:"description" db:"description"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// Transaction is the money-movement half of a charge pair, or a
// standalone purchase.
type Transaction struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AccountID     uuid.UUID       `json:"account_id" db:"account_id"`
	UsageRecordID *uuid.UUID      `json:"usage_record_id,omitempty" db:"usage_record_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        money.Amount    `json:"amount_usd" db:"amount"`
	Description   string          `json:"description" db:"description"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// LedgerEntry groups the records appended by one ledger mutation.
// Usage is nil for purchases.
type LedgerEntry struct {
	Usage       *UsageRecord
	Transaction *Transaction
}

// UsageSummary aggregates usage records of one category.
type UsageSummary struct {
	Category string       `json:"category"`
	Amount   money.Amount `json:"amount_usd"`
	Tokens   int64        `json:"tokens"`
	Count    int64        `json:"count"`
}

// AccountView is the client-facing state of a ledger.
type AccountView struct {
	AccountID          uuid.UUID    `json:"account_id"`
	CreditLimit        money.Amount `json:"credit_limit_usd"`
	CreditsUsed        money.Amount `json:"credits_used_usd"`
	CreditsHeld        money.Amount `json:"credits_held_usd"`
	Balance            money.Amount `json:"balance_usd"`
	BillingPeriodStart time.Time    `json:"billing_period_start"`
	BillingPeriodEnd   time.Time    `json:"billing_period_end"`
	TimeUntilReset     string       `json:"time_until_reset"`
	LimitExceeded      bool         `json:"limit_exceeded"`
}

// ScoredProduct pairs a product with its similarity to a query.
type ScoredProduct struct {
	Product    *Product
	Similarity float64
}
