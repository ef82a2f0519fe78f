package services

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skald/internal/ledger"
	"skald/internal/lock"
	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/store"
	"skald/internal/store/memory"
)

// mockProvider is a testify mock of EmbeddingProvider with three dimensions.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string                 { return "mock" }
func (m *mockProvider) ModelName() string            { return "mock-embed" }
func (m *mockProvider) Status() store.ProviderStatus { return store.ProviderStatusActive }
func (m *mockProvider) Dimension() int               { return 3 }

func (m *mockProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(EmbeddingResult), args.Error(1)
}

// fakeProvider maps keywords onto fixed unit vectors.
type fakeProvider struct {
	tokens int
	delay  time.Duration
	err    error
	calls  atomic.Int32
}

func (f *fakeProvider) Name() string                 { return "fake" }
func (f *fakeProvider) ModelName() string            { return "fake-embed" }
func (f *fakeProvider) Status() store.ProviderStatus { return store.ProviderStatusActive }
func (f *fakeProvider) Dimension() int               { return 3 }

func (f *fakeProvider) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return EmbeddingResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return EmbeddingResult{}, f.err
	}
	return EmbeddingResult{Vector: keywordVector(text), TokensUsed: f.tokens}, nil
}

func keywordVector(text string) models.Embedding {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "lamp"):
		return models.Embedding{1, 0, 0}
	case strings.Contains(t, "chair"):
		return models.Embedding{0, 1, 0}
	}
	return models.Embedding{0, 0, 1}
}

type testEnv struct {
	store     *memory.Store
	ledger    *LedgerService
	catalog   *CatalogService
	imports   *ImportService
	search    *SearchService
	provider  *fakeProvider
	estimator CostEstimator
	tenant    models.TenantKey
}

// newTestEnv wires the services over an in-memory store. limit and rate
// are USD strings; rate is per thousand tokens.
func newTestEnv(t *testing.T, limit, rate string) *testEnv {
	t.Helper()
	st := memory.New()
	provider := &fakeProvider{}
	estimator := NewCostEstimator(money.MustParseUSD(rate), 1.0)

	ledgerSvc := NewLedgerService(st, lock.NewLocalLocker(), LedgerConfig{
		DefaultCreditLimit: money.MustParseUSD(limit),
		Policy:             ledger.Policy{BillingPeriod: ledger.DefaultBillingPeriod},
	}, nil)
	catalog := NewCatalogService(st)

	return &testEnv{
		store:     st,
		ledger:    ledgerSvc,
		catalog:   catalog,
		imports:   NewImportService(catalog, ledgerSvc, provider, estimator, ImportConfig{BulkItemFee: money.MustParseUSD("0.001"), MaxItems: 5}, nil),
		search:    NewSearchService(catalog, ledgerSvc, provider, estimator, SearchConfig{ChargeSearch: true}, nil),
		provider:  provider,
		estimator: estimator,
		tenant:    models.NewTenantKey("proj-1", "secret-key"),
	}
}

// seedUsed stores the tenant's account with creditsUsed already set.
func (e *testEnv) seedUsed(t *testing.T, used string) {
	t.Helper()
	acct := ledger.NewAccount(e.tenant, e.ledger.cfg.DefaultCreditLimit, time.Now())
	acct.CreditsUsed = money.MustParseUSD(used)
	require.NoError(t, e.store.SaveAccount(context.Background(), &acct))
}

func (e *testEnv) account(t *testing.T) *models.CreditAccount {
	t.Helper()
	acct, err := e.store.GetAccount(context.Background(), e.tenant)
	require.NoError(t, err)
	return acct
}

func (e *testEnv) usage(t *testing.T) []*models.UsageRecord {
	t.Helper()
	acct := e.account(t)
	records, err := e.store.ListUsage(context.Background(), acct.ID, 0, 0)
	require.NoError(t, err)
	return records
}

func draft(name, description string) models.ProductDraft {
	return models.ProductDraft{
		Name:        name,
		Description: description,
		ImageURL:    "https://cdn.example.com/" + strings.ReplaceAll(strings.ToLower(name), " ", "-") + ".jpg",
		ProductURL:  "https://shop.example.com/p/" + strings.ReplaceAll(strings.ToLower(name), " ", "-"),
	}
}
