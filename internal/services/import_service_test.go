package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skald/internal/ledger"
	"skald/internal/models"
	"skald/internal/money"
)

func TestAddProduct_ChargesMeasuredTokens(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	env.provider.tokens = 7

	res, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{
		Draft: draft("Desk Lamp", "A warm <b>LED</b> desk lamp"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Product)
	assert.True(t, res.Product.HasEmbedding())
	assert.Equal(t, "A warm LED desk lamp", res.Product.Description)

	require.NotNil(t, res.Charge)
	assert.Equal(t, 7, res.Charge.Tokens)
	assert.Equal(t, money.Amount(700), res.Charge.Amount)
	assert.Equal(t, models.CategoryProductEmbedding, res.Charge.Category)
	assert.Equal(t, money.MustParseUSD("10")-700, res.Balance)

	acct := env.account(t)
	assert.Equal(t, money.Amount(700), acct.CreditsUsed)
	assert.Equal(t, money.Amount(0), acct.CreditsHeld)
}

func TestAddProduct_ZeroTokensSettlesAtEstimate(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	d := draft("Desk Lamp", "A warm desk lamp")

	res, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{Draft: d})
	require.NoError(t, err)

	tokens, cost := env.estimator.Estimate(env.catalog.Normalize(d).EmbeddingText())
	assert.Equal(t, tokens, res.Charge.Tokens)
	assert.Equal(t, cost, res.Charge.Amount)
}

func TestAddProduct_InsufficientBalanceSkipsProvider(t *testing.T) {
	// $0.1 per thousand tokens makes any product text cost more than $0.0001.
	env := newTestEnv(t, "10.00", "0.1")
	env.seedUsed(t, "9.9999")

	_, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{
		Draft: draft("Desk Lamp", "A warm desk lamp"),
	})
	var ierr *models.InsufficientBalanceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, money.MustParseUSD("0.0001"), ierr.Remaining)
	assert.Greater(t, ierr.Estimated, ierr.Remaining)

	assert.Equal(t, int32(0), env.provider.calls.Load())
	assert.Empty(t, env.usage(t))
	assert.Equal(t, money.MustParseUSD("9.9999"), env.account(t).CreditsUsed)
}

func TestAddProduct_DuplicateNameIgnoresCase(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	ctx := context.Background()

	_, err := env.imports.AddProduct(ctx, env.tenant, AddProductParams{Draft: draft("Widget", "The original widget")})
	require.NoError(t, err)

	_, err = env.imports.AddProduct(ctx, env.tenant, AddProductParams{Draft: draft("WIDGET", "A louder widget copy")})
	var derr *models.DuplicateProductError
	require.ErrorAs(t, err, &derr)

	assert.Equal(t, int32(1), env.provider.calls.Load())
	assert.Len(t, env.usage(t), 1)
}

func TestAddProduct_DuplicateTenantsAreIsolated(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	ctx := context.Background()
	other := models.NewTenantKey("proj-2", "secret-key")

	_, err := env.imports.AddProduct(ctx, env.tenant, AddProductParams{Draft: draft("Widget", "The original widget")})
	require.NoError(t, err)
	_, err = env.imports.AddProduct(ctx, other, AddProductParams{Draft: draft("Widget", "The original widget")})
	require.NoError(t, err)

	mine, err := env.catalog.List(ctx, env.tenant)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestAddProduct_ValidationFailsBeforeCharging(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")

	_, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{
		Draft: models.ProductDraft{Name: "ab", Description: "short", ImageURL: "not a url", ProductURL: "ftp://x/y"},
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.Equal(t, map[string]bool{"name": true, "description": true, "image_url": true, "product_url": true}, fields)
	assert.Equal(t, int32(0), env.provider.calls.Load())
}

func TestAddProduct_ProviderFailureReleasesHold(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	env.provider.err = &models.EmbeddingProviderError{Provider: "fake", Err: errors.New("503")}

	_, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{
		Draft: draft("Desk Lamp", "A warm desk lamp"),
	})
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)

	acct := env.account(t)
	assert.Equal(t, money.Amount(0), acct.CreditsUsed)
	assert.Equal(t, money.Amount(0), acct.CreditsHeld)

	products, err := env.catalog.List(context.Background(), env.tenant)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestAddProduct_SkipEmbedding(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")

	res, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{
		Draft:         draft("Desk Lamp", "A warm desk lamp"),
		SkipEmbedding: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Product.HasEmbedding())
	assert.Nil(t, res.Charge)
	assert.Equal(t, int32(0), env.provider.calls.Load())
	assert.Empty(t, env.usage(t))
}

func TestAddProduct_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t, "1.00", "1.00")
	env.provider.delay = 10 * time.Millisecond

	drafts := make([]models.ProductDraft, 10)
	for i := range drafts {
		drafts[i] = draft(fmt.Sprintf("Product %02d", i), "An ordinary product")
	}
	_, estimate := env.estimator.Estimate(env.catalog.Normalize(drafts[0]).EmbeddingText())

	// Room for exactly three.
	acct := ledger.NewAccount(env.tenant, estimate.Mul(3)+estimate/2, time.Now())
	require.NoError(t, env.store.SaveAccount(context.Background(), &acct))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, d := range drafts {
		wg.Add(1)
		go func(d models.ProductDraft) {
			defer wg.Done()
			_, err := env.imports.AddProduct(context.Background(), env.tenant, AddProductParams{Draft: d})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, rejected)

	stored := env.account(t)
	assert.Equal(t, estimate.Mul(3), stored.CreditsUsed)
	assert.Equal(t, money.Amount(0), stored.CreditsHeld)
	assert.LessOrEqual(t, stored.CreditsUsed, stored.CreditLimit)
}

func TestBulkAdd_PartialFailure(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")

	res, err := env.imports.BulkAdd(context.Background(), env.tenant, []models.ProductDraft{
		draft("Desk Lamp", "A warm desk lamp"),
		draft("Stool", "short"),
		draft("Armchair", "A deep leather armchair"),
	}, BulkOptions{})
	require.NoError(t, err)

	assert.Len(t, res.Added, 2)
	assert.Equal(t, []string{"Row 2: description must be at least 10 characters"}, res.Errors)
	assert.Equal(t, int32(2), env.provider.calls.Load())
	assert.Len(t, env.usage(t), 2)
	assert.Equal(t, money.MustParseUSD("10")-env.account(t).CreditsUsed, res.Balance)
}

func TestBulkAdd_DuplicatesWithinBatchAndCatalog(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	ctx := context.Background()

	_, err := env.imports.AddProduct(ctx, env.tenant, AddProductParams{Draft: draft("Widget", "The original widget")})
	require.NoError(t, err)

	res, err := env.imports.BulkAdd(ctx, env.tenant, []models.ProductDraft{
		draft("widget", "Same name as the catalog"),
		draft("Desk Lamp", "A warm desk lamp"),
		draft("DESK LAMP", "Same name as row two"),
	}, BulkOptions{})
	require.NoError(t, err)

	assert.Len(t, res.Added, 1)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "Row 1: ")
	assert.Contains(t, res.Errors[1], "Row 3: ")
	assert.Contains(t, res.Errors[1], "already exists")
}

func TestBulkAdd_PreflightRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, "0.002", "0.0001")

	_, err := env.imports.BulkAdd(context.Background(), env.tenant, []models.ProductDraft{
		draft("Desk Lamp", "A warm desk lamp"),
		draft("Stool", "A three legged stool"),
		draft("Armchair", "A deep leather armchair"),
	}, BulkOptions{})

	var ierr *models.InsufficientBalanceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, money.MustParseUSD("0.003"), ierr.Estimated)
	assert.Equal(t, int32(0), env.provider.calls.Load())
}

func TestBulkAdd_UnaffordableRowContinues(t *testing.T) {
	// $1 per thousand tokens: each row costs about $0.013.
	env := newTestEnv(t, "0.02", "1.00")

	res, err := env.imports.BulkAdd(context.Background(), env.tenant, []models.ProductDraft{
		draft("Lamp one", "A bright lamp"),
		draft("Lamp two", "A dimmer lamp"),
	}, BulkOptions{})
	require.NoError(t, err)

	assert.Len(t, res.Added, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Row 2: insufficient balance")
	assert.Equal(t, int32(1), env.provider.calls.Load())
}

func TestBulkAdd_LimitsItemCount(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")

	_, err := env.imports.BulkAdd(context.Background(), env.tenant, nil, BulkOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)

	many := make([]models.ProductDraft, 6)
	for i := range many {
		many[i] = draft(fmt.Sprintf("Product %d", i), "An ordinary product")
	}
	_, err = env.imports.BulkAdd(context.Background(), env.tenant, many, BulkOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestBulkAdd_Cancellation(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var progress []int
	res, err := env.imports.BulkAdd(ctx, env.tenant, []models.ProductDraft{
		draft("Desk Lamp", "A warm desk lamp"),
		draft("Stool", "A three legged stool"),
		draft("Armchair", "A deep leather armchair"),
	}, BulkOptions{OnProgress: func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 3, total)
		if done == 1 {
			cancel()
		}
	}})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Len(t, res.Added, 1)
	assert.Equal(t, []string{"Row 2: import cancelled", "Row 3: import cancelled"}, res.Errors)
	assert.Equal(t, []int{1}, progress)
	assert.Len(t, env.usage(t), 1)
}

func TestBulkAdd_ProviderTimeoutIsNotCancellation(t *testing.T) {
	env := newTestEnv(t, "10.00", "0.0001")
	env.provider.delay = time.Second
	embedder, err := NewRetryingEmbeddingService(env.provider, &SimpleRetryStrategy{MaxAttempts: 0}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	imports := NewImportService(env.catalog, env.ledger, embedder, env.estimator, env.imports.cfg, nil)

	res, err := imports.BulkAdd(context.Background(), env.tenant, []models.ProductDraft{
		draft("Desk Lamp", "A warm desk lamp"),
	}, BulkOptions{})
	require.NoError(t, err)

	assert.False(t, res.Cancelled)
	assert.Empty(t, res.Added)
	require.Len(t, res.Errors, 1)
	assert.NotContains(t, res.Errors[0], "import cancelled")
	assert.Contains(t, res.Errors[0], "Row 1: embedding provider fake")
	assert.Contains(t, res.Errors[0], context.DeadlineExceeded.Error())

	acct := env.account(t)
	assert.Equal(t, money.Amount(0), acct.CreditsUsed)
	assert.Equal(t, money.Amount(0), acct.CreditsHeld)
}
