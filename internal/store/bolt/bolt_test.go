package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "skald.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	tenant := models.NewTenantKey("proj", "key")

	first := &models.Product{Tenant: tenant, Name: "Widget", Description: "a widget thing", Embedding: models.Embedding{1, 0, 0}}
	require.NoError(t, s.CreateProduct(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	err := s.CreateProduct(ctx, &models.Product{Tenant: tenant, Name: "WIDGET"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	second := &models.Product{Tenant: tenant, Name: "Gadget", CreatedAt: first.CreatedAt}
	require.NoError(t, s.CreateProduct(ctx, second))

	list, err := s.ListProducts(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Gadget", list[0].Name, "equal timestamps list the later insert first")
	assert.Equal(t, models.Embedding{1, 0, 0}, list[1].Embedding)

	other, err := s.ListProducts(ctx, models.NewTenantKey("proj", "other"))
	require.NoError(t, err)
	assert.Empty(t, other)

	ok, err := s.DeleteProduct(ctx, tenant, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	exists, err := s.ProductNameExists(ctx, tenant, "widget")
	require.NoError(t, err)
	assert.False(t, exists, "deleting frees the name")

	ok, err = s.DeleteProduct(ctx, tenant, first.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountAndLog(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	tenant := models.NewTenantKey("proj", "key")

	_, err := s.GetAccount(ctx, tenant)
	assert.ErrorIs(t, err, store.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	acct := &models.CreditAccount{
		ID:                 uuid.New(),
		Tenant:             tenant,
		CreditLimit:        money.MustParseUSD("10"),
		CreditsUsed:        money.MustParseUSD("0.0002"),
		BillingPeriodStart: now,
	}
	for i := 0; i < 3; i++ {
		u := &models.UsageRecord{ID: uuid.New(), AccountID: acct.ID, Amount: money.MustParseUSD("0.0001"), Tokens: 7, Category: models.CategoryProductEmbedding, CreatedAt: now}
		uid := u.ID
		txn := &models.Transaction{ID: uuid.New(), AccountID: acct.ID, UsageRecordID: &uid, Type: models.TransactionDeduction, Amount: u.Amount, CreatedAt: now}
		require.NoError(t, s.SaveAccount(ctx, acct, models.LedgerEntry{Usage: u, Transaction: txn}))
	}

	got, err := s.GetAccount(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, acct.CreditsUsed, got.CreditsUsed)
	assert.Equal(t, tenant, got.Tenant)
	assert.True(t, acct.BillingPeriodStart.Equal(got.BillingPeriodStart))

	txns, err := s.ListTransactions(ctx, acct.ID, 2, 1)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	sum, err := s.UsageSummary(ctx, acct.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.Equal(t, int64(3), sum[0].Count)
	assert.Equal(t, money.MustParseUSD("0.0003"), sum[0].Amount)
}

func TestListProductsUnknownTenantIsEmpty(t *testing.T) {
	s := openTemp(t)
	products, err := s.ListProducts(context.Background(), models.NewTenantKey("nobody", "key"))
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestAccountKeepsHoldDeadline(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	tenant := models.NewTenantKey("proj", "key")
	expires := time.Now().UTC().Add(time.Minute).Truncate(time.Second)

	acct := &models.CreditAccount{
		ID:            uuid.New(),
		Tenant:        tenant,
		CreditLimit:   money.MustParseUSD("1"),
		CreditsHeld:   money.MustParseUSD("0.001"),
		HoldsExpireAt: expires,
	}
	require.NoError(t, s.SaveAccount(ctx, acct))

	got, err := s.GetAccount(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, acct.CreditsHeld, got.CreditsHeld)
	assert.True(t, expires.Equal(got.HoldsExpireAt))
}
