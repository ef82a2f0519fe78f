package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skald/internal/models"
	"skald/internal/money"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newAcct(limit, used string) models.CreditAccount {
	a := NewAccount(models.NewTenantKey("p", "c"), money.MustParseUSD(limit), t0)
	a.CreditsUsed = money.MustParseUSD(used)
	return a
}

func TestRolloverIdempotentWithinPeriod(t *testing.T) {
	p := Policy{}
	a := newAcct("10", "4")

	once, rolled := p.CheckAndRollBillingPeriod(a, t0.Add(10*24*time.Hour))
	assert.False(t, rolled)
	twice, rolled := p.CheckAndRollBillingPeriod(once, t0.Add(20*24*time.Hour))
	assert.False(t, rolled)
	assert.Equal(t, a, twice)
}

func TestRolloverAfterPeriod(t *testing.T) {
	p := Policy{}
	a := newAcct("10", "4")
	a.CreditsHeld = money.MustParseUSD("0.5")

	now := t0.Add(30 * 24 * time.Hour)
	rolled, ok := p.CheckAndRollBillingPeriod(a, now)
	require.True(t, ok)
	assert.Equal(t, money.Amount(0), rolled.CreditsUsed)
	assert.Equal(t, money.Amount(0), rolled.CreditsHeld)
	assert.Equal(t, now, rolled.BillingPeriodStart)
	assert.Equal(t, a.CreditLimit, rolled.CreditLimit)

	again, ok := p.CheckAndRollBillingPeriod(rolled, now.Add(time.Hour))
	assert.False(t, ok)
	assert.Equal(t, rolled, again)
}

func TestRolloverCustomPeriod(t *testing.T) {
	p := Policy{BillingPeriod: time.Hour}
	_, ok := p.CheckAndRollBillingPeriod(newAcct("1", "1"), t0.Add(59*time.Minute))
	assert.False(t, ok)
	_, ok = p.CheckAndRollBillingPeriod(newAcct("1", "1"), t0.Add(time.Hour))
	assert.True(t, ok)
}

func TestReserveBoundary(t *testing.T) {
	a := newAcct("10.00", "9.999")
	est := money.MustParseUSD("0.0005")

	require.NoError(t, Reserve(a, est))
	a, _, _ = Settle(a, Charge{Amount: est, Tokens: 5}, t0)

	// remaining is now exactly the estimate: equal is allowed
	require.NoError(t, Reserve(a, est))
	a, _, _ = Settle(a, Charge{Amount: est, Tokens: 5}, t0)

	err := Reserve(a, est)
	var ib *models.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, money.Amount(0), ib.Remaining)
	assert.Equal(t, est, ib.Estimated)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestReserveRejectsOneNanoOver(t *testing.T) {
	a := newAcct("1", "0.5")
	assert.NoError(t, Reserve(a, money.MustParseUSD("0.5")))
	assert.Error(t, Reserve(a, money.MustParseUSD("0.5")+money.Nano))
}

func TestReserveCountsHolds(t *testing.T) {
	a := newAcct("1", "0")
	a = Hold(a, money.MustParseUSD("0.75"), t0.Add(time.Minute))
	assert.Error(t, Reserve(a, money.MustParseUSD("0.5")))
	a = ReleaseHold(a, money.MustParseUSD("0.75"))
	assert.NoError(t, Reserve(a, money.MustParseUSD("0.5")))
	a = ReleaseHold(a, money.MustParseUSD("1"))
	assert.Equal(t, money.Amount(0), a.CreditsHeld)
	assert.True(t, a.HoldsExpireAt.IsZero())
}

func TestHoldKeepsLatestDeadline(t *testing.T) {
	a := newAcct("1", "0")
	a = Hold(a, money.MustParseUSD("0.1"), t0.Add(2*time.Minute))
	a = Hold(a, money.MustParseUSD("0.1"), t0.Add(time.Minute))
	assert.Equal(t, t0.Add(2*time.Minute), a.HoldsExpireAt)
	assert.Equal(t, money.MustParseUSD("0.2"), a.CreditsHeld)
}

func TestExpireHolds(t *testing.T) {
	p := Policy{HoldTTL: time.Minute}
	a := newAcct("0.001", "0")
	a = Hold(a, money.MustParseUSD("0.001"), p.HoldExpiry(t0))

	same, expired := ExpireHolds(a, t0.Add(59*time.Second))
	assert.False(t, expired)
	assert.Equal(t, money.MustParseUSD("0.001"), same.CreditsHeld)

	after, expired := ExpireHolds(a, t0.Add(time.Minute))
	require.True(t, expired)
	assert.Equal(t, money.Amount(0), after.CreditsHeld)
	assert.True(t, after.HoldsExpireAt.IsZero())
	assert.NoError(t, Reserve(after, money.MustParseUSD("0.001")))

	_, expired = ExpireHolds(newAcct("1", "0"), t0.Add(time.Hour))
	assert.False(t, expired, "nothing to expire without holds")
}

func TestHoldExpiryDefaultsTTL(t *testing.T) {
	assert.Equal(t, t0.Add(DefaultHoldTTL), Policy{}.HoldExpiry(t0))
}

func TestSettleProducesPair(t *testing.T) {
	a := newAcct("10", "1")
	amt := money.MustParseUSD("0.0002")
	after, usage, txn := Settle(a, Charge{Amount: amt, Tokens: 20, Category: models.CategoryProductEmbedding, Description: "Product Embedding - Lamp"}, t0)

	assert.Equal(t, money.MustParseUSD("1.0002"), after.CreditsUsed)
	assert.Equal(t, a.ID, usage.AccountID)
	assert.Equal(t, amt, usage.Amount)
	assert.Equal(t, 20, usage.Tokens)
	require.NotNil(t, txn.UsageRecordID)
	assert.Equal(t, usage.ID, *txn.UsageRecordID)
	assert.Equal(t, models.TransactionDeduction, txn.Type)
	assert.Equal(t, amt, txn.Amount)
}

// Under serialized access the overdraw is bounded by the largest single
// settled charge.
func TestNeverOverdrawsBeyondLargestCharge(t *testing.T) {
	a := newAcct("0.01", "0")
	est := money.MustParseUSD("0.001")
	actuals := []string{"0.001", "0.0015", "0.0008", "0.002", "0.001", "0.003", "0.0001", "0.001"}
	var largest money.Amount
	for i := 0; i < 50; i++ {
		if err := Reserve(a, est); err != nil {
			continue
		}
		actual := money.MustParseUSD(actuals[i%len(actuals)])
		if actual > largest {
			largest = actual
		}
		a, _, _ = Settle(a, Charge{Amount: actual}, t0)
		assert.LessOrEqual(t, a.CreditsUsed-a.CreditLimit, largest)
	}
}

func TestTopUpAndView(t *testing.T) {
	p := Policy{}
	a := newAcct("10", "10")
	v := p.View(a, t0.Add(24*time.Hour))
	assert.True(t, v.LimitExceeded)
	assert.Equal(t, t0.Add(DefaultBillingPeriod), v.BillingPeriodEnd)
	assert.Equal(t, (29 * 24 * time.Hour).String(), v.TimeUntilReset)

	a, txn := TopUp(a, money.MustParseUSD("5"), t0)
	assert.Equal(t, money.MustParseUSD("15"), a.CreditLimit)
	assert.Equal(t, models.TransactionPurchase, txn.Type)
	assert.Nil(t, txn.UsageRecordID)
	assert.False(t, p.View(a, t0).LimitExceeded)
}
