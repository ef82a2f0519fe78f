// Package ledger holds the pure credit-account rules: billing period
// rollover, the preflight balance gate and settlement. Callers own
// persistence and locking.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"skald/internal/models"
	"skald/internal/money"
)

// DefaultBillingPeriod is the rolling window after which usage resets.
const DefaultBillingPeriod = 30 * 24 * time.Hour

// DefaultHoldTTL bounds how long an unsettled reservation survives.
const DefaultHoldTTL = 2 * time.Minute

// Policy carries the tunables of the rules below.
type Policy struct {
	BillingPeriod time.Duration
	// HoldTTL must outlast the slowest paid call, retries included.
	HoldTTL time.Duration
}

func (p Policy) holdTTL() time.Duration {
	if p.HoldTTL <= 0 {
		return DefaultHoldTTL
	}
	return p.HoldTTL
}

// HoldExpiry is when a hold placed at now stops counting against the
// balance.
func (p Policy) HoldExpiry(now time.Time) time.Time {
	return now.Add(p.holdTTL())
}

func (p Policy) period() time.Duration {
	if p.BillingPeriod <= 0 {
		return DefaultBillingPeriod
	}
	return p.BillingPeriod
}

// PeriodEnd is when the account's current billing period rolls over.
func (p Policy) PeriodEnd(acct models.CreditAccount) time.Time {
	return acct.BillingPeriodStart.Add(p.period())
}

// NewAccount opens a ledger for tenant with the given limit.
func NewAccount(tenant models.TenantKey, limit money.Amount, now time.Time) models.CreditAccount {
	return models.CreditAccount{
		ID:                 uuid.New(),
		Tenant:             tenant,
		CreditLimit:        limit,
		BillingPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// CheckAndRollBillingPeriod resets usage and open holds once now has
// reached the end of the billing period. The second return value
// reports whether a rollover happened.
func (p Policy) CheckAndRollBillingPeriod(acct models.CreditAccount, now time.Time) (models.CreditAccount, bool) {
	if now.Before(p.PeriodEnd(acct)) {
		return acct, false
	}
	acct.CreditsUsed = 0
	acct.CreditsHeld = 0
	acct.HoldsExpireAt = time.Time{}
	acct.BillingPeriodStart = now
	acct.UpdatedAt = now
	return acct, true
}

// Reserve is the preflight gate. It rejects only when the estimate is
// strictly greater than what is available; equal values pass.
func Reserve(acct models.CreditAccount, estimate money.Amount) error {
	if avail := acct.Available(); estimate > avail {
		return &models.InsufficientBalanceError{Remaining: avail, Estimated: estimate}
	}
	return nil
}

// Charge describes one measured cost to settle.
type Charge struct {
	Amount      money.Amount
	Tokens      int
	Category    string
	Description string
}

// Settle adds the measured cost to creditsUsed and returns the usage
// record and transaction that document it.
func Settle(acct models.CreditAccount, c Charge, now time.Time) (models.CreditAccount, models.UsageRecord, models.Transaction) {
	acct.CreditsUsed += c.Amount
	acct.UpdatedAt = now

	usage := models.UsageRecord{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		Amount:      c.Amount,
		Tokens:      c.Tokens,
		Category:    c.Category,
		Description: c.Description,
		CreatedAt:   now,
	}
	usageID := usage.ID
	txn := models.Transaction{
		ID:            uuid.New(),
		AccountID:     acct.ID,
		UsageRecordID: &usageID,
		Type:          models.TransactionDeduction,
		Amount:        c.Amount,
		Description:   c.Description,
		Status:        models.StatusCompleted,
		CreatedAt:     now,
	}
	return acct, usage, txn
}

// Hold and ReleaseHold track estimates of in-flight paid calls so
// concurrent requests see a reduced Available balance. All open holds
// share one deadline, pushed forward by each new hold.
func Hold(acct models.CreditAccount, estimate money.Amount, expiresAt time.Time) models.CreditAccount {
	acct.CreditsHeld += estimate
	if expiresAt.After(acct.HoldsExpireAt) {
		acct.HoldsExpireAt = expiresAt
	}
	return acct
}

func ReleaseHold(acct models.CreditAccount, estimate money.Amount) models.CreditAccount {
	acct.CreditsHeld -= estimate
	if acct.CreditsHeld <= 0 {
		acct.CreditsHeld = 0
		acct.HoldsExpireAt = time.Time{}
	}
	return acct
}

// ExpireHolds drops holds whose deadline has passed. Such holds belong
// to calls that never settled, e.g. because the process died mid-call.
func ExpireHolds(acct models.CreditAccount, now time.Time) (models.CreditAccount, bool) {
	if acct.CreditsHeld <= 0 || now.Before(acct.HoldsExpireAt) {
		return acct, false
	}
	acct.CreditsHeld = 0
	acct.HoldsExpireAt = time.Time{}
	acct.UpdatedAt = now
	return acct, true
}

// TopUp raises the credit limit and returns the purchase transaction.
func TopUp(acct models.CreditAccount, amount money.Amount, now time.Time) (models.CreditAccount, models.Transaction) {
	acct.CreditLimit += amount
	acct.UpdatedAt = now
	return acct, models.Transaction{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		Type:        models.TransactionPurchase,
		Amount:      amount,
		Description: "Credit top-up",
		Status:      models.StatusCompleted,
		CreatedAt:   now,
	}
}

// View renders the client-facing account state.
func (p Policy) View(acct models.CreditAccount, now time.Time) models.AccountView {
	end := p.PeriodEnd(acct)
	until := end.Sub(now)
	if until < 0 {
		until = 0
	}
	return models.AccountView{
		AccountID:          acct.ID,
		CreditLimit:        acct.CreditLimit,
		CreditsUsed:        acct.CreditsUsed,
		CreditsHeld:        acct.CreditsHeld,
		Balance:            acct.Balance(),
		BillingPeriodStart: acct.BillingPeriodStart,
		BillingPeriodEnd:   end,
		TimeUntilReset:     until.Truncate(time.Second).String(),
		LimitExceeded:      acct.CreditsUsed >= acct.CreditLimit,
	}
}
