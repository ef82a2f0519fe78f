package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skald/internal/ledger"
	"skald/internal/lock"
	"skald/internal/metrics"
	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/store"
)

// DefaultCreditLimit is granted to accounts created on first use.
var DefaultCreditLimit = money.MustParseUSD("10.00")

type LedgerConfig struct {
	DefaultCreditLimit money.Amount
	Policy             ledger.Policy
}

// LedgerService owns every read and write of credit accounts. Mutations
// happen inside WithTenant, which serializes them per tenant.
type LedgerService struct {
	store   store.LedgerStore
	locks   lock.Locker
	cfg     LedgerConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLedgerService(st store.LedgerStore, locks lock.Locker, cfg LedgerConfig, m *metrics.Metrics) *LedgerService {
	if cfg.DefaultCreditLimit <= 0 {
		cfg.DefaultCreditLimit = DefaultCreditLimit
	}
	return &LedgerService{store: st, locks: locks, cfg: cfg, metrics: m, now: time.Now}
}

// Reservation is an estimate held against a tenant's balance while a
// paid provider call is in flight.
type Reservation struct {
	Tenant models.TenantKey
	Amount money.Amount
}

// LedgerSession is the view of one tenant's account while its lock is held.
type LedgerSession struct {
	svc     *LedgerService
	acct    models.CreditAccount
	entries []models.LedgerEntry
	dirty   bool
	now     time.Time
}

// WithTenant runs fn with the tenant's lock held and its account loaded,
// created or rolled over as needed. Whatever fn changed is persisted
// before the lock is released, even when fn returns an error.
func (s *LedgerService) WithTenant(ctx context.Context, tenant models.TenantKey, fn func(*LedgerSession) error) error {
	unlock, err := s.locks.Lock(ctx, tenant.String())
	if err != nil {
		return fmt.Errorf("failed to lock tenant ledger: %w", err)
	}
	defer unlock()

	sess, err := s.load(ctx, tenant)
	if err != nil {
		return err
	}

	fnErr := fn(sess)

	if sess.dirty {
		if err := s.store.SaveAccount(context.WithoutCancel(ctx), &sess.acct, sess.entries...); err != nil {
			if fnErr != nil {
				log.WithError(fnErr).WithField("tenant", tenant.ProjectID).Warn("Ledger session failed before persistence error")
			}
			return fmt.Errorf("failed to persist credit account: %w", err)
		}
		for _, e := range sess.entries {
			if e.Usage != nil {
				s.metrics.Charge(e.Usage.Category, e.Usage.Amount)
			}
		}
	}
	return fnErr
}

func (s *LedgerService) load(ctx context.Context, tenant models.TenantKey) (*LedgerSession, error) {
	now := s.now()
	sess := &LedgerSession{svc: s, now: now}

	acct, err := s.store.GetAccount(ctx, tenant)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sess.acct = ledger.NewAccount(tenant, s.cfg.DefaultCreditLimit, now)
		sess.dirty = true
		log.WithFields(log.Fields{"tenant": tenant.ProjectID, "limit_usd": s.cfg.DefaultCreditLimit.String()}).Info("Created credit account")
		return sess, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load credit account: %w", err)
	}

	rolled, didRoll := s.cfg.Policy.CheckAndRollBillingPeriod(*acct, now)
	sess.acct = rolled
	if didRoll {
		sess.dirty = true
		log.WithField("tenant", tenant.ProjectID).Info("Billing period rolled over")
	}
	if expired, ok := ledger.ExpireHolds(sess.acct, now); ok {
		log.WithFields(log.Fields{
			"tenant":   tenant.ProjectID,
			"held_usd": sess.acct.CreditsHeld.String(),
		}).Warn("Dropped expired credit holds")
		sess.acct = expired
		sess.dirty = true
	}
	return sess, nil
}

// Account returns the session's current account state.
func (ls *LedgerSession) Account() models.CreditAccount { return ls.acct }

// Check applies the preflight gate without holding anything.
func (ls *LedgerSession) Check(estimate money.Amount) error {
	if err := ledger.Reserve(ls.acct, estimate); err != nil {
		ls.svc.metrics.Rejected()
		return err
	}
	return nil
}

// Reserve gates the estimate and, when it passes, holds it.
func (ls *LedgerSession) Reserve(estimate money.Amount) (Reservation, error) {
	if err := ls.Check(estimate); err != nil {
		return Reservation{}, err
	}
	ls.acct = ledger.Hold(ls.acct, estimate, ls.svc.cfg.Policy.HoldExpiry(ls.now))
	ls.dirty = true
	return Reservation{Tenant: ls.acct.Tenant, Amount: estimate}, nil
}

// Release drops a hold whose provider call did not happen or failed.
func (ls *LedgerSession) Release(res Reservation) {
	if res.Amount == 0 {
		return
	}
	ls.acct = ledger.ReleaseHold(ls.acct, res.Amount)
	ls.dirty = true
}

// Settle releases the hold and charges the measured cost.
func (ls *LedgerSession) Settle(res Reservation, c ledger.Charge) models.UsageRecord {
	ls.Release(res)
	acct, usage, txn := ledger.Settle(ls.acct, c, ls.now)
	ls.acct = acct
	ls.entries = append(ls.entries, models.LedgerEntry{Usage: &usage, Transaction: &txn})
	ls.dirty = true
	return usage
}

func (ls *LedgerSession) TopUp(amount money.Amount) models.Transaction {
	acct, txn := ledger.TopUp(ls.acct, amount, ls.now)
	ls.acct = acct
	ls.entries = append(ls.entries, models.LedgerEntry{Transaction: &txn})
	ls.dirty = true
	return txn
}

// Reserve holds estimate for tenant, failing with
// *models.InsufficientBalanceError when it does not fit.
func (s *LedgerService) Reserve(ctx context.Context, tenant models.TenantKey, estimate money.Amount) (Reservation, error) {
	var res Reservation
	err := s.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		var err error
		res, err = ls.Reserve(estimate)
		return err
	})
	return res, err
}

// Release returns a hold. It runs detached from ctx cancellation.
func (s *LedgerService) Release(ctx context.Context, res Reservation) error {
	return s.WithTenant(context.WithoutCancel(ctx), res.Tenant, func(ls *LedgerSession) error {
		ls.Release(res)
		return nil
	})
}

// Settle charges a completed provider call. It runs detached from ctx
// cancellation so that paid work is always recorded.
func (s *LedgerService) Settle(ctx context.Context, res Reservation, c ledger.Charge) (models.UsageRecord, money.Amount, error) {
	var (
		usage   models.UsageRecord
		balance money.Amount
	)
	err := s.WithTenant(context.WithoutCancel(ctx), res.Tenant, func(ls *LedgerSession) error {
		usage = ls.Settle(res, c)
		acct := ls.Account()
		balance = acct.Balance()
		return nil
	})
	return usage, balance, err
}

// CheckAffordable is the bulk preflight gate. Nothing is held.
func (s *LedgerService) CheckAffordable(ctx context.Context, tenant models.TenantKey, estimate money.Amount) error {
	return s.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		return ls.Check(estimate)
	})
}

func (s *LedgerService) Account(ctx context.Context, tenant models.TenantKey) (models.AccountView, error) {
	var view models.AccountView
	err := s.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		view = s.cfg.Policy.View(ls.Account(), ls.now)
		return nil
	})
	return view, err
}

// Balance is creditLimit minus creditsUsed after any due rollover.
func (s *LedgerService) Balance(ctx context.Context, tenant models.TenantKey) (money.Amount, error) {
	view, err := s.Account(ctx, tenant)
	if err != nil {
		return 0, err
	}
	return view.Balance, nil
}

func (s *LedgerService) TopUp(ctx context.Context, tenant models.TenantKey, amount money.Amount) (models.AccountView, models.Transaction, error) {
	if amount <= 0 {
		verr := &models.ValidationError{}
		verr.Add("amount_usd", "invalid_amount", "amount_usd must be greater than zero")
		return models.AccountView{}, models.Transaction{}, verr
	}

	var (
		view models.AccountView
		txn  models.Transaction
	)
	err := s.WithTenant(ctx, tenant, func(ls *LedgerSession) error {
		txn = ls.TopUp(amount)
		view = s.cfg.Policy.View(ls.Account(), ls.now)
		return nil
	})
	if err == nil {
		log.WithFields(log.Fields{"tenant": tenant.ProjectID, "amount_usd": amount.String()}).Info("Credit account topped up")
	}
	return view, txn, err
}

func (s *LedgerService) ListUsage(ctx context.Context, tenant models.TenantKey, limit, offset int) ([]*models.UsageRecord, error) {
	id, ok, err := s.accountID(ctx, tenant)
	if err != nil || !ok {
		return []*models.UsageRecord{}, err
	}
	records, err := s.store.ListUsage(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, tenant models.TenantKey, limit, offset int) ([]*models.Transaction, error) {
	id, ok, err := s.accountID(ctx, tenant)
	if err != nil || !ok {
		return []*models.Transaction{}, err
	}
	txns, err := s.store.ListTransactions(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// UsageSummary aggregates the current billing period per category.
func (s *LedgerService) UsageSummary(ctx context.Context, tenant models.TenantKey) ([]models.UsageSummary, error) {
	view, err := s.Account(ctx, tenant)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.UsageSummary(ctx, view.AccountID, view.BillingPeriodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summary, nil
}

func (s *LedgerService) accountID(ctx context.Context, tenant models.TenantKey) (uuid.UUID, bool, error) {
	acct, err := s.store.GetAccount(ctx, tenant)
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to load credit account: %w", err)
	}
	return acct.ID, true, nil
}
