package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"skald/internal/models"
	"skald/internal/money"
	"skald/internal/store"
)

func (s *StoreImpl) GetAccount(ctx context.Context, tenant models.TenantKey) (*models.CreditAccount, error) {
	query := `
		SELECT id, credit_limit, credits_used, credits_held, holds_expire_at, billing_period_start, created_at, updated_at
		FROM credit_accounts
		WHERE project_id = $1 AND credential_hash = $2
	`
	acct := &models.CreditAccount{Tenant: tenant}
	var limit, used, held int64
	var holdsExpireAt *time.Time
	err := s.db.QueryRow(ctx, query, tenant.ProjectID, tenant.CredentialHash).Scan(
		&acct.ID, &limit, &used, &held, &holdsExpireAt, &acct.BillingPeriodStart, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}
	acct.CreditLimit = money.Amount(limit)
	acct.CreditsUsed = money.Amount(used)
	acct.CreditsHeld = money.Amount(held)
	if holdsExpireAt != nil {
		acct.HoldsExpireAt = *holdsExpireAt
	}
	return acct, nil
}

// SaveAccount upserts the account row and appends entries in one
// transaction.
func (s *StoreImpl) SaveAccount(ctx context.Context, acct *models.CreditAccount, entries ...models.LedgerEntry) error {
	var holdsExpireAt *time.Time
	if !acct.HoldsExpireAt.IsZero() {
		holdsExpireAt = &acct.HoldsExpireAt
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO credit_accounts (id, project_id, credential_hash, credit_limit, credits_used, credits_held, holds_expire_at, billing_period_start, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				credit_limit = EXCLUDED.credit_limit,
				credits_used = EXCLUDED.credits_used,
				credits_held = EXCLUDED.credits_held,
				holds_expire_at = EXCLUDED.holds_expire_at,
				billing_period_start = EXCLUDED.billing_period_start,
				updated_at = EXCLUDED.updated_at
		`, acct.ID, acct.Tenant.ProjectID, acct.Tenant.CredentialHash,
			acct.CreditLimit.Nanos(), acct.CreditsUsed.Nanos(), acct.CreditsHeld.Nanos(), holdsExpireAt,
			acct.BillingPeriodStart, acct.CreatedAt, acct.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert credit account: %w", err)
		}

		for _, e := range entries {
			if u := e.Usage; u != nil {
				_, err := tx.Exec(ctx, `
					INSERT INTO usage_records (id, account_id, amount, tokens, category, description, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, u.ID, acct.ID, u.Amount.Nanos(), u.Tokens, u.Category, u.Description, u.CreatedAt)
				if err != nil {
					return fmt.Errorf("failed to insert usage record: %w", err)
				}
			}
			if t := e.Transaction; t != nil {
				_, err := tx.Exec(ctx, `
					INSERT INTO transactions (id, account_id, usage_record_id, type, amount, description, status, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				`, t.ID, acct.ID, t.UsageRecordID, string(t.Type), t.Amount.Nanos(), t.Description, t.Status, t.CreatedAt)
				if err != nil {
					return fmt.Errorf("failed to insert transaction: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *StoreImpl) ListUsage(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, account_id, amount, tokens, category, description, created_at
		FROM usage_records
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.UsageRecord, error) {
		var u models.UsageRecord
		var amount int64
		if err := row.Scan(&u.ID, &u.AccountID, &amount, &u.Tokens, &u.Category, &u.Description, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Amount = money.Amount(amount)
		return &u, nil
	})
}

func (s *StoreImpl) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT id, account_id, usage_record_id, type, amount, description, status, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Transaction, error) {
		var t models.Transaction
		var typ string
		var amount int64
		if err := row.Scan(&t.ID, &t.AccountID, &t.UsageRecordID, &typ, &amount, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = models.TransactionType(typ)
		t.Amount = money.Amount(amount)
		return &t, nil
	})
}

func (s *StoreImpl) UsageSummary(ctx context.Context, accountID uuid.UUID, since time.Time) ([]models.UsageSummary, error) {
	query := `
		SELECT category, COALESCE(SUM(amount), 0)::BIGINT, COALESCE(SUM(tokens), 0)::BIGINT, COUNT(*)
		FROM usage_records
		WHERE account_id = $1 AND created_at >= $2
		GROUP BY category
		ORDER BY category
	`
	rows, err := s.db.Query(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.UsageSummary, error) {
		var sum models.UsageSummary
		var amount int64
		if err := row.Scan(&sum.Category, &amount, &sum.Tokens, &sum.Count); err != nil {
			return sum, err
		}
		sum.Amount = money.Amount(amount)
		return sum, nil
	})
}
