// Package memory is a process-local Store. It backs tests and the
// "memory" database driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"skald/internal/models"
	"skald/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string][]*models.Product // tenant key -> insertion order
	accounts     map[string]*models.CreditAccount
	usage        map[uuid.UUID][]*models.UsageRecord
	transactions map[uuid.UUID][]*models.Transaction
}

func New() *Store {
	return &Store{
		products:     make(map[string][]*models.Product),
		accounts:     make(map[string]*models.CreditAccount),
		usage:        make(map[uuid.UUID][]*models.UsageRecord),
		transactions: make(map[uuid.UUID][]*models.Transaction),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func cloneProduct(p *models.Product) *models.Product {
	cp := *p
	cp.Tags = append(models.Tags(nil), p.Tags...)
	if p.Embedding != nil {
		cp.Embedding = append(models.Embedding(nil), p.Embedding...)
	}
	return &cp
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Tenant.String()
	want := models.NameKey(p.Name)
	for _, existing := range s.products[key] {
		if models.NameKey(existing.Name) == want {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[key] = append(s.products[key], cloneProduct(p))
	return nil
}

func (s *Store) ListProducts(ctx context.Context, tenant models.TenantKey) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.products[tenant.String()]
	out := make([]*models.Product, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, cloneProduct(src[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, tenant models.TenantKey, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenant.String()
	list := s.products[key]
	for i, p := range list {
		if p.ID == id {
			s.products[key] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ProductNameExists(ctx context.Context, tenant models.TenantKey, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := models.NameKey(name)
	for _, p := range s.products[tenant.String()] {
		if models.NameKey(p.Name) == want {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetAccount(ctx context.Context, tenant models.TenantKey) (*models.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[tenant.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *Store) SaveAccount(ctx context.Context, acct *models.CreditAccount, entries ...models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	s.accounts[acct.Tenant.String()] = &cp
	for _, e := range entries {
		if e.Usage != nil {
			u := *e.Usage
			s.usage[acct.ID] = append(s.usage[acct.ID], &u)
		}
		if e.Transaction != nil {
			t := *e.Transaction
			s.transactions[acct.ID] = append(s.transactions[acct.ID], &t)
		}
	}
	return nil
}

// page walks src newest first.
func page[T any](src []*T, limit, offset int) []*T {
	out := make([]*T, 0)
	for i := len(src) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *src[i]
		out = append(out, &cp)
	}
	return out
}

func (s *Store) ListUsage(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.usage[accountID], limit, offset), nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.transactions[accountID], limit, offset), nil
}

func (s *Store) UsageSummary(ctx context.Context, accountID uuid.UUID, since time.Time) ([]models.UsageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCat := map[string]*models.UsageSummary{}
	var order []string
	for _, u := range s.usage[accountID] {
		if u.CreatedAt.Before(since) {
			continue
		}
		sum, ok := byCat[u.Category]
		if !ok {
			sum = &models.UsageSummary{Category: u.Category}
			byCat[u.Category] = sum
			order = append(order, u.Category)
		}
		sum.Amount += u.Amount
		sum.Tokens += int64(u.Tokens)
		sum.Count++
	}
	sort.Strings(order)
	out := make([]models.UsageSummary, 0, len(order))
	for _, c := range order {
		out = append(out, *byCat[c])
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
