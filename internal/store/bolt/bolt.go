// Package bolt is a single-file Store on bbolt for single-node installs.
//
// Layout:
//
//	products/<tenant>/items/<seq>   product JSON, seq gives insertion order
//	products/<tenant>/names/<name>  seq of the product holding that name
//	accounts/<tenant>               account JSON
//	usage/<account>/<seq>           usage record JSON
//	transactions/<account>/<seq>    transaction JSON
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"skald/internal/models"
	"skald/internal/store"
)

var (
	bucketProducts     = []byte("products")
	bucketAccounts     = []byte("accounts")
	bucketUsage        = []byte("usage")
	bucketTransactions = []byte("transactions")

	subItems = []byte("items")
	subNames = []byte("names")
)

type Store struct {
	db *bbolt.DB
}

// storedProduct keeps the embedding, which models.Product hides from JSON.
type storedProduct struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	ImageURL    string    `json:"image_url"`
	ProductURL  string    `json:"product_url"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketProducts, bucketAccounts, bucketUsage, bucketTransactions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (s *Store) Close() error { return s.db.Close() }

func seqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func tenantBucket(tx *bbolt.Tx, tenant models.TenantKey, create bool) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketProducts)
	if !create {
		return root.Bucket([]byte(tenant.String())), nil
	}
	tb, err := root.CreateBucketIfNotExists([]byte(tenant.String()))
	if err != nil {
		return nil, err
	}
	if _, err := tb.CreateBucketIfNotExists(subItems); err != nil {
		return nil, err
	}
	if _, err := tb.CreateBucketIfNotExists(subNames); err != nil {
		return nil, err
	}
	return tb, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		tb, err := tenantBucket(tx, p.Tenant, true)
		if err != nil {
			return err
		}
		names := tb.Bucket(subNames)
		nameKey := []byte(models.NameKey(p.Name))
		if names.Get(nameKey) != nil {
			return store.ErrDuplicate
		}
		items := tb.Bucket(subItems)
		seq, err := items.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(storedProduct{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Tags:        p.Tags,
			ImageURL:    p.ImageURL,
			ProductURL:  p.ProductURL,
			Embedding:   p.Embedding,
			CreatedAt:   p.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal product: %w", err)
		}
		if err := items.Put(seqKey(seq), data); err != nil {
			return err
		}
		return names.Put(nameKey, seqKey(seq))
	})
}

func (s *Store) ListProducts(ctx context.Context, tenant models.TenantKey) ([]*models.Product, error) {
	out := []*models.Product{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb, _ := tenantBucket(tx, tenant, false)
		if tb == nil {
			return nil
		}
		c := tb.Bucket(subItems).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var sp storedProduct
			if err := json.Unmarshal(v, &sp); err != nil {
				return fmt.Errorf("decode product %x: %w", k, err)
			}
			out = append(out, &models.Product{
				ID:          sp.ID,
				Tenant:      tenant,
				Name:        sp.Name,
				Description: sp.Description,
				Tags:        sp.Tags,
				ImageURL:    sp.ImageURL,
				ProductURL:  sp.ProductURL,
				Embedding:   sp.Embedding,
				CreatedAt:   sp.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, tenant models.TenantKey, id uuid.UUID) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		tb, _ := tenantBucket(tx, tenant, false)
		if tb == nil {
			return nil
		}
		items := tb.Bucket(subItems)
		c := items.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sp storedProduct
			if err := json.Unmarshal(v, &sp); err != nil {
				continue
			}
			if sp.ID != id {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted = true
			return tb.Bucket(subNames).Delete([]byte(models.NameKey(sp.Name)))
		}
		return nil
	})
	return deleted, err
}

func (s *Store) ProductNameExists(ctx context.Context, tenant models.TenantKey, name string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb, _ := tenantBucket(tx, tenant, false)
		if tb != nil {
			exists = tb.Bucket(subNames).Get([]byte(models.NameKey(name))) != nil
		}
		return nil
	})
	return exists, err
}

func (s *Store) GetAccount(ctx context.Context, tenant models.TenantKey) (*models.CreditAccount, error) {
	var acct *models.CreditAccount
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get([]byte(tenant.String()))
		if v == nil {
			return store.ErrNotFound
		}
		var a models.CreditAccount
		if err := json.Unmarshal(v, &a); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		a.Tenant = tenant
		acct = &a
		return nil
	})
	return acct, err
}

func appendJSON(parent *bbolt.Bucket, accountID uuid.UUID, v any) error {
	b, err := parent.CreateBucketIfNotExists(accountID[:])
	if err != nil {
		return err
	}
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(seqKey(seq), data)
}

func (s *Store) SaveAccount(ctx context.Context, acct *models.CreditAccount, entries ...models.LedgerEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("marshal account: %w", err)
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(acct.Tenant.String()), data); err != nil {
			return err
		}
		for _, e := range entries {
			if e.Usage != nil {
				if err := appendJSON(tx.Bucket(bucketUsage), acct.ID, e.Usage); err != nil {
					return fmt.Errorf("append usage record: %w", err)
				}
			}
			if e.Transaction != nil {
				if err := appendJSON(tx.Bucket(bucketTransactions), acct.ID, e.Transaction); err != nil {
					return fmt.Errorf("append transaction: %w", err)
				}
			}
		}
		return nil
	})
}

// walkNewest visits the account's log newest first, honouring offset and
// limit; fn returning false stops the walk.
func (s *Store) walkNewest(bucket []byte, accountID uuid.UUID, fn func(v []byte) (bool, error)) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket).Bucket(accountID[:])
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			more, err := fn(v)
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

func pageOf[T any](s *Store, bucket []byte, accountID uuid.UUID, limit, offset int) ([]*T, error) {
	out := make([]*T, 0)
	skipped := 0
	err := s.walkNewest(bucket, accountID, func(v []byte) (bool, error) {
		if skipped < offset {
			skipped++
			return true, nil
		}
		item := new(T)
		if err := json.Unmarshal(v, item); err != nil {
			return false, err
		}
		out = append(out, item)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *Store) ListUsage(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.UsageRecord, error) {
	return pageOf[models.UsageRecord](s, bucketUsage, accountID, limit, offset)
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	return pageOf[models.Transaction](s, bucketTransactions, accountID, limit, offset)
}

func (s *Store) UsageSummary(ctx context.Context, accountID uuid.UUID, since time.Time) ([]models.UsageSummary, error) {
	byCat := map[string]*models.UsageSummary{}
	err := s.walkNewest(bucketUsage, accountID, func(v []byte) (bool, error) {
		var u models.UsageRecord
		if err := json.Unmarshal(v, &u); err != nil {
			return false, err
		}
		if u.CreatedAt.Before(since) {
			// log is append-only, so everything older follows
			return false, nil
		}
		sum, ok := byCat[u.Category]
		if !ok {
			sum = &models.UsageSummary{Category: u.Category}
			byCat[u.Category] = sum
		}
		sum.Amount += u.Amount
		sum.Tokens += int64(u.Tokens)
		sum.Count++
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.UsageSummary, 0, len(byCat))
	for _, sum := range byCat {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

var _ store.Store = (*Store)(nil)
