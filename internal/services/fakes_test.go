package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/merchant"
	"fintrack/internal/storage"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// fakeStore is an in-memory stand-in for the SQLite repository.
type fakeStore struct {
	mu         sync.Mutex
	txs        []core.Transaction
	status     map[string]storage.ResolutionStatus
	merchants  []core.MerchantRecord
	categories []core.Category
	applied    [][]merchant.MergePlan
	setCalls   int

	// onCreate, when set, replaces the default CreateMerchant behaviour.
	onCreate func(m core.MerchantRecord) error
	listErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{status: make(map[string]storage.ResolutionStatus)}
}

func (f *fakeStore) addTx(tx core.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}

func (f *fakeStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
}

func (f *fakeStore) ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	from, to = core.DateOf(from), core.DateOf(to)
	var out []core.Transaction
	for _, tx := range f.txs {
		d := core.DateOf(tx.TransactionDate)
		if !d.Before(from) && !d.After(to) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionDate.Before(out[j].TransactionDate)
	})
	return out, nil
}

func (f *fakeStore) ListPendingTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Transaction
	for _, tx := range f.txs {
		if len(out) == limit {
			break
		}
		if s, ok := f.status[tx.ID]; !ok || s == storage.StatusPending {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) SetTransactionMerchant(ctx context.Context, id string, merchantID *string, status storage.ResolutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	for i := range f.txs {
		if f.txs[i].ID == id {
			f.txs[i].MerchantID = merchantID
			f.status[id] = status
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
}

func (f *fakeStore) ListMerchants(ctx context.Context) ([]core.MerchantRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.MerchantRecord(nil), f.merchants...), nil
}

func (f *fakeStore) CreateMerchant(ctx context.Context, m core.MerchantRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCreate != nil {
		return f.onCreate(m)
	}
	for _, existing := range f.merchants {
		if strings.EqualFold(existing.Name, m.Name) {
			return fmt.Errorf("merchant %q: %w", m.Name, storage.ErrConflict)
		}
	}
	f.merchants = append(f.merchants, m)
	return nil
}

func (f *fakeStore) ApplyMergePlans(ctx context.Context, plans []merchant.MergePlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, plans)
	f.merchants = merchant.ApplyPlans(f.merchants, plans)
	return nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Category(nil), f.categories...), nil
}

func (f *fakeStore) UpsertCategory(ctx context.Context, c core.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.categories {
		if f.categories[i].ID == c.ID {
			f.categories[i] = c
			return nil
		}
	}
	f.categories = append(f.categories, c)
	return nil
}

type publishedMerge struct {
	brand      string
	survivorID string
	deletedIDs []string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedMerge
	err  error
}

func (p *fakePublisher) PublishMerchantsMerged(ctx context.Context, brand, survivorID string, deletedIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedMerge{brand, survivorID, deletedIDs})
	return nil
}

func txn(id, amount string, date time.Time, counterparty string) core.Transaction {
	tx := core.Transaction{
		ID:              id,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: date,
	}
	if counterparty != "" {
		tx.CounterpartyName = strPtr(counterparty)
	}
	return tx
}

func inCategory(tx core.Transaction, categoryID string) core.Transaction {
	tx.CategoryID = strPtr(categoryID)
	return tx
}
