package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/merchant"
	"fintrack/internal/storage"
)

// BrandExtraction is the cached result of classifying one counterparty.
type BrandExtraction struct {
	Brand string
	Kind  merchant.Kind
}

// ResolveResult describes what resolution did to one counterparty.
type ResolveResult struct {
	TransactionID string
	Counterparty  string
	Brand         string
	Kind          string
	MerchantID    *string
	MerchantName  string
	Created       bool
	Status        storage.ResolutionStatus
}

// IngestionService links transactions to merchant records. New brands get a
// fresh record; personal transfers and unrecognisable text stay unlinked.
type IngestionService struct {
	transactions TransactionStore
	merchants    MerchantStore
	resolver     *merchant.Resolver
	brands       cache.Cache[BrandExtraction]

	// mu serialises the list-then-create sequence so concurrent
	// resolutions of a new brand create one record.
	mu sync.Mutex
}

// NewIngestionService wires the service. brands may be nil to disable
// caching of brand extraction.
func NewIngestionService(
	transactions TransactionStore,
	merchants MerchantStore,
	resolver *merchant.Resolver,
	brands cache.Cache[BrandExtraction],
) *IngestionService {
	return &IngestionService{
		transactions: transactions,
		merchants:    merchants,
		resolver:     resolver,
		brands:       brands,
	}
}

// classify keys the cache on case-preserved text: name detection depends
// on capitalisation.
func (s *IngestionService) classify(counterparty string) BrandExtraction {
	key := strings.TrimSpace(counterparty)
	if s.brands != nil {
		if e, ok := s.brands.Get(key); ok {
			return e
		}
	}
	brand, kind := s.resolver.Classify(counterparty)
	e := BrandExtraction{Brand: brand, Kind: kind}
	if s.brands != nil {
		s.brands.Set(key, e)
	}
	return e
}

// Preview resolves a counterparty against the current merchants without
// writing anything.
func (s *IngestionService) Preview(ctx context.Context, counterparty string) (ResolveResult, error) {
	e := s.classify(counterparty)
	res := ResolveResult{Counterparty: counterparty, Brand: e.Brand, Kind: e.Kind.String()}
	if e.Kind != merchant.KindMerchant {
		return res, nil
	}
	merchants, err := s.merchants.ListMerchants(ctx)
	if err != nil {
		return res, fmt.Errorf("list merchants: %w", err)
	}
	if m, ok := s.resolver.FindBestMatch(e.Brand, merchants); ok {
		res.MerchantID = &m.ID
		res.MerchantName = displayName(m)
	}
	return res, nil
}

// ResolveTransaction resolves the counterparty of one stored transaction
// and records the outcome. Already linked transactions are left alone.
func (s *IngestionService) ResolveTransaction(ctx context.Context, id string) (ResolveResult, error) {
	tx, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("load transaction: %w", err)
	}
	res := ResolveResult{TransactionID: id, Counterparty: tx.Counterparty()}
	if tx.MerchantID != nil {
		res.Kind = merchant.KindMerchant.String()
		res.MerchantID = tx.MerchantID
		res.MerchantName = tx.Merchant
		res.Status = storage.StatusLinked
		return res, nil
	}

	e := s.classify(tx.Counterparty())
	res.Brand = e.Brand
	res.Kind = e.Kind.String()

	switch e.Kind {
	case merchant.KindMerchant:
		m, created, err := s.findOrCreate(ctx, e.Brand, tx.Counterparty())
		if err != nil {
			return res, err
		}
		res.MerchantID = &m.ID
		res.MerchantName = displayName(m)
		res.Created = created
		res.Status = storage.StatusLinked
	case merchant.KindPersonal:
		res.Status = storage.StatusPersonal
	default:
		res.Status = storage.StatusUnknown
	}

	if err := s.transactions.SetTransactionMerchant(ctx, id, res.MerchantID, res.Status); err != nil {
		return res, fmt.Errorf("link transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction resolved",
		"transaction_id", id,
		"brand", res.Brand,
		"status", res.Status,
		"created", res.Created)
	return res, nil
}

func (s *IngestionService) findOrCreate(ctx context.Context, brand, counterparty string) (core.MerchantRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merchants, err := s.merchants.ListMerchants(ctx)
	if err != nil {
		return core.MerchantRecord{}, false, fmt.Errorf("list merchants: %w", err)
	}
	if m, ok := s.resolver.FindBestMatch(brand, merchants); ok {
		return m, false, nil
	}

	rec := merchant.NewRecord(brand, counterparty)
	err = s.merchants.CreateMerchant(ctx, rec)
	if err == nil {
		slog.InfoContext(ctx, "Merchant created", "merchant_id", rec.ID, "brand", rec.Name)
		return rec, true, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return core.MerchantRecord{}, false, fmt.Errorf("create merchant: %w", err)
	}

	// Another process created the brand or an alias clashed; match again
	// against the fresh snapshot.
	merchants, lerr := s.merchants.ListMerchants(ctx)
	if lerr != nil {
		return core.MerchantRecord{}, false, fmt.Errorf("list merchants: %w", lerr)
	}
	for _, m := range merchants {
		if m.Name == rec.Name {
			return m, false, nil
		}
	}
	if m, ok := s.resolver.FindBestMatch(brand, merchants); ok {
		return m, false, nil
	}
	return core.MerchantRecord{}, false, fmt.Errorf("create merchant %q: %w", rec.Name, err)
}

// ResolvePending resolves up to limit transactions that have not been
// through resolution yet. Failures are logged and do not stop the batch.
func (s *IngestionService) ResolvePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.transactions.ListPendingTransactions(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	resolved := 0
	var errs []error
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if _, err := s.ResolveTransaction(ctx, tx.ID); err != nil {
			slog.WarnContext(ctx, "Failed to resolve pending transaction",
				"transaction_id", tx.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

func displayName(m core.MerchantRecord) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}
