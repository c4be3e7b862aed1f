package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/merchant"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func strPtr(s string) *string { return &s }

func tx(id, amount string, date time.Time, counterparty string) core.Transaction {
	t := core.Transaction{
		ID:              id,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: date,
		Description:     "card payment",
	}
	if counterparty != "" {
		t.CounterpartyName = strPtr(counterparty)
	}
	return t
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations() run %d error = %v", i+1, err)
		}
	}
}

func TestSQLiteRepository_Transactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.UpsertCategory(ctx, core.Category{ID: "food", Name: "Food"}); err != nil {
		t.Fatalf("UpsertCategory() error = %v", err)
	}

	in := tx("t1", "12.34", core.NewDate(2024, time.March, 3), "LIDL WARSZAWA")
	in.CategoryID = strPtr("food")
	if err := repo.InsertTransaction(ctx, in); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if err := repo.InsertTransaction(ctx, tx("t2", "5000", core.NewDate(2024, time.March, 25), "")); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if err := repo.InsertTransaction(ctx, tx("t3", "1", core.NewDate(2024, time.April, 1), "")); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}

	got, err := repo.GetTransaction(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !got.Amount.Equal(in.Amount) || !got.TransactionDate.Equal(in.TransactionDate) ||
		got.Counterparty() != "LIDL WARSZAWA" || *got.CategoryID != "food" || got.MerchantID != nil {
		t.Errorf("GetTransaction() = %+v, want %+v", got, in)
	}

	list, err := repo.ListTransactions(ctx, core.NewDate(2024, time.March, 1), core.NewDate(2024, time.March, 31))
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "t1" || list[1].ID != "t2" {
		t.Errorf("ListTransactions() = %+v, want t1, t2", list)
	}

	if _, err := repo.GetTransaction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTransaction(missing) error = %v, want ErrNotFound", err)
	}
	if err := repo.InsertTransaction(ctx, tx("", "1", core.NewDate(2024, time.March, 1), "")); !errors.Is(err, core.ErrEmptyID) {
		t.Errorf("InsertTransaction(no id) error = %v, want ErrEmptyID", err)
	}
}

func TestSQLiteRepository_ResolutionFlow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, id := range []string{"a", "b"} {
		if err := repo.InsertTransaction(ctx, tx(id, "10", core.NewDate(2024, time.May, 1), "LIDL")); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
	}
	pending, err := repo.ListPendingTransactions(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListPendingTransactions() = %v, %v; want 2", pending, err)
	}

	m := merchant.NewRecord("lidl", "LIDL SP. Z O.O.")
	if err := repo.CreateMerchant(ctx, m); err != nil {
		t.Fatalf("CreateMerchant() error = %v", err)
	}
	if err := repo.SetTransactionMerchant(ctx, "a", &m.ID, StatusLinked); err != nil {
		t.Fatalf("SetTransactionMerchant() error = %v", err)
	}
	if err := repo.SetTransactionMerchant(ctx, "b", nil, StatusPersonal); err != nil {
		t.Fatalf("SetTransactionMerchant() error = %v", err)
	}
	if err := repo.SetTransactionMerchant(ctx, "zzz", nil, StatusUnknown); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTransactionMerchant(missing) error = %v, want ErrNotFound", err)
	}

	pending, err = repo.ListPendingTransactions(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Errorf("ListPendingTransactions() = %v, %v; want none", pending, err)
	}

	got, err := repo.GetTransaction(ctx, "a")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.MerchantID == nil || *got.MerchantID != m.ID || got.Merchant != "Lidl" {
		t.Errorf("linked transaction = %+v", got)
	}
}

func TestSQLiteRepository_CreateMerchantConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first := core.MerchantRecord{ID: "m1", Name: "lidl", Aliases: []string{"lidl polska"}}
	if err := repo.CreateMerchant(ctx, first); err != nil {
		t.Fatalf("CreateMerchant() error = %v", err)
	}

	tests := []struct {
		name string
		rec  core.MerchantRecord
	}{
		{"name taken", core.MerchantRecord{ID: "m2", Name: "LIDL"}},
		{"name equals alias", core.MerchantRecord{ID: "m3", Name: "lidl polska"}},
		{"alias equals name", core.MerchantRecord{ID: "m4", Name: "other", Aliases: []string{"lidl"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.CreateMerchant(ctx, tt.rec); !errors.Is(err, ErrConflict) {
				t.Errorf("CreateMerchant() error = %v, want ErrConflict", err)
			}
		})
	}

	merchants, err := repo.ListMerchants(ctx)
	if err != nil {
		t.Fatalf("ListMerchants() error = %v", err)
	}
	if len(merchants) != 1 || !reflect.DeepEqual(merchants[0].Aliases, []string{"lidl polska"}) {
		t.Errorf("ListMerchants() = %+v", merchants)
	}
}

func TestSQLiteRepository_ApplyMergePlans(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.UpsertCategory(ctx, core.Category{ID: "groceries", Name: "Groceries"}); err != nil {
		t.Fatalf("UpsertCategory() error = %v", err)
	}
	records := []core.MerchantRecord{
		{ID: "a", Name: "lidl sp z o o", Aliases: []string{"lidl sp. z o.o."}},
		{ID: "b", Name: "lidl", IconURL: "https://cdn.example/lidl.png"},
		{ID: "c", Name: "lidl polska", CategoryID: strPtr("groceries")},
		{ID: "d", Name: "biedronka"},
	}
	for _, m := range records {
		if err := repo.CreateMerchant(ctx, m); err != nil {
			t.Fatalf("CreateMerchant(%s) error = %v", m.ID, err)
		}
	}
	for i, mid := range []string{"a", "b", "c", "d"} {
		id := string(rune('1' + i))
		in := tx(id, "10", core.NewDate(2024, time.June, 1), "LIDL")
		in.MerchantID = strPtr(mid)
		if err := repo.InsertTransaction(ctx, in); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
	}

	resolver := merchant.NewResolver()
	before, err := repo.ListMerchants(ctx)
	if err != nil {
		t.Fatalf("ListMerchants() error = %v", err)
	}
	plans := resolver.PlanDeduplication(before)
	if len(plans) != 1 || plans[0].SurvivorID != "c" {
		t.Fatalf("PlanDeduplication() = %+v, want one plan with survivor c", plans)
	}
	if err := repo.ApplyMergePlans(ctx, plans); err != nil {
		t.Fatalf("ApplyMergePlans() error = %v", err)
	}

	after, err := repo.ListMerchants(ctx)
	if err != nil {
		t.Fatalf("ListMerchants() error = %v", err)
	}
	if len(after) != 2 || after[0].ID != "c" || after[1].ID != "d" {
		t.Fatalf("ListMerchants() after merge = %+v", after)
	}
	wantAliases := map[string]bool{"lidl sp. z o.o.": true, "lidl sp z o o": true, "lidl": true}
	if len(after[0].Aliases) != len(wantAliases) {
		t.Errorf("survivor aliases = %v", after[0].Aliases)
	}
	for _, a := range after[0].Aliases {
		if !wantAliases[a] {
			t.Errorf("unexpected survivor alias %q", a)
		}
	}

	txs, err := repo.ListTransactions(ctx, core.NewDate(2024, time.June, 1), core.NewDate(2024, time.June, 30))
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	for _, got := range txs {
		want := "c"
		if got.ID == "4" {
			want = "d"
		}
		if got.MerchantID == nil || *got.MerchantID != want {
			t.Errorf("transaction %s merchant = %v, want %s", got.ID, got.MerchantID, want)
		}
	}

	if again := resolver.PlanDeduplication(after); len(again) != 0 {
		t.Errorf("second PlanDeduplication() = %+v, want none", again)
	}
}

func TestSQLiteRepository_ApplyMergePlansRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.CreateMerchant(ctx, core.MerchantRecord{ID: "a", Name: "zara"}); err != nil {
		t.Fatalf("CreateMerchant() error = %v", err)
	}

	plans := []merchant.MergePlan{
		{SurvivorID: "missing", DuplicateIDs: []string{"a"}},
	}
	if err := repo.ApplyMergePlans(ctx, plans); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ApplyMergePlans() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetMerchant(ctx, "a"); err != nil {
		t.Errorf("GetMerchant(a) after rollback error = %v", err)
	}
}

func TestSQLiteRepository_Categories(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	budget := decimal.RequireFromString("500.50")
	if err := repo.UpsertCategory(ctx, core.Category{ID: "food", Name: "Food", Budget: &budget}); err != nil {
		t.Fatalf("UpsertCategory() error = %v", err)
	}
	if err := repo.UpsertCategory(ctx, core.Category{ID: "food", Name: "Groceries", Budget: &budget}); err != nil {
		t.Fatalf("UpsertCategory() update error = %v", err)
	}
	if err := repo.UpsertCategory(ctx, core.Category{ID: "fun", Name: "Fun"}); err != nil {
		t.Fatalf("UpsertCategory() error = %v", err)
	}

	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("ListCategories() = %+v, want 2", cats)
	}
	if cats[0].ID != "fun" || cats[0].Budget != nil {
		t.Errorf("cats[0] = %+v", cats[0])
	}
	if cats[1].Name != "Groceries" || cats[1].Budget == nil || !cats[1].Budget.Equal(budget) {
		t.Errorf("cats[1] = %+v", cats[1])
	}
}
