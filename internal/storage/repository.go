package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/merchant"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a merchant name or alias is already used
	// by another record.
	ErrConflict = errors.New("merchant name or alias already exists")
)

// ResolutionStatus records what ingestion decided for a transaction's
// counterparty.
type ResolutionStatus string

const (
	StatusPending  ResolutionStatus = "pending"
	StatusLinked   ResolutionStatus = "linked"
	StatusPersonal ResolutionStatus = "personal"
	StatusUnknown  ResolutionStatus = "unknown"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool is opened
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}
	status := StatusPending
	if t.MerchantID != nil {
		status = StatusLinked
	}
	err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:               t.ID,
		Amount:           t.Amount.String(),
		IsIncome:         t.IsIncome,
		IsIgnored:        t.IsIgnored,
		TransactionDate:  t.TransactionDate.Format(dateLayout),
		CategoryID:       nullString(t.CategoryID),
		CounterpartyName: nullString(t.CounterpartyName),
		Description:      t.Description,
		MerchantID:       nullString(t.MerchantID),
		ResolutionStatus: string(status),
	})
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return toTransaction(row)
}

// ListTransactions returns the transactions dated within [from, to], both
// inclusive, ordered by date.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return toTransactions(rows)
}

// ListPendingTransactions returns up to limit transactions whose
// counterparty has not been through merchant resolution yet.
func (r *SQLiteRepository) ListPendingTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.queries.ListPendingTransactions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return toTransactions(rows)
}

// SetTransactionMerchant records the outcome of merchant resolution. A nil
// merchantID leaves the transaction unlinked.
func (r *SQLiteRepository) SetTransactionMerchant(ctx context.Context, id string, merchantID *string, status ResolutionStatus) error {
	n, err := r.queries.UpdateTransactionResolution(ctx, UpdateTransactionResolutionParams{
		MerchantID:       nullString(merchantID),
		ResolutionStatus: string(status),
		ID:               id,
	})
	if err != nil {
		return fmt.Errorf("update transaction merchant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMerchants returns every merchant with its aliases, in creation order.
func (r *SQLiteRepository) ListMerchants(ctx context.Context) ([]core.MerchantRecord, error) {
	rows, err := r.queries.ListMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	aliases, err := r.queries.ListMerchantAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merchant aliases: %w", err)
	}
	byMerchant := make(map[string][]string)
	for _, a := range aliases {
		byMerchant[a.MerchantID] = append(byMerchant[a.MerchantID], a.Alias)
	}

	out := make([]core.MerchantRecord, 0, len(rows))
	for _, m := range rows {
		rec := toMerchant(m)
		rec.Aliases = byMerchant[m.ID]
		out = append(out, rec)
	}
	return out, nil
}

func (r *SQLiteRepository) GetMerchant(ctx context.Context, id string) (core.MerchantRecord, error) {
	row, err := r.queries.GetMerchant(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MerchantRecord{}, fmt.Errorf("merchant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.MerchantRecord{}, fmt.Errorf("get merchant: %w", err)
	}
	return toMerchant(row), nil
}

// CreateMerchant stores a new merchant and its aliases in one transaction.
// It fails with ErrConflict when the name or any alias is already taken by
// a name or alias of another merchant.
func (r *SQLiteRepository) CreateMerchant(ctx context.Context, m core.MerchantRecord) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validate merchant: %w", err)
	}
	return r.inTx(ctx, func(q *Queries) error {
		for _, v := range append([]string{m.Name}, m.Aliases...) {
			taken, err := q.NameOrAliasTaken(ctx, strings.ToLower(v))
			if err != nil {
				return fmt.Errorf("check merchant name: %w", err)
			}
			if taken {
				return fmt.Errorf("%q: %w", v, ErrConflict)
			}
		}
		err := q.CreateMerchant(ctx, CreateMerchantParams{
			ID:          m.ID,
			Name:        strings.ToLower(m.Name),
			DisplayName: m.DisplayName,
			CategoryID:  nullString(m.CategoryID),
			IconURL:     m.IconURL,
		})
		if err != nil {
			return fmt.Errorf("create merchant: %w", err)
		}
		for _, a := range m.Aliases {
			if err := q.CreateMerchantAlias(ctx, strings.ToLower(a), m.ID); err != nil {
				return fmt.Errorf("create merchant alias: %w", err)
			}
		}
		return nil
	})
}

// ApplyMergePlans executes deduplication plans in a single SQL transaction:
// the duplicates' aliases and transactions move to the survivor, their names
// become survivor aliases and the duplicates are deleted. Either every plan
// is applied or none is.
func (r *SQLiteRepository) ApplyMergePlans(ctx context.Context, plans []merchant.MergePlan) error {
	if len(plans) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(q *Queries) error {
		for _, p := range plans {
			if _, err := q.GetMerchant(ctx, p.SurvivorID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("survivor %s: %w", p.SurvivorID, ErrNotFound)
				}
				return fmt.Errorf("get survivor: %w", err)
			}
			for _, dup := range p.DuplicateIDs {
				if err := q.MoveMerchantAliases(ctx, p.SurvivorID, dup); err != nil {
					return fmt.Errorf("move aliases of %s: %w", dup, err)
				}
				moved, err := q.MoveTransactions(ctx, p.SurvivorID, dup)
				if err != nil {
					return fmt.Errorf("move transactions of %s: %w", dup, err)
				}
				if err := q.DeleteMerchant(ctx, dup); err != nil {
					return fmt.Errorf("delete merchant %s: %w", dup, err)
				}
				slog.DebugContext(ctx, "Merged merchant",
					"duplicate_id", dup,
					"survivor_id", p.SurvivorID,
					"transactions_moved", moved)
			}
			for _, a := range p.Aliases {
				if err := q.CreateMerchantAlias(ctx, strings.ToLower(a), p.SurvivorID); err != nil {
					return fmt.Errorf("create alias %q: %w", a, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply merge plans: %w", err)
	}
	slog.InfoContext(ctx, "Merge plans applied", "plans", len(plans))
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, c := range rows {
		cat := core.Category{ID: c.ID, Name: c.Name}
		if c.Budget.Valid {
			b, err := decimal.NewFromString(c.Budget.String)
			if err != nil {
				return nil, fmt.Errorf("category %s budget: %w", c.ID, err)
			}
			cat.Budget = &b
		}
		out = append(out, cat)
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate category: %w", err)
	}
	var budget sql.NullString
	if c.Budget != nil {
		budget = sql.NullString{String: c.Budget.String(), Valid: true}
	}
	if err := r.queries.UpsertCategory(ctx, UpsertCategoryParams{ID: c.ID, Name: c.Name, Budget: budget}); err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toTransactions(rows []TransactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toTransaction(row TransactionRow) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s amount: %w", row.ID, err)
	}
	date, err := time.Parse(dateLayout, row.TransactionDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date: %w", row.ID, err)
	}
	return core.Transaction{
		ID:               row.ID,
		Amount:           amount,
		IsIncome:         row.IsIncome,
		IsIgnored:        row.IsIgnored,
		TransactionDate:  date,
		CategoryID:       stringPtr(row.CategoryID),
		CounterpartyName: stringPtr(row.CounterpartyName),
		Description:      row.Description,
		MerchantID:       stringPtr(row.MerchantID),
		Merchant:         row.MerchantName,
	}, nil
}

func toMerchant(row MerchantRow) core.MerchantRecord {
	return core.MerchantRecord{
		ID:          row.ID,
		Name:        row.Name,
		DisplayName: row.DisplayName,
		CategoryID:  stringPtr(row.CategoryID),
		IconURL:     row.IconURL,
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
