package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID               string
	Amount           string
	IsIncome         bool
	IsIgnored        bool
	TransactionDate  string
	CategoryID       sql.NullString
	CounterpartyName sql.NullString
	Description      string
	MerchantID       sql.NullString
	MerchantName     string
	ResolutionStatus string
}

type MerchantRow struct {
	ID          string
	Name        string
	DisplayName string
	CategoryID  sql.NullString
	IconURL     string
}

type AliasRow struct {
	Alias      string
	MerchantID string
}

type CategoryRow struct {
	ID     string
	Name   string
	Budget sql.NullString
}

const createTransaction = `
INSERT INTO transactions (
    id, amount, is_income, is_ignored, transaction_date,
    category_id, counterparty_name, description, merchant_id, resolution_status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateTransactionParams struct {
	ID               string
	Amount           string
	IsIncome         bool
	IsIgnored        bool
	TransactionDate  string
	CategoryID       sql.NullString
	CounterpartyName sql.NullString
	Description      string
	MerchantID       sql.NullString
	ResolutionStatus string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		arg.ID,
		arg.Amount,
		arg.IsIncome,
		arg.IsIgnored,
		arg.TransactionDate,
		arg.CategoryID,
		arg.CounterpartyName,
		arg.Description,
		arg.MerchantID,
		arg.ResolutionStatus,
	)
	return err
}

const transactionColumns = `
SELECT t.id, t.amount, t.is_income, t.is_ignored, t.transaction_date,
       t.category_id, t.counterparty_name, t.description, t.merchant_id,
       COALESCE(NULLIF(m.display_name, ''), m.name, '') AS merchant_name,
       t.resolution_status
FROM transactions t
LEFT JOIN merchants m ON m.id = t.merchant_id
`

const getTransaction = transactionColumns + `WHERE t.id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	var i TransactionRow
	err := scanTransaction(row, &i)
	return i, err
}

const listTransactionsBetween = transactionColumns + `
WHERE t.transaction_date >= ? AND t.transaction_date <= ?
ORDER BY t.transaction_date, t.id
`

func (q *Queries) ListTransactionsBetween(ctx context.Context, from, to string) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactionsBetween, from, to)
}

const listPendingTransactions = transactionColumns + `
WHERE t.resolution_status = 'pending'
ORDER BY t.created_at, t.rowid
LIMIT ?
`

func (q *Queries) ListPendingTransactions(ctx context.Context, limit int64) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listPendingTransactions, limit)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...interface{}) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := scanTransaction(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner, i *TransactionRow) error {
	return s.Scan(
		&i.ID,
		&i.Amount,
		&i.IsIncome,
		&i.IsIgnored,
		&i.TransactionDate,
		&i.CategoryID,
		&i.CounterpartyName,
		&i.Description,
		&i.MerchantID,
		&i.MerchantName,
		&i.ResolutionStatus,
	)
}

const updateTransactionResolution = `
UPDATE transactions SET merchant_id = ?, resolution_status = ? WHERE id = ?
`

type UpdateTransactionResolutionParams struct {
	MerchantID       sql.NullString
	ResolutionStatus string
	ID               string
}

func (q *Queries) UpdateTransactionResolution(ctx context.Context, arg UpdateTransactionResolutionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTransactionResolution, arg.MerchantID, arg.ResolutionStatus, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const moveTransactions = `UPDATE transactions SET merchant_id = ? WHERE merchant_id = ?`

func (q *Queries) MoveTransactions(ctx context.Context, toMerchantID, fromMerchantID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, moveTransactions, toMerchantID, fromMerchantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createMerchant = `
INSERT INTO merchants (id, name, display_name, category_id, icon_url) VALUES (?, ?, ?, ?, ?)
`

type CreateMerchantParams struct {
	ID          string
	Name        string
	DisplayName string
	CategoryID  sql.NullString
	IconURL     string
}

func (q *Queries) CreateMerchant(ctx context.Context, arg CreateMerchantParams) error {
	_, err := q.db.ExecContext(ctx, createMerchant, arg.ID, arg.Name, arg.DisplayName, arg.CategoryID, arg.IconURL)
	return err
}

const getMerchant = `SELECT id, name, display_name, category_id, icon_url FROM merchants WHERE id = ?`

func (q *Queries) GetMerchant(ctx context.Context, id string) (MerchantRow, error) {
	row := q.db.QueryRowContext(ctx, getMerchant, id)
	var i MerchantRow
	err := row.Scan(&i.ID, &i.Name, &i.DisplayName, &i.CategoryID, &i.IconURL)
	return i, err
}

const listMerchants = `
SELECT id, name, display_name, category_id, icon_url FROM merchants ORDER BY created_at, rowid
`

func (q *Queries) ListMerchants(ctx context.Context) ([]MerchantRow, error) {
	rows, err := q.db.QueryContext(ctx, listMerchants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MerchantRow
	for rows.Next() {
		var i MerchantRow
		if err := rows.Scan(&i.ID, &i.Name, &i.DisplayName, &i.CategoryID, &i.IconURL); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteMerchant = `DELETE FROM merchants WHERE id = ?`

func (q *Queries) DeleteMerchant(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteMerchant, id)
	return err
}

const nameOrAliasTaken = `
SELECT EXISTS (SELECT 1 FROM merchants WHERE name = ?1)
    OR EXISTS (SELECT 1 FROM merchant_aliases WHERE alias = ?1)
`

func (q *Queries) NameOrAliasTaken(ctx context.Context, value string) (bool, error) {
	row := q.db.QueryRowContext(ctx, nameOrAliasTaken, value)
	var taken bool
	err := row.Scan(&taken)
	return taken, err
}

const createMerchantAlias = `
INSERT INTO merchant_aliases (alias, merchant_id) VALUES (?, ?)
ON CONFLICT (alias) DO NOTHING
`

func (q *Queries) CreateMerchantAlias(ctx context.Context, alias, merchantID string) error {
	_, err := q.db.ExecContext(ctx, createMerchantAlias, alias, merchantID)
	return err
}

const listMerchantAliases = `SELECT alias, merchant_id FROM merchant_aliases ORDER BY rowid`

func (q *Queries) ListMerchantAliases(ctx context.Context) ([]AliasRow, error) {
	rows, err := q.db.QueryContext(ctx, listMerchantAliases)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AliasRow
	for rows.Next() {
		var i AliasRow
		if err := rows.Scan(&i.Alias, &i.MerchantID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const moveMerchantAliases = `UPDATE merchant_aliases SET merchant_id = ? WHERE merchant_id = ?`

func (q *Queries) MoveMerchantAliases(ctx context.Context, toMerchantID, fromMerchantID string) error {
	_, err := q.db.ExecContext(ctx, moveMerchantAliases, toMerchantID, fromMerchantID)
	return err
}

const upsertCategory = `
INSERT INTO categories (id, name, budget) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, budget = excluded.budget
`

type UpsertCategoryParams struct {
	ID     string
	Name   string
	Budget sql.NullString
}

func (q *Queries) UpsertCategory(ctx context.Context, arg UpsertCategoryParams) error {
	_, err := q.db.ExecContext(ctx, upsertCategory, arg.ID, arg.Name, arg.Budget)
	return err
}

const listCategories = `SELECT id, name, budget FROM categories ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var i CategoryRow
		if err := rows.Scan(&i.ID, &i.Name, &i.Budget); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
