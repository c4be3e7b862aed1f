package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/merchant"
	"fintrack/internal/storage"
)

// Storage ports, satisfied by *storage.SQLiteRepository.
type (
	TransactionStore interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
		ListPendingTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
		SetTransactionMerchant(ctx context.Context, id string, merchantID *string, status storage.ResolutionStatus) error
	}

	MerchantStore interface {
		ListMerchants(ctx context.Context) ([]core.MerchantRecord, error)
		CreateMerchant(ctx context.Context, m core.MerchantRecord) error
		ApplyMergePlans(ctx context.Context, plans []merchant.MergePlan) error
	}

	CategoryStore interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		UpsertCategory(ctx context.Context, c core.Category) error
	}

	// MergePublisher announces executed merge plans, satisfied by
	// *amqp.Client.
	MergePublisher interface {
		PublishMerchantsMerged(ctx context.Context, brand, survivorID string, deletedIDs []string) error
	}
)

var (
	_ TransactionStore = (*storage.SQLiteRepository)(nil)
	_ MerchantStore    = (*storage.SQLiteRepository)(nil)
	_ CategoryStore    = (*storage.SQLiteRepository)(nil)
)
