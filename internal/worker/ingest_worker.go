package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// TransactionResolver is satisfied by *services.IngestionService.
type TransactionResolver interface {
	ResolveTransaction(ctx context.Context, id string) (services.ResolveResult, error)
	ResolvePending(ctx context.Context, limit int) (int, error)
}

// Consumer is satisfied by *amqp.Client.
type Consumer interface {
	ConsumeTransactionImported(ctx context.Context, handler amqp.TransactionHandler) error
}

// IngestWorker resolves merchants for imported transactions, driven by
// queue messages and by a periodic sweep that catches lost messages.
type IngestWorker struct {
	resolver      TransactionResolver
	batchSize     int
	sweepInterval time.Duration
}

func NewIngestWorker(resolver TransactionResolver, batchSize int, sweepInterval time.Duration) *IngestWorker {
	return &IngestWorker{
		resolver:      resolver,
		batchSize:     batchSize,
		sweepInterval: sweepInterval,
	}
}

// HandleTransactionImported resolves the transaction named by msg. A
// transaction that no longer exists is acknowledged and dropped; any other
// failure is returned so the message is requeued.
func (w *IngestWorker) HandleTransactionImported(ctx context.Context, msg *amqp.TransactionImportedMessage) error {
	res, err := w.resolver.ResolveTransaction(ctx, msg.TransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Dropping message for unknown transaction",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve transaction %s: %w", msg.TransactionID, err)
	}

	slog.InfoContext(ctx, "Transaction resolved",
		"transaction_id", msg.TransactionID,
		"status", res.Status,
		"brand", res.Brand,
		"created", res.Created)
	return nil
}

// ResolvePending sweeps transactions still waiting for resolution. It
// keeps taking batches until a batch comes back short.
func (w *IngestWorker) ResolvePending(ctx context.Context) error {
	total := 0
	for {
		n, err := w.resolver.ResolvePending(ctx, w.batchSize)
		total += n
		if err != nil {
			return fmt.Errorf("resolve pending: %w", err)
		}
		if n == 0 || n < w.batchSize {
			break
		}
	}
	if total > 0 {
		slog.InfoContext(ctx, "Pending transactions resolved", "count", total)
	}
	return nil
}

// Run consumes messages from consumer, when not nil, and sweeps pending
// transactions every sweep interval until ctx is done.
func (w *IngestWorker) Run(ctx context.Context, consumer Consumer) error {
	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeTransactionImported(gctx, w.HandleTransactionImported)
		})
	}
	g.Go(func() error {
		return Every(gctx, "pending-sweep", w.sweepInterval, w.ResolvePending)
	})

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// Every runs fn immediately and then once per interval until ctx is done.
// Errors from fn are logged and do not stop the loop.
func Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %s", name, interval)
	}
	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Periodic task failed", "task", name, "error", err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Periodic task stopped", "task", name)
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
