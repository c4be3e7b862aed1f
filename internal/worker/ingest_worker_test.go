package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type fakeResolver struct {
	mu       sync.Mutex
	resolved []string
	err      error
	pending  int
	batches  int
}

func (f *fakeResolver) ResolveTransaction(ctx context.Context, id string) (services.ResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return services.ResolveResult{}, f.err
	}
	f.resolved = append(f.resolved, id)
	return services.ResolveResult{TransactionID: id, Status: storage.StatusLinked}, nil
}

func (f *fakeResolver) ResolvePending(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	n := min(limit, f.pending)
	f.pending -= n
	return n, nil
}

func TestIngestWorker_HandleTransactionImported(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "resolved", err: nil},
		{name: "unknown transaction is dropped", err: fmt.Errorf("load: %w", storage.ErrNotFound)},
		{name: "other failure is retried", err: errors.New("database is locked"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewIngestWorker(&fakeResolver{err: tt.err}, 10, time.Minute)
			err := w.HandleTransactionImported(context.Background(), amqp.NewTransactionImportedMessage("tx-1"))
			if (err != nil) != tt.wantErr {
				t.Errorf("HandleTransactionImported() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIngestWorker_ResolvePending(t *testing.T) {
	tests := []struct {
		name        string
		pending     int
		batchSize   int
		wantBatches int
	}{
		{"nothing pending", 0, 10, 1},
		{"one short batch", 4, 10, 1},
		{"several batches", 25, 10, 3},
		{"exact multiple needs an empty batch", 20, 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResolver{pending: tt.pending}
			w := NewIngestWorker(r, tt.batchSize, time.Minute)
			if err := w.ResolvePending(context.Background()); err != nil {
				t.Fatalf("ResolvePending() error = %v", err)
			}
			if r.batches != tt.wantBatches || r.pending != 0 {
				t.Errorf("batches = %d, left = %d; want %d, 0", r.batches, r.pending, tt.wantBatches)
			}
		})
	}
}

type fakeConsumer struct {
	ids []string
}

func (c *fakeConsumer) ConsumeTransactionImported(ctx context.Context, handler amqp.TransactionHandler) error {
	for _, id := range c.ids {
		if err := handler(ctx, amqp.NewTransactionImportedMessage(id)); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestIngestWorker_Run(t *testing.T) {
	r := &fakeResolver{pending: 3}
	w := NewIngestWorker(r, 10, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx, &fakeConsumer{ids: []string{"a", "b"}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.resolved) != 2 || r.pending != 0 {
		t.Errorf("resolved = %v, pending = %d", r.resolved, r.pending)
	}
}

func TestEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Every(ctx, "test", time.Millisecond, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("ignored")
	})
	if !errors.Is(err, context.Canceled) || calls < 3 {
		t.Errorf("Every() = %v after %d calls", err, calls)
	}

	if err := Every(context.Background(), "bad", 0, nil); err == nil {
		t.Error("Every() with zero interval should fail")
	}
}
