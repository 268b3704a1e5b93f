package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
)

func testSaga(id string) storage.TransferSagaRecord {
	return storage.TransferSagaRecord{
		ID:          id,
		FromAccount: "acct-a",
		ToAccount:   "acct-b",
		Amount:      10_000,
		Memo:        "peer transfer",
		State:       storage.TransferSagaPending,
		CreatedAt:   testBase,
		UpdatedAt:   testBase,
	}
}

func TestTransferSagaLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateTransferSaga(ctx, testSaga("saga-1")); err != nil {
		t.Fatalf("create saga: %v", err)
	}

	at := testBase.Add(time.Second)
	if err := store.UpdateTransferSagaState(ctx, "saga-1", storage.TransferSagaPending, storage.TransferSagaDebited, "", at); err != nil {
		t.Fatalf("pending -> debited: %v", err)
	}

	// A from-state that no longer matches is stale.
	err := store.UpdateTransferSagaState(ctx, "saga-1", storage.TransferSagaPending, storage.TransferSagaFailed, "late", at)
	if !errors.Is(err, storage.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}

	if err := store.UpdateTransferSagaState(ctx, "saga-1", storage.TransferSagaDebited, storage.TransferSagaCompleted, "", at.Add(time.Second)); err != nil {
		t.Fatalf("debited -> completed: %v", err)
	}

	got, err := store.GetTransferSaga(ctx, "saga-1")
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if got.State != storage.TransferSagaCompleted {
		t.Fatalf("expected completed, got %s", got.State)
	}
}

func TestListTransferSagasByState(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, id := range []string{"saga-1", "saga-2"} {
		if err := store.CreateTransferSaga(ctx, testSaga(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.UpdateTransferSagaState(ctx, "saga-2", storage.TransferSagaPending, storage.TransferSagaDebited, "", testBase.Add(time.Second)); err != nil {
		t.Fatalf("advance saga-2: %v", err)
	}
	if err := store.UpdateTransferSagaState(ctx, "saga-2", storage.TransferSagaDebited, storage.TransferSagaReversalPending, "backend down", testBase.Add(2*time.Second)); err != nil {
		t.Fatalf("advance saga-2 to reversal: %v", err)
	}

	stuck, err := store.ListTransferSagasByState(ctx, storage.TransferSagaReversalPending, 10)
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "saga-2" {
		t.Fatalf("expected saga-2 stuck in reversal, got %+v", stuck)
	}
	if stuck[0].LastError != "backend down" {
		t.Fatalf("expected last error preserved, got %q", stuck[0].LastError)
	}
}
