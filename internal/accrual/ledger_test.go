package accrual

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/storage/sqlite"
)

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "accrual.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func newTestLedger(store Store) *Ledger {
	next := 0
	ids := func() (string, error) {
		next++
		return fmt.Sprintf("id-%d", next), nil
	}
	return NewLedger(store, nil, func() time.Time { return testBase }, ids)
}

func testSession(id string) dutydomain.Session {
	return dutydomain.Session{
		ID:           id,
		ControllerID: "ctrl-1",
		Airport:      "SBGR",
		Position:     "TWR",
		StartedAt:    testBase,
	}
}

func TestRecordAndPending(t *testing.T) {
	store := openStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	if err := ledger.Record(ctx, "sess-1", "plan-1", "SBGR", 24_000, "departure tax"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Record(ctx, "sess-1", "plan-1", "sbrj", 25_800, "arrival tax"); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := ledger.Pending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Airport != "SBRJ" {
		t.Fatalf("airport should be uppercased, got %q", entries[1].Airport)
	}
}

func TestRecordRejectsInvalidEntries(t *testing.T) {
	store := openStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	err := ledger.Record(ctx, "", "plan-1", "SBGR", 100, "tax")
	if !apperrors.IsCode(err, apperrors.CodeAccrualEmptySessionID) {
		t.Fatalf("expected %s, got %v", apperrors.CodeAccrualEmptySessionID, err)
	}
	err = ledger.Record(ctx, "sess-1", "plan-1", "SBGR", 0, "tax")
	if !apperrors.IsCode(err, apperrors.CodeAccrualInvalidAmount) {
		t.Fatalf("expected %s, got %v", apperrors.CodeAccrualInvalidAmount, err)
	}
}

func TestPayoutAggregatesSession(t *testing.T) {
	store := openStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	if err := ledger.Record(ctx, "sess-1", "plan-1", "SBGR", 24_000, "departure tax"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Record(ctx, "sess-1", "plan-1", "SBRJ", 25_800, "arrival tax"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Record(ctx, "sess-2", "plan-2", "SBBR", 5_000, "other session"); err != nil {
		t.Fatalf("record: %v", err)
	}

	instrument, err := ledger.Payout(ctx, testSession("sess-1"), "ctrl-1")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if instrument == nil {
		t.Fatal("expected an instrument")
	}
	if instrument.Amount != 49_800 {
		t.Fatalf("expected total 49800, got %d", instrument.Amount)
	}
	if instrument.Kind != PayoutKind || instrument.ReferenceID != "sess-1" || instrument.RecipientID != "ctrl-1" {
		t.Fatalf("unexpected instrument %+v", instrument)
	}
	if len(instrument.Airports) != 2 || instrument.Airports[0] != "SBGR" || instrument.Airports[1] != "SBRJ" {
		t.Fatalf("expected sorted airports, got %v", instrument.Airports)
	}

	// The consumed entries are gone; the other session's are untouched.
	entries, err := ledger.Pending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected consumed accrual, got %d entries", len(entries))
	}
	other, err := ledger.Pending(ctx, "sess-2")
	if err != nil {
		t.Fatalf("pending other: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("other session accrual should survive, got %d entries", len(other))
	}
}

func TestPayoutWithoutAccrual(t *testing.T) {
	store := openStore(t)
	ledger := newTestLedger(store)

	instrument, err := ledger.Payout(context.Background(), testSession("sess-1"), "ctrl-1")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if instrument != nil {
		t.Fatalf("expected no instrument for empty accrual, got %+v", instrument)
	}
}

func TestPayoutIsExactlyOnce(t *testing.T) {
	store := openStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	if err := ledger.Record(ctx, "sess-1", "plan-1", "SBGR", 24_000, "departure tax"); err != nil {
		t.Fatalf("record: %v", err)
	}
	first, err := ledger.Payout(ctx, testSession("sess-1"), "ctrl-1")
	if err != nil {
		t.Fatalf("first payout: %v", err)
	}

	// A retried teardown records nothing new but must not pay twice. Simulate
	// leftover entries from a crash between instrument insert and cleanup.
	if err := ledger.Record(ctx, "sess-1", "plan-1", "SBGR", 24_000, "departure tax"); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	second, err := ledger.Payout(ctx, testSession("sess-1"), "ctrl-1")
	if err != nil {
		t.Fatalf("second payout: %v", err)
	}
	if second.ID != first.ID || second.Amount != first.Amount {
		t.Fatalf("expected the original instrument back, got %+v", second)
	}

	entries, err := ledger.Pending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("leftover entries should be consumed, got %d", len(entries))
	}

	// Storage still refuses a second instrument for the session outright.
	err = store.CreateInstrument(ctx, storage.PayoutInstrument{
		ID:          "dup",
		Kind:        PayoutKind,
		ReferenceID: "sess-1",
		RecipientID: "ctrl-1",
		Amount:      1,
		CreatedAt:   testBase,
	})
	if !errors.Is(err, storage.ErrInstrumentExists) {
		t.Fatalf("expected instrument exists, got %v", err)
	}
}
