package sqlite

import (
	"context"
	"testing"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
)

func testAccrual(id, sessionID, airport string, amount int64) dutydomain.TaxAccrualEntry {
	return dutydomain.TaxAccrualEntry{
		ID:          id,
		SessionID:   sessionID,
		PlanID:      "plan-1",
		Airport:     airport,
		Amount:      amount,
		Description: "departure tax",
		CreatedAt:   testBase,
	}
}

func TestAccrualAppendListDelete(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	entries := []dutydomain.TaxAccrualEntry{
		testAccrual("entry-1", "sess-1", "SBGR", 24_000),
		testAccrual("entry-2", "sess-1", "SBRJ", 25_800),
		testAccrual("entry-3", "sess-2", "SBPA", 1_000),
	}
	for _, entry := range entries {
		if err := store.AppendAccrual(ctx, entry); err != nil {
			t.Fatalf("append %s: %v", entry.ID, err)
		}
	}

	got, err := store.ListAccruals(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list accruals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for sess-1, got %d", len(got))
	}
	var total int64
	for _, entry := range got {
		total += entry.Amount
	}
	if total != 49_800 {
		t.Fatalf("expected 49800 total, got %d", total)
	}

	deleted, err := store.DeleteAccruals(ctx, "sess-1")
	if err != nil {
		t.Fatalf("delete accruals: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	remaining, err := store.ListAccruals(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no entries after delete, got %d", len(remaining))
	}

	// The other session's accrual is untouched.
	other, err := store.ListAccruals(ctx, "sess-2")
	if err != nil {
		t.Fatalf("list sess-2: %v", err)
	}
	if len(other) != 1 || other[0].Amount != 1_000 {
		t.Fatalf("expected sess-2 entry to survive, got %+v", other)
	}
}
