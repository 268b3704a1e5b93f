package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/storage"
)

func testSession(id, controllerID, airport, position string) dutydomain.Session {
	return dutydomain.Session{
		ID:           id,
		ControllerID: controllerID,
		Airport:      airport,
		Position:     position,
		StartedAt:    testBase,
	}
}

func TestCreateGetSessionRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ControllerID != "ctrl-1" || got.Airport != "SBGR" || got.Position != "TWR" {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.Active() {
		t.Fatal("expected active session")
	}
}

func TestCreateSessionPositionTaken(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := store.CreateSession(ctx, testSession("sess-2", "ctrl-2", "SBGR", "TWR"))
	if !errors.Is(err, storage.ErrPositionTaken) {
		t.Fatalf("expected position taken, got %v", err)
	}

	// A different position at the same airport is fine.
	if err := store.CreateSession(ctx, testSession("sess-3", "ctrl-3", "SBGR", "GND")); err != nil {
		t.Fatalf("create session at free position: %v", err)
	}
}

func TestCreateSessionControllerAlreadyInService(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := store.CreateSession(ctx, testSession("sess-2", "ctrl-1", "SBRJ", "APP"))
	if !errors.Is(err, storage.ErrAlreadyInService) {
		t.Fatalf("expected already in service, got %v", err)
	}
}

func TestEndSessionFreesPositionAndController(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	endedAt := testBase.Add(2 * time.Hour)
	if err := store.EndSession(ctx, "sess-1", endedAt); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Ending twice is stale.
	if err := store.EndSession(ctx, "sess-1", endedAt); !errors.Is(err, storage.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}

	// Both uniqueness scopes reopen once the session ends.
	if err := store.CreateSession(ctx, testSession("sess-2", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session after end: %v", err)
	}

	if _, err := store.GetActiveSessionByController(ctx, "ctrl-1"); err != nil {
		t.Fatalf("expected new active session, got %v", err)
	}
	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get ended session: %v", err)
	}
	if got.Active() || got.EndedAt == nil || !got.EndedAt.Equal(endedAt) {
		t.Fatalf("expected ended session, got %+v", got)
	}
}

func TestGetActiveSessionByPosition(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1", "ctrl-1", "SBGR", "TWR")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.GetActiveSessionByPosition(ctx, "sbgr", "twr")
	if err != nil {
		t.Fatalf("get active by position: %v", err)
	}
	if got.ID != "sess-1" {
		t.Fatalf("unexpected session %q", got.ID)
	}

	if _, err := store.GetActiveSessionByPosition(ctx, "SBRJ", "APP"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddDutyMinutesAccumulates(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.AddDutyMinutes(ctx, "ctrl-1", 90); err != nil {
		t.Fatalf("add duty minutes: %v", err)
	}
	if err := store.AddDutyMinutes(ctx, "ctrl-1", 45); err != nil {
		t.Fatalf("add duty minutes again: %v", err)
	}

	controller, err := store.GetController(ctx, "ctrl-1")
	if err != nil {
		t.Fatalf("get controller: %v", err)
	}
	if controller.DutyMinutes != 135 {
		t.Fatalf("expected 135 duty minutes, got %d", controller.DutyMinutes)
	}

	if err := store.AddDutyMinutes(ctx, "ctrl-1", -5); err == nil {
		t.Fatal("expected error for negative minutes")
	}
}
