package duty

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/aeronet-project/aeronet/internal/accrual"
	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/ledger"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/settlement"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/storage/sqlite"
)

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store    *sqlite.Store
	manager  *Manager
	accounts *ledger.MemoryAccountService
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "duty.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	ctx := context.Background()
	for _, rates := range []refdata.AirportRates{
		{Code: "SBGR", BaseTaxBP: 200, VFRTaxBP: 500},
		{Code: "SBRJ", BaseTaxBP: 200, VFRTaxBP: 500},
	} {
		if err := store.PutAirportRates(ctx, rates); err != nil {
			t.Fatalf("seed airport %s: %v", rates.Code, err)
		}
	}
	if err := store.PutCompanyProfile(ctx, refdata.CompanyProfile{
		ID:          "aurora",
		AccountRef:  "acct-aurora",
		TicketPrice: 12_000,
		PayoutBP:    5000,
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	clock := &testClock{now: testBase}
	accounts := ledger.NewMemoryAccountService()
	accruals := accrual.NewLedger(store, nil, clock.Now, nil)
	settler, err := settlement.NewEngine(store, refdata.NewResolver(store, nil), accruals, accounts,
		nil, nil, clock.Now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	manager := NewManager(store, settler, accruals, nil, clock.Now)
	return &fixture{store: store, manager: manager, accounts: accounts, clock: clock}
}

func (f *fixture) seedSession(t *testing.T, id, controllerID string) dutydomain.Session {
	t.Helper()
	session := dutydomain.Session{
		ID:           id,
		ControllerID: controllerID,
		Airport:      "SBGR",
		Position:     "TWR",
		StartedAt:    f.clock.Now(),
	}
	if err := f.store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
	return session
}

// seedHeldPlan installs a commercial plan held by the session in the given
// status, stamping acceptance and closure-request times along the way.
func (f *fixture) seedHeldPlan(t *testing.T, id, sessionID string, status plandomain.Status) {
	t.Helper()
	ctx := context.Background()
	passengers := int64(100)
	cargoKg := int64(0)
	plan := plandomain.FlightPlan{
		ID:             id,
		PilotID:        "pilot-1",
		CompanyID:      "aurora",
		AircraftType:   "A320",
		Callsign:       "AUR123",
		Departure:      "SBGR",
		Arrival:        "SBRJ",
		Rule:           plandomain.FlightRuleIFR,
		PlannedMinutes: 60,
		Commercial:     true,
		Passengers:     &passengers,
		CargoKg:        &cargoKg,
		Status:         plandomain.StatusFiled,
		CreatedAt:      f.clock.Now(),
	}
	if err := f.store.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("create plan %s: %v", id, err)
	}
	holder := plandomain.Holder{SessionID: sessionID, Airport: "SBGR", Position: "TWR"}
	if err := f.store.ClaimHolder(ctx, id, holder); err != nil {
		t.Fatalf("claim plan %s: %v", id, err)
	}
	if status == plandomain.StatusAwaitingAcceptance {
		return
	}
	if err := f.store.SetStatus(ctx, id, plandomain.StatusAwaitingAcceptance, plandomain.StatusAccepted, sessionID, f.clock.Now()); err != nil {
		t.Fatalf("accept plan %s: %v", id, err)
	}
	switch status {
	case plandomain.StatusAccepted:
	case plandomain.StatusInProgress:
		if err := f.store.SetStatus(ctx, id, plandomain.StatusAccepted, plandomain.StatusInProgress, sessionID, f.clock.Now()); err != nil {
			t.Fatalf("activate plan %s: %v", id, err)
		}
	case plandomain.StatusAwaitingClosure:
		if err := f.store.SetStatus(ctx, id, plandomain.StatusAccepted, plandomain.StatusAwaitingClosure, sessionID, f.clock.Now()); err != nil {
			t.Fatalf("request closure for plan %s: %v", id, err)
		}
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-1",
		Airport:      "sbgr",
		Position:     "twr",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Airport != "SBGR" || session.Position != "TWR" {
		t.Fatalf("expected normalized session, got %+v", session)
	}
	if !session.Active() {
		t.Fatal("fresh session should be active")
	}
}

func TestStartSessionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-1", Airport: "SBGR", Position: "TWR",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-2", Airport: "SBGR", Position: "TWR",
	})
	if !apperrors.IsCode(err, apperrors.CodeSessionPositionTaken) {
		t.Fatalf("expected %s, got %v", apperrors.CodeSessionPositionTaken, err)
	}

	_, err = f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-1", Airport: "SBRJ", Position: "APP",
	})
	if !apperrors.IsCode(err, apperrors.CodeSessionAlreadyInSvc) {
		t.Fatalf("expected %s, got %v", apperrors.CodeSessionAlreadyInSvc, err)
	}

	_, err = f.manager.Start(ctx, dutydomain.StartSessionInput{Airport: "SBGR", Position: "GND"})
	if !errors.Is(err, dutydomain.ErrEmptyController) {
		t.Fatalf("expected empty controller error, got %v", err)
	}
}

func TestEndWithoutHeldPlans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSession(t, "sess-1", "ctrl-1")

	f.clock.Advance(90 * time.Minute)
	result, err := f.manager.End(ctx, "ctrl-1", dutydomain.EndModeVoluntary)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if result.Released != 0 || result.Automonitored != 0 || result.Finalized != 0 {
		t.Fatalf("expected empty teardown, got %+v", result)
	}
	if result.Payout != nil {
		t.Fatalf("expected no payout, got %+v", result.Payout)
	}
	if result.DutyMinutes != 90 {
		t.Fatalf("expected 90 duty minutes, got %d", result.DutyMinutes)
	}
	if result.Session.Active() {
		t.Fatal("returned session should be ended")
	}

	controller, err := f.store.GetController(ctx, "ctrl-1")
	if err != nil {
		t.Fatalf("get controller: %v", err)
	}
	if controller.DutyMinutes != 90 {
		t.Fatalf("expected accumulated 90 duty minutes, got %d", controller.DutyMinutes)
	}

	_, err = f.manager.End(ctx, "ctrl-1", dutydomain.EndModeVoluntary)
	if !apperrors.IsCode(err, apperrors.CodeSessionAlreadyEnded) {
		t.Fatalf("expected %s, got %v", apperrors.CodeSessionAlreadyEnded, err)
	}
}

func TestEndRunsFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSession(t, "sess-1", "ctrl-1")

	f.seedHeldPlan(t, "plan-closing", "sess-1", plandomain.StatusAwaitingClosure)
	f.seedHeldPlan(t, "plan-flying", "sess-1", plandomain.StatusInProgress)
	f.seedHeldPlan(t, "plan-waiting", "sess-1", plandomain.StatusAwaitingAcceptance)

	f.clock.Advance(time.Hour)
	result, err := f.manager.End(ctx, "ctrl-1", dutydomain.EndModeForced)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if result.Released != 3 {
		t.Fatalf("expected 3 released plans, got %d", result.Released)
	}
	if result.Finalized != 1 {
		t.Fatalf("expected 1 finalized plan, got %d", result.Finalized)
	}
	if result.Automonitored != 1 {
		t.Fatalf("expected 1 automonitored plan, got %d", result.Automonitored)
	}

	// The settled flight's taxes are paid out with the session: 2% of the
	// 1200000 cent gross at each end, no overage.
	if result.Payout == nil {
		t.Fatal("expected a tax payout")
	}
	if result.Payout.Amount != 48_000 {
		t.Fatalf("expected payout 48000, got %d", result.Payout.Amount)
	}
	if result.Payout.RecipientID != "ctrl-1" || result.Payout.ReferenceID != "sess-1" {
		t.Fatalf("unexpected payout %+v", result.Payout)
	}

	closing, err := f.store.GetPlan(ctx, "plan-closing")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if closing.Status != plandomain.StatusClosed || closing.Settlement == nil {
		t.Fatalf("expected settled closed plan, got %+v", closing)
	}
	if closing.Holder != nil {
		t.Fatal("closed plan should have no holder")
	}

	flying, err := f.store.GetPlan(ctx, "plan-flying")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if flying.Status != plandomain.StatusInProgress || !flying.Automonitoring || flying.Holder != nil {
		t.Fatalf("expected automonitored in-progress plan, got %+v", flying)
	}

	waiting, err := f.store.GetPlan(ctx, "plan-waiting")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if waiting.Automonitoring || waiting.Holder != nil {
		t.Fatalf("unworked plan releases without automonitoring, got %+v", waiting)
	}

	// No stale holders remain.
	held, err := f.store.ListHeldBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list held: %v", err)
	}
	if len(held) != 0 {
		t.Fatalf("expected no held plans after teardown, got %d", len(held))
	}

	// The consumed accrual cannot pay out twice.
	entries, err := f.store.ListAccruals(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list accruals: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected consumed accrual, got %d entries", len(entries))
	}

	err = f.store.CreateInstrument(ctx, storage.PayoutInstrument{
		ID:          "dup",
		Kind:        accrual.PayoutKind,
		ReferenceID: "sess-1",
		RecipientID: "ctrl-1",
		Amount:      1,
		CreatedAt:   f.clock.Now(),
	})
	if !errors.Is(err, storage.ErrInstrumentExists) {
		t.Fatalf("expected instrument exists, got %v", err)
	}
}

func TestEndReopensPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-1", Airport: "SBGR", Position: "TWR",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(time.Hour)
	if _, err := f.manager.End(ctx, "ctrl-1", dutydomain.EndModeVoluntary); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Both the position and the controller are free again.
	if _, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-2", Airport: "SBGR", Position: "TWR",
	}); err != nil {
		t.Fatalf("restaff position: %v", err)
	}
	if _, err := f.manager.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: "ctrl-1", Airport: "SBRJ", Position: "APP",
	}); err != nil {
		t.Fatalf("controller new session: %v", err)
	}
}
