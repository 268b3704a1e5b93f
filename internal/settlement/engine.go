// Package settlement computes and commits the one-time financial outcome of
// a flight. Finalize is idempotent: the settlement row is written with a
// conditional update that only fires once, and every later call returns the
// stored result.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aeronet-project/aeronet/internal/accrual"
	"github.com/aeronet-project/aeronet/internal/id"
	"github.com/aeronet-project/aeronet/internal/ledger"
	"github.com/aeronet-project/aeronet/internal/notify"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/random"
	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// bpDenominator converts basis points to a fraction.
const bpDenominator = 10_000

// overageBPPerMinute is the late-completion penalty: 1 bp of gross revenue
// per minute flown past the filed duration.
const overageBPPerMinute = 1

// SalaryInstrumentKind is the instrument kind issued for pilot pay.
const SalaryInstrumentKind = "pilot_salary"

// Store is the persistence surface the engine needs.
type Store interface {
	storage.PlanStore
	storage.InstrumentStore
}

// Engine runs closure requests, settlement finalization, and cancellation.
type Engine struct {
	store    Store
	refdata  *refdata.Resolver
	accruals *accrual.Ledger
	accounts ledger.AccountService
	emitter  *telemetry.Emitter
	notifier notify.Sink
	clock    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a settlement engine. The rng resolves undeclared loads;
// pass a fixed-seed source in tests for reproducible draws.
func NewEngine(store Store, refResolver *refdata.Resolver, accruals *accrual.Ledger, accounts ledger.AccountService, emitter *telemetry.Emitter, notifier notify.Sink, clock func() time.Time, rng *rand.Rand) (*Engine, error) {
	if clock == nil {
		clock = time.Now
	}
	if rng == nil {
		seed, err := random.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("seed load randomizer: %w", err)
		}
		rng = rand.New(rand.NewSource(seed))
	}
	return &Engine{
		store:    store,
		refdata:  refResolver,
		accruals: accruals,
		accounts: accounts,
		emitter:  emitter,
		notifier: notifier,
		clock:    clock,
		rng:      rng,
	}, nil
}

// RequestClosure moves a plan to awaiting-closure on the pilot's report that
// the flight is complete. Only the filing pilot may request closure, and only
// from accepted or in-progress; automonitored plans qualify since the flag
// does not change the status.
func (e *Engine) RequestClosure(ctx context.Context, planID, pilotID string) (plandomain.FlightPlan, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.FlightPlan{}, planNotFound(planID)
		}
		return plandomain.FlightPlan{}, fmt.Errorf("load plan: %w", err)
	}
	if plan.PilotID == "" || plan.PilotID != pilotID {
		return plandomain.FlightPlan{}, apperrors.WithMetadata(apperrors.CodePlanNotPilot,
			"only the filing pilot may request closure", map[string]string{"PlanID": planID})
	}
	if !plan.Status.ClosureRequestable() {
		return plandomain.FlightPlan{}, invalidState(planID, plan.Status)
	}

	now := e.clock().UTC()
	err = e.store.SetStatus(ctx, planID, plan.Status, plandomain.StatusAwaitingClosure, "", now)
	if errors.Is(err, storage.ErrStaleState) {
		// The status moved between read and write; re-read and try the other
		// closable status once before giving up.
		current, readErr := e.store.GetPlan(ctx, planID)
		if readErr != nil {
			return plandomain.FlightPlan{}, fmt.Errorf("reload plan: %w", readErr)
		}
		if !current.Status.ClosureRequestable() {
			return plandomain.FlightPlan{}, invalidState(planID, current.Status)
		}
		err = e.store.SetStatus(ctx, planID, current.Status, plandomain.StatusAwaitingClosure, "", now)
		if errors.Is(err, storage.ErrStaleState) {
			return plandomain.FlightPlan{}, apperrors.WithMetadata(apperrors.CodePlanStaleState,
				"plan state changed, retry", map[string]string{"PlanID": planID})
		}
	}
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("request closure: %w", err)
	}

	plan, err = e.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("reload plan: %w", err)
	}
	e.notifyHolder(ctx, plan, "closure_requested", "pilot reports flight complete")
	return plan, nil
}

// Finalize commits the settlement and closes the plan. Calling it on an
// already closed plan returns the stored settlement unchanged; the financial
// movement happens at most once.
func (e *Engine) Finalize(ctx context.Context, planID string) (plandomain.Settlement, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.Settlement{}, planNotFound(planID)
		}
		return plandomain.Settlement{}, fmt.Errorf("load plan: %w", err)
	}
	if plan.Settlement != nil {
		return *plan.Settlement, nil
	}
	if plan.Status != plandomain.StatusAwaitingClosure {
		return plandomain.Settlement{}, invalidState(planID, plan.Status)
	}

	breakdown, err := e.compute(ctx, plan)
	if err != nil {
		return plandomain.Settlement{}, err
	}

	closedAt := e.clock().UTC()
	err = e.store.FinalizeSettlement(ctx, planID, breakdown.settlement, closedAt)
	if errors.Is(err, storage.ErrStaleState) {
		// Lost the finalize race. If the winner committed a settlement this
		// call is a duplicate and returns the stored outcome.
		current, readErr := e.store.GetPlan(ctx, planID)
		if readErr != nil {
			return plandomain.Settlement{}, fmt.Errorf("reload plan: %w", readErr)
		}
		if current.Settlement != nil {
			return *current.Settlement, nil
		}
		return plandomain.Settlement{}, invalidState(planID, current.Status)
	}
	if err != nil {
		return plandomain.Settlement{}, fmt.Errorf("commit settlement: %w", err)
	}

	// Downstream effects are best effort after the commit. They never roll
	// the settlement back; failures land in telemetry for reconciliation.
	e.recordAccruals(ctx, plan, breakdown)
	e.creditCompany(ctx, plan, breakdown)
	e.issueSalary(ctx, plan, breakdown, closedAt)
	if plan.PilotID != "" && e.notifier != nil {
		e.notifier.Notify(ctx, notify.Notification{
			RecipientID: plan.PilotID,
			Event:       "settlement_completed",
			PlanID:      plan.ID,
			Detail:      fmt.Sprintf("net %d cents, salary %d cents", breakdown.settlement.RevenueNet, breakdown.settlement.PilotSalary),
		})
	}
	return breakdown.settlement, nil
}

// breakdown carries the settlement plus the per-endpoint tax split the
// accrual entries need.
type breakdown struct {
	settlement   plandomain.Settlement
	departureTax int64
	arrivalTax   int64 // includes the overage penalty
	companyRef   string
}

func (e *Engine) compute(ctx context.Context, plan plandomain.FlightPlan) (breakdown, error) {
	var out breakdown

	passengers, cargoKg, profile, gross, err := e.grossRevenue(ctx, plan)
	if err != nil {
		return breakdown{}, err
	}

	departureRates, err := e.refdata.AirportRates(ctx, plan.Departure)
	if err != nil {
		return breakdown{}, fmt.Errorf("resolve departure rates: %w", err)
	}
	arrivalRates, err := e.refdata.AirportRates(ctx, plan.Arrival)
	if err != nil {
		return breakdown{}, fmt.Errorf("resolve arrival rates: %w", err)
	}

	departureTax := gross * taxBP(departureRates, plan.Rule) / bpDenominator
	arrivalTax := gross * taxBP(arrivalRates, plan.Rule) / bpDenominator
	overage := gross * overageBPPerMinute * e.overdueMinutes(plan) / bpDenominator

	taxes := departureTax + arrivalTax + overage
	net := gross - taxes

	payoutBP := refdata.DefaultPayoutBP
	if profile.PayoutBP > 0 {
		payoutBP = profile.PayoutBP
	}
	salary := net * payoutBP / bpDenominator
	company := net - salary

	out.settlement = plandomain.Settlement{
		RevenueGross:   gross,
		Taxes:          taxes,
		RevenueNet:     net,
		PilotSalary:    salary,
		CompanyRevenue: company,
		PassengerCount: passengers,
		CargoKg:        cargoKg,
	}
	out.departureTax = departureTax
	out.arrivalTax = arrivalTax + overage
	out.companyRef = profile.AccountRef
	return out, nil
}

// grossRevenue resolves the flown load and prices it. Non-commercial flights
// settle at zero revenue.
func (e *Engine) grossRevenue(ctx context.Context, plan plandomain.FlightPlan) (passengers, cargoKg int64, profile refdata.CompanyProfile, gross int64, err error) {
	if !plan.Commercial {
		return 0, 0, refdata.CompanyProfile{}, 0, nil
	}

	profile, err = e.refdata.CompanyProfile(ctx, plan.CompanyID)
	if err != nil {
		return 0, 0, refdata.CompanyProfile{}, 0, fmt.Errorf("resolve company profile: %w", err)
	}

	passengers, cargoKg, err = e.resolveLoad(ctx, plan)
	if err != nil {
		return 0, 0, refdata.CompanyProfile{}, 0, err
	}

	gross = passengers*profile.TicketPrice + cargoKg*profile.CargoRatePerKg
	return passengers, cargoKg, profile, gross, nil
}

// resolveLoad uses the declared load when present and otherwise draws each
// component uniformly over 20 to 100 percent of the aircraft's rated
// capacity.
func (e *Engine) resolveLoad(ctx context.Context, plan plandomain.FlightPlan) (passengers, cargoKg int64, err error) {
	if plan.Passengers != nil && plan.CargoKg != nil {
		return *plan.Passengers, *plan.CargoKg, nil
	}

	capacity, err := e.refdata.AircraftCapacity(ctx, plan.AircraftType)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve aircraft capacity: %w", err)
	}

	if plan.Passengers != nil {
		passengers = *plan.Passengers
	} else {
		passengers = e.drawLoad(capacity.PassengerCapacity)
	}
	if plan.CargoKg != nil {
		cargoKg = *plan.CargoKg
	} else {
		cargoKg = e.drawLoad(capacity.CargoCapacityKg)
	}
	return passengers, cargoKg, nil
}

func (e *Engine) drawLoad(capacity int64) int64 {
	if capacity <= 0 {
		return 0
	}
	minimum := capacity * 2_000 / bpDenominator
	span := capacity - minimum
	e.mu.Lock()
	defer e.mu.Unlock()
	return minimum + e.rng.Int63n(span+1)
}

// overdueMinutes returns whole minutes flown past the filed duration, never
// negative. Flight time runs from acceptance to the closure request; plans
// closed without either stamp count as on time.
func (e *Engine) overdueMinutes(plan plandomain.FlightPlan) int64 {
	if plan.AcceptedAt == nil || plan.ClosureRequestedAt == nil {
		return 0
	}
	actual := int64(plan.ClosureRequestedAt.Sub(*plan.AcceptedAt) / time.Minute)
	overdue := actual - plan.PlannedMinutes
	if overdue < 0 {
		return 0
	}
	return overdue
}

func taxBP(rates refdata.AirportRates, rule plandomain.FlightRule) int64 {
	if rule == plandomain.FlightRuleVFR {
		return rates.VFRTaxBP
	}
	return rates.BaseTaxBP
}

// recordAccruals attributes the collected taxes to the session holding the
// plan at finalize time. Automonitored plans have no holder and accrue to no
// one.
func (e *Engine) recordAccruals(ctx context.Context, plan plandomain.FlightPlan, b breakdown) {
	if e.accruals == nil || plan.Holder == nil {
		return
	}
	sessionID := plan.Holder.SessionID
	if b.departureTax > 0 {
		if err := e.accruals.Record(ctx, sessionID, plan.ID, plan.Departure, b.departureTax, "departure tax"); err != nil {
			e.reconcile(ctx, plan.ID, "accrual_record_failed", err)
		}
	}
	if b.arrivalTax > 0 {
		if err := e.accruals.Record(ctx, sessionID, plan.ID, plan.Arrival, b.arrivalTax, "arrival tax"); err != nil {
			e.reconcile(ctx, plan.ID, "accrual_record_failed", err)
		}
	}
}

func (e *Engine) creditCompany(ctx context.Context, plan plandomain.FlightPlan, b breakdown) {
	if e.accounts == nil || b.companyRef == "" || b.settlement.CompanyRevenue <= 0 {
		return
	}
	memo := fmt.Sprintf("flight %s revenue", plan.ID)
	if _, err := ledger.CreditWithRetry(ctx, e.accounts, b.companyRef, b.settlement.CompanyRevenue, memo); err != nil {
		e.reconcile(ctx, plan.ID, "company_credit_failed", err)
	}
}

// issueSalary writes the pilot's pay as a durable instrument keyed by the
// plan, so a replayed finalize can never double-pay.
func (e *Engine) issueSalary(ctx context.Context, plan plandomain.FlightPlan, b breakdown, at time.Time) {
	if plan.PilotID == "" || b.settlement.PilotSalary <= 0 {
		return
	}
	instrumentID, err := id.NewID()
	if err != nil {
		e.reconcile(ctx, plan.ID, "salary_issue_failed", err)
		return
	}
	err = e.store.CreateInstrument(ctx, storage.PayoutInstrument{
		ID:          instrumentID,
		Kind:        SalaryInstrumentKind,
		ReferenceID: plan.ID,
		RecipientID: plan.PilotID,
		Amount:      b.settlement.PilotSalary,
		Airports:    []string{plan.Departure, plan.Arrival},
		Memo:        fmt.Sprintf("salary for flight %s", plan.Callsign),
		CreatedAt:   at,
	})
	if err != nil && !errors.Is(err, storage.ErrInstrumentExists) {
		e.reconcile(ctx, plan.ID, "salary_issue_failed", err)
	}
}

// Cancel voids a plan before it has been worked: filed, awaiting-acceptance,
// and refused plans may be cancelled, nothing else.
func (e *Engine) Cancel(ctx context.Context, planID, pilotID string) (plandomain.FlightPlan, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.FlightPlan{}, planNotFound(planID)
		}
		return plandomain.FlightPlan{}, fmt.Errorf("load plan: %w", err)
	}
	if plan.PilotID == "" || plan.PilotID != pilotID {
		return plandomain.FlightPlan{}, apperrors.WithMetadata(apperrors.CodePlanNotPilot,
			"only the filing pilot may cancel", map[string]string{"PlanID": planID})
	}
	if !plan.Status.CanTransitionTo(plandomain.StatusCancelled) {
		return plandomain.FlightPlan{}, invalidState(planID, plan.Status)
	}

	now := e.clock().UTC()
	if err := e.store.SetStatus(ctx, planID, plan.Status, plandomain.StatusCancelled, "", now); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return plandomain.FlightPlan{}, apperrors.WithMetadata(apperrors.CodePlanStaleState,
				"plan state changed, retry", map[string]string{"PlanID": planID})
		}
		return plandomain.FlightPlan{}, fmt.Errorf("cancel plan: %w", err)
	}
	plan, err = e.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("reload plan: %w", err)
	}
	return plan, nil
}

func (e *Engine) reconcile(ctx context.Context, planID, event string, cause error) {
	_ = e.emitter.Emit(ctx, telemetry.SeverityError, "settlement", event,
		fmt.Sprintf("plan %s: %v", planID, cause))
}

func (e *Engine) notifyHolder(ctx context.Context, plan plandomain.FlightPlan, event, detail string) {
	if e.notifier == nil || plan.Holder == nil {
		return
	}
	e.notifier.Notify(ctx, notify.Notification{
		RecipientID: plan.Holder.SessionID,
		Event:       event,
		PlanID:      plan.ID,
		Detail:      detail,
	})
}

func planNotFound(planID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "flight plan not found",
		map[string]string{"PlanID": planID})
}

func invalidState(planID string, status plandomain.Status) error {
	return apperrors.WithMetadata(apperrors.CodePlanInvalidState,
		"plan status does not allow this operation", map[string]string{
			"PlanID": planID,
			"Status": status.String(),
		})
}
