// Package authority enforces the control-handoff rules: who holds a flight
// plan, how a claim is won, and how a pending handoff is offered, accepted,
// or expires.
//
// The package never locks. Every contested write goes through the plan
// store's conditional updates; when a write loses its race the manager
// re-reads the plan to translate the generic stale-state failure into the
// precise refusal the caller can act on.
package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/notify"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// DefaultAcceptWindow bounds how long a handoff offer stays acceptable.
const DefaultAcceptWindow = 60 * time.Second

// Store is the persistence surface the manager needs.
type Store interface {
	storage.PlanStore
	storage.SessionStore
}

// Manager applies claim, handoff, and holder-gated status operations.
type Manager struct {
	store        Store
	emitter      *telemetry.Emitter
	notifier     notify.Sink
	clock        func() time.Time
	acceptWindow time.Duration
}

// NewManager creates a Manager. A zero acceptWindow falls back to
// DefaultAcceptWindow.
func NewManager(store Store, emitter *telemetry.Emitter, notifier notify.Sink, clock func() time.Time, acceptWindow time.Duration) *Manager {
	if clock == nil {
		clock = time.Now
	}
	if acceptWindow <= 0 {
		acceptWindow = DefaultAcceptWindow
	}
	return &Manager{
		store:        store,
		emitter:      emitter,
		notifier:     notifier,
		clock:        clock,
		acceptWindow: acceptWindow,
	}
}

// activeHolder resolves a session ID into the holder identity it stamps onto
// plans, refusing ended sessions.
func (m *Manager) activeHolder(ctx context.Context, sessionID string) (plandomain.Holder, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.Holder{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				"session not found", map[string]string{"SessionID": sessionID})
		}
		return plandomain.Holder{}, fmt.Errorf("load session: %w", err)
	}
	if !session.Active() {
		return plandomain.Holder{}, apperrors.WithMetadata(apperrors.CodeSessionAlreadyEnded,
			"session has ended", map[string]string{"SessionID": sessionID})
	}
	return plandomain.Holder{
		SessionID: session.ID,
		Airport:   session.Airport,
		Position:  session.Position,
	}, nil
}

// Claim installs the session as holder of an unclaimed plan. Claiming a
// freshly filed plan also advances it to awaiting-acceptance. Exactly one of
// N concurrent claimants wins; the rest get PLAN_ALREADY_CLAIMED.
func (m *Manager) Claim(ctx context.Context, planID, sessionID string) (plandomain.FlightPlan, error) {
	holder, err := m.activeHolder(ctx, sessionID)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}

	if err := m.store.ClaimHolder(ctx, planID, holder); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return plandomain.FlightPlan{}, m.explainClaimFailure(ctx, planID)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.FlightPlan{}, planNotFound(planID)
		}
		return plandomain.FlightPlan{}, fmt.Errorf("claim plan: %w", err)
	}

	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("reload claimed plan: %w", err)
	}
	m.notifyPilot(ctx, plan, "plan_claimed",
		fmt.Sprintf("plan claimed by %s %s", holder.Airport, holder.Position))
	return plan, nil
}

// explainClaimFailure re-reads the plan so a lost claim race reports what
// actually blocked it.
func (m *Manager) explainClaimFailure(ctx context.Context, planID string) error {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("inspect plan after failed claim: %w", err)
	}
	if plan.Holder != nil {
		return apperrors.WithMetadata(apperrors.CodePlanAlreadyClaimed,
			"plan is already claimed", map[string]string{
				"PlanID":  planID,
				"Airport": plan.Holder.Airport,
			})
	}
	if plan.Status.Claimable() && plan.Automonitoring {
		return apperrors.WithMetadata(apperrors.CodePlanInvalidState,
			"automonitoring plan must be claimed from a route airport", map[string]string{
				"PlanID":    planID,
				"Departure": plan.Departure,
				"Arrival":   plan.Arrival,
			})
	}
	return apperrors.WithMetadata(apperrors.CodePlanInvalidState,
		"plan is not claimable", map[string]string{
			"PlanID": planID,
			"Status": plan.Status.String(),
		})
}

// AcceptPlan confirms a claimed plan, moving it from awaiting-acceptance to
// accepted. Only the holding session may accept.
func (m *Manager) AcceptPlan(ctx context.Context, planID, sessionID string) (plandomain.FlightPlan, error) {
	return m.holderTransition(ctx, planID, sessionID,
		plandomain.StatusAwaitingAcceptance, plandomain.StatusAccepted, "plan_accepted")
}

// ActivatePlan marks an accepted plan as flying.
func (m *Manager) ActivatePlan(ctx context.Context, planID, sessionID string) (plandomain.FlightPlan, error) {
	return m.holderTransition(ctx, planID, sessionID,
		plandomain.StatusAccepted, plandomain.StatusInProgress, "plan_activated")
}

// RefusePlan rejects a claimed plan and releases the holder. The plan stays
// refused until the pilot cancels it.
func (m *Manager) RefusePlan(ctx context.Context, planID, sessionID string) (plandomain.FlightPlan, error) {
	plan, err := m.holderTransition(ctx, planID, sessionID,
		plandomain.StatusAwaitingAcceptance, plandomain.StatusRefused, "plan_refused")
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	if err := m.store.ReleaseHolder(ctx, planID, sessionID, false); err != nil && !errors.Is(err, storage.ErrStaleState) {
		return plandomain.FlightPlan{}, fmt.Errorf("release refused plan: %w", err)
	}
	plan.Holder = nil
	return plan, nil
}

func (m *Manager) holderTransition(ctx context.Context, planID, sessionID string, from, to plandomain.Status, event string) (plandomain.FlightPlan, error) {
	if _, err := m.activeHolder(ctx, sessionID); err != nil {
		return plandomain.FlightPlan{}, err
	}
	now := m.clock().UTC()
	if err := m.store.SetStatus(ctx, planID, from, to, sessionID, now); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return plandomain.FlightPlan{}, m.explainTransitionFailure(ctx, planID, sessionID, from)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.FlightPlan{}, planNotFound(planID)
		}
		return plandomain.FlightPlan{}, fmt.Errorf("transition plan: %w", err)
	}
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("reload plan: %w", err)
	}
	m.notifyPilot(ctx, plan, event, "status is now "+plan.Status.String())
	return plan, nil
}

func (m *Manager) explainTransitionFailure(ctx context.Context, planID, sessionID string, from plandomain.Status) error {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("inspect plan after failed transition: %w", err)
	}
	if !plan.HeldBy(sessionID) {
		return apperrors.WithMetadata(apperrors.CodePlanNotHolder,
			"session does not hold the plan", map[string]string{
				"PlanID":    planID,
				"SessionID": sessionID,
			})
	}
	return apperrors.WithMetadata(apperrors.CodePlanInvalidState,
		"plan status does not allow this operation", map[string]string{
			"PlanID":   planID,
			"Status":   plan.Status.String(),
			"Expected": from.String(),
		})
}

// BeginTransfer offers the plan to the controller staffing the target
// position. At most one offer may be pending; an expired leftover offer is
// cleared and replaced in place.
func (m *Manager) BeginTransfer(ctx context.Context, planID, sessionID, targetAirport, targetPosition string) (plandomain.TransferRequest, error) {
	if _, err := m.activeHolder(ctx, sessionID); err != nil {
		return plandomain.TransferRequest{}, err
	}
	targetAirport = strings.ToUpper(strings.TrimSpace(targetAirport))
	targetPosition = strings.ToUpper(strings.TrimSpace(targetPosition))
	if targetAirport == "" || targetPosition == "" {
		return plandomain.TransferRequest{}, apperrors.New(apperrors.CodePlanInvalidState,
			"transfer target airport and position are required")
	}

	now := m.clock().UTC()
	transfer := plandomain.TransferRequest{
		TargetAirport:  targetAirport,
		TargetPosition: targetPosition,
		RequestedAt:    now,
		AcceptDeadline: now.Add(m.acceptWindow),
	}

	err := m.store.AttachPendingTransfer(ctx, planID, sessionID, transfer)
	if errors.Is(err, storage.ErrStaleState) {
		retryErr := m.retryAfterExpiredTransfer(ctx, planID, sessionID, transfer)
		if retryErr != nil {
			return plandomain.TransferRequest{}, retryErr
		}
		err = nil
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.TransferRequest{}, planNotFound(planID)
		}
		return plandomain.TransferRequest{}, fmt.Errorf("attach transfer: %w", err)
	}

	m.notifyPosition(ctx, targetAirport, targetPosition, planID, "handoff_offered",
		fmt.Sprintf("handoff offered until %s", transfer.AcceptDeadline.Format(time.RFC3339)))
	return transfer, nil
}

// retryAfterExpiredTransfer resolves an attach race: if the only obstacle was
// an expired leftover offer, drop it and attach again.
func (m *Manager) retryAfterExpiredTransfer(ctx context.Context, planID, sessionID string, transfer plandomain.TransferRequest) error {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("inspect plan after failed transfer attach: %w", err)
	}
	if !plan.HeldBy(sessionID) {
		return apperrors.WithMetadata(apperrors.CodePlanNotHolder,
			"session does not hold the plan", map[string]string{
				"PlanID":    planID,
				"SessionID": sessionID,
			})
	}
	if plan.PendingTransfer == nil {
		return apperrors.WithMetadata(apperrors.CodePlanInvalidState,
			"plan status does not allow a handoff", map[string]string{
				"PlanID": planID,
				"Status": plan.Status.String(),
			})
	}
	if !plan.PendingTransfer.Expired(m.clock().UTC()) {
		return apperrors.WithMetadata(apperrors.CodePlanTransferInFlight,
			"a handoff is already pending", map[string]string{"PlanID": planID})
	}
	if err := m.store.ClearPendingTransfer(ctx, planID, sessionID, *plan.PendingTransfer); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return apperrors.WithMetadata(apperrors.CodePlanTransferInFlight,
				"a handoff is already pending", map[string]string{"PlanID": planID})
		}
		return fmt.Errorf("clear expired transfer: %w", err)
	}
	if err := m.store.AttachPendingTransfer(ctx, planID, sessionID, transfer); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return apperrors.WithMetadata(apperrors.CodePlanTransferInFlight,
				"a handoff is already pending", map[string]string{"PlanID": planID})
		}
		return fmt.Errorf("attach transfer: %w", err)
	}
	return nil
}

// AcceptTransfer completes a pending handoff addressed to the accepting
// session's position. One winner per offer; the deadline is re-verified in
// the same write that installs the new holder.
func (m *Manager) AcceptTransfer(ctx context.Context, planID, sessionID string) (plandomain.FlightPlan, error) {
	holder, err := m.activeHolder(ctx, sessionID)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}

	now := m.clock().UTC()
	if err := m.store.AcceptTransfer(ctx, planID, holder, now); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return plandomain.FlightPlan{}, m.explainAcceptFailure(ctx, planID, holder, now)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return plandomain.FlightPlan{}, planNotFound(planID)
		}
		return plandomain.FlightPlan{}, fmt.Errorf("accept transfer: %w", err)
	}

	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, fmt.Errorf("reload plan: %w", err)
	}
	m.notifyPilot(ctx, plan, "handoff_completed",
		fmt.Sprintf("control handed to %s %s", holder.Airport, holder.Position))
	return plan, nil
}

func (m *Manager) explainAcceptFailure(ctx context.Context, planID string, holder plandomain.Holder, now time.Time) error {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("inspect plan after failed accept: %w", err)
	}
	meta := map[string]string{"PlanID": planID}
	switch {
	case plan.PendingTransfer == nil:
		return apperrors.WithMetadata(apperrors.CodePlanNoSuchTransfer,
			"no handoff is pending", meta)
	case plan.PendingTransfer.Expired(now):
		return apperrors.WithMetadata(apperrors.CodePlanNoSuchTransfer,
			"handoff offer has expired", meta)
	case !plan.PendingTransfer.MatchesTarget(holder.Airport, holder.Position):
		return apperrors.WithMetadata(apperrors.CodePlanNoSuchTransfer,
			"handoff is addressed to a different position", meta)
	default:
		return apperrors.WithMetadata(apperrors.CodePlanStaleState,
			"handoff state changed, retry", meta)
	}
}

// CancelTransfer withdraws a pending handoff. Only the holding session may
// cancel.
func (m *Manager) CancelTransfer(ctx context.Context, planID, sessionID string) error {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("load plan: %w", err)
	}
	if !plan.HeldBy(sessionID) {
		return apperrors.WithMetadata(apperrors.CodePlanNotHolder,
			"session does not hold the plan", map[string]string{
				"PlanID":    planID,
				"SessionID": sessionID,
			})
	}
	if plan.PendingTransfer == nil {
		return apperrors.WithMetadata(apperrors.CodePlanNoSuchTransfer,
			"no handoff is pending", map[string]string{"PlanID": planID})
	}
	if err := m.store.ClearPendingTransfer(ctx, planID, sessionID, *plan.PendingTransfer); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return apperrors.WithMetadata(apperrors.CodePlanStaleState,
				"handoff state changed, retry", map[string]string{"PlanID": planID})
		}
		return fmt.Errorf("clear transfer: %w", err)
	}
	return nil
}

// Release drops the session's hold on a plan, optionally marking the plan
// automonitored.
func (m *Manager) Release(ctx context.Context, planID, sessionID string, automonitoring bool) error {
	if err := m.store.ReleaseHolder(ctx, planID, sessionID, automonitoring); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return apperrors.WithMetadata(apperrors.CodePlanNotHolder,
				"session does not hold the plan", map[string]string{
					"PlanID":    planID,
					"SessionID": sessionID,
				})
		}
		if errors.Is(err, storage.ErrNotFound) {
			return planNotFound(planID)
		}
		return fmt.Errorf("release plan: %w", err)
	}
	if automonitoring {
		_ = m.emitter.Emit(ctx, telemetry.SeverityWarn, "authority", "plan_automonitored",
			fmt.Sprintf("plan %s released without replacement holder", planID))
	}
	return nil
}

// Workload returns every plan the session currently holds.
func (m *Manager) Workload(ctx context.Context, sessionID string) ([]plandomain.FlightPlan, error) {
	return m.store.ListHeldBySession(ctx, sessionID)
}

// UnclaimedAtAirport returns claimable plans touching the airport, oldest
// first, so a newly started session can pick up waiting traffic.
func (m *Manager) UnclaimedAtAirport(ctx context.Context, airport string, limit int) ([]plandomain.FlightPlan, error) {
	airport = strings.ToUpper(strings.TrimSpace(airport))
	return m.store.ListUnclaimedByAirport(ctx, airport, limit)
}

func (m *Manager) notifyPilot(ctx context.Context, plan plandomain.FlightPlan, event, detail string) {
	if m.notifier == nil || plan.PilotID == "" {
		return
	}
	m.notifier.Notify(ctx, notify.Notification{
		RecipientID: plan.PilotID,
		Event:       event,
		PlanID:      plan.ID,
		Detail:      detail,
	})
}

func (m *Manager) notifyPosition(ctx context.Context, airport, position, planID, event, detail string) {
	if m.notifier == nil {
		return
	}
	session, err := m.store.GetActiveSessionByPosition(ctx, airport, position)
	if err != nil {
		// Offers may target unstaffed positions; nothing to deliver.
		return
	}
	m.notifier.Notify(ctx, notify.Notification{
		RecipientID: session.ControllerID,
		Event:       event,
		PlanID:      planID,
		Detail:      detail,
	})
}

func planNotFound(planID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "flight plan not found",
		map[string]string{"PlanID": planID})
}
