// Package duty manages controller duty sessions: opening a position,
// tearing a session down, and running the automonitoring fallback over the
// plans the session still holds when it ends.
package duty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aeronet-project/aeronet/internal/accrual"
	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/id"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/settlement"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// Store is the persistence surface the manager needs.
type Store interface {
	storage.SessionStore
	storage.PlanStore
}

// Manager runs the duty session lifecycle.
type Manager struct {
	store       Store
	settler     *settlement.Engine
	accruals    *accrual.Ledger
	emitter     *telemetry.Emitter
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewManager creates a duty session Manager.
func NewManager(store Store, settler *settlement.Engine, accruals *accrual.Ledger, emitter *telemetry.Emitter, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:       store,
		settler:     settler,
		accruals:    accruals,
		emitter:     emitter,
		clock:       clock,
		idGenerator: id.NewID,
	}
}

// Start opens a duty session at an (airport, position) pair. A controller
// gets one active session at a time, and a position carries one controller.
func (m *Manager) Start(ctx context.Context, input dutydomain.StartSessionInput) (dutydomain.Session, error) {
	session, err := dutydomain.StartSession(input, m.clock, m.idGenerator)
	if err != nil {
		return dutydomain.Session{}, err
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		switch {
		case errors.Is(err, storage.ErrPositionTaken):
			return dutydomain.Session{}, apperrors.WithMetadata(apperrors.CodeSessionPositionTaken,
				"position is already staffed", map[string]string{
					"Airport":  session.Airport,
					"Position": session.Position,
				})
		case errors.Is(err, storage.ErrAlreadyInService):
			return dutydomain.Session{}, apperrors.WithMetadata(apperrors.CodeSessionAlreadyInSvc,
				"controller already has an active session", map[string]string{
					"ControllerID": session.ControllerID,
				})
		default:
			return dutydomain.Session{}, fmt.Errorf("create session: %w", err)
		}
	}

	_ = m.emitter.Emit(ctx, telemetry.SeverityInfo, "duty", "session_started",
		fmt.Sprintf("session %s: %s at %s %s", session.ID, session.ControllerID, session.Airport, session.Position))
	return session, nil
}

// EndResult summarizes a session teardown.
type EndResult struct {
	Session dutydomain.Session
	// Released counts plans whose holder was cleared.
	Released int
	// Automonitored counts released plans flagged for automonitoring.
	Automonitored int
	// Finalized counts plans settled synchronously during teardown.
	Finalized int
	// Payout is the aggregated tax payout, nil when nothing accrued.
	Payout *storage.PayoutInstrument
	// DutyMinutes is the duty time credited for this session.
	DutyMinutes int64
}

// End tears down the controller's active session. Forced and voluntary ends
// run the identical sequence: fallback over held plans, accrual payout, duty
// time accumulation, then the session is marked ended.
func (m *Manager) End(ctx context.Context, controllerID string, mode dutydomain.EndMode) (EndResult, error) {
	session, err := m.store.GetActiveSessionByController(ctx, controllerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return EndResult{}, apperrors.WithMetadata(apperrors.CodeSessionAlreadyEnded,
				"controller has no active session", map[string]string{"ControllerID": controllerID})
		}
		return EndResult{}, fmt.Errorf("load active session: %w", err)
	}

	result := EndResult{Session: session}
	if err := m.runFallback(ctx, session, &result); err != nil {
		return EndResult{}, err
	}

	payout, err := m.accruals.Payout(ctx, session, controllerID)
	if err != nil {
		// The payout is exactly-once by construction; a failure here is
		// retried by reconciliation, never silently dropped.
		_ = m.emitter.Emit(ctx, telemetry.SeverityError, "duty", "session_payout_failed",
			fmt.Sprintf("session %s: %v", session.ID, err))
	}
	result.Payout = payout

	endedAt := m.clock().UTC()
	result.DutyMinutes = int64(endedAt.Sub(session.StartedAt) / time.Minute)
	if result.DutyMinutes > 0 {
		if err := m.store.AddDutyMinutes(ctx, controllerID, result.DutyMinutes); err != nil {
			_ = m.emitter.Emit(ctx, telemetry.SeverityWarn, "duty", "duty_time_accumulation_failed",
				fmt.Sprintf("session %s: %v", session.ID, err))
		}
	}

	if err := m.store.EndSession(ctx, session.ID, endedAt); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return EndResult{}, apperrors.WithMetadata(apperrors.CodeSessionAlreadyEnded,
				"session already ended", map[string]string{"SessionID": session.ID})
		}
		return EndResult{}, fmt.Errorf("end session: %w", err)
	}
	endedSession := session
	endedSession.EndedAt = &endedAt
	result.Session = endedSession

	_ = m.emitter.Emit(ctx, telemetry.SeverityInfo, "duty", "session_ended",
		fmt.Sprintf("session %s: mode=%s released=%d automonitored=%d finalized=%d",
			session.ID, mode, result.Released, result.Automonitored, result.Finalized))
	return result, nil
}

// runFallback disposes of every plan the session still holds. Plans awaiting
// closure are settled synchronously before the holder disappears; plans
// under active control fall into automonitoring; unworked plans just lose
// the holder.
func (m *Manager) runFallback(ctx context.Context, session dutydomain.Session, result *EndResult) error {
	held, err := m.store.ListHeldBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("list held plans: %w", err)
	}

	for _, plan := range held {
		automonitor := false
		switch plan.Status {
		case plandomain.StatusAwaitingClosure:
			if _, err := m.settler.Finalize(ctx, plan.ID); err != nil {
				// Release proceeds regardless so the ended session leaves
				// nothing behind; the failed finalize is a reconciliation
				// item.
				_ = m.emitter.Emit(ctx, telemetry.SeverityError, "duty", "teardown_finalize_failed",
					fmt.Sprintf("plan %s: %v", plan.ID, err))
			} else {
				result.Finalized++
			}
		case plandomain.StatusAccepted, plandomain.StatusInProgress:
			automonitor = true
		}

		if err := m.store.ReleaseHolder(ctx, plan.ID, session.ID, automonitor); err != nil {
			if errors.Is(err, storage.ErrStaleState) {
				// Someone else already took or released the plan.
				continue
			}
			return fmt.Errorf("release plan %s: %w", plan.ID, err)
		}
		result.Released++
		if automonitor {
			result.Automonitored++
			_ = m.emitter.Emit(ctx, telemetry.SeverityWarn, "duty", "plan_automonitored",
				fmt.Sprintf("plan %s: holder session %s ended", plan.ID, session.ID))
		}
	}
	return nil
}
