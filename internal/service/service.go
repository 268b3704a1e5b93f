// Package service is the request surface of the control engine. It binds
// authenticated principals to the pilot, controller, and operator operations
// and traces each request.
//
// The engine is invoked in process; transports stay out of this package.
// Errors leave here as platform errors whose codes map onto gRPC status
// codes for any transport layered on top.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aeronet-project/aeronet/internal/accrual"
	"github.com/aeronet-project/aeronet/internal/auth"
	"github.com/aeronet-project/aeronet/internal/authority"
	"github.com/aeronet-project/aeronet/internal/duty"
	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/id"
	"github.com/aeronet-project/aeronet/internal/ledger"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/settlement"
	"github.com/aeronet-project/aeronet/internal/storage"
)

const tracerName = "github.com/aeronet-project/aeronet/internal/service"

// Store is the persistence surface the service needs beyond what the
// underlying managers already hold.
type Store interface {
	storage.PlanStore
	storage.SessionStore
	storage.InstrumentStore
	storage.TelemetryStore
}

// Service exposes the engine's operations to authenticated principals.
type Service struct {
	store      Store
	authority  *authority.Manager
	settler    *settlement.Engine
	duty       *duty.Manager
	accruals   *accrual.Ledger
	transferer *ledger.Transferer
	clock      func() time.Time
	tracer     trace.Tracer
}

// New creates the service over its collaborating managers.
func New(store Store, authorityMgr *authority.Manager, settler *settlement.Engine, dutyMgr *duty.Manager, accruals *accrual.Ledger, transferer *ledger.Transferer, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:      store,
		authority:  authorityMgr,
		settler:    settler,
		duty:       dutyMgr,
		accruals:   accruals,
		transferer: transferer,
		clock:      clock,
		tracer:     otel.Tracer(tracerName),
	}
}

func (s *Service) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
	}
	span.End()
}

// activeSession resolves the acting controller's live session.
func (s *Service) activeSession(ctx context.Context, actor auth.Context) (dutydomain.Session, error) {
	if err := auth.RequireController(actor); err != nil {
		return dutydomain.Session{}, err
	}
	session, err := s.store.GetActiveSessionByController(ctx, actor.ActorID)
	if err != nil {
		return dutydomain.Session{}, apperrors.Wrap(apperrors.CodeSessionAlreadyEnded,
			"controller has no active session", err)
	}
	return session, nil
}

// FilePlan files a new flight plan on behalf of the acting pilot.
func (s *Service) FilePlan(ctx context.Context, actor auth.Context, input plandomain.CreatePlanInput) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "FilePlan")
	defer func() { finishSpan(span, err) }()

	input.PilotID = actor.ActorID
	plan, err := plandomain.CreateFlightPlan(input, s.clock, id.NewID)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	if err = s.store.CreatePlan(ctx, plan); err != nil {
		return plandomain.FlightPlan{}, err
	}
	return plan, nil
}

// CreateStrip files a controller-authored plan that starts accepted and held
// by the acting controller's session.
func (s *Service) CreateStrip(ctx context.Context, actor auth.Context, input plandomain.CreatePlanInput) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "CreateStrip")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	holder := plandomain.Holder{
		SessionID: session.ID,
		Airport:   session.Airport,
		Position:  session.Position,
	}
	strip, err := plandomain.CreateControllerStrip(input, holder, s.clock, id.NewID)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	if err = s.store.CreatePlan(ctx, strip); err != nil {
		return plandomain.FlightPlan{}, err
	}
	return strip, nil
}

// GetPlan loads a plan by ID.
func (s *Service) GetPlan(ctx context.Context, _ auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "GetPlan")
	defer func() { finishSpan(span, err) }()

	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.FlightPlan{}, apperrors.Wrap(apperrors.CodeNotFound, "flight plan not found", err)
	}
	return plan, nil
}

// CancelPlan voids the acting pilot's unworked plan.
func (s *Service) CancelPlan(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "CancelPlan")
	defer func() { finishSpan(span, err) }()
	return s.settler.Cancel(ctx, planID, actor.ActorID)
}

// RequestClosure reports the acting pilot's flight complete.
func (s *Service) RequestClosure(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "RequestClosure")
	defer func() { finishSpan(span, err) }()
	return s.settler.RequestClosure(ctx, planID, actor.ActorID)
}

// StartSession opens a duty session for the acting controller.
func (s *Service) StartSession(ctx context.Context, actor auth.Context, airport, position string) (_ dutydomain.Session, err error) {
	ctx, span := s.span(ctx, "StartSession")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireController(actor); err != nil {
		return dutydomain.Session{}, err
	}
	return s.duty.Start(ctx, dutydomain.StartSessionInput{
		ControllerID: actor.ActorID,
		Airport:      airport,
		Position:     position,
	})
}

// EndSession voluntarily ends the acting controller's duty session.
func (s *Service) EndSession(ctx context.Context, actor auth.Context) (_ duty.EndResult, err error) {
	ctx, span := s.span(ctx, "EndSession")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireController(actor); err != nil {
		return duty.EndResult{}, err
	}
	return s.duty.End(ctx, actor.ActorID, dutydomain.EndModeVoluntary)
}

// ForceEndSession ends another controller's session on operator authority.
func (s *Service) ForceEndSession(ctx context.Context, actor auth.Context, controllerID string) (_ duty.EndResult, err error) {
	ctx, span := s.span(ctx, "ForceEndSession")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireOperator(actor); err != nil {
		return duty.EndResult{}, err
	}
	return s.duty.End(ctx, controllerID, dutydomain.EndModeForced)
}

// ClaimPlan claims an unclaimed plan for the acting controller's session.
func (s *Service) ClaimPlan(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "ClaimPlan")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	return s.authority.Claim(ctx, planID, session.ID)
}

// AcceptPlan confirms a claimed plan.
func (s *Service) AcceptPlan(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "AcceptPlan")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	return s.authority.AcceptPlan(ctx, planID, session.ID)
}

// RefusePlan rejects a claimed plan and releases it.
func (s *Service) RefusePlan(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "RefusePlan")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	return s.authority.RefusePlan(ctx, planID, session.ID)
}

// ActivatePlan marks an accepted plan as departed.
func (s *Service) ActivatePlan(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "ActivatePlan")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	return s.authority.ActivatePlan(ctx, planID, session.ID)
}

// BeginTransfer offers a held plan to the controller at the target position.
func (s *Service) BeginTransfer(ctx context.Context, actor auth.Context, planID, targetAirport, targetPosition string) (_ plandomain.TransferRequest, err error) {
	ctx, span := s.span(ctx, "BeginTransfer")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.TransferRequest{}, err
	}
	return s.authority.BeginTransfer(ctx, planID, session.ID, targetAirport, targetPosition)
}

// AcceptTransfer completes a handoff addressed to the acting controller's
// position.
func (s *Service) AcceptTransfer(ctx context.Context, actor auth.Context, planID string) (_ plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "AcceptTransfer")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}
	return s.authority.AcceptTransfer(ctx, planID, session.ID)
}

// CancelTransfer withdraws a pending handoff offer.
func (s *Service) CancelTransfer(ctx context.Context, actor auth.Context, planID string) (err error) {
	ctx, span := s.span(ctx, "CancelTransfer")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return err
	}
	return s.authority.CancelTransfer(ctx, planID, session.ID)
}

// ConfirmClosure settles an awaiting-closure plan held by the acting
// controller and releases it.
func (s *Service) ConfirmClosure(ctx context.Context, actor auth.Context, planID string) (_ plandomain.Settlement, err error) {
	ctx, span := s.span(ctx, "ConfirmClosure")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return plandomain.Settlement{}, err
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.Settlement{}, apperrors.Wrap(apperrors.CodeNotFound, "flight plan not found", err)
	}
	if !plan.HeldBy(session.ID) {
		return plandomain.Settlement{}, apperrors.WithMetadata(apperrors.CodePlanNotHolder,
			"session does not hold the plan", map[string]string{"PlanID": planID})
	}

	result, err := s.settler.Finalize(ctx, planID)
	if err != nil {
		return plandomain.Settlement{}, err
	}
	if err = s.authority.Release(ctx, planID, session.ID, false); err != nil {
		return plandomain.Settlement{}, err
	}
	return result, nil
}

// Workload lists the plans held by the acting controller's session.
func (s *Service) Workload(ctx context.Context, actor auth.Context) (_ []plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "Workload")
	defer func() { finishSpan(span, err) }()

	session, err := s.activeSession(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.authority.Workload(ctx, session.ID)
}

// UnclaimedAtAirport lists claimable traffic touching the given airport.
func (s *Service) UnclaimedAtAirport(ctx context.Context, actor auth.Context, airport string, limit int) (_ []plandomain.FlightPlan, err error) {
	ctx, span := s.span(ctx, "UnclaimedAtAirport")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireController(actor); err != nil {
		return nil, err
	}
	return s.authority.UnclaimedAtAirport(ctx, airport, limit)
}

// Payables lists payout instruments addressed to the acting principal.
func (s *Service) Payables(ctx context.Context, actor auth.Context, limit int) (_ []storage.PayoutInstrument, err error) {
	ctx, span := s.span(ctx, "Payables")
	defer func() { finishSpan(span, err) }()
	return s.store.ListInstrumentsByRecipient(ctx, actor.ActorID, limit)
}

// TransferFunds moves money between two accounts on operator authority.
func (s *Service) TransferFunds(ctx context.Context, actor auth.Context, fromAccount, toAccount string, amount int64, memo string) (_ string, err error) {
	ctx, span := s.span(ctx, "TransferFunds")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireOperator(actor); err != nil {
		return "", err
	}
	return s.transferer.Transfer(ctx, fromAccount, toAccount, amount, memo)
}

// RecentTelemetry returns the newest reconciliation log entries for operator
// review.
func (s *Service) RecentTelemetry(ctx context.Context, actor auth.Context, limit int) (_ []storage.TelemetryEvent, err error) {
	ctx, span := s.span(ctx, "RecentTelemetry")
	defer func() { finishSpan(span, err) }()

	if err = auth.RequireOperator(actor); err != nil {
		return nil, err
	}
	return s.store.ListTelemetryEvents(ctx, limit)
}
