// Package storage defines the persistence contracts for the control engine.
//
// Every mutation of a flight plan is an optimistic, single-row conditional
// update: the caller states the prior state it expects, and the store applies
// the write only if that state still matches, returning ErrStaleState
// otherwise. This compare-and-swap is the sole concurrency primitive the
// engine relies on; there are no cross-plan or cross-session locks.
package storage

import (
	"context"
	"errors"
	"time"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState indicates a conditional update lost its race: the
	// expected prior state no longer matched at write time.
	ErrStaleState = errors.New("record state changed since read")
	// ErrPositionTaken indicates another active session occupies the
	// (airport, position) pair.
	ErrPositionTaken = errors.New("position already staffed")
	// ErrAlreadyInService indicates the controller already has an active session.
	ErrAlreadyInService = errors.New("controller already in service")
	// ErrInstrumentExists indicates a payout instrument was already issued
	// for the same reference.
	ErrInstrumentExists = errors.New("payout instrument already issued")
)

// PlanStore persists flight plan aggregates. All mutating operations are
// conditional updates; a zero-row result surfaces as ErrStaleState.
type PlanStore interface {
	// CreatePlan inserts a new plan record.
	CreatePlan(ctx context.Context, plan plandomain.FlightPlan) error
	// GetPlan loads one plan by ID.
	GetPlan(ctx context.Context, planID string) (plandomain.FlightPlan, error)

	// SetStatus moves a plan from one status to another, optionally gated on
	// the holder session. It stamps acceptedAt, closureRequestedAt, or
	// closedAt when the target status calls for it.
	SetStatus(ctx context.Context, planID string, from, to plandomain.Status, holderSessionID string, at time.Time) error

	// ClaimHolder installs a holder on an unclaimed plan. Filed plans are
	// advanced to awaiting-acceptance in the same write; automonitoring is
	// cleared, but an automonitoring plan can only be claimed by a holder
	// at its departure or arrival airport. Fails ErrStaleState if the plan
	// has a holder or is not in a claimable status.
	ClaimHolder(ctx context.Context, planID string, holder plandomain.Holder) error

	// ReleaseHolder clears the holder for the given session, setting the
	// automonitoring flag as instructed. Any pending transfer is cleared
	// with the holder.
	ReleaseHolder(ctx context.Context, planID, sessionID string, automonitoring bool) error

	// AttachPendingTransfer records a handoff proposal. Fails ErrStaleState
	// unless the session holds the plan and no pending transfer exists.
	AttachPendingTransfer(ctx context.Context, planID, sessionID string, transfer plandomain.TransferRequest) error

	// ClearPendingTransfer drops a pending transfer. Fails ErrStaleState
	// unless the session still holds the plan and the stored offer matches
	// the expected target and deadline.
	ClearPendingTransfer(ctx context.Context, planID, sessionID string, expected plandomain.TransferRequest) error

	// AcceptTransfer atomically installs the accepting holder and clears the
	// pending transfer, provided a live transfer addressed to the holder's
	// (airport, position) exists and now is before its deadline. Exactly one
	// of N concurrent acceptors can win. Fails ErrStaleState otherwise.
	AcceptTransfer(ctx context.Context, planID string, holder plandomain.Holder, now time.Time) error

	// ClearExpiredTransfers drops every pending transfer whose deadline is
	// at or before now, returning the number cleared.
	ClearExpiredTransfers(ctx context.Context, now time.Time) (int64, error)

	// FinalizeSettlement writes the settlement fields exactly once, moving
	// the plan from awaiting-closure to closed. Fails ErrStaleState if the
	// plan is not awaiting closure or was already settled.
	FinalizeSettlement(ctx context.Context, planID string, settlement plandomain.Settlement, closedAt time.Time) error

	// ListHeldBySession returns every plan currently held by the session.
	ListHeldBySession(ctx context.Context, sessionID string) ([]plandomain.FlightPlan, error)

	// ListUnclaimedByAirport returns claimable, holderless plans whose
	// departure or arrival matches the airport, oldest first.
	ListUnclaimedByAirport(ctx context.Context, airport string, limit int) ([]plandomain.FlightPlan, error)
}

// SessionStore persists controller duty sessions and controller counters.
type SessionStore interface {
	// CreateSession inserts an active session. Fails ErrPositionTaken or
	// ErrAlreadyInService on uniqueness conflicts.
	CreateSession(ctx context.Context, session dutydomain.Session) error
	GetSession(ctx context.Context, sessionID string) (dutydomain.Session, error)
	// GetActiveSessionByController returns the controller's active session.
	GetActiveSessionByController(ctx context.Context, controllerID string) (dutydomain.Session, error)
	// GetActiveSessionByPosition returns the active session at the position.
	GetActiveSessionByPosition(ctx context.Context, airport, position string) (dutydomain.Session, error)
	// EndSession stamps endedAt on an active session. Fails ErrStaleState
	// if the session already ended.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error
	// AddDutyMinutes accumulates duty time on the controller record.
	AddDutyMinutes(ctx context.Context, controllerID string, minutes int64) error
	GetController(ctx context.Context, controllerID string) (dutydomain.Controller, error)
}

// AccrualStore persists per-session tax accrual entries.
type AccrualStore interface {
	AppendAccrual(ctx context.Context, entry dutydomain.TaxAccrualEntry) error
	ListAccruals(ctx context.Context, sessionID string) ([]dutydomain.TaxAccrualEntry, error)
	// DeleteAccruals removes all entries for a session, returning the count.
	DeleteAccruals(ctx context.Context, sessionID string) (int64, error)
}

// PayoutInstrument is one durable payable addressed to a pilot or controller.
// Kind plus ReferenceID is unique, which makes issuance exactly-once.
type PayoutInstrument struct {
	ID          string
	Kind        string // "controller_tax_payout" or "pilot_salary"
	ReferenceID string // session ID or plan ID the payout settles
	RecipientID string
	Amount      int64 // cents
	Airports    []string
	Memo        string
	CreatedAt   time.Time
}

// InstrumentStore persists payout instruments.
type InstrumentStore interface {
	// CreateInstrument inserts an instrument. Fails ErrInstrumentExists if
	// one was already issued for the same (kind, referenceID).
	CreateInstrument(ctx context.Context, instrument PayoutInstrument) error
	GetInstrument(ctx context.Context, kind, referenceID string) (PayoutInstrument, error)
	ListInstrumentsByRecipient(ctx context.Context, recipientID string, limit int) ([]PayoutInstrument, error)
}

// TransferSagaState tracks the durable progress of a peer funds transfer.
type TransferSagaState string

const (
	TransferSagaPending         TransferSagaState = "pending"
	TransferSagaDebited         TransferSagaState = "debited"
	TransferSagaCompleted       TransferSagaState = "completed"
	TransferSagaFailed          TransferSagaState = "failed"
	TransferSagaReversed        TransferSagaState = "reversed"
	TransferSagaReversalPending TransferSagaState = "reversal_pending"
)

// TransferSagaRecord is one durable peer funds transfer attempt.
type TransferSagaRecord struct {
	ID          string
	FromAccount string
	ToAccount   string
	Amount      int64 // cents
	Memo        string
	State       TransferSagaState
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransferSagaStore persists funds transfer sagas.
type TransferSagaStore interface {
	CreateTransferSaga(ctx context.Context, saga TransferSagaRecord) error
	UpdateTransferSagaState(ctx context.Context, sagaID string, from, to TransferSagaState, lastError string, at time.Time) error
	GetTransferSaga(ctx context.Context, sagaID string) (TransferSagaRecord, error)
	// ListTransferSagasByState returns sagas in the given state, oldest
	// first, for reconciliation tooling.
	ListTransferSagasByState(ctx context.Context, state TransferSagaState, limit int) ([]TransferSagaRecord, error)
}

// TelemetryEvent records one operational event for the durable
// reconciliation log.
type TelemetryEvent struct {
	Timestamp time.Time
	Severity  string
	Component string
	Event     string
	Detail    string
}

// TelemetryStore persists telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
	ListTelemetryEvents(ctx context.Context, limit int) ([]TelemetryEvent, error)
}
