// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Flight plan validation errors
	CodePlanEmptyDeparture    Code = "PLAN_EMPTY_DEPARTURE"
	CodePlanEmptyArrival      Code = "PLAN_EMPTY_ARRIVAL"
	CodePlanInvalidFlightRule Code = "PLAN_INVALID_FLIGHT_RULE"
	CodePlanInvalidDuration   Code = "PLAN_INVALID_DURATION"
	CodePlanEmptyCompany      Code = "PLAN_EMPTY_COMPANY"

	// Flight plan lifecycle errors
	CodePlanInvalidState      Code = "PLAN_INVALID_STATE"
	CodePlanInvalidTransition Code = "PLAN_INVALID_STATUS_TRANSITION"
	CodePlanAlreadyClaimed    Code = "PLAN_ALREADY_CLAIMED"
	CodePlanNotHolder         Code = "PLAN_NOT_HOLDER"
	CodePlanNotPilot          Code = "PLAN_NOT_PILOT"
	CodePlanTransferInFlight  Code = "PLAN_TRANSFER_IN_PROGRESS"
	CodePlanNoSuchTransfer    Code = "PLAN_NO_SUCH_TRANSFER"
	CodePlanStaleState        Code = "PLAN_STALE_STATE"

	// Duty session errors
	CodeSessionEmptyController Code = "SESSION_EMPTY_CONTROLLER"
	CodeSessionEmptyAirport    Code = "SESSION_EMPTY_AIRPORT"
	CodeSessionEmptyPosition   Code = "SESSION_EMPTY_POSITION"
	CodeSessionPositionTaken   Code = "SESSION_POSITION_TAKEN"
	CodeSessionAlreadyInSvc    Code = "SESSION_ALREADY_IN_SERVICE"
	CodeSessionAlreadyEnded    Code = "SESSION_ALREADY_ENDED"

	// Settlement errors
	CodeSettlementFinalized     Code = "SETTLEMENT_ALREADY_FINALIZED"
	CodeSettlementInvalidAmount Code = "SETTLEMENT_INVALID_AMOUNT"
	CodeReferenceDataMissing    Code = "REFERENCE_DATA_MISSING"

	// Ledger / funds errors
	CodeLedgerDebitFailed     Code = "LEDGER_DEBIT_FAILED"
	CodeLedgerCreditFailed    Code = "LEDGER_CREDIT_FAILED"
	CodeFundsReversalPending  Code = "FUNDS_REVERSAL_PENDING"
	CodeFundsInvalidAmount    Code = "FUNDS_INVALID_AMOUNT"
	CodeFundsSameAccount      Code = "FUNDS_SAME_ACCOUNT"
	CodeInstrumentAlreadyOut  Code = "INSTRUMENT_ALREADY_ISSUED"
	CodeAccrualInvalidAmount  Code = "ACCRUAL_INVALID_AMOUNT"
	CodeAccrualEmptySessionID Code = "ACCRUAL_EMPTY_SESSION_ID"

	// Authorization errors
	CodeAuthUnauthenticated Code = "AUTH_UNAUTHENTICATED"
	CodeAuthNotController   Code = "AUTH_NOT_CONTROLLER"
	CodeAuthNotOperator     Code = "AUTH_NOT_OPERATOR"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodePlanEmptyDeparture,
		CodePlanEmptyArrival,
		CodePlanInvalidFlightRule,
		CodePlanInvalidDuration,
		CodePlanEmptyCompany,
		CodeSessionEmptyController,
		CodeSessionEmptyAirport,
		CodeSessionEmptyPosition,
		CodeSettlementInvalidAmount,
		CodeFundsInvalidAmount,
		CodeFundsSameAccount,
		CodeAccrualInvalidAmount,
		CodeAccrualEmptySessionID:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodePlanInvalidState,
		CodePlanInvalidTransition,
		CodePlanAlreadyClaimed,
		CodePlanTransferInFlight,
		CodeSessionPositionTaken,
		CodeSessionAlreadyInSvc,
		CodeSessionAlreadyEnded,
		CodeFundsReversalPending:
		return codes.FailedPrecondition

	// Aborted - lost an optimistic concurrency race; safe to retry
	case CodePlanStaleState:
		return codes.Aborted

	// NotFound - missing records, vanished or expired transfers
	case CodeNotFound,
		CodePlanNoSuchTransfer,
		CodeReferenceDataMissing:
		return codes.NotFound

	// AlreadyExists - duplicate one-shot effects
	case CodeInstrumentAlreadyOut,
		CodeSettlementFinalized:
		return codes.AlreadyExists

	// PermissionDenied - actor is not allowed to act on this record
	case CodePlanNotHolder,
		CodePlanNotPilot,
		CodeAuthNotController,
		CodeAuthNotOperator:
		return codes.PermissionDenied

	case CodeAuthUnauthenticated:
		return codes.Unauthenticated

	// Unavailable - downstream collaborator failures
	case CodeLedgerDebitFailed,
		CodeLedgerCreditFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
