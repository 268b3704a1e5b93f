package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodePlanEmptyDeparture    = "PLAN_EMPTY_DEPARTURE"
	CodePlanEmptyArrival      = "PLAN_EMPTY_ARRIVAL"
	CodePlanInvalidFlightRule = "PLAN_INVALID_FLIGHT_RULE"
	CodePlanInvalidDuration   = "PLAN_INVALID_DURATION"
	CodePlanEmptyCompany      = "PLAN_EMPTY_COMPANY"

	CodePlanInvalidState      = "PLAN_INVALID_STATE"
	CodePlanInvalidTransition = "PLAN_INVALID_STATUS_TRANSITION"
	CodePlanAlreadyClaimed    = "PLAN_ALREADY_CLAIMED"
	CodePlanNotHolder         = "PLAN_NOT_HOLDER"
	CodePlanNotPilot          = "PLAN_NOT_PILOT"
	CodePlanTransferInFlight  = "PLAN_TRANSFER_IN_PROGRESS"
	CodePlanNoSuchTransfer    = "PLAN_NO_SUCH_TRANSFER"
	CodePlanStaleState        = "PLAN_STALE_STATE"

	CodeSessionEmptyController = "SESSION_EMPTY_CONTROLLER"
	CodeSessionEmptyAirport    = "SESSION_EMPTY_AIRPORT"
	CodeSessionEmptyPosition   = "SESSION_EMPTY_POSITION"
	CodeSessionPositionTaken   = "SESSION_POSITION_TAKEN"
	CodeSessionAlreadyInSvc    = "SESSION_ALREADY_IN_SERVICE"
	CodeSessionAlreadyEnded    = "SESSION_ALREADY_ENDED"

	CodeSettlementFinalized     = "SETTLEMENT_ALREADY_FINALIZED"
	CodeSettlementInvalidAmount = "SETTLEMENT_INVALID_AMOUNT"
	CodeReferenceDataMissing    = "REFERENCE_DATA_MISSING"

	CodeLedgerDebitFailed     = "LEDGER_DEBIT_FAILED"
	CodeLedgerCreditFailed    = "LEDGER_CREDIT_FAILED"
	CodeFundsReversalPending  = "FUNDS_REVERSAL_PENDING"
	CodeFundsInvalidAmount    = "FUNDS_INVALID_AMOUNT"
	CodeFundsSameAccount      = "FUNDS_SAME_ACCOUNT"
	CodeInstrumentAlreadyOut  = "INSTRUMENT_ALREADY_ISSUED"
	CodeAccrualInvalidAmount  = "ACCRUAL_INVALID_AMOUNT"
	CodeAccrualEmptySessionID = "ACCRUAL_EMPTY_SESSION_ID"

	CodeAuthUnauthenticated = "AUTH_UNAUTHENTICATED"
	CodeAuthNotController   = "AUTH_NOT_CONTROLLER"
	CodeAuthNotOperator     = "AUTH_NOT_OPERATOR"

	CodeNotFound = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Flight plan validation errors
		CodePlanEmptyDeparture:    "Departure airport is required",
		CodePlanEmptyArrival:      "Arrival airport is required",
		CodePlanInvalidFlightRule: "Flight rule must be VFR or IFR",
		CodePlanInvalidDuration:   "Planned duration must be at least one minute",
		CodePlanEmptyCompany:      "Commercial flight plans require an operating company",

		// Flight plan lifecycle errors
		CodePlanInvalidState:      "Flight plan status {{.Status}} does not allow {{.Operation}}",
		CodePlanInvalidTransition: "Cannot move flight plan from {{.FromStatus}} to {{.ToStatus}}",
		CodePlanAlreadyClaimed:    "Flight plan is already controlled by {{.Position}} at {{.Airport}}",
		CodePlanNotHolder:         "Your session does not control this flight plan",
		CodePlanNotPilot:          "Only the filing pilot may do this",
		CodePlanTransferInFlight:  "Flight plan already has a handoff to {{.Position}} at {{.Airport}} pending",
		CodePlanNoSuchTransfer:    "No matching handoff is pending for your position",
		CodePlanStaleState:        "Flight plan changed while you were acting; try again",

		// Duty session errors
		CodeSessionEmptyController: "Controller ID is required",
		CodeSessionEmptyAirport:    "Airport code is required",
		CodeSessionEmptyPosition:   "Position is required",
		CodeSessionPositionTaken:   "Position {{.Position}} at {{.Airport}} is already staffed",
		CodeSessionAlreadyInSvc:    "You already have an active duty session",
		CodeSessionAlreadyEnded:    "Duty session has already ended",

		// Settlement errors
		CodeSettlementFinalized:     "Flight has already been settled",
		CodeSettlementInvalidAmount: "Settlement amount is invalid",
		CodeReferenceDataMissing:    "Reference data for {{.Key}} is missing; defaults applied",

		// Ledger / funds errors
		CodeLedgerDebitFailed:     "Account debit failed",
		CodeLedgerCreditFailed:    "Account credit failed",
		CodeFundsReversalPending:  "Transfer failed and the refund is still pending",
		CodeFundsInvalidAmount:    "Transfer amount must be greater than zero",
		CodeFundsSameAccount:      "Cannot transfer funds to the same account",
		CodeInstrumentAlreadyOut:  "Payout has already been issued",
		CodeAccrualInvalidAmount:  "Accrual amount must be greater than zero",
		CodeAccrualEmptySessionID: "Session ID is required for accrual",

		// Authorization errors
		CodeAuthUnauthenticated: "Sign in to continue",
		CodeAuthNotController:   "This action requires an active controller rating",
		CodeAuthNotOperator:     "This action requires operator privileges",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
	},
}
