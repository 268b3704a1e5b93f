package domain

import (
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/id"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

// FlightRule distinguishes visual from instrument flight.
type FlightRule int

const (
	// FlightRuleUnspecified represents an invalid flight rule value.
	FlightRuleUnspecified FlightRule = iota
	// FlightRuleVFR indicates visual flight rules.
	FlightRuleVFR
	// FlightRuleIFR indicates instrument flight rules.
	FlightRuleIFR
)

// String returns the storage name of the flight rule.
func (r FlightRule) String() string {
	switch r {
	case FlightRuleVFR:
		return "vfr"
	case FlightRuleIFR:
		return "ifr"
	default:
		return "unspecified"
	}
}

// ParseFlightRule converts a storage name back into a FlightRule.
func ParseFlightRule(value string) FlightRule {
	switch value {
	case "vfr":
		return FlightRuleVFR
	case "ifr":
		return FlightRuleIFR
	default:
		return FlightRuleUnspecified
	}
}

var (
	// ErrEmptyDeparture indicates a missing departure airport.
	ErrEmptyDeparture = apperrors.New(apperrors.CodePlanEmptyDeparture, "departure airport is required")
	// ErrEmptyArrival indicates a missing arrival airport.
	ErrEmptyArrival = apperrors.New(apperrors.CodePlanEmptyArrival, "arrival airport is required")
	// ErrInvalidFlightRule indicates a missing or invalid flight rule.
	ErrInvalidFlightRule = apperrors.New(apperrors.CodePlanInvalidFlightRule, "flight rule is required")
	// ErrInvalidDuration indicates a non-positive planned duration.
	ErrInvalidDuration = apperrors.New(apperrors.CodePlanInvalidDuration, "planned duration must be positive")
	// ErrEmptyCompany indicates a commercial plan without an operating company.
	ErrEmptyCompany = apperrors.New(apperrors.CodePlanEmptyCompany, "commercial plan requires a company")
)

// Holder identifies the controller session currently authorized to act on
// a plan.
type Holder struct {
	SessionID string
	Airport   string
	Position  string
}

// Settlement holds the one-time financial outcome of a closed flight.
// All monetary amounts are cents.
type Settlement struct {
	RevenueGross   int64
	Taxes          int64
	RevenueNet     int64
	PilotSalary    int64
	CompanyRevenue int64
	PassengerCount int64
	CargoKg        int64
}

// FlightPlan is the aggregate record for one flight.
type FlightPlan struct {
	ID string
	// PilotID is empty for controller-authored strips.
	PilotID      string
	CompanyID    string
	AircraftType string
	Callsign     string
	Departure    string
	Arrival      string
	Rule         FlightRule
	// PlannedMinutes is the filed trip duration.
	PlannedMinutes int64
	Commercial     bool
	// Passengers and CargoKg are the pre-declared loads; nil means the load
	// is resolved at settlement from the aircraft's rated capacity.
	Passengers *int64
	CargoKg    *int64

	Status          Status
	Holder          *Holder
	PendingTransfer *TransferRequest
	Automonitoring  bool
	// Settlement is nil until Finalize commits; immutable afterwards.
	Settlement *Settlement

	CreatedAt          time.Time
	AcceptedAt         *time.Time
	ClosureRequestedAt *time.Time
	ClosedAt           *time.Time
}

// HeldBy reports whether the given controller session currently holds the plan.
func (p FlightPlan) HeldBy(sessionID string) bool {
	return p.Holder != nil && p.Holder.SessionID == sessionID
}

// CreatePlanInput describes the fields a pilot supplies when filing.
type CreatePlanInput struct {
	PilotID        string
	CompanyID      string
	AircraftType   string
	Callsign       string
	Departure      string
	Arrival        string
	Rule           FlightRule
	PlannedMinutes int64
	Commercial     bool
	Passengers     *int64
	CargoKg        *int64
}

// NormalizeCreatePlanInput trims free-text fields and validates the input.
func NormalizeCreatePlanInput(input CreatePlanInput) (CreatePlanInput, error) {
	input.PilotID = strings.TrimSpace(input.PilotID)
	input.CompanyID = strings.TrimSpace(input.CompanyID)
	input.AircraftType = strings.TrimSpace(input.AircraftType)
	input.Callsign = strings.TrimSpace(input.Callsign)
	input.Departure = strings.ToUpper(strings.TrimSpace(input.Departure))
	input.Arrival = strings.ToUpper(strings.TrimSpace(input.Arrival))

	if input.Departure == "" {
		return CreatePlanInput{}, ErrEmptyDeparture
	}
	if input.Arrival == "" {
		return CreatePlanInput{}, ErrEmptyArrival
	}
	if input.Rule != FlightRuleVFR && input.Rule != FlightRuleIFR {
		return CreatePlanInput{}, ErrInvalidFlightRule
	}
	if input.PlannedMinutes <= 0 {
		return CreatePlanInput{}, ErrInvalidDuration
	}
	if input.Commercial && input.CompanyID == "" {
		return CreatePlanInput{}, ErrEmptyCompany
	}
	return input, nil
}

// CreateFlightPlan creates a pilot-filed plan with a generated ID.
// The plan starts in Filed status with no holder.
func CreateFlightPlan(input CreatePlanInput, now func() time.Time, idGenerator func() (string, error)) (FlightPlan, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreatePlanInput(input)
	if err != nil {
		return FlightPlan{}, err
	}

	planID, err := idGenerator()
	if err != nil {
		return FlightPlan{}, err
	}

	return FlightPlan{
		ID:             planID,
		PilotID:        normalized.PilotID,
		CompanyID:      normalized.CompanyID,
		AircraftType:   normalized.AircraftType,
		Callsign:       normalized.Callsign,
		Departure:      normalized.Departure,
		Arrival:        normalized.Arrival,
		Rule:           normalized.Rule,
		PlannedMinutes: normalized.PlannedMinutes,
		Commercial:     normalized.Commercial,
		Passengers:     normalized.Passengers,
		CargoKg:        normalized.CargoKg,
		Status:         StatusFiled,
		CreatedAt:      now().UTC(),
	}, nil
}

// CreateControllerStrip creates a controller-authored plan. The strip starts
// in Accepted status with the creating session as holder and no pilot.
func CreateControllerStrip(input CreatePlanInput, holder Holder, now func() time.Time, idGenerator func() (string, error)) (FlightPlan, error) {
	if now == nil {
		now = time.Now
	}

	input.PilotID = ""
	strip, err := CreateFlightPlan(input, now, idGenerator)
	if err != nil {
		return FlightPlan{}, err
	}

	acceptedAt := now().UTC()
	strip.Status = StatusAccepted
	strip.Holder = &holder
	strip.AcceptedAt = &acceptedAt
	return strip, nil
}
