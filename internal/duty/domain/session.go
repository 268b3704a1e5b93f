// Package domain defines controller duty sessions and their tax accrual.
//
// A Session is one continuous duty period of a controller at a single
// (airport, position) pair. At most one session per controller and at most
// one per position may be active at a time. While a session holds flight
// plans, airport taxes collected at settlement accrue to it; the accrual is
// paid out as one aggregated instrument when the session ends.
package domain

import (
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/id"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

// EndMode distinguishes voluntary sign-off from a forced disconnect.
type EndMode int

const (
	// EndModeUnspecified represents an invalid end mode value.
	EndModeUnspecified EndMode = iota
	// EndModeVoluntary indicates the controller signed off.
	EndModeVoluntary
	// EndModeForced indicates an operator disconnected the controller.
	EndModeForced
)

// String returns the storage name of the end mode.
func (m EndMode) String() string {
	switch m {
	case EndModeVoluntary:
		return "voluntary"
	case EndModeForced:
		return "forced"
	default:
		return "unspecified"
	}
}

var (
	// ErrEmptyController indicates a missing controller ID.
	ErrEmptyController = apperrors.New(apperrors.CodeSessionEmptyController, "controller id is required")
	// ErrEmptyAirport indicates a missing airport code.
	ErrEmptyAirport = apperrors.New(apperrors.CodeSessionEmptyAirport, "airport code is required")
	// ErrEmptyPosition indicates a missing position.
	ErrEmptyPosition = apperrors.New(apperrors.CodeSessionEmptyPosition, "position is required")
)

// Session represents one controller duty period.
type Session struct {
	ID           string
	ControllerID string
	Airport      string
	Position     string
	StartedAt    time.Time
	EndedAt      *time.Time // nil while the session is active
}

// Active reports whether the session has not yet ended.
func (s Session) Active() bool {
	return s.EndedAt == nil
}

// HolderRef returns the holder identity this session stamps onto plans.
func (s Session) HolderRef() HolderRef {
	return HolderRef{SessionID: s.ID, Airport: s.Airport, Position: s.Position}
}

// HolderRef mirrors the holder fields stored on a flight plan.
type HolderRef struct {
	SessionID string
	Airport   string
	Position  string
}

// StartSessionInput describes the fields needed to open a duty session.
type StartSessionInput struct {
	ControllerID string
	Airport      string
	Position     string
}

// NormalizeStartSessionInput trims and validates the input.
func NormalizeStartSessionInput(input StartSessionInput) (StartSessionInput, error) {
	input.ControllerID = strings.TrimSpace(input.ControllerID)
	input.Airport = strings.ToUpper(strings.TrimSpace(input.Airport))
	input.Position = strings.ToUpper(strings.TrimSpace(input.Position))

	if input.ControllerID == "" {
		return StartSessionInput{}, ErrEmptyController
	}
	if input.Airport == "" {
		return StartSessionInput{}, ErrEmptyAirport
	}
	if input.Position == "" {
		return StartSessionInput{}, ErrEmptyPosition
	}
	return input, nil
}

// StartSession creates a new active session with a generated ID.
func StartSession(input StartSessionInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeStartSessionInput(input)
	if err != nil {
		return Session{}, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:           sessionID,
		ControllerID: normalized.ControllerID,
		Airport:      normalized.Airport,
		Position:     normalized.Position,
		StartedAt:    now().UTC(),
	}, nil
}

// Controller carries per-controller counters maintained across sessions.
type Controller struct {
	ID string
	// DutyMinutes is cumulative duty time, incremented once per ended session.
	DutyMinutes int64
}
