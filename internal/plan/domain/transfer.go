package domain

import "time"

// TransferRequest is a pending control handoff. A plan carries at most one,
// and accepting it clears it atomically.
type TransferRequest struct {
	TargetAirport  string
	TargetPosition string
	RequestedAt    time.Time
	// AcceptDeadline bounds the accept window. An expired request can never
	// be accepted; the accept path re-verifies the deadline.
	AcceptDeadline time.Time
}

// Expired reports whether the accept window has passed.
func (t TransferRequest) Expired(now time.Time) bool {
	return !now.Before(t.AcceptDeadline)
}

// MatchesTarget reports whether the given airport and position are the
// addressee of this handoff.
func (t TransferRequest) MatchesTarget(airport, position string) bool {
	return t.TargetAirport == airport && t.TargetPosition == position
}
