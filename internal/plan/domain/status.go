package domain

// Status describes the lifecycle state of a flight plan.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusFiled indicates the plan was deposited and awaits a controller.
	StatusFiled
	// StatusAwaitingAcceptance indicates a controller claimed the plan for review.
	StatusAwaitingAcceptance
	// StatusAccepted indicates the plan is cleared to operate.
	StatusAccepted
	// StatusInProgress indicates the flight is underway.
	StatusInProgress
	// StatusAwaitingClosure indicates the pilot requested closure.
	StatusAwaitingClosure
	// StatusClosed indicates the flight completed and was settled.
	StatusClosed
	// StatusCancelled indicates the plan was withdrawn before any flight occurred.
	StatusCancelled
	// StatusRefused indicates a controller rejected the plan.
	StatusRefused
)

// String returns the lowercase wire/storage name of the status.
func (s Status) String() string {
	switch s {
	case StatusFiled:
		return "filed"
	case StatusAwaitingAcceptance:
		return "awaiting_acceptance"
	case StatusAccepted:
		return "accepted"
	case StatusInProgress:
		return "in_progress"
	case StatusAwaitingClosure:
		return "awaiting_closure"
	case StatusClosed:
		return "closed"
	case StatusCancelled:
		return "cancelled"
	case StatusRefused:
		return "refused"
	default:
		return "unspecified"
	}
}

// ParseStatus converts a storage name back into a Status.
func ParseStatus(value string) Status {
	switch value {
	case "filed":
		return StatusFiled
	case "awaiting_acceptance":
		return StatusAwaitingAcceptance
	case "accepted":
		return StatusAccepted
	case "in_progress":
		return StatusInProgress
	case "awaiting_closure":
		return StatusAwaitingClosure
	case "closed":
		return StatusClosed
	case "cancelled":
		return StatusCancelled
	case "refused":
		return StatusRefused
	default:
		return StatusUnspecified
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusRefused:
		return true
	default:
		return false
	}
}

// transitions is the full lifecycle graph. Any pair not listed here is
// an invalid transition.
var transitions = map[Status][]Status{
	StatusFiled:              {StatusAwaitingAcceptance, StatusCancelled},
	StatusAwaitingAcceptance: {StatusAccepted, StatusRefused, StatusCancelled},
	StatusAccepted:           {StatusInProgress, StatusAwaitingClosure},
	StatusInProgress:         {StatusAwaitingClosure},
	StatusAwaitingClosure:    {StatusClosed},
	StatusRefused:            {StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is allowed by the
// lifecycle graph.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClosureRequestable reports whether a pilot may request closure from this
// status. Automonitoring plans hold one of these statuses with no holder.
func (s Status) ClosureRequestable() bool {
	return s == StatusAccepted || s == StatusInProgress
}

// Claimable reports whether an unclaimed plan in this status may be claimed
// by a controller. Plans awaiting closure or in a terminal status are not
// claimable.
func (s Status) Claimable() bool {
	switch s {
	case StatusFiled, StatusAwaitingAcceptance, StatusAccepted, StatusInProgress:
		return true
	default:
		return false
	}
}
