// Package domain defines the flight plan aggregate and its lifecycle state.
//
// A FlightPlan is the single shared mutable record of the control engine.
// Its status, current holder, pending handoff, automonitoring flag, and
// settlement fields are only ever mutated through atomic conditional
// updates provided by the storage layer, so concurrent controller sessions
// never need cross-record locks.
//
// # Lifecycle
//
// Plans move through the following statuses:
//   - Filed: deposited by a pilot, not yet reviewed by any controller.
//   - AwaitingAcceptance: claimed by a controller, pending review.
//   - Accepted: cleared to operate; also the initial status of
//     controller-authored strips.
//   - InProgress: airborne.
//   - AwaitingClosure: the pilot has requested closure; settlement pending.
//   - Closed, Cancelled, Refused: terminal.
//
// Automonitoring is a flag, not a status: an Accepted or InProgress plan
// whose controller disappears keeps flying unsupervised with the flag set,
// and may be re-claimed later.
package domain
