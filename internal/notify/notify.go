// Package notify delivers lifecycle notifications to interested parties.
// Delivery is best effort; failures are logged and never block the
// originating operation.
package notify

import (
	"context"
	"log"
	"sync"
)

// Notification is one message addressed to a single recipient.
type Notification struct {
	// RecipientID is the pilot, controller, or company the message targets.
	RecipientID string
	// Event names what happened, e.g. "plan_claimed" or "settlement_completed".
	Event string
	// PlanID ties the message to a flight plan when one is involved.
	PlanID string
	Detail string
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// LogSink writes notifications to the process log.
type LogSink struct {
	Logger *log.Logger
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, n Notification) {
	logger := log.Default()
	if s != nil && s.Logger != nil {
		logger = s.Logger
	}
	logger.Printf("notify recipient=%s event=%s plan=%s detail=%q",
		n.RecipientID, n.Event, n.PlanID, n.Detail)
}

// CaptureSink records notifications in memory for tests.
type CaptureSink struct {
	mu       sync.Mutex
	received []Notification
}

// Notify implements Sink.
func (s *CaptureSink) Notify(_ context.Context, n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
}

// Received returns a copy of everything captured so far.
func (s *CaptureSink) Received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.received))
	copy(out, s.received)
	return out
}
