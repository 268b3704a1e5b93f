// Package telemetry records operational events to durable storage.
//
// Downstream failures during settlement crediting and accrual payout are
// never rolled back; they land here as WARN/ERROR events for manual
// reconciliation instead.
package telemetry

import (
	"context"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, severity Severity, component, event, detail string) error {
	if e == nil || e.store == nil {
		return nil
	}
	timestamp := time.Now().UTC()
	if e.clock != nil {
		timestamp = e.clock().UTC()
	}
	return e.store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		Timestamp: timestamp,
		Severity:  string(severity),
		Component: component,
		Event:     event,
		Detail:    detail,
	})
}
