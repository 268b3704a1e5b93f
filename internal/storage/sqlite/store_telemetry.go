package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
)

// AppendTelemetryEvent persists one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(event.Severity) == "" {
		return fmt.Errorf("telemetry severity is required")
	}
	if strings.TrimSpace(event.Component) == "" {
		return fmt.Errorf("telemetry component is required")
	}
	if strings.TrimSpace(event.Event) == "" {
		return fmt.Errorf("telemetry event is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (timestamp, severity, component, event, detail)
VALUES (?, ?, ?, ?, ?)
`,
		toMillis(event.Timestamp),
		event.Severity,
		event.Component,
		event.Event,
		toNullString(event.Detail),
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// ListTelemetryEvents returns newest-first telemetry events.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT timestamp, severity, component, event, detail
FROM telemetry_events
ORDER BY timestamp DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	defer rows.Close()

	var events []storage.TelemetryEvent
	for rows.Next() {
		var (
			event     storage.TelemetryEvent
			timestamp int64
			detail    sql.NullString
		)
		if err := rows.Scan(&timestamp, &event.Severity, &event.Component, &event.Event, &detail); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		event.Timestamp = fromMillis(timestamp)
		event.Detail = detail.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry events: %w", err)
	}
	return events, nil
}
