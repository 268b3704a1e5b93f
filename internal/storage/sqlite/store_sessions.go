package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/storage"
)

const sessionColumns = `id, controller_id, airport, position, started_at, ended_at`

// CreateSession inserts an active duty session. Uniqueness conflicts on the
// partial indexes map to ErrAlreadyInService and ErrPositionTaken.
func (s *Store) CreateSession(ctx context.Context, session dutydomain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(session.ControllerID) == "" {
		return fmt.Errorf("controller id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO duty_sessions (id, controller_id, airport, position, started_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		session.ID,
		session.ControllerID,
		session.Airport,
		session.Position,
		toMillis(session.StartedAt),
		toNullMillis(session.EndedAt),
	)
	if err != nil {
		if conflictErr := mapSessionConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("create duty session: %w", err)
	}
	return nil
}

// GetSession loads one duty session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (dutydomain.Session, error) {
	if err := ctx.Err(); err != nil {
		return dutydomain.Session{}, err
	}
	if err := s.ready(); err != nil {
		return dutydomain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return dutydomain.Session{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM duty_sessions WHERE id = ?`, sessionID)
	return scanSessionRow(row)
}

// GetActiveSessionByController returns the controller's active session.
func (s *Store) GetActiveSessionByController(ctx context.Context, controllerID string) (dutydomain.Session, error) {
	if err := ctx.Err(); err != nil {
		return dutydomain.Session{}, err
	}
	if err := s.ready(); err != nil {
		return dutydomain.Session{}, err
	}
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return dutydomain.Session{}, fmt.Errorf("controller id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM duty_sessions WHERE controller_id = ? AND ended_at IS NULL`,
		controllerID)
	return scanSessionRow(row)
}

// GetActiveSessionByPosition returns the active session at (airport, position).
func (s *Store) GetActiveSessionByPosition(ctx context.Context, airport, position string) (dutydomain.Session, error) {
	if err := ctx.Err(); err != nil {
		return dutydomain.Session{}, err
	}
	if err := s.ready(); err != nil {
		return dutydomain.Session{}, err
	}
	airport = strings.ToUpper(strings.TrimSpace(airport))
	position = strings.ToUpper(strings.TrimSpace(position))
	if airport == "" || position == "" {
		return dutydomain.Session{}, fmt.Errorf("airport and position are required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM duty_sessions WHERE airport = ? AND position = ? AND ended_at IS NULL`,
		airport, position)
	return scanSessionRow(row)
}

// EndSession stamps endedAt on an active session.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE duty_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		toMillis(endedAt), sessionID)
	if err != nil {
		return fmt.Errorf("end duty session: %w", err)
	}
	return oneRowOrStale(res, "end duty session")
}

// AddDutyMinutes accumulates duty time on the controller counter record.
func (s *Store) AddDutyMinutes(ctx context.Context, controllerID string, minutes int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return fmt.Errorf("controller id is required")
	}
	if minutes < 0 {
		return fmt.Errorf("duty minutes must not be negative")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO controllers (id, duty_minutes) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET duty_minutes = duty_minutes + excluded.duty_minutes
`, controllerID, minutes)
	if err != nil {
		return fmt.Errorf("add duty minutes: %w", err)
	}
	return nil
}

// GetController loads the controller counter record.
func (s *Store) GetController(ctx context.Context, controllerID string) (dutydomain.Controller, error) {
	if err := ctx.Err(); err != nil {
		return dutydomain.Controller{}, err
	}
	if err := s.ready(); err != nil {
		return dutydomain.Controller{}, err
	}
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return dutydomain.Controller{}, fmt.Errorf("controller id is required")
	}

	var controller dutydomain.Controller
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, duty_minutes FROM controllers WHERE id = ?`, controllerID)
	if err := row.Scan(&controller.ID, &controller.DutyMinutes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dutydomain.Controller{}, storage.ErrNotFound
		}
		return dutydomain.Controller{}, fmt.Errorf("get controller: %w", err)
	}
	return controller, nil
}

func scanSessionRow(row rowScanner) (dutydomain.Session, error) {
	var (
		session   dutydomain.Session
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := row.Scan(&session.ID, &session.ControllerID, &session.Airport, &session.Position, &startedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dutydomain.Session{}, storage.ErrNotFound
		}
		return dutydomain.Session{}, fmt.Errorf("scan duty session: %w", err)
	}
	session.StartedAt = fromMillis(startedAt)
	session.EndedAt = fromNullMillis(endedAt)
	return session, nil
}

// mapSessionConflict translates partial-index violations into the sentinel
// errors the lifecycle manager reports to callers.
func mapSessionConflict(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "constraint failed") {
		return nil
	}
	// Violations surface either as column names or as the partial index name.
	if strings.Contains(msg, "controller") {
		return storage.ErrAlreadyInService
	}
	if strings.Contains(msg, "position") || strings.Contains(msg, "airport") {
		return storage.ErrPositionTaken
	}
	return nil
}
