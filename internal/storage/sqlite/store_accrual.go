package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
)

// AppendAccrual persists one tax accrual entry.
func (s *Store) AppendAccrual(ctx context.Context, entry dutydomain.TaxAccrualEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("accrual id is required")
	}
	if strings.TrimSpace(entry.SessionID) == "" {
		return fmt.Errorf("accrual session id is required")
	}
	if entry.Amount <= 0 {
		return fmt.Errorf("accrual amount must be positive")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tax_accruals (id, session_id, plan_id, airport, amount, description, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		entry.ID,
		entry.SessionID,
		toNullString(entry.PlanID),
		toNullString(entry.Airport),
		entry.Amount,
		toNullString(entry.Description),
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append accrual: %w", err)
	}
	return nil
}

// ListAccruals returns all accrual entries for the session, oldest first.
func (s *Store) ListAccruals(ctx context.Context, sessionID string) ([]dutydomain.TaxAccrualEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, session_id, plan_id, airport, amount, description, created_at
FROM tax_accruals
WHERE session_id = ?
ORDER BY created_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list accruals: %w", err)
	}
	defer rows.Close()

	var entries []dutydomain.TaxAccrualEntry
	for rows.Next() {
		var (
			entry                        dutydomain.TaxAccrualEntry
			planID, airport, description sql.NullString
			createdAt                    int64
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &planID, &airport, &entry.Amount, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan accrual row: %w", err)
		}
		entry.PlanID = planID.String
		entry.Airport = airport.String
		entry.Description = description.String
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accrual rows: %w", err)
	}
	return entries, nil
}

// DeleteAccruals removes all entries for the session, returning the count.
// Called exactly once, after the payout instrument has been persisted.
func (s *Store) DeleteAccruals(ctx context.Context, sessionID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, fmt.Errorf("session id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tax_accruals WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete accruals: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete accruals rows affected: %w", err)
	}
	return deleted, nil
}
