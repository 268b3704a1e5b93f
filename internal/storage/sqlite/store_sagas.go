package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
)

const sagaColumns = `id, from_account, to_account, amount, memo, state, last_error, created_at, updated_at`

// CreateTransferSaga inserts a durable funds transfer attempt.
func (s *Store) CreateTransferSaga(ctx context.Context, saga storage.TransferSagaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(saga.ID) == "" {
		return fmt.Errorf("saga id is required")
	}
	if strings.TrimSpace(saga.FromAccount) == "" || strings.TrimSpace(saga.ToAccount) == "" {
		return fmt.Errorf("saga accounts are required")
	}
	if saga.Amount <= 0 {
		return fmt.Errorf("saga amount must be positive")
	}
	if saga.State == "" {
		saga.State = storage.TransferSagaPending
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO transfer_sagas (id, from_account, to_account, amount, memo, state, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		saga.ID,
		saga.FromAccount,
		saga.ToAccount,
		saga.Amount,
		toNullString(saga.Memo),
		string(saga.State),
		toNullString(saga.LastError),
		toMillis(saga.CreatedAt),
		toMillis(saga.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create transfer saga: %w", err)
	}
	return nil
}

// UpdateTransferSagaState advances a saga between states conditionally.
// The from guard keeps saga progress monotonic under retries.
func (s *Store) UpdateTransferSagaState(ctx context.Context, sagaID string, from, to storage.TransferSagaState, lastError string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	sagaID = strings.TrimSpace(sagaID)
	if sagaID == "" {
		return fmt.Errorf("saga id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE transfer_sagas
SET state = ?, last_error = ?, updated_at = ?
WHERE id = ? AND state = ?
`,
		string(to),
		toNullString(lastError),
		toMillis(at),
		sagaID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update transfer saga state: %w", err)
	}
	return oneRowOrStale(res, "update transfer saga state")
}

// GetTransferSaga loads one saga by ID.
func (s *Store) GetTransferSaga(ctx context.Context, sagaID string) (storage.TransferSagaRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransferSagaRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.TransferSagaRecord{}, err
	}
	sagaID = strings.TrimSpace(sagaID)
	if sagaID == "" {
		return storage.TransferSagaRecord{}, fmt.Errorf("saga id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sagaColumns+` FROM transfer_sagas WHERE id = ?`, sagaID)
	return scanSagaRow(row)
}

// ListTransferSagasByState returns sagas in the given state, oldest first.
func (s *Store) ListTransferSagasByState(ctx context.Context, state storage.TransferSagaState, limit int) ([]storage.TransferSagaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if state == "" {
		return nil, fmt.Errorf("saga state is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sagaColumns+` FROM transfer_sagas WHERE state = ? ORDER BY created_at ASC LIMIT ?`,
		string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list transfer sagas: %w", err)
	}
	defer rows.Close()

	var sagas []storage.TransferSagaRecord
	for rows.Next() {
		saga, err := scanSagaRow(rows)
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, saga)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer sagas: %w", err)
	}
	return sagas, nil
}

func scanSagaRow(row rowScanner) (storage.TransferSagaRecord, error) {
	var (
		saga                 storage.TransferSagaRecord
		memo, lastError      sql.NullString
		state                string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&saga.ID,
		&saga.FromAccount,
		&saga.ToAccount,
		&saga.Amount,
		&memo,
		&state,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TransferSagaRecord{}, storage.ErrNotFound
		}
		return storage.TransferSagaRecord{}, fmt.Errorf("scan transfer saga: %w", err)
	}
	saga.Memo = memo.String
	saga.LastError = lastError.String
	saga.State = storage.TransferSagaState(state)
	saga.CreatedAt = fromMillis(createdAt)
	saga.UpdatedAt = fromMillis(updatedAt)
	return saga, nil
}
