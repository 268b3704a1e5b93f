package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aeronet-project/aeronet/internal/storage"
)

// airportListSeparator joins the distinct airports served into one column.
const airportListSeparator = ","

// CreateInstrument inserts a payout instrument. The unique (kind,
// reference_id) index makes issuance exactly-once; a duplicate maps to
// ErrInstrumentExists.
func (s *Store) CreateInstrument(ctx context.Context, instrument storage.PayoutInstrument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(instrument.ID) == "" {
		return fmt.Errorf("instrument id is required")
	}
	if strings.TrimSpace(instrument.Kind) == "" {
		return fmt.Errorf("instrument kind is required")
	}
	if strings.TrimSpace(instrument.ReferenceID) == "" {
		return fmt.Errorf("instrument reference id is required")
	}
	if strings.TrimSpace(instrument.RecipientID) == "" {
		return fmt.Errorf("instrument recipient id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO payout_instruments (id, kind, reference_id, recipient_id, amount, airports, memo, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		instrument.ID,
		instrument.Kind,
		instrument.ReferenceID,
		instrument.RecipientID,
		instrument.Amount,
		toNullString(strings.Join(instrument.Airports, airportListSeparator)),
		toNullString(instrument.Memo),
		toMillis(instrument.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "constraint failed") {
			return storage.ErrInstrumentExists
		}
		return fmt.Errorf("create payout instrument: %w", err)
	}
	return nil
}

// GetInstrument loads the instrument issued for (kind, referenceID).
func (s *Store) GetInstrument(ctx context.Context, kind, referenceID string) (storage.PayoutInstrument, error) {
	if err := ctx.Err(); err != nil {
		return storage.PayoutInstrument{}, err
	}
	if err := s.ready(); err != nil {
		return storage.PayoutInstrument{}, err
	}
	kind = strings.TrimSpace(kind)
	referenceID = strings.TrimSpace(referenceID)
	if kind == "" || referenceID == "" {
		return storage.PayoutInstrument{}, fmt.Errorf("instrument kind and reference id are required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, kind, reference_id, recipient_id, amount, airports, memo, created_at
FROM payout_instruments
WHERE kind = ? AND reference_id = ?
`, kind, referenceID)
	return scanInstrumentRow(row)
}

// ListInstrumentsByRecipient returns newest-first instruments for a recipient.
func (s *Store) ListInstrumentsByRecipient(ctx context.Context, recipientID string, limit int) ([]storage.PayoutInstrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("recipient id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, kind, reference_id, recipient_id, amount, airports, memo, created_at
FROM payout_instruments
WHERE recipient_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payout instruments: %w", err)
	}
	defer rows.Close()

	var instruments []storage.PayoutInstrument
	for rows.Next() {
		instrument, err := scanInstrumentRow(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, instrument)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout instruments: %w", err)
	}
	return instruments, nil
}

func scanInstrumentRow(row rowScanner) (storage.PayoutInstrument, error) {
	var (
		instrument     storage.PayoutInstrument
		airports, memo sql.NullString
		createdAt      int64
	)
	err := row.Scan(
		&instrument.ID,
		&instrument.Kind,
		&instrument.ReferenceID,
		&instrument.RecipientID,
		&instrument.Amount,
		&airports,
		&memo,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PayoutInstrument{}, storage.ErrNotFound
		}
		return storage.PayoutInstrument{}, fmt.Errorf("scan payout instrument: %w", err)
	}
	if airports.Valid && airports.String != "" {
		instrument.Airports = strings.Split(airports.String, airportListSeparator)
	}
	instrument.Memo = memo.String
	instrument.CreatedAt = fromMillis(createdAt)
	return instrument, nil
}
