package domain

import (
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/id"
	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

var (
	// ErrEmptyAccrualSession indicates a tax entry without an owning session.
	ErrEmptyAccrualSession = apperrors.New(apperrors.CodeAccrualEmptySessionID, "session id is required for accrual")
	// ErrInvalidAccrualAmount indicates a non-positive tax amount.
	ErrInvalidAccrualAmount = apperrors.New(apperrors.CodeAccrualInvalidAmount, "accrual amount must be positive")
)

// TaxAccrualEntry is one tax event attributed to a duty session. Entries are
// consumed exactly once, at session end, after being summed into a single
// payout instrument.
type TaxAccrualEntry struct {
	ID          string
	SessionID   string
	PlanID      string
	Airport     string
	Amount      int64 // cents
	Description string
	CreatedAt   time.Time
}

// NewTaxAccrualEntry validates and creates a tax accrual entry.
func NewTaxAccrualEntry(sessionID, planID, airport string, amount int64, description string, now func() time.Time, idGenerator func() (string, error)) (TaxAccrualEntry, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return TaxAccrualEntry{}, ErrEmptyAccrualSession
	}
	if amount <= 0 {
		return TaxAccrualEntry{}, ErrInvalidAccrualAmount
	}

	entryID, err := idGenerator()
	if err != nil {
		return TaxAccrualEntry{}, err
	}

	return TaxAccrualEntry{
		ID:          entryID,
		SessionID:   sessionID,
		PlanID:      strings.TrimSpace(planID),
		Airport:     strings.ToUpper(strings.TrimSpace(airport)),
		Amount:      amount,
		Description: strings.TrimSpace(description),
		CreatedAt:   now().UTC(),
	}, nil
}
