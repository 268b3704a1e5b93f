// Package accrual tracks airport taxes collected under a controller's watch
// and converts them into a single lump-sum payout when the duty session ends.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	dutydomain "github.com/aeronet-project/aeronet/internal/duty/domain"
	"github.com/aeronet-project/aeronet/internal/id"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// PayoutKind is the instrument kind issued for session tax payouts.
const PayoutKind = "controller_tax_payout"

// Store is the persistence surface the ledger needs.
type Store interface {
	storage.AccrualStore
	storage.InstrumentStore
}

// Ledger records per-session tax accrual entries and issues their payout.
type Ledger struct {
	store       Store
	emitter     *telemetry.Emitter
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store Store, emitter *telemetry.Emitter, clock func() time.Time, idGenerator func() (string, error)) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Ledger{store: store, emitter: emitter, clock: clock, idGenerator: idGenerator}
}

// Record appends one tax event to the session's pending accrual.
func (l *Ledger) Record(ctx context.Context, sessionID, planID, airport string, amount int64, description string) error {
	entry, err := dutydomain.NewTaxAccrualEntry(sessionID, planID, airport, amount, description, l.clock, l.idGenerator)
	if err != nil {
		return err
	}
	if err := l.store.AppendAccrual(ctx, entry); err != nil {
		return fmt.Errorf("append accrual: %w", err)
	}
	return nil
}

// Pending returns the session's unconsumed accrual entries.
func (l *Ledger) Pending(ctx context.Context, sessionID string) ([]dutydomain.TaxAccrualEntry, error) {
	return l.store.ListAccruals(ctx, sessionID)
}

// Payout sums the session's accrual into one payable instrument addressed to
// the controller and deletes the consumed entries. A session with no accrual
// produces no instrument. The (kind, sessionID) uniqueness of instruments
// makes the payout exactly-once even if the session teardown is retried.
func (l *Ledger) Payout(ctx context.Context, session dutydomain.Session, controllerID string) (*storage.PayoutInstrument, error) {
	entries, err := l.store.ListAccruals(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list accruals: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var total int64
	airportSet := make(map[string]struct{})
	for _, entry := range entries {
		total += entry.Amount
		if entry.Airport != "" {
			airportSet[entry.Airport] = struct{}{}
		}
	}
	airports := make([]string, 0, len(airportSet))
	for airport := range airportSet {
		airports = append(airports, airport)
	}
	sort.Strings(airports)

	instrumentID, err := l.idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate instrument id: %w", err)
	}
	instrument := storage.PayoutInstrument{
		ID:          instrumentID,
		Kind:        PayoutKind,
		ReferenceID: session.ID,
		RecipientID: controllerID,
		Amount:      total,
		Airports:    airports,
		Memo:        fmt.Sprintf("session tax payout for %s", strings.Join(airports, ",")),
		CreatedAt:   l.clock().UTC(),
	}

	if err := l.store.CreateInstrument(ctx, instrument); err != nil {
		if errors.Is(err, storage.ErrInstrumentExists) {
			// A prior teardown attempt already paid this session out.
			existing, getErr := l.store.GetInstrument(ctx, PayoutKind, session.ID)
			if getErr != nil {
				return nil, fmt.Errorf("load existing payout: %w", getErr)
			}
			if _, delErr := l.store.DeleteAccruals(ctx, session.ID); delErr != nil {
				return nil, fmt.Errorf("delete consumed accruals: %w", delErr)
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("create payout instrument: %w", err)
	}

	if _, err := l.store.DeleteAccruals(ctx, session.ID); err != nil {
		// The instrument is durable; leftover entries are a reconciliation
		// item, not a double payment, because reissue is blocked by the
		// uniqueness of (kind, session).
		_ = l.emitter.Emit(ctx, telemetry.SeverityWarn, "accrual", "accrual_cleanup_failed",
			fmt.Sprintf("session %s: payout issued but entries not deleted: %v", session.ID, err))
	}

	_ = l.emitter.Emit(ctx, telemetry.SeverityInfo, "accrual", "session_payout_issued",
		fmt.Sprintf("session %s: %d cents across %d airports", session.ID, total, len(airports)))
	return &instrument, nil
}
