// Package refdata provides read-only reference lookups used by settlement:
// per-airport tax rates, per-company fares and payout split, and
// per-aircraft-type capacity.
//
// Missing rows are not fatal. Documented defaults apply and a WARN telemetry
// event records the substitution for later data correction.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// Documented defaults applied when a reference row is missing.
const (
	// DefaultBaseTaxBP is the IFR airport tax in basis points (2%).
	DefaultBaseTaxBP int64 = 200
	// DefaultVFRTaxBP is the VFR airport tax in basis points (5%).
	DefaultVFRTaxBP int64 = 500
	// DefaultPayoutBP is the pilot share of net revenue in basis points (50%).
	DefaultPayoutBP int64 = 5000
)

// AirportRates holds the tax percentages for one airport.
type AirportRates struct {
	Code      string
	BaseTaxBP int64
	VFRTaxBP  int64
}

// CompanyProfile holds one operating company's fare table and payout split.
type CompanyProfile struct {
	ID   string
	Name string
	// AccountRef addresses the company's ledger account for revenue credits.
	AccountRef string
	// TicketPrice is the per-passenger fare in cents.
	TicketPrice int64
	// CargoRatePerKg is the per-kilogram cargo rate in cents.
	CargoRatePerKg int64
	// PayoutBP is the pilot's share of net revenue in basis points.
	PayoutBP int64
}

// AircraftCapacity holds the rated load limits of one aircraft type.
type AircraftCapacity struct {
	Code              string
	PassengerCapacity int64
	CargoCapacityKg   int64
}

// Source supplies raw reference rows. Missing rows surface as
// storage.ErrNotFound.
type Source interface {
	GetAirportRates(ctx context.Context, code string) (AirportRates, error)
	GetCompanyProfile(ctx context.Context, companyID string) (CompanyProfile, error)
	GetAircraftCapacity(ctx context.Context, typeCode string) (AircraftCapacity, error)
}

// Writer loads reference rows; used by the seed command and tests.
type Writer interface {
	PutAirportRates(ctx context.Context, rates AirportRates) error
	PutCompanyProfile(ctx context.Context, profile CompanyProfile) error
	PutAircraftCapacity(ctx context.Context, capacity AircraftCapacity) error
}

// Resolver wraps a Source with the documented defaults.
type Resolver struct {
	source  Source
	emitter *telemetry.Emitter
	clock   func() time.Time
}

// NewResolver creates a resolver over the given source.
func NewResolver(source Source, emitter *telemetry.Emitter) *Resolver {
	return &Resolver{source: source, emitter: emitter, clock: time.Now}
}

// AirportRates returns the airport's tax rates, substituting the default
// percentages when the airport is unknown.
func (r *Resolver) AirportRates(ctx context.Context, code string) (AirportRates, error) {
	if r == nil || r.source == nil {
		return AirportRates{}, fmt.Errorf("reference data source is not configured")
	}
	rates, err := r.source.GetAirportRates(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.warnMissing(ctx, "airport", code)
			return AirportRates{Code: code, BaseTaxBP: DefaultBaseTaxBP, VFRTaxBP: DefaultVFRTaxBP}, nil
		}
		return AirportRates{}, err
	}
	return rates, nil
}

// CompanyProfile returns the company's fares and split. An unknown company
// settles with zero fares and the default payout split.
func (r *Resolver) CompanyProfile(ctx context.Context, companyID string) (CompanyProfile, error) {
	if r == nil || r.source == nil {
		return CompanyProfile{}, fmt.Errorf("reference data source is not configured")
	}
	profile, err := r.source.GetCompanyProfile(ctx, companyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.warnMissing(ctx, "company", companyID)
			return CompanyProfile{ID: companyID, PayoutBP: DefaultPayoutBP}, nil
		}
		return CompanyProfile{}, err
	}
	if profile.PayoutBP <= 0 {
		profile.PayoutBP = DefaultPayoutBP
	}
	return profile, nil
}

// AircraftCapacity returns the type's rated load limits. An unknown type
// resolves to zero capacity, which settles to an empty load.
func (r *Resolver) AircraftCapacity(ctx context.Context, typeCode string) (AircraftCapacity, error) {
	if r == nil || r.source == nil {
		return AircraftCapacity{}, fmt.Errorf("reference data source is not configured")
	}
	capacity, err := r.source.GetAircraftCapacity(ctx, typeCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.warnMissing(ctx, "aircraft_type", typeCode)
			return AircraftCapacity{Code: typeCode}, nil
		}
		return AircraftCapacity{}, err
	}
	return capacity, nil
}

func (r *Resolver) warnMissing(ctx context.Context, kind, key string) {
	_ = r.emitter.Emit(ctx, telemetry.SeverityWarn, "refdata", "reference_data_missing",
		fmt.Sprintf("%s %q missing, defaults applied", kind, key))
}
