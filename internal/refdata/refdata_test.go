package refdata

import (
	"context"
	"testing"

	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

type fakeSource struct {
	airports  map[string]AirportRates
	companies map[string]CompanyProfile
	aircraft  map[string]AircraftCapacity
}

func (f *fakeSource) GetAirportRates(_ context.Context, code string) (AirportRates, error) {
	rates, ok := f.airports[code]
	if !ok {
		return AirportRates{}, storage.ErrNotFound
	}
	return rates, nil
}

func (f *fakeSource) GetCompanyProfile(_ context.Context, companyID string) (CompanyProfile, error) {
	profile, ok := f.companies[companyID]
	if !ok {
		return CompanyProfile{}, storage.ErrNotFound
	}
	return profile, nil
}

func (f *fakeSource) GetAircraftCapacity(_ context.Context, typeCode string) (AircraftCapacity, error) {
	capacity, ok := f.aircraft[typeCode]
	if !ok {
		return AircraftCapacity{}, storage.ErrNotFound
	}
	return capacity, nil
}

type captureTelemetry struct {
	events []storage.TelemetryEvent
}

func (c *captureTelemetry) AppendTelemetryEvent(_ context.Context, event storage.TelemetryEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureTelemetry) ListTelemetryEvents(_ context.Context, _ int) ([]storage.TelemetryEvent, error) {
	return c.events, nil
}

func TestAirportRatesKnown(t *testing.T) {
	source := &fakeSource{airports: map[string]AirportRates{
		"SBGR": {Code: "SBGR", BaseTaxBP: 250, VFRTaxBP: 550},
	}}
	resolver := NewResolver(source, nil)

	rates, err := resolver.AirportRates(context.Background(), "SBGR")
	if err != nil {
		t.Fatalf("resolve airport: %v", err)
	}
	if rates.BaseTaxBP != 250 || rates.VFRTaxBP != 550 {
		t.Fatalf("unexpected rates: %+v", rates)
	}
}

func TestAirportRatesDefaultsWhenMissing(t *testing.T) {
	capture := &captureTelemetry{}
	resolver := NewResolver(&fakeSource{}, telemetry.NewEmitter(capture))

	rates, err := resolver.AirportRates(context.Background(), "XXXX")
	if err != nil {
		t.Fatalf("resolve missing airport: %v", err)
	}
	if rates.BaseTaxBP != DefaultBaseTaxBP || rates.VFRTaxBP != DefaultVFRTaxBP {
		t.Fatalf("expected default rates, got %+v", rates)
	}
	if len(capture.events) != 1 {
		t.Fatalf("expected one warning, got %d", len(capture.events))
	}
	event := capture.events[0]
	if event.Severity != string(telemetry.SeverityWarn) || event.Event != "reference_data_missing" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestCompanyProfileDefaultsWhenMissing(t *testing.T) {
	resolver := NewResolver(&fakeSource{}, nil)

	profile, err := resolver.CompanyProfile(context.Background(), "ghost-air")
	if err != nil {
		t.Fatalf("resolve missing company: %v", err)
	}
	if profile.TicketPrice != 0 || profile.CargoRatePerKg != 0 {
		t.Fatalf("expected zero fares, got %+v", profile)
	}
	if profile.PayoutBP != DefaultPayoutBP {
		t.Fatalf("expected default payout split, got %d", profile.PayoutBP)
	}
}

func TestCompanyProfileBackfillsPayoutSplit(t *testing.T) {
	source := &fakeSource{companies: map[string]CompanyProfile{
		"aurora": {ID: "aurora", AccountRef: "acct-aurora", TicketPrice: 12_000},
	}}
	resolver := NewResolver(source, nil)

	profile, err := resolver.CompanyProfile(context.Background(), "aurora")
	if err != nil {
		t.Fatalf("resolve company: %v", err)
	}
	if profile.PayoutBP != DefaultPayoutBP {
		t.Fatalf("expected payout backfill to %d, got %d", DefaultPayoutBP, profile.PayoutBP)
	}
	if profile.TicketPrice != 12_000 {
		t.Fatalf("fares should pass through, got %+v", profile)
	}
}

func TestAircraftCapacityZeroWhenMissing(t *testing.T) {
	resolver := NewResolver(&fakeSource{}, nil)

	capacity, err := resolver.AircraftCapacity(context.Background(), "ZZZZ")
	if err != nil {
		t.Fatalf("resolve missing aircraft: %v", err)
	}
	if capacity.PassengerCapacity != 0 || capacity.CargoCapacityKg != 0 {
		t.Fatalf("expected zero capacity, got %+v", capacity)
	}
}
