package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/storage"
)

func TestAirportRatesRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.GetAirportRates(ctx, "SBGR"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for unseeded airport, got %v", err)
	}

	rates := refdata.AirportRates{Code: "sbgr", BaseTaxBP: 200, VFRTaxBP: 500}
	if err := store.PutAirportRates(ctx, rates); err != nil {
		t.Fatalf("put airport rates: %v", err)
	}

	got, err := store.GetAirportRates(ctx, "sbgr")
	if err != nil {
		t.Fatalf("get airport rates: %v", err)
	}
	if got.Code != "SBGR" || got.BaseTaxBP != 200 || got.VFRTaxBP != 500 {
		t.Fatalf("unexpected rates: %+v", got)
	}

	// Upsert replaces the previous rates for the same code.
	rates.BaseTaxBP = 250
	if err := store.PutAirportRates(ctx, rates); err != nil {
		t.Fatalf("update airport rates: %v", err)
	}
	got, err = store.GetAirportRates(ctx, "SBGR")
	if err != nil {
		t.Fatalf("get updated rates: %v", err)
	}
	if got.BaseTaxBP != 250 {
		t.Fatalf("expected base tax 250, got %d", got.BaseTaxBP)
	}
}

func TestCompanyProfileRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	profile := refdata.CompanyProfile{
		ID:             "aurora",
		Name:           "Aurora Linhas Aereas",
		AccountRef:     "acct-aurora",
		TicketPrice:    12_000,
		CargoRatePerKg: 150,
		PayoutBP:       5000,
	}
	if err := store.PutCompanyProfile(ctx, profile); err != nil {
		t.Fatalf("put company profile: %v", err)
	}

	got, err := store.GetCompanyProfile(ctx, "aurora")
	if err != nil {
		t.Fatalf("get company profile: %v", err)
	}
	if got != profile {
		t.Fatalf("profile mismatch:\n got %+v\nwant %+v", got, profile)
	}

	if _, err := store.GetCompanyProfile(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAircraftCapacityRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	capacity := refdata.AircraftCapacity{Code: "A320", PassengerCapacity: 180, CargoCapacityKg: 2500}
	if err := store.PutAircraftCapacity(ctx, capacity); err != nil {
		t.Fatalf("put aircraft capacity: %v", err)
	}

	got, err := store.GetAircraftCapacity(ctx, "a320")
	if err != nil {
		t.Fatalf("get aircraft capacity: %v", err)
	}
	if got != capacity {
		t.Fatalf("capacity mismatch: got %+v want %+v", got, capacity)
	}

	if _, err := store.GetAircraftCapacity(ctx, "B744"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
