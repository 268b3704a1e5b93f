package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/storage"
)

// GetAirportRates returns the tax rates configured for an airport.
func (s *Store) GetAirportRates(ctx context.Context, code string) (refdata.AirportRates, error) {
	if err := s.ready(); err != nil {
		return refdata.AirportRates{}, err
	}
	if err := ctx.Err(); err != nil {
		return refdata.AirportRates{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return refdata.AirportRates{}, fmt.Errorf("airport code is required")
	}

	var rates refdata.AirportRates
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT code, base_tax_bp, vfr_tax_bp FROM airports WHERE code = ?`, code,
	).Scan(&rates.Code, &rates.BaseTaxBP, &rates.VFRTaxBP)
	if errors.Is(err, sql.ErrNoRows) {
		return refdata.AirportRates{}, storage.ErrNotFound
	}
	if err != nil {
		return refdata.AirportRates{}, fmt.Errorf("get airport rates: %w", err)
	}
	return rates, nil
}

// GetCompanyProfile returns a company's fare table and payout split.
func (s *Store) GetCompanyProfile(ctx context.Context, companyID string) (refdata.CompanyProfile, error) {
	if err := s.ready(); err != nil {
		return refdata.CompanyProfile{}, err
	}
	if err := ctx.Err(); err != nil {
		return refdata.CompanyProfile{}, err
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return refdata.CompanyProfile{}, fmt.Errorf("company id is required")
	}

	var (
		profile refdata.CompanyProfile
		name    sql.NullString
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, account_ref, ticket_price, cargo_rate_per_kg, payout_bp
		 FROM companies WHERE id = ?`, companyID,
	).Scan(&profile.ID, &name, &profile.AccountRef, &profile.TicketPrice,
		&profile.CargoRatePerKg, &profile.PayoutBP)
	if errors.Is(err, sql.ErrNoRows) {
		return refdata.CompanyProfile{}, storage.ErrNotFound
	}
	if err != nil {
		return refdata.CompanyProfile{}, fmt.Errorf("get company profile: %w", err)
	}
	profile.Name = name.String
	return profile, nil
}

// GetAircraftCapacity returns an aircraft type's rated load limits.
func (s *Store) GetAircraftCapacity(ctx context.Context, typeCode string) (refdata.AircraftCapacity, error) {
	if err := s.ready(); err != nil {
		return refdata.AircraftCapacity{}, err
	}
	if err := ctx.Err(); err != nil {
		return refdata.AircraftCapacity{}, err
	}
	typeCode = strings.ToUpper(strings.TrimSpace(typeCode))
	if typeCode == "" {
		return refdata.AircraftCapacity{}, fmt.Errorf("aircraft type code is required")
	}

	var capacity refdata.AircraftCapacity
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT code, passenger_capacity, cargo_capacity_kg FROM aircraft_types WHERE code = ?`, typeCode,
	).Scan(&capacity.Code, &capacity.PassengerCapacity, &capacity.CargoCapacityKg)
	if errors.Is(err, sql.ErrNoRows) {
		return refdata.AircraftCapacity{}, storage.ErrNotFound
	}
	if err != nil {
		return refdata.AircraftCapacity{}, fmt.Errorf("get aircraft capacity: %w", err)
	}
	return capacity, nil
}

// PutAirportRates inserts or replaces an airport's tax rates.
func (s *Store) PutAirportRates(ctx context.Context, rates refdata.AirportRates) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	code := strings.ToUpper(strings.TrimSpace(rates.Code))
	if code == "" {
		return fmt.Errorf("airport code is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO airports (code, base_tax_bp, vfr_tax_bp) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET base_tax_bp = excluded.base_tax_bp,
		 vfr_tax_bp = excluded.vfr_tax_bp`,
		code, rates.BaseTaxBP, rates.VFRTaxBP)
	if err != nil {
		return fmt.Errorf("put airport rates: %w", err)
	}
	return nil
}

// PutCompanyProfile inserts or replaces a company profile.
func (s *Store) PutCompanyProfile(ctx context.Context, profile refdata.CompanyProfile) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	companyID := strings.TrimSpace(profile.ID)
	if companyID == "" {
		return fmt.Errorf("company id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO companies (id, name, account_ref, ticket_price, cargo_rate_per_kg, payout_bp)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
		 account_ref = excluded.account_ref, ticket_price = excluded.ticket_price,
		 cargo_rate_per_kg = excluded.cargo_rate_per_kg, payout_bp = excluded.payout_bp`,
		companyID, toNullString(profile.Name), profile.AccountRef,
		profile.TicketPrice, profile.CargoRatePerKg, profile.PayoutBP)
	if err != nil {
		return fmt.Errorf("put company profile: %w", err)
	}
	return nil
}

// PutAircraftCapacity inserts or replaces an aircraft type's load limits.
func (s *Store) PutAircraftCapacity(ctx context.Context, capacity refdata.AircraftCapacity) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	code := strings.ToUpper(strings.TrimSpace(capacity.Code))
	if code == "" {
		return fmt.Errorf("aircraft type code is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO aircraft_types (code, passenger_capacity, cargo_capacity_kg)
		 VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET passenger_capacity = excluded.passenger_capacity,
		 cargo_capacity_kg = excluded.cargo_capacity_kg`,
		code, capacity.PassengerCapacity, capacity.CargoCapacityKg)
	if err != nil {
		return fmt.Errorf("put aircraft capacity: %w", err)
	}
	return nil
}
