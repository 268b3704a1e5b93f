// Package seed loads reference data fixtures into the engine database:
// airport tax rates, company fare tables, and aircraft capacities.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath string
	List   bool
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath: envOrDefault(lookup, []string{"AERONET_DB_PATH"}, "aeronet.db"),
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	fs.BoolVar(&cfg.List, "list", false, "list fixtures without writing")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fixtures returns the built-in reference data set.
func Fixtures() ([]refdata.AirportRates, []refdata.CompanyProfile, []refdata.AircraftCapacity) {
	airports := []refdata.AirportRates{
		{Code: "SBGR", BaseTaxBP: 200, VFRTaxBP: 500},
		{Code: "SBSP", BaseTaxBP: 200, VFRTaxBP: 500},
		{Code: "SBRJ", BaseTaxBP: 250, VFRTaxBP: 550},
		{Code: "SBBR", BaseTaxBP: 150, VFRTaxBP: 450},
		{Code: "SBPA", BaseTaxBP: 200, VFRTaxBP: 500},
	}
	companies := []refdata.CompanyProfile{
		{ID: "aurora", Name: "Aurora Linhas Aereas", AccountRef: "acct-aurora", TicketPrice: 12_000, CargoRatePerKg: 150, PayoutBP: 5000},
		{ID: "meridian", Name: "Meridian Air Cargo", AccountRef: "acct-meridian", TicketPrice: 0, CargoRatePerKg: 220, PayoutBP: 4000},
		{ID: "copa-azul", Name: "Copa Azul Express", AccountRef: "acct-copa-azul", TicketPrice: 9_500, CargoRatePerKg: 120, PayoutBP: 5500},
	}
	aircraft := []refdata.AircraftCapacity{
		{Code: "A320", PassengerCapacity: 180, CargoCapacityKg: 2_500},
		{Code: "B738", PassengerCapacity: 186, CargoCapacityKg: 2_600},
		{Code: "E195", PassengerCapacity: 124, CargoCapacityKg: 1_800},
		{Code: "C208", PassengerCapacity: 12, CargoCapacityKg: 1_200},
	}
	return airports, companies, aircraft
}

// Run writes the fixtures into the configured database.
func Run(ctx context.Context, cfg Config) error {
	airports, companies, aircraft := Fixtures()

	if cfg.List {
		for _, a := range airports {
			log.Printf("airport %s base=%dbp vfr=%dbp", a.Code, a.BaseTaxBP, a.VFRTaxBP)
		}
		for _, c := range companies {
			log.Printf("company %s ticket=%d cargo=%d payout=%dbp", c.ID, c.TicketPrice, c.CargoRatePerKg, c.PayoutBP)
		}
		for _, t := range aircraft {
			log.Printf("aircraft %s pax=%d cargo=%dkg", t.Code, t.PassengerCapacity, t.CargoCapacityKg)
		}
		return nil
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	for _, a := range airports {
		if err := store.PutAirportRates(ctx, a); err != nil {
			return fmt.Errorf("seed airport %s: %w", a.Code, err)
		}
	}
	for _, c := range companies {
		if err := store.PutCompanyProfile(ctx, c); err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
	}
	for _, t := range aircraft {
		if err := store.PutAircraftCapacity(ctx, t); err != nil {
			return fmt.Errorf("seed aircraft %s: %w", t.Code, err)
		}
	}

	log.Printf("seeded %d airports, %d companies, %d aircraft types into %s",
		len(airports), len(companies), len(aircraft), cfg.DBPath)
	return nil
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
