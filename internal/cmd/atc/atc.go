// Package atc wires the control engine daemon: storage, managers, the
// request service, and the background sweepers.
package atc

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aeronet-project/aeronet/internal/accrual"
	"github.com/aeronet-project/aeronet/internal/authority"
	"github.com/aeronet-project/aeronet/internal/duty"
	"github.com/aeronet-project/aeronet/internal/id"
	"github.com/aeronet-project/aeronet/internal/ledger"
	"github.com/aeronet-project/aeronet/internal/notify"
	platformcmd "github.com/aeronet-project/aeronet/internal/platform/cmd"
	"github.com/aeronet-project/aeronet/internal/refdata"
	"github.com/aeronet-project/aeronet/internal/service"
	"github.com/aeronet-project/aeronet/internal/settlement"
	"github.com/aeronet-project/aeronet/internal/storage/sqlite"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// Config holds atc command configuration.
type Config struct {
	DBPath        string
	AcceptWindow  time.Duration
	SweepInterval time.Duration
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath:        envOrDefault(lookup, []string{"AERONET_DB_PATH"}, "aeronet.db"),
		AcceptWindow:  envDurationOrDefault(lookup, []string{"AERONET_TRANSFER_ACCEPT_WINDOW"}, authority.DefaultAcceptWindow),
		SweepInterval: envDurationOrDefault(lookup, []string{"AERONET_SWEEP_INTERVAL"}, 30*time.Second),
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	fs.DurationVar(&cfg.AcceptWindow, "accept-window", cfg.AcceptWindow, "handoff accept window")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "expired-handoff sweep interval")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Engine bundles the wired service and its collaborators for embedding.
type Engine struct {
	Service    *service.Service
	Store      *sqlite.Store
	Sweeper    *authority.Sweeper
	Transferer *ledger.Transferer
}

// Build constructs the full engine over the configured database.
func Build(cfg Config) (*Engine, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	emitter := telemetry.NewEmitter(store)
	notifier := &notify.LogSink{}
	resolver := refdata.NewResolver(store, emitter)
	accounts := ledger.NewMemoryAccountService()
	accruals := accrual.NewLedger(store, emitter, nil, nil)

	settler, err := settlement.NewEngine(store, resolver, accruals, accounts, emitter, notifier, nil, nil)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build settlement engine: %w", err)
	}
	authorityMgr := authority.NewManager(store, emitter, notifier, nil, cfg.AcceptWindow)
	dutyMgr := duty.NewManager(store, settler, accruals, emitter, nil)
	transferer := ledger.NewTransferer(accounts, store, emitter, nil, id.NewID)
	svc := service.New(store, authorityMgr, settler, dutyMgr, accruals, transferer, nil)
	sweeper := authority.NewSweeper(store, emitter, nil, cfg.SweepInterval)

	return &Engine{
		Service:    svc,
		Store:      store,
		Sweeper:    sweeper,
		Transferer: transferer,
	}, nil
}

// Run builds the engine and keeps its background workers going until ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceATC, func(ctx context.Context) error {
		engine, err := Build(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := engine.Store.Close(); err != nil {
				log.Printf("close storage: %v", err)
			}
		}()

		log.Printf("engine ready db=%s accept_window=%s", cfg.DBPath, cfg.AcceptWindow)

		go func() {
			if err := engine.Sweeper.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("sweeper stopped: %v", err)
			}
		}()

		<-ctx.Done()
		return nil
	})
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

func envDurationOrDefault(lookup EnvLookup, keys []string, fallback time.Duration) time.Duration {
	raw := envOrDefault(lookup, keys, "")
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
