package atc

import (
	"flag"
	"testing"
	"time"

	"github.com/aeronet-project/aeronet/internal/authority"
)

func lookupFrom(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("atc", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookupFrom(nil))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "aeronet.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.AcceptWindow != authority.DefaultAcceptWindow {
		t.Fatalf("expected default accept window, got %s", cfg.AcceptWindow)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("expected default sweep interval, got %s", cfg.SweepInterval)
	}
}

func TestParseConfigEnv(t *testing.T) {
	fs := flag.NewFlagSet("atc", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookupFrom(map[string]string{
		"AERONET_DB_PATH":                "/data/atc.db",
		"AERONET_TRANSFER_ACCEPT_WINDOW": "90s",
		"AERONET_SWEEP_INTERVAL":         "1m",
	}))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/data/atc.db" {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.AcceptWindow != 90*time.Second {
		t.Fatalf("unexpected accept window %s", cfg.AcceptWindow)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	fs := flag.NewFlagSet("atc", flag.ContinueOnError)
	cfg, err := ParseConfig(fs,
		[]string{"-db", "override.db", "-accept-window", "2m"},
		lookupFrom(map[string]string{"AERONET_DB_PATH": "/data/atc.db"}))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "override.db" {
		t.Fatalf("flag should win over env, got %q", cfg.DBPath)
	}
	if cfg.AcceptWindow != 2*time.Minute {
		t.Fatalf("unexpected accept window %s", cfg.AcceptWindow)
	}
}

func TestParseConfigIgnoresBadDuration(t *testing.T) {
	fs := flag.NewFlagSet("atc", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookupFrom(map[string]string{
		"AERONET_TRANSFER_ACCEPT_WINDOW": "soon",
	}))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.AcceptWindow != authority.DefaultAcceptWindow {
		t.Fatalf("bad duration should fall back to default, got %s", cfg.AcceptWindow)
	}
}
