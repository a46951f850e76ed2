package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WALLETIMPORT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path == "" {
		t.Error("database path default missing")
	}
	if cfg.Rules.Path == "" {
		t.Error("rules path default missing")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WALLETIMPORT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("WALLETIMPORT_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("WALLETIMPORT_CONFIG", path)

	want := Config{
		Database: DatabaseConfig{Path: "/tmp/wallet.db"},
		Rules:    RulesConfig{Path: "/tmp/rules.txt"},
		Import:   ImportConfig{Dir: "/tmp/exports"},
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Database.Path != want.Database.Path {
		t.Errorf("database path = %q, want %q", got.Database.Path, want.Database.Path)
	}
	if got.Rules.Path != want.Rules.Path {
		t.Errorf("rules path = %q, want %q", got.Rules.Path, want.Rules.Path)
	}
	if got.Import.Dir != want.Import.Dir {
		t.Errorf("import dir = %q, want %q", got.Import.Dir, want.Import.Dir)
	}
}
