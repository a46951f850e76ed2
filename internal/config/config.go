package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Rules    RulesConfig
	Import   ImportConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// RulesConfig locates the categorization rule file.
type RulesConfig struct {
	Path string
}

// ImportConfig holds import defaults.
type ImportConfig struct {
	Dir string // directory scanned for export files
}

// Load reads configuration from file and env. Env var overrides use prefix
// WALLETIMPORT_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "walletimport", "walletimport.db"))
	v.SetDefault("rules.path", filepath.Join(os.Getenv("HOME"), ".config", "walletimport", "rules.txt"))
	v.SetDefault("import.dir", filepath.Join(os.Getenv("HOME"), "Downloads"))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("WALLETIMPORT_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "walletimport"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("WALLETIMPORT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if
// needed.
func Save(cfg Config) error {
	path := os.Getenv("WALLETIMPORT_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "walletimport", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("rules.path", cfg.Rules.Path)
	v.Set("import.dir", cfg.Import.Dir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
