package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// EnvConfigPath is the environment variable naming the config file to load.
const EnvConfigPath = "DB_CLEANER_CONFIG"

// DefaultConfigPath is used when EnvConfigPath is unset.
const DefaultConfigPath = "./config/config.yaml"

// Load reads configuration from the specified file path, then applies
// environment variable overrides. Env wins over the config file, per table.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromViper creates a Config from an existing Viper instance, applying
// the same environment overrides as Load. Useful for testing.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the source tool's precedence: DATABASE_CONNECTION_STRING
// or DB_URI override db_uri; DRY_RUN overrides dry_run; EXPIRY_DAYS and ARCHIVE
// override every table's expire_days/archive uniformly, env always wins.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("DATABASE_CONNECTION_STRING"); ok && v != "" {
		cfg.DBURI = v
	}
	if v, ok := os.LookupEnv("DB_URI"); ok && v != "" {
		cfg.DBURI = v
	}

	if v, ok := os.LookupEnv("DRY_RUN"); ok {
		cfg.DryRun = parseBoolEnv(v)
	}

	if v, ok := os.LookupEnv("EXPIRY_DAYS"); ok {
		if days, err := strconv.Atoi(v); err == nil {
			for i := range cfg.Tables {
				cfg.Tables[i].ExpireDays = days
			}
		}
	}

	if v, ok := os.LookupEnv("ARCHIVE"); ok {
		archive := parseBoolEnv(v)
		for i := range cfg.Tables {
			cfg.Tables[i].Archive = archive
		}
	}
}

// parseBoolEnv matches the source tool's lenient truthy parsing: true, 1, yes, on.
func parseBoolEnv(v string) bool {
	switch v {
	case "true", "1", "yes", "on", "True", "TRUE", "YES", "ON":
		return true
	default:
		return false
	}
}

// ConfigPathFromEnv resolves the config file path per DB_CLEANER_CONFIG, falling
// back to DefaultConfigPath.
func ConfigPathFromEnv() string {
	if p, ok := os.LookupEnv(EnvConfigPath); ok && p != "" {
		return p
	}
	return DefaultConfigPath
}
