package medvault

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by LoadConfig. Environment values
// override the YAML file.
const (
	EnvMasterKeyHex    = "MEDVAULT_MASTER_KEY_HEX"
	EnvMasterKeySource = "MEDVAULT_MASTER_KEY_SOURCE"
	EnvMasterKeyPath   = "MEDVAULT_MASTER_KEY_PATH"
	EnvPBKDF2Iters     = "MEDVAULT_PBKDF2_ITERATIONS"
	EnvMaxEmergency    = "MEDVAULT_MAX_EMERGENCY_DURATION"
	EnvDBPath          = "MEDVAULT_DB_PATH"
)

// LoadConfig reads configuration from an optional YAML file, overlays a .env
// file when present, then applies environment variable overrides and
// validates. Pass an empty path to configure from the environment alone.
func LoadConfig(path string) (Config, error) {
	// A missing .env file is not an error; deployments often rely on real
	// environment variables instead.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	if v := os.Getenv(EnvMasterKeyHex); v != "" {
		cfg.MasterKeyHex = v
	}
	if v := os.Getenv(EnvMasterKeySource); v != "" {
		cfg.MasterKeySource = v
	}
	if v := os.Getenv(EnvMasterKeyPath); v != "" {
		cfg.MasterKeyPath = v
	}
	if v := os.Getenv(EnvPBKDF2Iters); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s must be an integer: %w", EnvPBKDF2Iters, err)
		}
		cfg.PBKDF2Iterations = n
	}
	if v := os.Getenv(EnvMaxEmergency); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s must be a duration: %w", EnvMaxEmergency, err)
		}
		cfg.MaxEmergencyDuration = d
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
