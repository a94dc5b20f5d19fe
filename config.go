package medvault

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Config holds the deployment configuration for constructing the three
// services. It contains only data; load it from YAML/env with LoadConfig or
// build it in code, then pass the pieces to the constructors.
type Config struct {
	// MasterKeyHex is the hex-encoded 32-byte master key. Leave empty when a
	// MasterKeyProvider (Vault, Secrets Manager) supplies the key instead; one
	// of the two must be configured.
	MasterKeyHex string `yaml:"master_key_hex"`

	// MasterKeySource selects the provider when MasterKeyHex is empty:
	// "vault", "awssecrets", or "static".
	MasterKeySource string `yaml:"master_key_source"`

	// MasterKeyPath is the provider-specific location of the master key
	// (Vault KV path or Secrets Manager secret name).
	MasterKeyPath string `yaml:"master_key_path"`

	// PBKDF2Iterations is the KEK derivation work factor.
	// Default: 100000.
	PBKDF2Iterations int `yaml:"pbkdf2_iterations"`

	// MaxEmergencyDuration caps emergency grants. Default: 24h.
	MaxEmergencyDuration time.Duration `yaml:"max_emergency_duration"`

	// DBPath is the SQLite record store location used by the default
	// persistence provider. Default: medvault.db.
	DBPath string `yaml:"db_path"`
}

// Default optional values.
const (
	DefaultDBPath = "medvault.db"
)

// Validate checks required fields and applies defaults to optional ones.
func (c *Config) Validate() error {
	if c.MasterKeyHex == "" && c.MasterKeySource == "" {
		return fmt.Errorf("%w: either master_key_hex or master_key_source is required", ErrInvalidConfiguration)
	}
	if c.MasterKeyHex != "" {
		key, err := hex.DecodeString(c.MasterKeyHex)
		if err != nil {
			return fmt.Errorf("%w: master_key_hex is not hex", ErrInvalidConfiguration)
		}
		if len(key) != MasterKeySize {
			return fmt.Errorf("%w: master key must be %d bytes, got %d", ErrInvalidConfiguration, MasterKeySize, len(key))
		}
	}
	if c.PBKDF2Iterations == 0 {
		c.PBKDF2Iterations = DefaultPBKDF2Iterations
	}
	if c.PBKDF2Iterations < 0 {
		return fmt.Errorf("%w: pbkdf2_iterations must be positive", ErrInvalidConfiguration)
	}
	if c.MaxEmergencyDuration == 0 {
		c.MaxEmergencyDuration = MaxEmergencyDuration
	}
	if c.MaxEmergencyDuration < 0 {
		return fmt.Errorf("%w: max_emergency_duration must be positive", ErrInvalidConfiguration)
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	return nil
}

// MasterKey decodes the inline master key. Returns nil when the key comes
// from a provider instead.
func (c *Config) MasterKey() []byte {
	if c.MasterKeyHex == "" {
		return nil
	}
	key, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil {
		return nil
	}
	return key
}
