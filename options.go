package medvault

import (
	"fmt"

	"github.com/rs/zerolog"
)

// vaultSettings collects the collaborators applied by VaultOptions before
// validation in NewKeyVault.
type vaultSettings struct {
	masterKey         []byte
	masterKeyProvider MasterKeyProvider
	store             RecordStore
	audit             AuditLogger
	logger            zerolog.Logger
	iterations        int
}

// VaultOption configures a KeyVault under construction.
type VaultOption func(*vaultSettings) error

// WithMasterKey supplies the raw 32-byte master key directly. Prefer
// WithMasterKeyProvider in production so the key is fetched from a secret
// store rather than wired through configuration.
func WithMasterKey(key []byte) VaultOption {
	return func(s *vaultSettings) error {
		if len(key) != MasterKeySize {
			return fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(key))
		}
		s.masterKey = key
		return nil
	}
}

// WithMasterKeyProvider fetches the master key from a provider (HashiCorp
// Vault, AWS Secrets Manager, ...) at construction time.
func WithMasterKeyProvider(p MasterKeyProvider) VaultOption {
	return func(s *vaultSettings) error {
		if p == nil {
			return fmt.Errorf("master key provider is nil")
		}
		s.masterKeyProvider = p
		return nil
	}
}

// WithRecordStore sets the persistence collaborator.
func WithRecordStore(store RecordStore) VaultOption {
	return func(s *vaultSettings) error {
		if store == nil {
			return fmt.Errorf("record store is nil")
		}
		s.store = store
		return nil
	}
}

// WithAuditLogger sets the audit collaborator.
func WithAuditLogger(audit AuditLogger) VaultOption {
	return func(s *vaultSettings) error {
		if audit == nil {
			return fmt.Errorf("audit logger is nil")
		}
		s.audit = audit
		return nil
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger zerolog.Logger) VaultOption {
	return func(s *vaultSettings) error {
		s.logger = logger
		return nil
	}
}

// WithPBKDF2Iterations overrides the KEK derivation work factor. Lowering it
// below the default is only sensible in tests.
func WithPBKDF2Iterations(n int) VaultOption {
	return func(s *vaultSettings) error {
		if n <= 0 {
			return fmt.Errorf("iteration count must be positive, got %d", n)
		}
		s.iterations = n
		return nil
	}
}
