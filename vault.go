package medvault

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"

	"github.com/caretrust/medvault/internal/envelope"
)

const (
	// DefaultPBKDF2Iterations is the KEK derivation work factor.
	DefaultPBKDF2Iterations = 100_000

	// MasterKeySize is the required master key length in bytes.
	MasterKeySize = 32

	// recoveryEntropyBits sizes the mnemonic at 12 words.
	recoveryEntropyBits = 128
)

// Fixed-context salts and AAD strings. The DEK-wrapping KEK and the credential
// signing key are derived from the master key under constant, distinct salts
// so they can never collide with a per-patient KEK.
var (
	dekKEKSalt     = []byte("medvault/dek-kek/v1")
	signingKeySalt = []byte("medvault/credential-signing/v1")
	dekAAD         = []byte("medvault:data-key:v1")
)

// KeyVault custodies patient private keys and document data keys using
// two-tier envelope encryption rooted in one process-wide master key.
//
// Construct with NewKeyVault and explicit collaborators; the vault holds no
// global state and is safe for concurrent use.
type KeyVault struct {
	masterKey  []byte
	store      RecordStore
	audit      AuditLogger
	logger     zerolog.Logger
	iterations int

	// Derived context keys are computed at most once for the process
	// lifetime; redundant computation under a race would be harmless but the
	// once-cell makes the contract explicit.
	dekKEK     func() ([]byte, error)
	signingKey func() ([]byte, error)
}

// NewKeyVault builds a KeyVault. A master key (or provider) and a record store
// are required; the audit logger defaults to a zerolog-backed sink.
func NewKeyVault(ctx context.Context, options ...VaultOption) (*KeyVault, error) {
	cfg := &vaultSettings{
		iterations: DefaultPBKDF2Iterations,
		logger:     zerolog.Nop(),
	}
	for i, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("%w: option %d: %w", ErrInvalidConfiguration, i+1, err)
		}
	}

	masterKey := cfg.masterKey
	if masterKey == nil && cfg.masterKeyProvider != nil {
		mk, err := cfg.masterKeyProvider.MasterKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMasterKeyUnavailable, err)
		}
		masterKey = mk
	}
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d",
			ErrInvalidConfiguration, MasterKeySize, len(masterKey))
	}
	if cfg.store == nil {
		return nil, fmt.Errorf("%w: record store is required", ErrInvalidConfiguration)
	}
	if cfg.audit == nil {
		cfg.audit = NewLoggerAudit(cfg.logger)
	}

	v := &KeyVault{
		masterKey:  masterKey,
		store:      cfg.store,
		audit:      cfg.audit,
		logger:     cfg.logger.With().Str("component", "keyvault").Logger(),
		iterations: cfg.iterations,
	}
	v.dekKEK = sync.OnceValues(func() ([]byte, error) {
		return envelope.DeriveKey(v.masterKey, dekKEKSalt, v.iterations), nil
	})
	v.signingKey = sync.OnceValues(func() ([]byte, error) {
		return envelope.DeriveKey(v.masterKey, signingKeySalt, v.iterations), nil
	})
	return v, nil
}

// StorePatientKey envelope-encrypts privateKey under a KEK derived from the
// master key and patientSalt, and persists the custody record. A nil salt is
// replaced with a fresh random one. Each call overwrites any previous record
// for the patient; keys are not versioned.
func (v *KeyVault) StorePatientKey(ctx context.Context, patientID, privateKey string, patientSalt []byte) (*PatientKeyRecord, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient ID is required", ErrKeyStorage)
	}
	if patientSalt == nil {
		salt, err := envelope.RandomSalt()
		if err != nil {
			v.auditKeyEvent(ctx, EventKeyStored, patientID, OutcomeFailure)
			return nil, fmt.Errorf("%w: %w", ErrKeyStorage, err)
		}
		patientSalt = salt
	}

	kek := envelope.DeriveKey(v.masterKey, patientSalt, v.iterations)
	iv, ciphertext, tag, err := envelope.Seal(kek, []byte(privateKey), []byte(patientID))
	if err != nil {
		v.auditKeyEvent(ctx, EventKeyStored, patientID, OutcomeFailure)
		return nil, fmt.Errorf("%w: %w", ErrKeyStorage, err)
	}

	now := time.Now().UTC()
	rec := &PatientKeyRecord{
		PatientID:           patientID,
		EncryptedPrivateKey: ciphertext,
		IV:                  iv,
		AuthTag:             tag,
		PatientSalt:         patientSalt,
		CreatedAt:           now,
		AccessCount:         0,
		LastAccessed:        now,
	}
	if err := v.store.PutPatientKey(ctx, rec); err != nil {
		v.auditKeyEvent(ctx, EventKeyStored, patientID, OutcomeFailure)
		return nil, fmt.Errorf("%w: persisting key record: %w", ErrKeyStorage, err)
	}

	v.auditKeyEvent(ctx, EventKeyStored, patientID, OutcomeSuccess)
	return rec, nil
}

// RetrievePatientKey re-derives the patient's KEK from the stored salt,
// decrypts the private key, and bumps the access counters. A GCM
// authentication failure aborts decryption entirely and is reported as a
// security violation; altered plaintext is never returned.
func (v *KeyVault) RetrievePatientKey(ctx context.Context, patientID string) (string, error) {
	rec, err := v.store.GetPatientKey(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("loading key record: %w", err)
	}
	if rec == nil {
		v.auditKeyEvent(ctx, EventKeyRetrieved, patientID, OutcomeFailure)
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, patientID)
	}

	kek := envelope.DeriveKey(v.masterKey, rec.PatientSalt, v.iterations)
	plaintext, err := envelope.Open(kek, rec.IV, rec.EncryptedPrivateKey, rec.AuthTag, []byte(patientID))
	if err != nil {
		v.securityViolation(ctx, "key_tamper_detected", patientID, TargetPatientKey, map[string]any{
			"patient_id": patientID,
		})
		return "", fmt.Errorf("%w: %w", ErrKeyRetrieval, err)
	}

	rec.AccessCount++
	rec.LastAccessed = time.Now().UTC()
	if err := v.store.PutPatientKey(ctx, rec); err != nil {
		// Access bookkeeping is non-critical; the retrieval itself succeeded.
		v.logger.Warn().Err(err).Str("patient_id", patientID).Msg("failed to update key access counters")
	}

	v.auditKeyEvent(ctx, EventKeyRetrieved, patientID, OutcomeSuccess)
	return string(plaintext), nil
}

// GenerateDEK returns a fresh random 256-bit document data key, hex-encoded.
func (v *KeyVault) GenerateDEK() (string, error) {
	key, err := envelope.RandomKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// EncryptDataKey wraps a hex-encoded document DEK under the vault's
// fixed-context KEK. The result is hex(iv):hex(ciphertext):hex(tag).
func (v *KeyVault) EncryptDataKey(ctx context.Context, dekHex string) (string, error) {
	dek, err := hex.DecodeString(dekHex)
	if err != nil {
		return "", fmt.Errorf("%w: data key is not hex", ErrInvalidEnvelopeFormat)
	}
	kek, err := v.dekKEK()
	if err != nil {
		return "", err
	}
	iv, ciphertext, tag, err := envelope.Seal(kek, dek, dekAAD)
	if err != nil {
		return "", fmt.Errorf("wrapping data key: %w", err)
	}
	v.auditDataKeyEvent(ctx, "wrap", OutcomeSuccess)
	return envelope.EncodeWrapped(iv, ciphertext, tag), nil
}

// DecryptDataKey unwraps a data key produced by EncryptDataKey. A malformed
// string fails with ErrInvalidEnvelopeFormat; mismatched AAD or corrupted
// ciphertext fails with ErrDekUnwrap, never silently returning garbage.
func (v *KeyVault) DecryptDataKey(ctx context.Context, wrapped string) (string, error) {
	iv, ciphertext, tag, err := envelope.ParseWrapped(wrapped)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEnvelopeFormat, err)
	}
	kek, err := v.dekKEK()
	if err != nil {
		return "", err
	}
	dek, err := envelope.Open(kek, iv, ciphertext, tag, dekAAD)
	if err != nil {
		v.securityViolation(ctx, "data_key_tamper_detected", "", TargetDataKey, nil)
		return "", fmt.Errorf("%w: %w", ErrDekUnwrap, err)
	}
	v.auditDataKeyEvent(ctx, "unwrap", OutcomeSuccess)
	return hex.EncodeToString(dek), nil
}

// GenerateRecoveryPhrase produces a standard 12-word BIP-39 mnemonic from 128
// bits of entropy. Pure utility; no effect on vault state.
func (v *KeyVault) GenerateRecoveryPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(recoveryEntropyBits)
	if err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("mnemonic generation failed: %w", err)
	}
	return mnemonic, nil
}

// credentialSigningKey is consumed by the emergency consent orchestrator to
// sign temporary credentials.
func (v *KeyVault) credentialSigningKey() ([]byte, error) {
	return v.signingKey()
}

func (v *KeyVault) auditKeyEvent(ctx context.Context, eventType, patientID, outcome string) {
	err := v.audit.LogEvent(ctx, AuditEvent{
		EventType:  eventType,
		ActorType:  ActorSystem,
		ActorID:    "keyvault",
		TargetType: TargetPatientKey,
		TargetID:   patientID,
		Action:     eventType,
		Outcome:    outcome,
		Severity:   SeverityInfo,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("audit logging failed")
	}
}

func (v *KeyVault) auditDataKeyEvent(ctx context.Context, action, outcome string) {
	err := v.audit.LogEvent(ctx, AuditEvent{
		EventType:  EventDataKeyWrapped,
		ActorType:  ActorSystem,
		ActorID:    "keyvault",
		TargetType: TargetDataKey,
		Action:     action,
		Outcome:    outcome,
		Severity:   SeverityInfo,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("audit logging failed")
	}
}

func (v *KeyVault) securityViolation(ctx context.Context, violationType, actorID, target string, details map[string]any) {
	err := v.audit.LogSecurityViolation(ctx, SecurityViolation{
		ViolationType:  violationType,
		Severity:       SeverityCritical,
		ActorID:        actorID,
		TargetResource: target,
		Details:        details,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("security violation logging failed")
	}
}
