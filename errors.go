package medvault

import (
	"errors"
)

var (
	// Key vault errors
	ErrKeyNotFound           = errors.New("no key material stored for patient")
	ErrKeyStorage            = errors.New("key storage failed")
	ErrKeyRetrieval          = errors.New("key retrieval failed: authentication tag mismatch")
	ErrInvalidEnvelopeFormat = errors.New("invalid envelope format")
	ErrDekUnwrap             = errors.New("data key unwrap failed")
	ErrMasterKeyUnavailable  = errors.New("master key unavailable")

	// Proof engine errors
	ErrProofNotFound = errors.New("proof not found")
	ErrProofInactive = errors.New("proof has been revoked")
	ErrProofExpired  = errors.New("proof has expired")
	ErrNoPrivateKey  = errors.New("patient has no private key in vault")
	ErrAccessDenied  = errors.New("access denied")

	// Emergency consent validation errors
	ErrInvalidEmergencyType      = errors.New("invalid emergency type")
	ErrInsufficientJustification = errors.New("medical justification too short")
	ErrContactNotAttempted       = errors.New("patient contact was not attempted")
	ErrDurationExceeded          = errors.New("requested duration exceeds maximum")
	ErrDuplicateAuthorizer       = errors.New("primary and secondary authorizer must be distinct")
	ErrUnqualifiedRole           = errors.New("authorizer role not qualified for emergency access")
	ErrAuthorizerNotOnDuty       = errors.New("authorizer is not on duty")

	// Credential errors
	ErrConsentNotFound   = errors.New("emergency consent record not found")
	ErrInvalidCredential = errors.New("invalid temporary credential")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// IsIntegrityError reports whether the error indicates tampered or corrupted
// ciphertext. These are potential security incidents, never retried.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrKeyRetrieval) ||
		errors.Is(err, ErrDekUnwrap) ||
		errors.Is(err, ErrInvalidEnvelopeFormat)
}

// IsNotFoundError reports whether the error indicates a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrProofNotFound) ||
		errors.Is(err, ErrConsentNotFound) ||
		errors.Is(err, ErrNoPrivateKey)
}

// IsProofStateError reports whether verification failed because of the proof's
// lifecycle state rather than its cryptographic content.
func IsProofStateError(err error) bool {
	return errors.Is(err, ErrProofInactive) ||
		errors.Is(err, ErrProofExpired)
}

// IsPolicyError reports whether an emergency consent request was denied by one
// of the grant gates. Policy violations are terminal; the caller decides
// user-facing messaging.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrInvalidEmergencyType) ||
		errors.Is(err, ErrInsufficientJustification) ||
		errors.Is(err, ErrContactNotAttempted) ||
		errors.Is(err, ErrDurationExceeded) ||
		errors.Is(err, ErrDuplicateAuthorizer) ||
		errors.Is(err, ErrUnqualifiedRole) ||
		errors.Is(err, ErrAuthorizerNotOnDuty) ||
		errors.Is(err, ErrAccessDenied)
}
