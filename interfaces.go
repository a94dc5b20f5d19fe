package medvault

import (
	"context"
	"time"
)

// RecordStore is the persistence collaborator. Implementations must provide
// at-least read-committed isolation and an atomic verification counter
// increment (a single UPDATE, not read-modify-write in application code).
//
// Get methods return (nil, nil) when no record exists; callers translate the
// absence into their own sentinel errors.
//
// Implementations:
//   - SQLite: github.com/caretrust/medvault/providers/sqlite.Store
//   - In-memory (testing): medvault.MemoryStore
type RecordStore interface {
	// Patient key custody records. Put overwrites any existing record for the
	// same patient (last write wins; keys are not versioned).
	PutPatientKey(ctx context.Context, rec *PatientKeyRecord) error
	GetPatientKey(ctx context.Context, patientID string) (*PatientKeyRecord, error)

	// Commitment proofs.
	PutProof(ctx context.Context, proof *ZKProof) error
	GetProof(ctx context.Context, proofID string) (*ZKProof, error)
	SetProofActive(ctx context.Context, proofID string, active bool) error
	IncrementVerificationCount(ctx context.Context, proofID string) error
	ListProofsByPatient(ctx context.Context, patientID string) ([]*ZKProof, error)

	// Verification log, append-only.
	AppendVerification(ctx context.Context, rec *ZKVerificationRecord) error

	// Emergency consent records.
	PutConsent(ctx context.Context, rec *EmergencyConsentRecord) error
	GetConsent(ctx context.Context, consentID string) (*EmergencyConsentRecord, error)
	RevokeConsent(ctx context.Context, consentID, revokedBy string, at time.Time) error
}

// MasterKeyProvider supplies the process-wide 32-byte master key. The key is
// fetched once at construction time and held only in process memory.
//
// Implementations:
//   - HashiCorp Vault KV v2: github.com/caretrust/medvault/providers/hashicorp.KVProvider
//   - AWS Secrets Manager: github.com/caretrust/medvault/providers/awssecrets.Provider
//   - Static (testing): medvault.StaticMasterKey
type MasterKeyProvider interface {
	MasterKey(ctx context.Context) ([]byte, error)
}

// AuditLogger is the audit collaborator. Calls are fire-and-forget from the
// core's perspective: a logging failure must never fail the primary operation,
// so callers log the returned error and move on.
//
// Implementations:
//   - zerolog sink: medvault.LoggerAudit
//   - S3 archive: github.com/caretrust/medvault/providers/s3.Archiver
//   - In-memory (testing): medvault.MemoryAudit
type AuditLogger interface {
	LogEvent(ctx context.Context, event AuditEvent) error
	LogSecurityViolation(ctx context.Context, violation SecurityViolation) error
}

// StaffRoster answers on-duty checks for the dual-authorization gate. The
// implementation is expected to consult the hospital's staffing system with a
// caller-supplied timeout on ctx.
type StaffRoster interface {
	IsOnDuty(ctx context.Context, staffID string) (bool, error)
}

// KinNotifier attempts to verify a next-of-kin relationship and contact the
// relative. The orchestrator treats the whole call as best-effort: errors and
// timeouts downgrade the grant's metadata but never deny it.
type KinNotifier interface {
	VerifyAndNotify(ctx context.Context, patientID string, kin NextOfKin) (confirmed bool, err error)
}
