package medvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caretrust/medvault/internal/commitment"
	"github.com/caretrust/medvault/internal/envelope"
)

// DefaultProofValidityDays is applied when a generate call passes zero days.
const DefaultProofValidityDays = 30

// ProofEngine lets a patient assert a medical fact to a third party via a
// non-reversible Poseidon commitment, and lets verifiers check the assertion
// without learning the fact.
//
// The stored challenge is reused across repeated verifications of the same
// proof: replay across time is bounded by the proof's expiry, not by
// single-use nonces. Callers needing one-time semantics must layer a nonce on
// top.
type ProofEngine struct {
	vault  *KeyVault
	store  RecordStore
	audit  AuditLogger
	logger zerolog.Logger
	now    func() time.Time
}

// EngineOption configures a ProofEngine.
type EngineOption func(*ProofEngine)

// WithEngineClock overrides the engine's time source. Test seam for expiry
// boundary behavior.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *ProofEngine) { e.now = now }
}

// NewProofEngine builds a ProofEngine sharing the vault's store and audit
// collaborators.
func NewProofEngine(vault *KeyVault, options ...EngineOption) (*ProofEngine, error) {
	if vault == nil {
		return nil, fmt.Errorf("%w: key vault is required", ErrInvalidConfiguration)
	}
	e := &ProofEngine{
		vault:  vault,
		store:  vault.store,
		audit:  vault.audit,
		logger: vault.logger.With().Str("component", "proofengine").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// ageFact is the encrypted secret payload of an age proof. Both the age and
// the threshold are bound into the commitment, so a verifier learns only
// "age ≥ minAge is attested", never the exact age.
type ageFact struct {
	Age       int    `json:"age"`
	MinAge    int    `json:"min_age"`
	BirthDate string `json:"birth_date"`
}

// GenerateConditionProof commits to a diagnosed condition.
func (e *ProofEngine) GenerateConditionProof(ctx context.Context, patientID, condition, publicStatement string, expiresInDays int) (*ZKProof, error) {
	h, err := commitment.HashFact(condition)
	if err != nil {
		return nil, err
	}
	return e.generate(ctx, patientID, ProofTypeCondition, publicStatement, condition, h, expiresInDays)
}

// GenerateAllergyProof commits to an allergy.
func (e *ProofEngine) GenerateAllergyProof(ctx context.Context, patientID, allergy, publicStatement string, expiresInDays int) (*ZKProof, error) {
	h, err := commitment.HashFact(allergy)
	if err != nil {
		return nil, err
	}
	return e.generate(ctx, patientID, ProofTypeAllergy, publicStatement, allergy, h, expiresInDays)
}

// GenerateAgeProof commits to "age ≥ minAge" computed from the patient's birth
// date at generation time.
func (e *ProofEngine) GenerateAgeProof(ctx context.Context, patientID string, birthDate time.Time, minAge int, publicStatement string, expiresInDays int) (*ZKProof, error) {
	age := yearsBetween(birthDate, e.now())
	if age < minAge {
		return nil, fmt.Errorf("%w: patient age %d is below the asserted threshold %d", ErrAccessDenied, age, minAge)
	}
	h, err := commitment.HashAgeFact(age, minAge)
	if err != nil {
		return nil, err
	}
	secret, err := json.Marshal(ageFact{Age: age, MinAge: minAge, BirthDate: birthDate.Format("2006-01-02")})
	if err != nil {
		return nil, fmt.Errorf("encoding age fact: %w", err)
	}
	return e.generate(ctx, patientID, ProofTypeAge, publicStatement, string(secret), h, expiresInDays)
}

// generate runs the shared commitment pipeline: retrieve the patient key,
// commit to the fact hash under a fresh challenge, encrypt the fact so only
// the patient can re-derive it, and persist the proof.
func (e *ProofEngine) generate(ctx context.Context, patientID string, proofType ProofType, publicStatement, secretFact string, h *big.Int, expiresInDays int) (*ZKProof, error) {
	privateKey, err := e.vault.RetrievePatientKey(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoPrivateKey, patientID)
		}
		return nil, err
	}

	challenge, err := commitment.NewChallenge()
	if err != nil {
		return nil, err
	}
	com, err := commitment.Commit(h, challenge)
	if err != nil {
		return nil, err
	}

	secretData, err := envelope.SealB64(envelope.SecretKey([]byte(privateKey)), []byte(secretFact))
	if err != nil {
		return nil, fmt.Errorf("encrypting proof secret: %w", err)
	}

	if expiresInDays <= 0 {
		expiresInDays = DefaultProofValidityDays
	}
	now := e.now()
	proof := &ZKProof{
		ProofID:           uuid.NewString(),
		PatientID:         patientID,
		Type:              proofType,
		PublicStatement:   publicStatement,
		SecretData:        secretData,
		Commitment:        commitment.Encode(com),
		Challenge:         commitment.Encode(challenge),
		SecretHash:        commitment.Encode(h),
		CreatedAt:         now,
		ExpiresAt:         now.AddDate(0, 0, expiresInDays),
		IsActive:          true,
		VerificationCount: 0,
	}
	if err := e.store.PutProof(ctx, proof); err != nil {
		return nil, fmt.Errorf("persisting proof: %w", err)
	}

	e.auditProofEvent(ctx, EventProofGenerated, patientID, proof.ProofID, OutcomeSuccess, map[string]any{
		"proof_type": string(proofType),
		"expires_at": proof.ExpiresAt,
	})
	return proof, nil
}

// VerifyProof checks a stored proof on behalf of a verifier. Lifecycle
// failures (missing, revoked, expired) fail fast before any cryptographic
// work. Every attempt against an existing proof is recorded, success or not;
// a failed commitment comparison is a normal negative result, not an error.
func (e *ProofEngine) VerifyProof(ctx context.Context, proofID, verifierID, verifierOrg, verifyContext string, emergencyAccess bool) (*VerificationResult, error) {
	proof, err := e.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("loading proof: %w", err)
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: %s", ErrProofNotFound, proofID)
	}
	if !proof.IsActive {
		rec := e.appendVerification(ctx, proof, verifierID, verifierOrg, verifyContext, emergencyAccess, false)
		return &VerificationResult{IsValid: false, VerificationID: rec.VerificationID},
			fmt.Errorf("%w: %s", ErrProofInactive, proofID)
	}
	if e.now().After(proof.ExpiresAt) {
		rec := e.appendVerification(ctx, proof, verifierID, verifierOrg, verifyContext, emergencyAccess, false)
		return &VerificationResult{IsValid: false, VerificationID: rec.VerificationID},
			fmt.Errorf("%w: %s", ErrProofExpired, proofID)
	}

	isValid := e.recompute(proof)

	rec := e.appendVerification(ctx, proof, verifierID, verifierOrg, verifyContext, emergencyAccess, isValid)
	if err := e.store.IncrementVerificationCount(ctx, proofID); err != nil {
		e.logger.Warn().Err(err).Str("proof_id", proofID).Msg("failed to increment verification count")
	}

	outcome := OutcomeSuccess
	if !isValid {
		outcome = OutcomeFailure
	}
	e.auditProofEvent(ctx, EventProofVerified, verifierID, proofID, outcome, map[string]any{
		"verifier_org":     verifierOrg,
		"context":          verifyContext,
		"emergency_access": emergencyAccess,
	})
	return &VerificationResult{IsValid: isValid, VerificationID: rec.VerificationID}, nil
}

// recompute rebuilds the commitment from the stored secret hash and challenge
// and compares byte-exactly against the stored commitment.
func (e *ProofEngine) recompute(proof *ZKProof) bool {
	h, err := commitment.Decode(proof.SecretHash)
	if err != nil {
		return false
	}
	challenge, err := commitment.Decode(proof.Challenge)
	if err != nil {
		return false
	}
	com, err := commitment.Commit(h, challenge)
	if err != nil {
		return false
	}
	return commitment.Equal(commitment.Encode(com), proof.Commitment)
}

// RevokeProof deactivates a proof. Only the owning patient may revoke; the
// record is retained so the audit trail survives revocation.
func (e *ProofEngine) RevokeProof(ctx context.Context, proofID, patientID string) error {
	proof, err := e.store.GetProof(ctx, proofID)
	if err != nil {
		return fmt.Errorf("loading proof: %w", err)
	}
	if proof == nil {
		return fmt.Errorf("%w: %s", ErrProofNotFound, proofID)
	}
	if proof.PatientID != patientID {
		e.securityViolation(ctx, "unauthorized_proof_revocation", patientID, proofID)
		return fmt.Errorf("%w: proof %s is not owned by %s", ErrAccessDenied, proofID, patientID)
	}
	if err := e.store.SetProofActive(ctx, proofID, false); err != nil {
		return fmt.Errorf("revoking proof: %w", err)
	}
	e.auditProofEvent(ctx, EventProofRevoked, patientID, proofID, OutcomeSuccess, nil)
	return nil
}

// GetPatientProofs returns the patient's currently usable proofs: active and
// not yet expired. Expiry is filtered lazily at read time; there is no eager
// sweep.
func (e *ProofEngine) GetPatientProofs(ctx context.Context, patientID string) ([]*ZKProof, error) {
	proofs, err := e.store.ListProofsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing proofs: %w", err)
	}
	now := e.now()
	usable := make([]*ZKProof, 0, len(proofs))
	for _, p := range proofs {
		if p.IsActive && now.Before(p.ExpiresAt) {
			usable = append(usable, p)
		}
	}
	return usable, nil
}

// RevealProofSecret decrypts the committed fact for the owning patient, for
// audit or appeal. The verifier never receives the fact or the encrypted blob.
func (e *ProofEngine) RevealProofSecret(ctx context.Context, proofID, patientID string) (string, error) {
	proof, err := e.store.GetProof(ctx, proofID)
	if err != nil {
		return "", fmt.Errorf("loading proof: %w", err)
	}
	if proof == nil {
		return "", fmt.Errorf("%w: %s", ErrProofNotFound, proofID)
	}
	if proof.PatientID != patientID {
		e.securityViolation(ctx, "unauthorized_secret_access", patientID, proofID)
		return "", fmt.Errorf("%w: proof %s is not owned by %s", ErrAccessDenied, proofID, patientID)
	}
	privateKey, err := e.vault.RetrievePatientKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	fact, err := envelope.OpenB64(envelope.SecretKey([]byte(privateKey)), proof.SecretData)
	if err != nil {
		return "", fmt.Errorf("decrypting proof secret: %w", err)
	}
	e.auditProofEvent(ctx, EventSecretRevealed, patientID, proofID, OutcomeSuccess, nil)
	return string(fact), nil
}

func (e *ProofEngine) appendVerification(ctx context.Context, proof *ZKProof, verifierID, verifierOrg, verifyContext string, emergencyAccess, result bool) *ZKVerificationRecord {
	rec := &ZKVerificationRecord{
		VerificationID:  uuid.NewString(),
		ProofID:         proof.ProofID,
		VerifiedBy:      verifierID,
		Result:          result,
		Context:         verifyContext,
		HospitalID:      verifierOrg,
		EmergencyAccess: emergencyAccess,
		Timestamp:       e.now(),
	}
	if err := e.store.AppendVerification(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("proof_id", proof.ProofID).Msg("failed to append verification record")
	}
	return rec
}

func (e *ProofEngine) auditProofEvent(ctx context.Context, eventType, actorID, proofID, outcome string, metadata map[string]any) {
	err := e.audit.LogEvent(ctx, AuditEvent{
		EventType:  eventType,
		ActorType:  ActorPatient,
		ActorID:    actorID,
		TargetType: TargetProof,
		TargetID:   proofID,
		Action:     eventType,
		Outcome:    outcome,
		Metadata:   metadata,
		Severity:   SeverityInfo,
		Timestamp:  e.now(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("audit logging failed")
	}
}

func (e *ProofEngine) securityViolation(ctx context.Context, violationType, actorID, proofID string) {
	err := e.audit.LogSecurityViolation(ctx, SecurityViolation{
		ViolationType:  violationType,
		Severity:       SeverityCritical,
		ActorID:        actorID,
		TargetResource: proofID,
		Timestamp:      e.now(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("security violation logging failed")
	}
}

// yearsBetween counts whole years from birth to now, calendar-aware.
func yearsBetween(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}
