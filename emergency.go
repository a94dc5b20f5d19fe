package medvault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/rs/zerolog"
)

const (
	// MaxEmergencyDuration caps a requested grant at 24 hours, inclusive.
	MaxEmergencyDuration = 24 * time.Hour

	// MinJustificationLength is the minimum medical justification length.
	MinJustificationLength = 50
)

// EmergencyConsentOrchestrator runs the dual-authorization grant pipeline:
//
//	REQUESTED → CONDITION_VALIDATED → DUAL_AUTH_VERIFIED →
//	NEXT_OF_KIN_CHECKED → GRANTED
//
// with a failure exit to DENIED at any gate. Nothing is persisted before the
// final transition, so a denial leaves no partial record beyond the audit
// trail.
type EmergencyConsentOrchestrator struct {
	vault       *KeyVault
	store       RecordStore
	audit       AuditLogger
	roster      StaffRoster
	kin         KinNotifier
	logger      zerolog.Logger
	maxDuration time.Duration
	now         func() time.Time
}

// OrchestratorOption configures an EmergencyConsentOrchestrator.
type OrchestratorOption func(*EmergencyConsentOrchestrator)

// WithKinNotifier enables the best-effort next-of-kin check.
func WithKinNotifier(kin KinNotifier) OrchestratorOption {
	return func(o *EmergencyConsentOrchestrator) { o.kin = kin }
}

// WithMaxDuration overrides the grant duration cap. The check stays inclusive:
// a request equal to the cap is accepted.
func WithMaxDuration(d time.Duration) OrchestratorOption {
	return func(o *EmergencyConsentOrchestrator) { o.maxDuration = d }
}

// WithOrchestratorClock overrides the time source. Test seam.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *EmergencyConsentOrchestrator) { o.now = now }
}

// NewEmergencyConsentOrchestrator builds an orchestrator sharing the vault's
// store and audit collaborators. The staff roster is required; the
// kin notifier is optional.
func NewEmergencyConsentOrchestrator(vault *KeyVault, roster StaffRoster, options ...OrchestratorOption) (*EmergencyConsentOrchestrator, error) {
	if vault == nil {
		return nil, fmt.Errorf("%w: key vault is required", ErrInvalidConfiguration)
	}
	if roster == nil {
		return nil, fmt.Errorf("%w: staff roster is required", ErrInvalidConfiguration)
	}
	o := &EmergencyConsentOrchestrator{
		vault:       vault,
		store:       vault.store,
		audit:       vault.audit,
		roster:      roster,
		logger:      vault.logger.With().Str("component", "emergencyconsent").Logger(),
		maxDuration: MaxEmergencyDuration,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// GrantEmergencyConsent runs the full gate pipeline and, on success, persists
// the consent record and mints a signed temporary credential. Any gate
// failure denies the request with a specific policy error and a mandatory
// security-violation audit entry.
func (o *EmergencyConsentOrchestrator) GrantEmergencyConsent(ctx context.Context, req *EmergencyAccessRequest) (*EmergencyConsentGrant, error) {
	if err := validateRequestShape(req); err != nil {
		return nil, o.deny(ctx, req, "malformed_request", err)
	}

	// Gate 1: CONDITION_VALIDATED
	if err := o.validateEmergencyConditions(req); err != nil {
		return nil, o.deny(ctx, req, "condition_validation_failed", err)
	}

	// Gate 2: DUAL_AUTH_VERIFIED
	if err := o.verifyDualAuthorization(ctx, req); err != nil {
		return nil, o.deny(ctx, req, "dual_authorization_failed", err)
	}

	// Gate 3: NEXT_OF_KIN_CHECKED. Best-effort: failure downgrades metadata,
	// never the grant itself.
	kinConsent := o.checkNextOfKin(ctx, req)

	// GRANTED
	now := o.now()
	level, limitations := accessPolicyFor(req.EmergencyType)
	record := &EmergencyConsentRecord{
		ConsentID:           uuid.NewString(),
		PatientID:           req.PatientID,
		EmergencyType:       req.EmergencyType,
		GrantedAt:           now,
		ExpiresAt:           now.Add(req.RequestedDuration),
		PrimaryPhysician:    req.PrimaryPhysician,
		SecondaryAuthorizer: req.SecondaryAuthorizer,
		NextOfKinConsent:    kinConsent,
		AccessLevel:         level,
		Limitations:         limitations,
		HospitalID:          req.HospitalID,
	}
	if err := o.store.PutConsent(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting consent record: %w", err)
	}

	signingKey, err := o.vault.credentialSigningKey()
	if err != nil {
		return nil, fmt.Errorf("deriving credential signing key: %w", err)
	}
	token, err := mintTemporaryCredential(signingKey, record)
	if err != nil {
		return nil, fmt.Errorf("minting temporary credential: %w", err)
	}

	// Emergency consent is inherently sensitive; warn even on success.
	o.auditConsent(ctx, EventConsentGranted, req, record.ConsentID, OutcomeSuccess, map[string]any{
		"access_level":        string(level),
		"expires_at":          record.ExpiresAt,
		"next_of_kin_consent": kinConsent,
	})
	return &EmergencyConsentGrant{Record: record, Credential: token}, nil
}

// RevokeEmergencyConsent stamps a revocation time on a granted record. The
// record itself is retained for audit.
func (o *EmergencyConsentOrchestrator) RevokeEmergencyConsent(ctx context.Context, consentID, revokedBy string) error {
	rec, err := o.store.GetConsent(ctx, consentID)
	if err != nil {
		return fmt.Errorf("loading consent record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrConsentNotFound, consentID)
	}
	if err := o.store.RevokeConsent(ctx, consentID, revokedBy, o.now()); err != nil {
		return fmt.Errorf("revoking consent: %w", err)
	}
	o.auditConsent(ctx, EventConsentRevoked, &EmergencyAccessRequest{
		PatientID:  rec.PatientID,
		HospitalID: rec.HospitalID,
	}, consentID, OutcomeSuccess, map[string]any{"revoked_by": revokedBy})
	return nil
}

// ParseTemporaryCredential verifies a credential token's signature and expiry
// and returns the decoded credential. Consumers must still honor AutoRevoke
// signals (for example, a patient regaining consciousness) on their side.
func (o *EmergencyConsentOrchestrator) ParseTemporaryCredential(token string) (*TemporaryCredential, error) {
	signingKey, err := o.vault.credentialSigningKey()
	if err != nil {
		return nil, fmt.Errorf("deriving credential signing key: %w", err)
	}
	return parseTemporaryCredential(signingKey, token)
}

// validateRequestShape rejects structurally incomplete requests before any
// policy gate runs.
func validateRequestShape(req *EmergencyAccessRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidConfiguration)
	}
	var errs errsx.Map
	if req.PatientID == "" {
		errs.Set("patientID", "patient ID is required")
	}
	if req.HospitalID == "" {
		errs.Set("hospitalID", "hospital ID is required")
	}
	if req.PrimaryPhysician.ID == "" {
		errs.Set("primaryPhysician", "primary physician ID is required")
	}
	if req.SecondaryAuthorizer.ID == "" {
		errs.Set("secondaryAuthorizer", "secondary authorizer ID is required")
	}
	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

// validateEmergencyConditions is the CONDITION_VALIDATED gate.
func (o *EmergencyConsentOrchestrator) validateEmergencyConditions(req *EmergencyAccessRequest) error {
	if !req.EmergencyType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEmergencyType, req.EmergencyType)
	}
	if len(req.MedicalJustification) < MinJustificationLength {
		return fmt.Errorf("%w: need at least %d characters, got %d",
			ErrInsufficientJustification, MinJustificationLength, len(req.MedicalJustification))
	}
	if !req.PatientContactAttempted {
		return ErrContactNotAttempted
	}
	if req.RequestedDuration <= 0 {
		return fmt.Errorf("%w: requested duration must be positive", ErrDurationExceeded)
	}
	// Inclusive cap: exactly the maximum is accepted.
	if req.RequestedDuration > o.maxDuration {
		return fmt.Errorf("%w: requested %s, maximum %s", ErrDurationExceeded, req.RequestedDuration, o.maxDuration)
	}
	return nil
}

// verifyDualAuthorization is the DUAL_AUTH_VERIFIED gate. Same-person
// authorization is rejected before any role or duty check.
func (o *EmergencyConsentOrchestrator) verifyDualAuthorization(ctx context.Context, req *EmergencyAccessRequest) error {
	if req.PrimaryPhysician.ID == req.SecondaryAuthorizer.ID {
		return fmt.Errorf("%w: %s", ErrDuplicateAuthorizer, req.PrimaryPhysician.ID)
	}
	for _, auth := range []Authorizer{req.PrimaryPhysician, req.SecondaryAuthorizer} {
		if !auth.Role.QualifiedForEmergencyAuth() {
			return fmt.Errorf("%w: %s has role %q", ErrUnqualifiedRole, auth.ID, auth.Role)
		}
	}
	for _, auth := range []Authorizer{req.PrimaryPhysician, req.SecondaryAuthorizer} {
		onDuty, err := o.roster.IsOnDuty(ctx, auth.ID)
		if err != nil {
			return fmt.Errorf("%w: roster check for %s failed: %w", ErrAuthorizerNotOnDuty, auth.ID, err)
		}
		if !onDuty {
			return fmt.Errorf("%w: %s", ErrAuthorizerNotOnDuty, auth.ID)
		}
	}
	return nil
}

// checkNextOfKin is the NEXT_OF_KIN_CHECKED gate. Non-blocking by design:
// refusal or unreachability is recorded on the grant but the grant proceeds on
// dual medical authorization alone.
func (o *EmergencyConsentOrchestrator) checkNextOfKin(ctx context.Context, req *EmergencyAccessRequest) string {
	if req.NextOfKin == nil || o.kin == nil {
		return KinConsentNotProvided
	}
	confirmed, err := o.kin.VerifyAndNotify(ctx, req.PatientID, *req.NextOfKin)
	if err != nil {
		o.logger.Warn().Err(err).Str("patient_id", req.PatientID).Msg("next-of-kin contact failed")
		return KinConsentUnreachable
	}
	if !confirmed {
		return KinConsentUnreachable
	}
	return KinConsentConfirmed
}

// deny emits the mandatory security-violation entry plus a denied audit event
// and returns the gate's policy error unchanged.
func (o *EmergencyConsentOrchestrator) deny(ctx context.Context, req *EmergencyAccessRequest, violationType string, cause error) error {
	patientID, hospitalID := "", ""
	if req != nil {
		patientID, hospitalID = req.PatientID, req.HospitalID
	}
	if err := o.audit.LogSecurityViolation(ctx, SecurityViolation{
		ViolationType:  violationType,
		Severity:       SeverityCritical,
		ActorID:        hospitalID,
		TargetResource: patientID,
		Details:        map[string]any{"reason": cause.Error()},
		Timestamp:      o.now(),
	}); err != nil {
		o.logger.Warn().Err(err).Msg("security violation logging failed")
	}
	o.auditConsent(ctx, EventConsentDenied, req, "", OutcomeFailure, map[string]any{"reason": cause.Error()})
	return cause
}

func (o *EmergencyConsentOrchestrator) auditConsent(ctx context.Context, eventType string, req *EmergencyAccessRequest, consentID, outcome string, metadata map[string]any) {
	patientID, hospitalID := "", ""
	if req != nil {
		patientID, hospitalID = req.PatientID, req.HospitalID
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["patient_id"] = patientID
	err := o.audit.LogEvent(ctx, AuditEvent{
		EventType:  eventType,
		ActorType:  ActorHospital,
		ActorID:    hospitalID,
		TargetType: TargetConsent,
		TargetID:   consentID,
		Action:     eventType,
		Outcome:    outcome,
		Metadata:   metadata,
		Severity:   SeverityWarning,
		Timestamp:  o.now(),
	})
	if err != nil {
		o.logger.Warn().Err(err).Msg("audit logging failed")
	}
}

// accessPolicyFor maps an emergency type to the access level and limitations
// carried by the grant. Pure function; enforcement of the auto-revoke
// limitation (for example on a patient regaining consciousness) belongs to
// the credential consumer.
func accessPolicyFor(et EmergencyType) (AccessLevel, []string) {
	switch et {
	case EmergencyLifeThreatening:
		return AccessFullRecord, []string{"read_only", "time_boxed"}
	case EmergencyUnconsciousPatient:
		return AccessRecentHistory, []string{"read_only", "auto_revoke_on_consciousness"}
	case EmergencyCriticalCare:
		return AccessCriticalCare, []string{"read_only", "critical_care_team_only"}
	case EmergencySurgeryRequired:
		return AccessSurgicalRelevant, []string{"read_only", "surgical_team_only"}
	case EmergencyMentalHealthCrisis:
		return AccessMentalHealth, []string{"read_only", "psychiatric_team_only", "exclude_unrelated_records"}
	default:
		// Unreachable after the condition gate; fail closed anyway.
		return AccessRecentHistory, []string{"read_only"}
	}
}

// recentHistoryWindow bounds RECENT_MEDICAL_HISTORY access.
const recentHistoryWindow = 365 * 24 * time.Hour

var (
	surgicalPatterns     = []string{"surgery", "surgical", "anesthesia", "allergy", "allergies", "operative"}
	criticalCarePatterns = []string{"emergency", "icu", "intensive", "cardiology", "allergy", "medication"}
	mentalHealthPatterns = []string{"psychiatry", "psychiatric", "mental", "behavioral", "psychology"}
)

// FilterRecordsByAccessLevel intersects a patient's record set with the
// record filter implied by an emergency access level. Pure function of the
// access level, the records, and the reference time.
func FilterRecordsByAccessLevel(level AccessLevel, records []MedicalRecord, now time.Time) []MedicalRecord {
	switch level {
	case AccessFullRecord:
		out := make([]MedicalRecord, len(records))
		copy(out, records)
		return out
	case AccessRecentHistory:
		return filterRecords(records, func(r MedicalRecord) bool {
			return now.Sub(r.CreatedAt) <= recentHistoryWindow
		})
	case AccessCriticalCare:
		return filterRecords(records, matchesAny(criticalCarePatterns))
	case AccessSurgicalRelevant:
		return filterRecords(records, matchesAny(surgicalPatterns))
	case AccessMentalHealth:
		return filterRecords(records, matchesAny(mentalHealthPatterns))
	default:
		return nil
	}
}

func filterRecords(records []MedicalRecord, keep func(MedicalRecord) bool) []MedicalRecord {
	out := make([]MedicalRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func matchesAny(patterns []string) func(MedicalRecord) bool {
	return func(r MedicalRecord) bool {
		haystack := strings.ToLower(r.Department + " " + r.Diagnosis + " " + r.VisitType)
		for _, p := range patterns {
			if strings.Contains(haystack, p) {
				return true
			}
		}
		return false
	}
}
