package medvault

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Severity grades audit events. Emergency consent grants are logged at
// SeverityWarning even on success.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditEvent describes a completed operation for the audit trail.
type AuditEvent struct {
	EventType  string         `json:"event_type"`
	ActorType  string         `json:"actor_type"`
	ActorID    string         `json:"actor_id"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Action     string         `json:"action"`
	Outcome    string         `json:"outcome"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Severity   Severity       `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SecurityViolation marks a potential security incident: tamper detection,
// unauthorized revoke attempts, duplicate-authorizer attempts.
type SecurityViolation struct {
	ViolationType  string         `json:"violation_type"`
	Severity       Severity       `json:"severity"`
	ActorID        string         `json:"actor_id,omitempty"`
	TargetResource string         `json:"target_resource,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Event/actor taxonomy shared by the three services.
const (
	EventKeyStored       = "key_stored"
	EventKeyRetrieved    = "key_retrieved"
	EventDataKeyWrapped  = "data_key_wrapped"
	EventProofGenerated  = "proof_generated"
	EventProofVerified   = "proof_verified"
	EventProofRevoked    = "proof_revoked"
	EventConsentGranted  = "emergency_consent_granted"
	EventConsentDenied   = "emergency_consent_denied"
	EventConsentRevoked  = "emergency_consent_revoked"
	EventSecretRevealed  = "proof_secret_revealed"
	ActorPatient         = "patient"
	ActorSystem          = "system"
	ActorHospital        = "hospital"
	ActorVerifier        = "verifier"
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	TargetPatientKey     = "patient_key"
	TargetDataKey        = "data_key"
	TargetProof          = "zk_proof"
	TargetConsent        = "emergency_consent"
)

// LoggerAudit is the default AuditLogger: it writes structured audit entries
// through a zerolog logger. Suitable for deployments that ship logs to a
// central collector; use providers/s3.Archiver for durable object storage.
type LoggerAudit struct {
	logger zerolog.Logger
}

// NewLoggerAudit wraps a zerolog logger as an AuditLogger.
func NewLoggerAudit(logger zerolog.Logger) *LoggerAudit {
	return &LoggerAudit{logger: logger.With().Str("component", "audit").Logger()}
}

func (a *LoggerAudit) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	evt := a.logger.Info()
	if event.Severity == SeverityWarning {
		evt = a.logger.Warn()
	} else if event.Severity == SeverityCritical {
		evt = a.logger.Error()
	}
	evt.
		Str("event_type", event.EventType).
		Str("actor_type", event.ActorType).
		Str("actor_id", event.ActorID).
		Str("target_type", event.TargetType).
		Str("target_id", event.TargetID).
		Str("action", event.Action).
		Str("outcome", event.Outcome).
		Time("event_time", event.Timestamp).
		Interface("metadata", event.Metadata).
		Msg("audit event")
	return nil
}

func (a *LoggerAudit) LogSecurityViolation(ctx context.Context, violation SecurityViolation) error {
	if violation.Timestamp.IsZero() {
		violation.Timestamp = time.Now().UTC()
	}
	a.logger.Error().
		Str("violation_type", violation.ViolationType).
		Str("severity", string(violation.Severity)).
		Str("actor_id", violation.ActorID).
		Str("target_resource", violation.TargetResource).
		Time("event_time", violation.Timestamp).
		Interface("details", violation.Details).
		Msg("security violation")
	return nil
}
