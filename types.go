package medvault

import (
	"time"
)

// ProofType identifies the category of medical fact a commitment proof attests to.
type ProofType string

const (
	ProofTypeCondition ProofType = "condition"
	ProofTypeAge       ProofType = "age"
	ProofTypeAllergy   ProofType = "allergy"
)

// Valid reports whether pt is one of the supported proof types.
func (pt ProofType) Valid() bool {
	switch pt {
	case ProofTypeCondition, ProofTypeAge, ProofTypeAllergy:
		return true
	}
	return false
}

// EmergencyType enumerates the emergency situations under which a dual-authorized
// consent grant may be requested.
type EmergencyType string

const (
	EmergencyLifeThreatening    EmergencyType = "LIFE_THREATENING"
	EmergencyUnconsciousPatient EmergencyType = "UNCONSCIOUS_PATIENT"
	EmergencyCriticalCare       EmergencyType = "CRITICAL_CARE"
	EmergencySurgeryRequired    EmergencyType = "SURGERY_REQUIRED"
	EmergencyMentalHealthCrisis EmergencyType = "MENTAL_HEALTH_CRISIS"
)

// Valid reports whether et is one of the enumerated emergency types.
func (et EmergencyType) Valid() bool {
	switch et {
	case EmergencyLifeThreatening, EmergencyUnconsciousPatient, EmergencyCriticalCare,
		EmergencySurgeryRequired, EmergencyMentalHealthCrisis:
		return true
	}
	return false
}

// StaffRole is the clinical role of a staff member as reported by the hospital roster.
type StaffRole string

const (
	RolePhysician       StaffRole = "PHYSICIAN"
	RoleSurgeon         StaffRole = "SURGEON"
	RoleEmergencyDoctor StaffRole = "EMERGENCY_DOCTOR"
	RoleChiefResident   StaffRole = "CHIEF_RESIDENT"
)

// QualifiedForEmergencyAuth reports whether the role may authorize emergency access.
func (r StaffRole) QualifiedForEmergencyAuth() bool {
	switch r {
	case RolePhysician, RoleSurgeon, RoleEmergencyDoctor, RoleChiefResident:
		return true
	}
	return false
}

// AccessLevel scopes what part of a patient's record set an emergency credential unlocks.
type AccessLevel string

const (
	AccessFullRecord       AccessLevel = "FULL_RECORD"
	AccessRecentHistory    AccessLevel = "RECENT_MEDICAL_HISTORY"
	AccessCriticalCare     AccessLevel = "CRITICAL_CARE_RECORDS"
	AccessSurgicalRelevant AccessLevel = "SURGICAL_RELEVANT_RECORDS"
	AccessMentalHealth     AccessLevel = "MENTAL_HEALTH_RECORDS"
)

// PatientKeyRecord is the envelope-encrypted custody record for one patient's
// private key. Owned exclusively by the KeyVault; one record per patient,
// last write wins.
type PatientKeyRecord struct {
	PatientID           string    `json:"patient_id"`
	EncryptedPrivateKey []byte    `json:"encrypted_private_key"`
	IV                  []byte    `json:"iv"`
	AuthTag             []byte    `json:"auth_tag"`
	PatientSalt         []byte    `json:"patient_salt"`
	CreatedAt           time.Time `json:"created_at"`
	AccessCount         int64     `json:"access_count"`
	LastAccessed        time.Time `json:"last_accessed"`
}

// ZKProof is a stored commitment proof. Commitment, Challenge and SecretHash
// are hex-encoded field elements; SecretData is the fact encrypted under a key
// only the owning patient can derive. The record is mutated only by
// verification (count) and revocation (IsActive).
type ZKProof struct {
	ProofID           string    `json:"proof_id"`
	PatientID         string    `json:"patient_id"`
	Type              ProofType `json:"proof_type"`
	PublicStatement   string    `json:"public_statement"`
	SecretData        string    `json:"secret_data"`
	Commitment        string    `json:"commitment"`
	Challenge         string    `json:"challenge"`
	SecretHash        string    `json:"secret_hash"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	IsActive          bool      `json:"is_active"`
	VerificationCount int64     `json:"verification_count"`
}

// ZKVerificationRecord is an append-only log entry, one per verification attempt.
type ZKVerificationRecord struct {
	VerificationID  string    `json:"verification_id"`
	ProofID         string    `json:"proof_id"`
	VerifiedBy      string    `json:"verified_by"`
	Result          bool      `json:"result"`
	Context         string    `json:"context"`
	HospitalID      string    `json:"hospital_id"`
	EmergencyAccess bool      `json:"emergency_access"`
	Timestamp       time.Time `json:"timestamp"`
}

// VerificationResult is the outcome of a VerifyProof call. A false IsValid is a
// normal, auditable negative result, not an error.
type VerificationResult struct {
	IsValid        bool   `json:"is_valid"`
	VerificationID string `json:"verification_id"`
}

// Authorizer identifies one of the two staff members approving an emergency grant.
type Authorizer struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role StaffRole `json:"role"`
}

// NextOfKin carries the optional relative contact supplied with an emergency request.
type NextOfKin struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	ContactPhone string `json:"contact_phone"`
}

// Next-of-kin consent outcomes recorded on the grant. The check is best-effort
// and never blocks a dual-authorized grant.
const (
	KinConsentConfirmed   = "confirmed"
	KinConsentUnreachable = "unreachable"
	KinConsentNotProvided = "not_provided"
)

// EmergencyAccessRequest is the input to GrantEmergencyConsent.
type EmergencyAccessRequest struct {
	PatientID               string        `json:"patient_id"`
	HospitalID              string        `json:"hospital_id"`
	EmergencyType           EmergencyType `json:"emergency_type"`
	MedicalJustification    string        `json:"medical_justification"`
	PatientContactAttempted bool          `json:"patient_contact_attempted"`
	RequestedDuration       time.Duration `json:"requested_duration"`
	PrimaryPhysician        Authorizer    `json:"primary_physician"`
	SecondaryAuthorizer     Authorizer    `json:"secondary_authorizer"`
	NextOfKin               *NextOfKin    `json:"next_of_kin,omitempty"`
}

// EmergencyConsentRecord is persisted only when the grant pipeline reaches its
// final state. Immutable afterwards except for the revocation timestamp.
type EmergencyConsentRecord struct {
	ConsentID           string        `json:"consent_id"`
	PatientID           string        `json:"patient_id"`
	EmergencyType       EmergencyType `json:"emergency_type"`
	GrantedAt           time.Time     `json:"granted_at"`
	ExpiresAt           time.Time     `json:"expires_at"`
	PrimaryPhysician    Authorizer    `json:"primary_physician"`
	SecondaryAuthorizer Authorizer    `json:"secondary_authorizer"`
	NextOfKinConsent    string        `json:"next_of_kin_consent"`
	AccessLevel         AccessLevel   `json:"access_level"`
	Limitations         []string      `json:"limitations"`
	HospitalID          string        `json:"hospital_id"`
	RevokedAt           *time.Time    `json:"revoked_at,omitempty"`
	RevokedBy           string        `json:"revoked_by,omitempty"`
}

// TemporaryCredential is the decoded form of the signed token minted with a
// grant. It is derived, never persisted, and expires with its parent record.
type TemporaryCredential struct {
	ConsentID   string      `json:"consent_id"`
	PatientID   string      `json:"patient_id"`
	HospitalID  string      `json:"hospital_id"`
	AccessLevel AccessLevel `json:"access_level"`
	Limitations []string    `json:"limitations"`
	ExpiresAt   time.Time   `json:"expires_at"`
	AutoRevoke  bool        `json:"auto_revoke"`
}

// EmergencyConsentGrant bundles the persisted record with the signed credential
// token handed to the requesting hospital.
type EmergencyConsentGrant struct {
	Record     *EmergencyConsentRecord `json:"record"`
	Credential string                  `json:"credential"`
}

// MedicalRecord is the minimal shape downstream consumers filter under an
// emergency access level. The filter is a pure function of the access level
// and the record set.
type MedicalRecord struct {
	RecordID   string    `json:"record_id"`
	PatientID  string    `json:"patient_id"`
	Department string    `json:"department"`
	Diagnosis  string    `json:"diagnosis"`
	VisitType  string    `json:"visit_type"`
	CreatedAt  time.Time `json:"created_at"`
}
