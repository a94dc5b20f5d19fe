package medvault

// Test utilities: in-memory collaborator implementations suitable for unit
// tests and examples. All data is lost when the process terminates.

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements RecordStore in memory. Safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	patientKeys   map[string]*PatientKeyRecord
	proofs        map[string]*ZKProof
	verifications []*ZKVerificationRecord
	consents      map[string]*EmergencyConsentRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patientKeys: make(map[string]*PatientKeyRecord),
		proofs:      make(map[string]*ZKProof),
		consents:    make(map[string]*EmergencyConsentRecord),
	}
}

func (s *MemoryStore) PutPatientKey(ctx context.Context, rec *PatientKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.patientKeys[rec.PatientID] = &cp
	return nil
}

func (s *MemoryStore) GetPatientKey(ctx context.Context, patientID string) (*PatientKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.patientKeys[patientID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutProof(ctx context.Context, proof *ZKProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *proof
	s.proofs[proof.ProofID] = &cp
	return nil
}

func (s *MemoryStore) GetProof(ctx context.Context, proofID string) (*ZKProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proof, ok := s.proofs[proofID]
	if !ok {
		return nil, nil
	}
	cp := *proof
	return &cp, nil
}

func (s *MemoryStore) SetProofActive(ctx context.Context, proofID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proof, ok := s.proofs[proofID]
	if !ok {
		return fmt.Errorf("proof %s not found", proofID)
	}
	proof.IsActive = active
	return nil
}

func (s *MemoryStore) IncrementVerificationCount(ctx context.Context, proofID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proof, ok := s.proofs[proofID]
	if !ok {
		return fmt.Errorf("proof %s not found", proofID)
	}
	proof.VerificationCount++
	return nil
}

func (s *MemoryStore) ListProofsByPatient(ctx context.Context, patientID string) ([]*ZKProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ZKProof
	for _, p := range s.proofs {
		if p.PatientID == patientID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendVerification(ctx context.Context, rec *ZKVerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.verifications = append(s.verifications, &cp)
	return nil
}

// Verifications returns a snapshot of the append-only verification log.
func (s *MemoryStore) Verifications() []*ZKVerificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ZKVerificationRecord, len(s.verifications))
	copy(out, s.verifications)
	return out
}

func (s *MemoryStore) PutConsent(ctx context.Context, rec *EmergencyConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.consents[rec.ConsentID] = &cp
	return nil
}

func (s *MemoryStore) GetConsent(ctx context.Context, consentID string) (*EmergencyConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.consents[consentID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) RevokeConsent(ctx context.Context, consentID, revokedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.consents[consentID]
	if !ok {
		return fmt.Errorf("consent %s not found", consentID)
	}
	rec.RevokedAt = &at
	rec.RevokedBy = revokedBy
	return nil
}

// MemoryAudit implements AuditLogger by collecting entries in memory, so tests
// can assert on the audit trail.
type MemoryAudit struct {
	mu         sync.Mutex
	events     []AuditEvent
	violations []SecurityViolation
}

// NewMemoryAudit creates an empty in-memory audit logger.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (a *MemoryAudit) LogEvent(ctx context.Context, event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *MemoryAudit) LogSecurityViolation(ctx context.Context, violation SecurityViolation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.violations = append(a.violations, violation)
	return nil
}

// Events returns a snapshot of logged audit events.
func (a *MemoryAudit) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Violations returns a snapshot of logged security violations.
func (a *MemoryAudit) Violations() []SecurityViolation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SecurityViolation, len(a.violations))
	copy(out, a.violations)
	return out
}

// StaticMasterKey implements MasterKeyProvider with a fixed key.
type StaticMasterKey []byte

func (k StaticMasterKey) MasterKey(ctx context.Context) ([]byte, error) {
	if len(k) != MasterKeySize {
		return nil, fmt.Errorf("%w: static key must be %d bytes", ErrMasterKeyUnavailable, MasterKeySize)
	}
	return k, nil
}

// StaticRoster implements StaffRoster from a fixed duty map. Unknown staff are
// off duty.
type StaticRoster map[string]bool

func (r StaticRoster) IsOnDuty(ctx context.Context, staffID string) (bool, error) {
	return r[staffID], nil
}

// StaticKinNotifier implements KinNotifier with a canned answer.
type StaticKinNotifier struct {
	Confirmed bool
	Err       error
}

func (n StaticKinNotifier) VerifyAndNotify(ctx context.Context, patientID string, kin NextOfKin) (bool, error) {
	if n.Err != nil {
		return false, n.Err
	}
	return n.Confirmed, nil
}

// NewTestKeyVault builds a KeyVault over a fresh random master key, an
// in-memory store and an in-memory audit logger. The iteration count is
// lowered to keep test suites fast; the derivation path is identical.
func NewTestKeyVault() (*KeyVault, *MemoryStore, *MemoryAudit, error) {
	masterKey := make([]byte, MasterKeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return nil, nil, nil, err
	}
	store := NewMemoryStore()
	audit := NewMemoryAudit()
	vault, err := NewKeyVault(context.Background(),
		WithMasterKey(masterKey),
		WithRecordStore(store),
		WithAuditLogger(audit),
		WithPBKDF2Iterations(1_000),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return vault, store, audit, nil
}
