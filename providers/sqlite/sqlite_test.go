package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrust/medvault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPatientKeyRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &medvault.PatientKeyRecord{
		PatientID:           "patient-001",
		EncryptedPrivateKey: []byte{0x01, 0x02, 0x03},
		IV:                  []byte{0x04, 0x05},
		AuthTag:             []byte{0x06},
		PatientSalt:         []byte{0x07, 0x08},
		CreatedAt:           time.Now().UTC().Truncate(time.Second),
		AccessCount:         0,
		LastAccessed:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PutPatientKey(ctx, rec))

	got, err := store.GetPatientKey(ctx, "patient-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.EncryptedPrivateKey, got.EncryptedPrivateKey)
	assert.Equal(t, rec.IV, got.IV)
	assert.Equal(t, rec.AuthTag, got.AuthTag)
	assert.Equal(t, rec.PatientSalt, got.PatientSalt)
}

func TestGetPatientKeyAbsent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetPatientKey(context.Background(), "no-such-patient")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutPatientKeyOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &medvault.PatientKeyRecord{
		PatientID:           "patient-001",
		EncryptedPrivateKey: []byte{0x01},
		IV:                  []byte{0x02},
		AuthTag:             []byte{0x03},
		PatientSalt:         []byte{0x04},
		CreatedAt:           time.Now().UTC(),
		LastAccessed:        time.Now().UTC(),
	}
	require.NoError(t, store.PutPatientKey(ctx, rec))

	rec.AccessCount = 7
	require.NoError(t, store.PutPatientKey(ctx, rec))

	got, err := store.GetPatientKey(ctx, "patient-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.AccessCount)
}

func testProof(id string) *medvault.ZKProof {
	now := time.Now().UTC().Truncate(time.Second)
	return &medvault.ZKProof{
		ProofID:         id,
		PatientID:       "patient-001",
		Type:            medvault.ProofTypeCondition,
		PublicStatement: "Patient has condition matching criteria",
		SecretData:      "b64secret",
		Commitment:      "0abc",
		Challenge:       "0def",
		SecretHash:      "0123",
		CreatedAt:       now,
		ExpiresAt:       now.Add(30 * 24 * time.Hour),
		IsActive:        true,
	}
}

func TestProofRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	proof := testProof("proof-1")
	require.NoError(t, store.PutProof(ctx, proof))

	got, err := store.GetProof(ctx, "proof-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, proof.PatientID, got.PatientID)
	assert.Equal(t, proof.Type, got.Type)
	assert.Equal(t, proof.Commitment, got.Commitment)
	assert.True(t, got.IsActive)
	assert.Equal(t, int64(0), got.VerificationCount)
}

func TestGetProofAbsent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetProof(context.Background(), "no-such-proof")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetProofActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutProof(ctx, testProof("proof-1")))
	require.NoError(t, store.SetProofActive(ctx, "proof-1", false))

	got, err := store.GetProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.Error(t, store.SetProofActive(ctx, "no-such-proof", false))
}

func TestIncrementVerificationCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutProof(ctx, testProof("proof-1")))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementVerificationCount(ctx, "proof-1"))
	}

	got, err := store.GetProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.VerificationCount)

	assert.Error(t, store.IncrementVerificationCount(ctx, "no-such-proof"))
}

func TestListProofsByPatient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutProof(ctx, testProof("proof-1")))
	require.NoError(t, store.PutProof(ctx, testProof("proof-2")))
	other := testProof("proof-3")
	other.PatientID = "patient-002"
	require.NoError(t, store.PutProof(ctx, other))

	proofs, err := store.ListProofsByPatient(ctx, "patient-001")
	require.NoError(t, err)
	assert.Len(t, proofs, 2)
}

func TestVerificationLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &medvault.ZKVerificationRecord{
		VerificationID:  "ver-1",
		ProofID:         "proof-1",
		VerifiedBy:      "hospital-a",
		Result:          true,
		Context:         "insurance_enrollment",
		HospitalID:      "hospital-a",
		EmergencyAccess: false,
		Timestamp:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.AppendVerification(ctx, rec))

	log, err := store.VerificationsForProof(ctx, "proof-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "hospital-a", log[0].VerifiedBy)
	assert.True(t, log[0].Result)
}

func testConsent(id string) *medvault.EmergencyConsentRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &medvault.EmergencyConsentRecord{
		ConsentID:     id,
		PatientID:     "patient-001",
		EmergencyType: medvault.EmergencyLifeThreatening,
		GrantedAt:     now,
		ExpiresAt:     now.Add(4 * time.Hour),
		PrimaryPhysician: medvault.Authorizer{
			ID: "dr-1", Name: "Dr. Adams", Role: medvault.RolePhysician,
		},
		SecondaryAuthorizer: medvault.Authorizer{
			ID: "dr-2", Name: "Dr. Brown", Role: medvault.RoleSurgeon,
		},
		NextOfKinConsent: medvault.KinConsentUnreachable,
		AccessLevel:      medvault.AccessFullRecord,
		Limitations:      []string{"read_only", "no_export"},
		HospitalID:       "hospital-a",
	}
}

func TestConsentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testConsent("consent-1")
	require.NoError(t, store.PutConsent(ctx, rec))

	got, err := store.GetConsent(ctx, "consent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.PrimaryPhysician, got.PrimaryPhysician)
	assert.Equal(t, rec.SecondaryAuthorizer, got.SecondaryAuthorizer)
	assert.Equal(t, rec.Limitations, got.Limitations)
	assert.Nil(t, got.RevokedAt)
	assert.Empty(t, got.RevokedBy)
}

func TestGetConsentAbsent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetConsent(context.Background(), "no-such-consent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRevokeConsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutConsent(ctx, testConsent("consent-1")))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RevokeConsent(ctx, "consent-1", "dr-1", at))

	got, err := store.GetConsent(ctx, "consent-1")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, "dr-1", got.RevokedBy)

	assert.Error(t, store.RevokeConsent(ctx, "no-such-consent", "dr-1", at))
}
