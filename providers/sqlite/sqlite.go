// Package sqlite provides a durable medvault.RecordStore backed by SQLite.
//
// The verification counter increment is a single UPDATE statement, so
// concurrent verifications never lose counts to read-modify-write races.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/caretrust/medvault"
)

// Store implements medvault.RecordStore over a *sql.DB.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS patient_keys (
		patient_id            TEXT PRIMARY KEY,
		encrypted_private_key BLOB NOT NULL,
		iv                    BLOB NOT NULL,
		auth_tag              BLOB NOT NULL,
		patient_salt          BLOB NOT NULL,
		created_at            TIMESTAMP NOT NULL,
		access_count          INTEGER NOT NULL DEFAULT 0,
		last_accessed         TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS zk_proofs (
		proof_id           TEXT PRIMARY KEY,
		patient_id         TEXT NOT NULL,
		proof_type         TEXT NOT NULL,
		public_statement   TEXT NOT NULL,
		secret_data        TEXT NOT NULL,
		commitment         TEXT NOT NULL,
		challenge          TEXT NOT NULL,
		secret_hash        TEXT NOT NULL,
		created_at         TIMESTAMP NOT NULL,
		expires_at         TIMESTAMP NOT NULL,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		verification_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_zk_proofs_patient ON zk_proofs(patient_id);

	CREATE TABLE IF NOT EXISTS zk_verifications (
		verification_id  TEXT PRIMARY KEY,
		proof_id         TEXT NOT NULL,
		verified_by      TEXT NOT NULL,
		result           BOOLEAN NOT NULL,
		context          TEXT NOT NULL,
		hospital_id      TEXT NOT NULL,
		emergency_access BOOLEAN NOT NULL,
		timestamp        TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_zk_verifications_proof ON zk_verifications(proof_id);

	CREATE TABLE IF NOT EXISTS emergency_consents (
		consent_id           TEXT PRIMARY KEY,
		patient_id           TEXT NOT NULL,
		emergency_type       TEXT NOT NULL,
		granted_at           TIMESTAMP NOT NULL,
		expires_at           TIMESTAMP NOT NULL,
		primary_physician    TEXT NOT NULL,
		secondary_authorizer TEXT NOT NULL,
		next_of_kin_consent  TEXT NOT NULL,
		access_level         TEXT NOT NULL,
		limitations          TEXT NOT NULL,
		hospital_id          TEXT NOT NULL,
		revoked_at           TIMESTAMP,
		revoked_by           TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_emergency_consents_patient ON emergency_consents(patient_id);
`

// Open opens (creating if needed) a SQLite store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection test failed for %q: %w", path, err)
	}
	return New(db)
}

// New wraps an existing database handle and initializes the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutPatientKey(ctx context.Context, rec *medvault.PatientKeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patient_keys
			(patient_id, encrypted_private_key, iv, auth_tag, patient_salt, created_at, access_count, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			encrypted_private_key = excluded.encrypted_private_key,
			iv                    = excluded.iv,
			auth_tag              = excluded.auth_tag,
			patient_salt          = excluded.patient_salt,
			created_at            = excluded.created_at,
			access_count          = excluded.access_count,
			last_accessed         = excluded.last_accessed
	`, rec.PatientID, rec.EncryptedPrivateKey, rec.IV, rec.AuthTag, rec.PatientSalt,
		rec.CreatedAt, rec.AccessCount, rec.LastAccessed)
	if err != nil {
		return fmt.Errorf("storing patient key record: %w", err)
	}
	return nil
}

func (s *Store) GetPatientKey(ctx context.Context, patientID string) (*medvault.PatientKeyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT patient_id, encrypted_private_key, iv, auth_tag, patient_salt, created_at, access_count, last_accessed
		FROM patient_keys WHERE patient_id = ?
	`, patientID)
	var rec medvault.PatientKeyRecord
	err := row.Scan(&rec.PatientID, &rec.EncryptedPrivateKey, &rec.IV, &rec.AuthTag,
		&rec.PatientSalt, &rec.CreatedAt, &rec.AccessCount, &rec.LastAccessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient key record: %w", err)
	}
	return &rec, nil
}

func (s *Store) PutProof(ctx context.Context, proof *medvault.ZKProof) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zk_proofs
			(proof_id, patient_id, proof_type, public_statement, secret_data,
			 commitment, challenge, secret_hash, created_at, expires_at, is_active, verification_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, proof.ProofID, proof.PatientID, string(proof.Type), proof.PublicStatement, proof.SecretData,
		proof.Commitment, proof.Challenge, proof.SecretHash, proof.CreatedAt, proof.ExpiresAt,
		proof.IsActive, proof.VerificationCount)
	if err != nil {
		return fmt.Errorf("storing proof: %w", err)
	}
	return nil
}

func (s *Store) GetProof(ctx context.Context, proofID string) (*medvault.ZKProof, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT proof_id, patient_id, proof_type, public_statement, secret_data,
		       commitment, challenge, secret_hash, created_at, expires_at, is_active, verification_count
		FROM zk_proofs WHERE proof_id = ?
	`, proofID)
	proof, err := scanProof(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading proof: %w", err)
	}
	return proof, nil
}

func (s *Store) SetProofActive(ctx context.Context, proofID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE zk_proofs SET is_active = ? WHERE proof_id = ?`, active, proofID)
	if err != nil {
		return fmt.Errorf("updating proof state: %w", err)
	}
	return requireRow(res, proofID)
}

// IncrementVerificationCount is atomic by construction: a single UPDATE, never
// read-modify-write in application code.
func (s *Store) IncrementVerificationCount(ctx context.Context, proofID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE zk_proofs SET verification_count = verification_count + 1 WHERE proof_id = ?
	`, proofID)
	if err != nil {
		return fmt.Errorf("incrementing verification count: %w", err)
	}
	return requireRow(res, proofID)
}

func (s *Store) ListProofsByPatient(ctx context.Context, patientID string) ([]*medvault.ZKProof, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proof_id, patient_id, proof_type, public_statement, secret_data,
		       commitment, challenge, secret_hash, created_at, expires_at, is_active, verification_count
		FROM zk_proofs WHERE patient_id = ? ORDER BY created_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing proofs: %w", err)
	}
	defer rows.Close()

	var out []*medvault.ZKProof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proof: %w", err)
		}
		out = append(out, proof)
	}
	return out, rows.Err()
}

func (s *Store) AppendVerification(ctx context.Context, rec *medvault.ZKVerificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zk_verifications
			(verification_id, proof_id, verified_by, result, context, hospital_id, emergency_access, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.VerificationID, rec.ProofID, rec.VerifiedBy, rec.Result, rec.Context,
		rec.HospitalID, rec.EmergencyAccess, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("appending verification record: %w", err)
	}
	return nil
}

// VerificationsForProof returns the append-only verification log for a proof,
// oldest first. Used by audit queries, not by the core.
func (s *Store) VerificationsForProof(ctx context.Context, proofID string) ([]*medvault.ZKVerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT verification_id, proof_id, verified_by, result, context, hospital_id, emergency_access, timestamp
		FROM zk_verifications WHERE proof_id = ? ORDER BY timestamp
	`, proofID)
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}
	defer rows.Close()

	var out []*medvault.ZKVerificationRecord
	for rows.Next() {
		var rec medvault.ZKVerificationRecord
		if err := rows.Scan(&rec.VerificationID, &rec.ProofID, &rec.VerifiedBy, &rec.Result,
			&rec.Context, &rec.HospitalID, &rec.EmergencyAccess, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning verification record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) PutConsent(ctx context.Context, rec *medvault.EmergencyConsentRecord) error {
	primary, err := json.Marshal(rec.PrimaryPhysician)
	if err != nil {
		return fmt.Errorf("encoding primary physician: %w", err)
	}
	secondary, err := json.Marshal(rec.SecondaryAuthorizer)
	if err != nil {
		return fmt.Errorf("encoding secondary authorizer: %w", err)
	}
	limitations, err := json.Marshal(rec.Limitations)
	if err != nil {
		return fmt.Errorf("encoding limitations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emergency_consents
			(consent_id, patient_id, emergency_type, granted_at, expires_at,
			 primary_physician, secondary_authorizer, next_of_kin_consent,
			 access_level, limitations, hospital_id, revoked_at, revoked_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`, rec.ConsentID, rec.PatientID, string(rec.EmergencyType), rec.GrantedAt, rec.ExpiresAt,
		string(primary), string(secondary), rec.NextOfKinConsent,
		string(rec.AccessLevel), string(limitations), rec.HospitalID)
	if err != nil {
		return fmt.Errorf("storing consent record: %w", err)
	}
	return nil
}

func (s *Store) GetConsent(ctx context.Context, consentID string) (*medvault.EmergencyConsentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT consent_id, patient_id, emergency_type, granted_at, expires_at,
		       primary_physician, secondary_authorizer, next_of_kin_consent,
		       access_level, limitations, hospital_id, revoked_at, revoked_by
		FROM emergency_consents WHERE consent_id = ?
	`, consentID)

	var rec medvault.EmergencyConsentRecord
	var primary, secondary, limitations string
	var revokedAt sql.NullTime
	var revokedBy sql.NullString
	err := row.Scan(&rec.ConsentID, &rec.PatientID, (*string)(&rec.EmergencyType),
		&rec.GrantedAt, &rec.ExpiresAt, &primary, &secondary, &rec.NextOfKinConsent,
		(*string)(&rec.AccessLevel), &limitations, &rec.HospitalID, &revokedAt, &revokedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading consent record: %w", err)
	}
	if err := json.Unmarshal([]byte(primary), &rec.PrimaryPhysician); err != nil {
		return nil, fmt.Errorf("decoding primary physician: %w", err)
	}
	if err := json.Unmarshal([]byte(secondary), &rec.SecondaryAuthorizer); err != nil {
		return nil, fmt.Errorf("decoding secondary authorizer: %w", err)
	}
	if err := json.Unmarshal([]byte(limitations), &rec.Limitations); err != nil {
		return nil, fmt.Errorf("decoding limitations: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	if revokedBy.Valid {
		rec.RevokedBy = revokedBy.String
	}
	return &rec, nil
}

func (s *Store) RevokeConsent(ctx context.Context, consentID, revokedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE emergency_consents SET revoked_at = ?, revoked_by = ? WHERE consent_id = ?
	`, at, revokedBy, consentID)
	if err != nil {
		return fmt.Errorf("revoking consent: %w", err)
	}
	return requireRow(res, consentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProof(row rowScanner) (*medvault.ZKProof, error) {
	var proof medvault.ZKProof
	err := row.Scan(&proof.ProofID, &proof.PatientID, (*string)(&proof.Type),
		&proof.PublicStatement, &proof.SecretData, &proof.Commitment, &proof.Challenge,
		&proof.SecretHash, &proof.CreatedAt, &proof.ExpiresAt, &proof.IsActive,
		&proof.VerificationCount)
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no record with id %s", id)
	}
	return nil
}
