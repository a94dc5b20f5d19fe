package medvault

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const credentialIssuer = "medvault"

// credentialClaims is the JWT payload of a temporary emergency credential.
// The registered claims carry the consent ID (jti), patient ID (sub) and
// expiry; the rest is the access scope.
type credentialClaims struct {
	jwt.RegisteredClaims
	HospitalID  string      `json:"hospital_id"`
	AccessLevel AccessLevel `json:"access_level"`
	Limitations []string    `json:"limitations"`
	AutoRevoke  bool        `json:"auto_revoke"`
}

// mintTemporaryCredential signs a credential token for a granted consent
// record. HS256 over the vault's derived credential signing key.
func mintTemporaryCredential(signingKey []byte, rec *EmergencyConsentRecord) (string, error) {
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    credentialIssuer,
			Subject:   rec.PatientID,
			ID:        rec.ConsentID,
			IssuedAt:  jwt.NewNumericDate(rec.GrantedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
		HospitalID:  rec.HospitalID,
		AccessLevel: rec.AccessLevel,
		Limitations: rec.Limitations,
		AutoRevoke:  true,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

// parseTemporaryCredential verifies signature, issuer and expiry, and decodes
// the credential. Expired or tampered tokens fail with ErrInvalidCredential.
func parseTemporaryCredential(signingKey []byte, token string) (*TemporaryCredential, error) {
	var claims credentialClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	}, jwt.WithIssuer(credentialIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidCredential)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &TemporaryCredential{
		ConsentID:   claims.ID,
		PatientID:   claims.Subject,
		HospitalID:  claims.HospitalID,
		AccessLevel: claims.AccessLevel,
		Limitations: claims.Limitations,
		ExpiresAt:   expiresAt,
		AutoRevoke:  claims.AutoRevoke,
	}, nil
}
