package medvault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	cases := []struct {
		err        error
		integrity  bool
		notFound   bool
		proofState bool
		policy     bool
	}{
		{ErrKeyRetrieval, true, false, false, false},
		{ErrDekUnwrap, true, false, false, false},
		{ErrInvalidEnvelopeFormat, true, false, false, false},
		{ErrKeyNotFound, false, true, false, false},
		{ErrProofNotFound, false, true, false, false},
		{ErrConsentNotFound, false, true, false, false},
		{ErrNoPrivateKey, false, true, false, false},
		{ErrProofInactive, false, false, true, false},
		{ErrProofExpired, false, false, true, false},
		{ErrInvalidEmergencyType, false, false, false, true},
		{ErrInsufficientJustification, false, false, false, true},
		{ErrContactNotAttempted, false, false, false, true},
		{ErrDurationExceeded, false, false, false, true},
		{ErrDuplicateAuthorizer, false, false, false, true},
		{ErrUnqualifiedRole, false, false, false, true},
		{ErrAuthorizerNotOnDuty, false, false, false, true},
		{ErrAccessDenied, false, false, false, true},
		{ErrInvalidCredential, false, false, false, false},
		{errors.New("unrelated"), false, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.integrity, IsIntegrityError(tc.err))
			assert.Equal(t, tc.notFound, IsNotFoundError(tc.err))
			assert.Equal(t, tc.proofState, IsProofStateError(tc.err))
			assert.Equal(t, tc.policy, IsPolicyError(tc.err))
		})
	}
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("outer context: %w", fmt.Errorf("%w: patient-001", ErrKeyNotFound))
	assert.True(t, IsNotFoundError(wrapped))
	assert.False(t, IsIntegrityError(wrapped))
}
