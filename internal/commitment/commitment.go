// Package commitment implements the keyed-hash commitment scheme behind the
// proof engine: facts are mapped into the BN254 scalar field, hashed with
// Poseidon, and bound to a random challenge so that a commitment cannot be
// replayed against a different fact.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// HashFact maps an arbitrary secret fact (diagnosis string, allergy string)
// to a field element. The SHA-256 digest is split into two 128-bit limbs so
// both fit below the BN254 modulus, then absorbed by Poseidon.
func HashFact(fact string) (*big.Int, error) {
	digest := sha256.Sum256([]byte(fact))
	lo := new(big.Int).SetBytes(digest[:16])
	hi := new(big.Int).SetBytes(digest[16:])
	h, err := poseidon.Hash([]*big.Int{lo, hi})
	if err != nil {
		return nil, fmt.Errorf("poseidon hash failed: %w", err)
	}
	return h, nil
}

// HashAgeFact binds the actual age and the asserted threshold into a single
// field element, so a verifier learns only that the pair was attested.
func HashAgeFact(age, minAge int) (*big.Int, error) {
	h, err := poseidon.Hash([]*big.Int{
		big.NewInt(int64(age)),
		big.NewInt(int64(minAge)),
	})
	if err != nil {
		return nil, fmt.Errorf("poseidon hash failed: %w", err)
	}
	return h, nil
}

// NewChallenge draws a uniform random element of the scalar field.
func NewChallenge() (*big.Int, error) {
	c, err := rand.Int(rand.Reader, constants.Q)
	if err != nil {
		return nil, fmt.Errorf("challenge generation failed: %w", err)
	}
	return c, nil
}

// Commit computes Poseidon(h, challenge).
func Commit(h, challenge *big.Int) (*big.Int, error) {
	c, err := poseidon.Hash([]*big.Int{h, challenge})
	if err != nil {
		return nil, fmt.Errorf("poseidon commit failed: %w", err)
	}
	return c, nil
}

// Encode renders a field element as lowercase hex.
func Encode(v *big.Int) string {
	return hex.EncodeToString(v.Bytes())
}

// Decode parses a hex-encoded field element.
func Decode(s string) (*big.Int, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid field element encoding: %w", err)
	}
	return new(big.Int).SetBytes(b), nil
}

// Equal compares two encoded commitments byte-exactly in constant time.
func Equal(a, b string) bool {
	ab, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return false
	}
	if len(ab) != len(bb) {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
