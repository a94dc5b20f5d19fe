package envelope

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKeyT(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestDeriveKeyDeterministic(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	salt := []byte("salt-value")

	k1 := DeriveKey(master, salt, 1_000)
	k2 := DeriveKey(master, salt, 1_000)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	k3 := DeriveKey(master, []byte("other-salt"), 1_000)
	assert.NotEqual(t, k1, k3)

	k4 := DeriveKey(master, salt, 2_000)
	assert.NotEqual(t, k1, k4)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randomKeyT(t)
	plaintext := []byte("patient private key material")
	aad := []byte("patient-001")

	iv, ciphertext, tag, err := Seal(key, plaintext, aad)
	require.NoError(t, err)
	assert.Len(t, iv, IVSize)
	assert.Len(t, tag, TagSize)
	assert.Len(t, ciphertext, len(plaintext))

	got, err := Open(key, iv, ciphertext, tag, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealFreshIVPerCall(t *testing.T) {
	key := randomKeyT(t)
	iv1, ct1, _, err := Seal(key, []byte("same plaintext"), nil)
	require.NoError(t, err)
	iv2, ct2, _, err := Seal(key, []byte("same plaintext"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := randomKeyT(t)
	iv, ciphertext, tag, err := Seal(key, []byte("sensitive"), []byte("aad"))
	require.NoError(t, err)

	ciphertext[0] ^= 0x01
	_, err = Open(key, iv, ciphertext, tag, []byte("aad"))
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenRejectsTamperedTag(t *testing.T) {
	key := randomKeyT(t)
	iv, ciphertext, tag, err := Seal(key, []byte("sensitive"), []byte("aad"))
	require.NoError(t, err)

	tag[len(tag)-1] ^= 0x80
	_, err = Open(key, iv, ciphertext, tag, []byte("aad"))
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key := randomKeyT(t)
	iv, ciphertext, tag, err := Seal(key, []byte("sensitive"), []byte("patient-001"))
	require.NoError(t, err)

	_, err = Open(key, iv, ciphertext, tag, []byte("patient-002"))
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := randomKeyT(t)
	iv, ciphertext, tag, err := Seal(key, []byte("sensitive"), nil)
	require.NoError(t, err)

	_, err = Open(randomKeyT(t), iv, ciphertext, tag, nil)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestSealRejectsShortKey(t *testing.T) {
	_, _, _, err := Seal([]byte("short"), []byte("data"), nil)
	assert.Error(t, err)
}

func TestSealB64RoundTrip(t *testing.T) {
	key := randomKeyT(t)
	plaintext := []byte(`{"age":34,"min_age":18}`)

	encoded, err := SealB64(key, plaintext)
	require.NoError(t, err)

	got, err := OpenB64(key, encoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenB64RejectsGarbage(t *testing.T) {
	key := randomKeyT(t)

	_, err := OpenB64(key, "not-base64!!!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = OpenB64(key, "c2hvcnQ=")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWrappedRoundTrip(t *testing.T) {
	key := randomKeyT(t)
	dek, err := RandomKey()
	require.NoError(t, err)

	iv, ciphertext, tag, err := Seal(key, dek, []byte("ctx"))
	require.NoError(t, err)

	wrapped := EncodeWrapped(iv, ciphertext, tag)
	assert.Equal(t, 2, strings.Count(wrapped, ":"))

	iv2, ct2, tag2, err := ParseWrapped(wrapped)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(iv, iv2))
	assert.True(t, bytes.Equal(ciphertext, ct2))
	assert.True(t, bytes.Equal(tag, tag2))
}

func TestParseWrappedMalformed(t *testing.T) {
	cases := []string{
		"",
		"onepart",
		"aa:bb",
		"aa:bb:cc:dd",
		"zz:bb:cc",
		"aa:zz:cc",
		"aa:bb:zz",
	}
	for _, input := range cases {
		_, _, _, err := ParseWrapped(input)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", input)
	}
}

func TestSecretKeyDomainSeparated(t *testing.T) {
	priv := []byte("patient key material")
	k1 := SecretKey(priv)
	k2 := SecretKey(priv)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)
	assert.NotEqual(t, priv, k1[:len(priv)])

	assert.NotEqual(t, k1, SecretKey([]byte("other material")))
}

func TestRandomSaltAndKeyLengths(t *testing.T) {
	salt, err := RandomSalt()
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)

	key, err := RandomKey()
	require.NoError(t, err)
	assert.Len(t, key, KeySize)
}
