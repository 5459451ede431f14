package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2 but longer")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2 but longer", hash)

	require.True(t, VerifyPassword(hash, "hunter2 but longer"))
	require.False(t, VerifyPassword(hash, "hunter2 but wrong"))
	require.False(t, VerifyPassword("not-a-hash", "hunter2 but longer"))
}

func TestHashTokenIsDeterministic(t *testing.T) {
	a := HashToken("some-opaque-token")
	b := HashToken("some-opaque-token")
	c := HashToken("other-token")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
	require.Equal(t, strings.ToLower(a), a)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	ciphertext, err := Encrypt([]byte("JBSWY3DPEHPK3PXP"), key)
	require.NoError(t, err)
	require.NotContains(t, ciphertext, "JBSWY3DPEHPK3PXP")

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", string(plaintext))

	// Same plaintext encrypts differently thanks to the random nonce.
	other, err := Encrypt([]byte("JBSWY3DPEHPK3PXP"), key)
	require.NoError(t, err)
	require.NotEqual(t, ciphertext, other)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	wrong := []byte("ffffffffffffffffffffffffffffffff")

	ciphertext, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, wrong)
	require.Error(t, err)

	_, err = Decrypt("AAAA", key)
	require.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	require.Len(t, token, 43)
	require.NotContains(t, token, "=")

	other, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestConstantTimeEquals(t *testing.T) {
	require.True(t, ConstantTimeEquals("abc", "abc"))
	require.False(t, ConstantTimeEquals("abc", "abd"))
	require.False(t, ConstantTimeEquals("abc", "abcd"))
}
