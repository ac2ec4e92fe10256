package utils

import (
	"encoding/hex"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor("unit-test-secret")
	require.NoError(t, err)
	return enc
}

func TestNewEncryptorRequiresSecret(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)

	cases := []string{
		"JBSWY3DPEHPK3PXP",
		"12345678",
		"a",
		"secret with spaces and punctuation !@#$%^&*()",
		"ユニコードも暗号化できる 🔐",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range cases {
		envelope, err := enc.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := enc.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptEnvelopeFormat(t *testing.T) {
	enc := newTestEncryptor(t)

	envelope, err := enc.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 3)

	iv, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, tag, 16)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	enc := newTestEncryptor(t)

	first, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc := newTestEncryptor(t)

	envelope, err := enc.Encrypt("tamper target")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 3)

	// Flip one bit in each part in turn; every variant must fail closed
	for i := 0; i < 3; i++ {
		raw, err := hex.DecodeString(parts[i])
		require.NoError(t, err)
		require.NotEmpty(t, raw)

		raw[0] ^= 0x01
		tampered := make([]string, 3)
		copy(tampered, parts)
		tampered[i] = hex.EncodeToString(raw)

		_, err = enc.Decrypt(strings.Join(tampered, ":"))
		assert.Error(t, err, "tampered part %d must not decrypt", i)
	}
}

func TestDecryptRejectsMalformedEnvelopes(t *testing.T) {
	enc := newTestEncryptor(t)

	envelope, err := enc.Encrypt("well formed")
	require.NoError(t, err)
	parts := strings.Split(envelope, ":")

	malformed := []string{
		"",
		"deadbeef",
		parts[0] + ":" + parts[1],
		envelope + ":cafe",
		"zz:" + parts[1] + ":" + parts[2],
		parts[0] + ":zz:" + parts[2],
		parts[0] + ":" + parts[1] + ":zz",
		"ab:" + parts[1] + ":" + parts[2], // IV truncated
	}

	for _, env := range malformed {
		_, err := enc.Decrypt(env)
		assert.Error(t, err, "envelope %q must not decrypt", env)
	}
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	enc := newTestEncryptor(t)
	other, err := NewEncryptor("a different operator secret")
	require.NoError(t, err)

	envelope, err := enc.Encrypt("cross-key payload")
	require.NoError(t, err)

	_, err = other.Decrypt(envelope)
	assert.Error(t, err)
}

func TestGenerateBackupCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateBackupCode()
		require.NoError(t, err)
		require.Len(t, code, BackupCodeLength)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10000000)
		assert.LessOrEqual(t, n, 99999999)

		seen[code] = true
	}
	// 200 draws from a 90M space colliding down to a handful would mean a
	// broken generator
	assert.Greater(t, len(seen), 190)
}
