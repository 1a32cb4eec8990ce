package secrets_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-token-service/secrets"
	"github.com/stretchr/testify/require"
)

const testMasterSecret = "unit-test-master-secret"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	ciphertext, err := svc.Encrypt("super-secret-value", "client_secret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ciphertext, "$encrypted$"))
	require.True(t, secrets.IsEncrypted(ciphertext))
	require.NotContains(t, ciphertext, "super-secret-value")

	plaintext, err := svc.Decrypt(ciphertext, "client_secret")
	require.NoError(t, err)
	require.Equal(t, "super-secret-value", plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	first, err := svc.Encrypt("value", "ctx")
	require.NoError(t, err)
	second, err := svc.Encrypt("value", "ctx")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDecryptWrongContextKey(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	ciphertext, err := svc.Encrypt("value", "client_secret")
	require.NoError(t, err)

	_, err = svc.Decrypt(ciphertext, "other_context")
	require.ErrorIs(t, err, secrets.ErrDecryption)
}

func TestDecryptMissingMarker(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	_, err := svc.Decrypt("plain-stored-value", "ctx")
	require.ErrorIs(t, err, secrets.ErrDecryption)
}

func TestDecryptUnknownAlgorithm(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	_, err := svc.Decrypt("$encrypted$ROT13$abcdef", "ctx")
	require.ErrorIs(t, err, secrets.ErrDecryption)
}

func TestDecryptTamperedPayload(t *testing.T) {
	svc := secrets.New(testMasterSecret)

	ciphertext, err := svc.Encrypt("value", "ctx")
	require.NoError(t, err)

	tampered := ciphertext[:len(ciphertext)-2] + "=="
	_, err = svc.Decrypt(tampered, "ctx")
	require.ErrorIs(t, err, secrets.ErrDecryption)
}
