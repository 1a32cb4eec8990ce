package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryption is returned when a stored value cannot be decrypted: the
// tagged marker is missing, the algorithm is unknown, or the context key does
// not match the one used at encryption time.
var ErrDecryption = errors.New("decryption failed")

const (
	encryptedMarker = "$encrypted$"
	algorithmAESGCM = "AESGCM"

	keyIterations = 4096
	keyLength     = 32
)

// Service encrypts and decrypts values at rest. Ciphertexts carry a fixed
// marker so stored values are recognizable as encrypted. The transform is
// pure: Service holds no mutable state and is safe for concurrent use.
type Service struct {
	masterSecret []byte
}

// New creates a Service from the configured master secret. The per-value key
// is derived from the master secret and a caller-supplied context key, so a
// value encrypted under one context cannot be decrypted under another.
func New(masterSecret string) *Service {
	return &Service{masterSecret: []byte(masterSecret)}
}

// Encrypt returns the tagged ciphertext "$encrypted$AESGCM$<base64>" for
// plaintext under the given context key.
func (s *Service) Encrypt(plaintext, contextKey string) (string, error) {
	gcm, err := s.newGCM(contextKey)
	if err != nil {
		return "", errors.Wrap(err, "secrets.Encrypt")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "secrets.Encrypt rand.Read")
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedMarker + algorithmAESGCM + "$" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails with ErrDecryption when ciphertext does
// not carry the marker or was encrypted under a different context key.
func (s *Service) Decrypt(ciphertext, contextKey string) (string, error) {
	if !strings.HasPrefix(ciphertext, encryptedMarker) {
		return "", errors.Wrap(ErrDecryption, "missing encrypted marker")
	}

	rest := strings.TrimPrefix(ciphertext, encryptedMarker)
	algorithm, payload, found := strings.Cut(rest, "$")
	if !found || algorithm != algorithmAESGCM {
		return "", errors.Wrapf(ErrDecryption, "unknown algorithm %q", algorithm)
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.Wrap(ErrDecryption, "malformed payload")
	}

	gcm, err := s.newGCM(contextKey)
	if err != nil {
		return "", errors.Wrap(err, "secrets.Decrypt")
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errors.Wrap(ErrDecryption, "payload too short")
	}

	nonce, sealed := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Wrap(ErrDecryption, "context key mismatch")
	}

	return string(plaintext), nil
}

// Redacted is the placeholder shown in place of encrypted values in API
// responses.
const Redacted = encryptedMarker

// IsEncrypted reports whether value carries the encrypted marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedMarker)
}

func (s *Service) newGCM(contextKey string) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.masterSecret, []byte(contextKey), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes.NewCipher")
	}
	return cipher.NewGCM(block)
}
