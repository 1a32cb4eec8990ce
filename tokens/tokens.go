package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

// Mask is the placeholder returned instead of the raw token value once a
// token already exists. The raw value is only ever visible in the create
// response.
const Mask = "************"

const tokenByteLength = 32 // 256 bits

// AccessToken is an opaque bearer credential. An empty ApplicationID means a
// personal access token issued directly to the user, outside any client
// application.
type AccessToken struct {
	ID            string    `json:"id"`
	Token         string    `json:"token,omitempty"`
	ApplicationID string    `json:"application,omitempty"`
	UserID        string    `json:"user"`
	Scope         Scope     `json:"scope"`
	Description   string    `json:"description,omitempty"`
	Expires       time.Time `json:"expires"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.Expires.IsZero() && now.After(t.Expires)
}

// RefreshToken is the rotation credential paired with an access token.
// Revocation keeps the row (flagged) so the rotation lineage stays auditable;
// AccessTokenID is cleared when rotation deletes the paired access token.
type RefreshToken struct {
	ID            string     `json:"id"`
	Token         string     `json:"token,omitempty"`
	ApplicationID string     `json:"application,omitempty"`
	UserID        string     `json:"user"`
	Scope         Scope      `json:"scope"`
	AccessTokenID string     `json:"access_token,omitempty"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	Rotations     int        `json:"-"`
	Created       time.Time  `json:"created"`
}

// GenerateTokenString returns a cryptographically random opaque token string.
func GenerateTokenString() (string, error) {
	tokenBytes := make([]byte, tokenByteLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "tokens.GenerateTokenString rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}
