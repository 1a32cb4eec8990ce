package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the engine's view of a directory entry. Authentication backends
// (LDAP, SAML, RADIUS and friends) live outside the engine; ExternalProvider
// records which backend owns the account so grant policy can gate token
// issuance for externally-authenticated users.
type User struct {
	ID               string    `json:"id,omitempty"`
	Username         string    `json:"username,omitempty"`
	Email            string    `json:"email,omitempty"`
	PasswordHash     string    `json:"-"` // never serialize
	FirstName        string    `json:"first_name,omitempty"`
	LastName         string    `json:"last_name,omitempty"`
	ExternalProvider string    `json:"external_provider,omitempty"`
	DateJoined       time.Time `json:"date_joined,omitempty"`
	LastLogin        time.Time `json:"last_login,omitempty"`
}

// IsExternal reports whether the account is owned by an external
// authentication provider.
func (u *User) IsExternal() bool {
	return u.ExternalProvider != ""
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
