package config

import "time"

type SecurityConfig interface {
	GetSecretKey() string
	GetSessionSecret() string
	GetMaxSessionAge() time.Duration
	GetAllowExternalUserTokenCreation() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSecretKey returns the master secret used for field-level encryption of
// stored client secrets.
func (Security) GetSecretKey() string {
	return GetEnv("SECRET_KEY", "dev-only-secret-key")
}

// GetSessionSecret signs the login-session cookies used by the authorize
// endpoint.
func (Security) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "dev-only-session-secret")
}

func (Security) GetMaxSessionAge() time.Duration {
	return 30 * time.Minute
}

// GetAllowExternalUserTokenCreation is the policy switch for token issuance
// to users owned by an external authentication provider. Off by default.
func (Security) GetAllowExternalUserTokenCreation() bool {
	return GetEnv("ALLOW_OAUTH2_FOR_EXTERNAL_USERS", "false") == "true"
}
