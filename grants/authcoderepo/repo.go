package authcoderepo

import (
	"time"

	"github.com/jrsteele09/go-token-service/tokens"
)

// AuthorizationCode is the single-use credential minted by the authorize
// endpoint and exchanged at the token endpoint.
type AuthorizationCode struct {
	Code          string
	ApplicationID string
	UserID        string
	Scope         tokens.Scope
	RedirectURI   string
	CreatedAt     time.Time
}

type Repo interface {
	Upsert(code string, authCode *AuthorizationCode) error
	Get(code string) (*AuthorizationCode, error)
	Delete(code string) error
}
