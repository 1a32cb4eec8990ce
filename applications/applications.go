package applications

import "time"

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // cannot keep secrets (SPAs, mobile apps)
)

// GrantType is the OAuth2 mechanism the application uses at the token
// endpoint. It is fixed at creation time: update requests silently drop any
// attempt to change it.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantImplicit          GrantType = "implicit"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
)

// Application is a registered OAuth2 client. ClientSecret is stored
// encrypted at rest; the plaintext appears exactly once, on the value
// returned from Registry.Create.
type Application struct {
	ID                     string     `json:"id"`
	ClientID               string     `json:"client_id"`
	ClientSecret           string     `json:"client_secret,omitempty"`
	Name                   string     `json:"name"`
	OrganizationID         string     `json:"organization"`
	ClientType             ClientType `json:"client_type"`
	AuthorizationGrantType GrantType  `json:"authorization_grant_type"`
	RedirectURIs           string     `json:"redirect_uris"` // space-separated
	SkipAuthorization      bool       `json:"skip_authorization"`
	Created                time.Time  `json:"created"`
	Modified               time.Time  `json:"modified"`
}

// IsPublic returns true if the application is a public client.
func (a *Application) IsPublic() bool {
	return a.ClientType == ClientTypePublic
}

// RequiresRedirect reports whether the grant type needs registered redirect
// URIs. Only redirect-based flows do; empty RedirectURIs is legal for the
// rest.
func (g GrantType) RequiresRedirect() bool {
	return g == GrantImplicit || g == GrantAuthorizationCode
}

// RequiresConfidential reports whether the grant type is restricted to
// confidential clients.
func (g GrantType) RequiresConfidential() bool {
	return g == GrantPassword || g == GrantClientCredentials
}

func (g GrantType) valid() bool {
	switch g {
	case GrantPassword, GrantImplicit, GrantAuthorizationCode, GrantClientCredentials:
		return true
	}
	return false
}

func (c ClientType) valid() bool {
	return c == ClientTypeConfidential || c == ClientTypePublic
}
