package tokens

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a token string or ID resolves to nothing.
	ErrNotFound = errors.New("token not found")
	// ErrRevoked is returned when an operation requires a live refresh token
	// but the token has already been revoked.
	ErrRevoked = errors.New("refresh token revoked")
)

// IssueRequest describes a token issuance. Application is nil for personal
// access tokens. Scope is stored verbatim; an empty scope defaults to
// "write". Content validation of the scope string is the grant processor's
// job, not the store's.
type IssueRequest struct {
	Application  *applications.Application
	UserID       string
	Scope        Scope
	Description  string
	WantsRefresh bool
	Expires      time.Time
}

// RefreshWanted resolves the refresh-token decision: the caller's request,
// overridden to false for implicit-grant applications, which never receive
// refresh tokens.
func (r IssueRequest) RefreshWanted() bool {
	if r.Application != nil && r.Application.AuthorizationGrantType == applications.GrantImplicit {
		return false
	}
	return r.WantsRefresh
}

// AccessTokenPatch mutates the updatable fields of an access token.
type AccessTokenPatch struct {
	Scope       *Scope
	Description *string
}

// AccessTokenFilter narrows ListAccessTokens. Zero value lists everything.
type AccessTokenFilter struct {
	ApplicationID string
	UserID        string
	PersonalOnly  bool
}

// Store is the durable mapping of token strings to applications, users, and
// scopes. Implementations must be safe for concurrent use and must execute
// each operation as a single atomic unit: a rotation either fully happens or
// leaves no trace, and concurrent rotations of the same refresh token never
// both succeed.
type Store interface {
	// Issue mints an access token, plus a refresh token unless the request
	// opts out or the application's grant type is implicit. Token strings are
	// generated with retry under the uniqueness constraint.
	Issue(ctx context.Context, req IssueRequest) (*AccessToken, *RefreshToken, error)

	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// RevokeAccessToken hard-deletes the access token row. The linked refresh
	// token is deliberately left untouched: revoking access does not
	// invalidate a still-valid refresh credential.
	RevokeAccessToken(ctx context.Context, token string) error

	// RevokeRefreshToken flags the row revoked in place. When the token has
	// zero recorded rotations the row is recycled rather than replaced, so
	// the surviving row keeps the same token identity.
	RevokeRefreshToken(ctx context.Context, token string) error

	// RotateRefreshToken atomically revokes oldToken (keeping its row),
	// deletes the access token it pointed to, and mints a fresh pair bound to
	// the same application, user, and scope. Unknown tokens fail with
	// ErrNotFound, already-revoked ones with ErrRevoked.
	RotateRefreshToken(ctx context.Context, oldToken string, expires time.Time) (*AccessToken, *RefreshToken, error)

	UpdateAccessToken(ctx context.Context, id string, patch AccessTokenPatch) (*AccessToken, error)
	ListAccessTokens(ctx context.Context, filter AccessTokenFilter) ([]*AccessToken, error)

	// DeleteForApplication removes every access and refresh token bound to
	// the application. Used by the registry's cascading delete.
	DeleteForApplication(ctx context.Context, applicationID string) error

	CountAccessTokens(ctx context.Context) (int, error)
	CountRefreshTokens(ctx context.Context) (int, error)
}
