// Package legacy bridges the retired authtoken endpoint onto the token
// engine. Clients still POSTing username/password to /api/authtoken/ get a
// plain access token back, and tokens presented with the old "Token" header
// prefix resolve the same way Bearer tokens do.
package legacy

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized is returned for bad credentials and for tokens that are
	// absent, unknown, or expired.
	ErrUnauthorized = errors.New("unauthorized")
)

const defaultTokenLife = time.Hour

// Bridge exchanges legacy credentials for engine-issued tokens and resolves
// Authorization headers in both the legacy and the OAuth2 scheme.
type Bridge struct {
	users       users.Repo
	store       tokens.Store
	logger      zerolog.Logger
	nowFunc     func() time.Time
	tokenExpiry time.Duration
}

type BridgeOption func(*Bridge)

func WithNowFunc(now func() time.Time) BridgeOption {
	return func(b *Bridge) {
		b.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithTokenExpiry(expiry time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.tokenExpiry = expiry
	}
}

func New(userRepo users.Repo, store tokens.Store, options ...BridgeOption) (*Bridge, error) {
	if userRepo == nil {
		return nil, errors.New("[legacy.New] user repo is required")
	}
	if store == nil {
		return nil, errors.New("[legacy.New] token store is required")
	}

	b := &Bridge{
		users:       userRepo,
		store:       store,
		logger:      zerolog.Nop(),
		nowFunc:     time.Now,
		tokenExpiry: defaultTokenLife,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Exchange validates a username/password pair and issues a personal access
// token with write scope and no refresh credential, matching what the retired
// endpoint handed out.
func (b *Bridge) Exchange(ctx context.Context, username, password string) (*tokens.AccessToken, error) {
	user, err := b.users.GetByUsername(username)
	if err != nil || !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, errors.Wrap(ErrUnauthorized, "invalid username or password")
	}

	at, _, err := b.store.Issue(ctx, tokens.IssueRequest{
		UserID:       user.ID,
		Scope:        tokens.ScopeWrite,
		Description:  "legacy authtoken",
		WantsRefresh: false,
		Expires:      b.nowFunc().Add(b.tokenExpiry),
	})
	if err != nil {
		return nil, errors.Wrap(err, "legacy exchange issue")
	}

	b.logger.Debug().Str("user_id", user.ID).Msg("legacy authtoken exchanged")
	return at, nil
}

// ResolveHeader resolves an Authorization header in either the legacy
// "Token <value>" or the OAuth2 "Bearer <value>" scheme to a live access
// token.
func (b *Bridge) ResolveHeader(ctx context.Context, header string) (*tokens.AccessToken, error) {
	value, err := tokenFromHeader(header)
	if err != nil {
		return nil, err
	}

	at, err := b.store.GetAccessToken(ctx, value)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, "unknown token")
	}
	if at.Expired(b.nowFunc()) {
		return nil, errors.Wrap(ErrUnauthorized, "token expired")
	}
	return at, nil
}

func tokenFromHeader(header string) (string, error) {
	scheme, value, found := strings.Cut(header, " ")
	if !found {
		return "", errors.Wrap(ErrUnauthorized, "malformed authorization header")
	}
	switch scheme {
	case "Token", "Bearer":
	default:
		return "", errors.Wrapf(ErrUnauthorized, "unsupported authorization scheme %q", scheme)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.Wrap(ErrUnauthorized, "empty token")
	}
	return value, nil
}
