// Package grants implements the OAuth2 grant-type state machine. An
// authorization attempt moves RECEIVED → CLIENT_VALIDATED →
// CREDENTIAL_VALIDATED → TOKEN_ISSUED, or terminates REJECTED with a reason
// code. Rejections are terminal: no token state is left behind.
package grants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/jrsteele09/go-token-service/grants/authcoderepo"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type state string

const (
	stateReceived            state = "RECEIVED"
	stateClientValidated     state = "CLIENT_VALIDATED"
	stateCredentialValidated state = "CREDENTIAL_VALIDATED"
	stateTokenIssued         state = "TOKEN_ISSUED"
	stateRejected            state = "REJECTED"
)

const (
	codeGenerationLength   = 32
	defaultAuthCodeTimeout = 15 * time.Minute
	defaultAccessTokenLife = time.Hour
	tokenTypeBearer        = "Bearer"
	responseTypeToken      = "token"
	responseTypeCode       = "code"
)

// ClientAuthenticator is the slice of the application registry the processor
// needs.
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (*applications.Application, error)
	GetByClientID(ctx context.Context, clientID string) (*applications.Application, error)
}

// Processor drives grant-type validation and token issuance. The external
// user policy switch is explicit configuration, set at construction, not
// ambient state.
type Processor struct {
	registry           ClientAuthenticator
	users              users.Repo
	store              tokens.Store
	codes              authcoderepo.Repo
	logger             zerolog.Logger
	nowFunc            func() time.Time
	accessTokenExpiry  time.Duration
	authCodeTimeout    time.Duration
	allowExternalUsers bool
}

type ProcessorOption func(*Processor)

func WithNowFunc(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithAccessTokenExpiry(expiry time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.accessTokenExpiry = expiry
	}
}

func WithAuthCodeTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.authCodeTimeout = timeout
	}
}

// WithAllowExternalUserTokens controls the policy gate for users owned by an
// external authentication provider. Default is to block them.
func WithAllowExternalUserTokens(allow bool) ProcessorOption {
	return func(p *Processor) {
		p.allowExternalUsers = allow
	}
}

func New(registry ClientAuthenticator, userRepo users.Repo, store tokens.Store, codes authcoderepo.Repo, options ...ProcessorOption) (*Processor, error) {
	if registry == nil {
		return nil, errors.New("[grants.New] registry is required")
	}
	if userRepo == nil {
		return nil, errors.New("[grants.New] user repo is required")
	}
	if store == nil {
		return nil, errors.New("[grants.New] token store is required")
	}
	if codes == nil {
		return nil, errors.New("[grants.New] authorization code repo is required")
	}

	p := &Processor{
		registry:          registry,
		users:             userRepo,
		store:             store,
		codes:             codes,
		logger:            zerolog.Nop(),
		nowFunc:           time.Now,
		accessTokenExpiry: defaultAccessTokenLife,
		authCodeTimeout:   defaultAuthCodeTimeout,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// TokenRequest is a parsed token-endpoint request. ClientID/ClientSecret come
// from the HTTP Basic authorization header, everything else from the
// form-encoded body.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	Code         string
	RedirectURI  string
	Scope        tokens.Scope
}

// TokenResponse is the standard token endpoint JSON body. RefreshToken is a
// pointer so no-refresh issuances serialize as an explicit null.
type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	Scope        string  `json:"scope"`
}

// Token runs the grant state machine for a token-endpoint request.
func (p *Processor) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	p.transition(req.GrantType, stateReceived)

	app, err := p.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		p.reject(req.GrantType, err)
		return nil, rejected(ErrInvalidClient, "client authentication failed")
	}
	p.transition(req.GrantType, stateClientValidated)

	if err := req.Scope.Validate(); err != nil {
		p.reject(req.GrantType, err)
		return nil, rejected(ErrInvalidScope, err.Error())
	}

	var resp *TokenResponse
	switch req.GrantType {
	case "password":
		resp, err = p.passwordGrant(ctx, app, req)
	case "refresh_token":
		resp, err = p.refreshTokenGrant(ctx, app, req)
	case "authorization_code":
		resp, err = p.authorizationCodeGrant(ctx, app, req)
	case "client_credentials":
		resp, err = p.clientCredentialsGrant(ctx, app, req)
	default:
		err = rejected(ErrUnsupportedGrant, req.GrantType)
	}
	if err != nil {
		p.reject(req.GrantType, err)
		return nil, err
	}

	p.transition(req.GrantType, stateTokenIssued)
	return resp, nil
}

func (p *Processor) passwordGrant(ctx context.Context, app *applications.Application, req TokenRequest) (*TokenResponse, error) {
	if app.AuthorizationGrantType != applications.GrantPassword {
		return nil, rejected(ErrUnauthorizedClient, "application does not support the password grant")
	}

	user, err := p.users.GetByUsername(req.Username)
	if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, rejected(ErrInvalidGrant, "invalid username or password")
	}
	if err := p.externalUserGate(user); err != nil {
		return nil, err
	}
	p.transition(string(applications.GrantPassword), stateCredentialValidated)

	return p.issue(ctx, app, user.ID, req.Scope, true)
}

func (p *Processor) refreshTokenGrant(ctx context.Context, app *applications.Application, req TokenRequest) (*TokenResponse, error) {
	rt, err := p.store.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, rejected(ErrInvalidGrant, "unknown refresh token")
	}
	if rt.Revoked {
		return nil, rejected(ErrInvalidGrant, "refresh token revoked")
	}
	if rt.ApplicationID != app.ID {
		return nil, rejected(ErrInvalidGrant, "refresh token does not belong to client")
	}
	p.transition("refresh_token", stateCredentialValidated)

	at, newRT, err := p.store.RotateRefreshToken(ctx, req.RefreshToken, p.nowFunc().Add(p.accessTokenExpiry))
	if errors.Is(err, tokens.ErrNotFound) || errors.Is(err, tokens.ErrRevoked) {
		return nil, rejected(ErrInvalidGrant, "refresh token no longer valid")
	}
	if err != nil {
		return nil, errors.Wrap(err, "grants refresh rotation")
	}
	return p.response(at, newRT), nil
}

func (p *Processor) authorizationCodeGrant(ctx context.Context, app *applications.Application, req TokenRequest) (*TokenResponse, error) {
	code, err := p.codes.Get(req.Code)
	if err != nil {
		return nil, rejected(ErrInvalidGrant, "unknown authorization code")
	}
	// single use, even when a later check fails
	_ = p.codes.Delete(req.Code)

	if code.ApplicationID != app.ID {
		return nil, rejected(ErrInvalidGrant, "authorization code does not belong to client")
	}
	if p.nowFunc().Sub(code.CreatedAt) > p.authCodeTimeout {
		return nil, rejected(ErrInvalidGrant, "authorization code expired")
	}
	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		return nil, rejected(ErrInvalidGrant, "redirect_uri mismatch")
	}

	user, err := p.users.GetByID(code.UserID)
	if err != nil {
		return nil, rejected(ErrInvalidGrant, "user no longer exists")
	}
	if err := p.externalUserGate(user); err != nil {
		return nil, err
	}
	p.transition("authorization_code", stateCredentialValidated)

	return p.issue(ctx, app, user.ID, code.Scope, true)
}

func (p *Processor) clientCredentialsGrant(ctx context.Context, app *applications.Application, req TokenRequest) (*TokenResponse, error) {
	if app.AuthorizationGrantType != applications.GrantClientCredentials {
		return nil, rejected(ErrUnauthorizedClient, "application does not support the client_credentials grant")
	}
	p.transition("client_credentials", stateCredentialValidated)

	// machine token: no user, no refresh credential
	return p.issue(ctx, app, "", req.Scope, false)
}

// AuthorizeRequest is a parsed authorization-endpoint request. UserID is the
// already-authenticated end user; session handling is the transport's job.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        tokens.Scope
	State        string
	Allow        bool
	UserID       string
}

// AuthorizeResult carries the redirect the user-agent should be sent to.
type AuthorizeResult struct {
	RedirectURL string
}

// Authorize handles the authorization endpoint: implicit issuance in the URI
// fragment for response_type=token, a single-use code for response_type=code.
func (p *Processor) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	app, err := p.registry.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, rejected(ErrInvalidClient, "unknown client_id")
	}

	if err := req.Scope.Validate(); err != nil {
		return nil, rejected(ErrInvalidScope, err.Error())
	}

	redirectURI, err := resolveRedirectURI(app, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	user, err := p.users.GetByID(req.UserID)
	if err != nil {
		return nil, rejected(ErrAccessDenied, "no authenticated user")
	}

	if !req.Allow && !app.SkipAuthorization {
		return nil, rejected(ErrAccessDenied, "user denied the request")
	}

	switch req.ResponseType {
	case responseTypeToken:
		return p.implicitAuthorize(ctx, app, user, redirectURI, req)
	case responseTypeCode:
		return p.codeAuthorize(ctx, app, user, redirectURI, req)
	default:
		return nil, rejected(ErrUnsupportedResponse, req.ResponseType)
	}
}

// implicitAuthorize issues the access token directly, embedded in the
// redirect fragment. Implicit issuance never creates a refresh token.
func (p *Processor) implicitAuthorize(ctx context.Context, app *applications.Application, user *users.User, redirectURI string, req AuthorizeRequest) (*AuthorizeResult, error) {
	if app.AuthorizationGrantType != applications.GrantImplicit {
		return nil, rejected(ErrUnauthorizedClient, "application does not support the implicit grant")
	}

	at, _, err := p.store.Issue(ctx, tokens.IssueRequest{
		Application:  app,
		UserID:       user.ID,
		Scope:        req.Scope,
		WantsRefresh: false,
		Expires:      p.nowFunc().Add(p.accessTokenExpiry),
	})
	if err != nil {
		return nil, errors.Wrap(err, "grants implicit issue")
	}

	fragment := url.Values{}
	fragment.Set("access_token", at.Token)
	fragment.Set("token_type", tokenTypeBearer)
	fragment.Set("expires_in", strconv.Itoa(int(p.accessTokenExpiry.Seconds())))
	fragment.Set("scope", at.Scope.String())
	if req.State != "" {
		fragment.Set("state", req.State)
	}
	return &AuthorizeResult{RedirectURL: redirectURI + "#" + fragment.Encode()}, nil
}

func (p *Processor) codeAuthorize(ctx context.Context, app *applications.Application, user *users.User, redirectURI string, req AuthorizeRequest) (*AuthorizeResult, error) {
	if app.AuthorizationGrantType != applications.GrantAuthorizationCode {
		return nil, rejected(ErrUnauthorizedClient, "application does not support the authorization_code grant")
	}

	code, err := generateCode()
	if err != nil {
		return nil, errors.Wrap(err, "grants generate code")
	}
	if err := p.codes.Upsert(code, &authcoderepo.AuthorizationCode{
		Code:          code,
		ApplicationID: app.ID,
		UserID:        user.ID,
		Scope:         req.Scope,
		RedirectURI:   redirectURI,
		CreatedAt:     p.nowFunc(),
	}); err != nil {
		return nil, errors.Wrap(err, "grants store code")
	}

	query := url.Values{}
	query.Set("code", code)
	if req.State != "" {
		query.Set("state", req.State)
	}
	separator := "?"
	if strings.Contains(redirectURI, "?") {
		separator = "&"
	}
	return &AuthorizeResult{RedirectURL: redirectURI + separator + query.Encode()}, nil
}

// externalUserGate blocks fresh credential-based issuance for users owned by
// an external authentication provider when the policy switch disallows it.
// Refresh and implicit flows are exempt.
func (p *Processor) externalUserGate(user *users.User) error {
	if user.IsExternal() && !p.allowExternalUsers {
		return rejected(ErrAccessDenied, ExternalUserMessage)
	}
	return nil
}

func (p *Processor) issue(ctx context.Context, app *applications.Application, userID string, scope tokens.Scope, wantsRefresh bool) (*TokenResponse, error) {
	at, rt, err := p.store.Issue(ctx, tokens.IssueRequest{
		Application:  app,
		UserID:       userID,
		Scope:        scope,
		WantsRefresh: wantsRefresh,
		Expires:      p.nowFunc().Add(p.accessTokenExpiry),
	})
	if err != nil {
		return nil, errors.Wrap(err, "grants issue")
	}
	return p.response(at, rt), nil
}

func (p *Processor) response(at *tokens.AccessToken, rt *tokens.RefreshToken) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: at.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(p.accessTokenExpiry.Seconds()),
		Scope:       at.Scope.String(),
	}
	if rt != nil {
		token := rt.Token
		resp.RefreshToken = &token
	}
	return resp
}

func (p *Processor) transition(grantType string, to state) {
	p.logger.Debug().Str("grant_type", grantType).Str("state", string(to)).Msg("grant state")
}

func (p *Processor) reject(grantType string, err error) {
	p.logger.Debug().Str("grant_type", grantType).Str("state", string(stateRejected)).Err(err).Msg("grant state")
}

func resolveRedirectURI(app *applications.Application, requested string) (string, error) {
	registered := strings.Fields(app.RedirectURIs)
	if requested == "" {
		if len(registered) == 0 {
			return "", rejected(ErrInvalidRequest, "no redirect_uri registered")
		}
		return registered[0], nil
	}
	for _, uri := range registered {
		if uri == requested {
			return requested, nil
		}
	}
	return "", rejected(ErrInvalidRequest, "redirect_uri not registered")
}

func generateCode() (string, error) {
	buf := make([]byte, codeGenerationLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
