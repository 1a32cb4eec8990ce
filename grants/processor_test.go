package grants_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	fakeapplicationrepo "github.com/jrsteele09/go-token-service/applications/repofake"
	"github.com/jrsteele09/go-token-service/grants"
	"github.com/jrsteele09/go-token-service/grants/authcoderepo"
	"github.com/jrsteele09/go-token-service/organizations"
	orgrepofake "github.com/jrsteele09/go-token-service/organizations/repofake"
	"github.com/jrsteele09/go-token-service/secrets"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/tokens/memstore"
	"github.com/jrsteele09/go-token-service/users"
	fakeuserrepo "github.com/jrsteele09/go-token-service/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testOrgID    = "org-1"
	testPassword = "correct horse battery staple"
)

type testFixture struct {
	registry  *applications.Registry
	users     users.Repo
	store     *memstore.Store
	codes     authcoderepo.Repo
	processor *grants.Processor
	now       time.Time
}

func setupTestFixture(t *testing.T, options ...grants.ProcessorOption) *testFixture {
	t.Helper()

	orgs := orgrepofake.NewFakeOrgRepo()
	require.NoError(t, orgs.Upsert(&organizations.Organization{ID: testOrgID, Name: "Default"}))

	store := memstore.New()
	registry, err := applications.NewRegistry(fakeapplicationrepo.NewFakeApplicationRepo(), orgs, store, secrets.New("processor-test-secret"))
	require.NoError(t, err)

	f := &testFixture{
		registry: registry,
		users:    fakeuserrepo.NewFakeUserRepo(),
		store:    store,
		codes:    authcoderepo.NewInMemoryRepo(),
		now:      time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}

	options = append([]grants.ProcessorOption{grants.WithNowFunc(func() time.Time { return f.now })}, options...)
	processor, err := grants.New(registry, f.users, store, f.codes, options...)
	require.NoError(t, err)
	f.processor = processor
	return f
}

func (f *testFixture) createUser(t *testing.T, username, externalProvider string) *users.User {
	t.Helper()
	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	user := &users.User{Username: username, PasswordHash: hash, ExternalProvider: externalProvider}
	require.NoError(t, f.users.Upsert(user))
	return user
}

func (f *testFixture) createApp(t *testing.T, grantType applications.GrantType) *applications.Application {
	t.Helper()
	req := applications.CreateRequest{
		Name:                   "test app",
		OrganizationID:         testOrgID,
		ClientType:             applications.ClientTypeConfidential,
		AuthorizationGrantType: grantType,
	}
	if grantType.RequiresRedirect() {
		req.RedirectURIs = "http://localhost/callback"
	}
	app, err := f.registry.Create(context.Background(), req)
	require.NoError(t, err)
	return app
}

func TestPasswordGrant(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)

	resp, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "write", resp.Scope)
	require.Equal(t, 3600, resp.ExpiresIn)
}

func TestPasswordGrantBadClientCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)

	_, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: "wrong-secret",
		Username:     "alice",
		Password:     testPassword,
	})
	require.ErrorIs(t, err, grants.ErrInvalidClient)
}

func TestPasswordGrantBadUserCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)

	_, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     "not the password",
	})
	require.ErrorIs(t, err, grants.ErrInvalidGrant)
}

func TestPasswordGrantExternalUserBlocked(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "radius-user", "radius")
	app := f.createApp(t, applications.GrantPassword)
	ctx := context.Background()

	_, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "radius-user",
		Password:     testPassword,
	})
	require.ErrorIs(t, err, grants.ErrAccessDenied)
	require.Contains(t, err.Error(), grants.ExternalUserMessage)

	// a rejection never leaves token state behind
	count, err := f.store.CountAccessTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestPasswordGrantExternalUserAllowedByPolicy(t *testing.T) {
	f := setupTestFixture(t, grants.WithAllowExternalUserTokens(true))
	f.createUser(t, "radius-user", "radius")
	app := f.createApp(t, applications.GrantPassword)

	resp, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "radius-user",
		Password:     testPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestScopeValidation(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)
	ctx := context.Background()

	resp, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
		Scope:        "read write",
	})
	require.NoError(t, err)
	require.Equal(t, "read write", resp.Scope)

	// keywords are case-sensitive
	_, err = f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
		Scope:        "Write",
	})
	require.ErrorIs(t, err, grants.ErrInvalidScope)
}

func TestRefreshTokenGrantRotates(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)
	ctx := context.Background()

	first, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, first.RefreshToken)

	second, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RefreshToken: *first.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, *first.RefreshToken, *second.RefreshToken)

	// the old pair is dead
	_, err = f.store.GetAccessToken(ctx, first.AccessToken)
	require.ErrorIs(t, err, tokens.ErrNotFound)
	_, err = f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RefreshToken: *first.RefreshToken,
	})
	require.ErrorIs(t, err, grants.ErrInvalidGrant)
}

func TestRefreshTokenGrantWrongClient(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantPassword)
	other := f.createApp(t, applications.GrantPassword)
	ctx := context.Background()

	resp, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
	})
	require.NoError(t, err)

	_, err = f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     other.ClientID,
		ClientSecret: other.ClientSecret,
		RefreshToken: *resp.RefreshToken,
	})
	require.ErrorIs(t, err, grants.ErrInvalidGrant)
}

func TestClientCredentialsGrant(t *testing.T) {
	f := setupTestFixture(t)
	app := f.createApp(t, applications.GrantClientCredentials)
	ctx := context.Background()

	resp, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Nil(t, resp.RefreshToken) // machine tokens carry no refresh credential

	at, err := f.store.GetAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Empty(t, at.UserID)

	refreshCount, err := f.store.CountRefreshTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, refreshCount)
}

func TestUnsupportedGrantType(t *testing.T) {
	f := setupTestFixture(t)
	app := f.createApp(t, applications.GrantPassword)

	_, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "urn:ietf:params:oauth:grant-type:device_code",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	})
	require.ErrorIs(t, err, grants.ErrUnsupportedGrant)
}

func TestGrantTypeMismatch(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantClientCredentials)

	_, err := f.processor.Token(context.Background(), grants.TokenRequest{
		GrantType:    "password",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Username:     "alice",
		Password:     testPassword,
	})
	require.ErrorIs(t, err, grants.ErrUnauthorizedClient)
}

func TestImplicitAuthorize(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantImplicit)
	ctx := context.Background()

	result, err := f.processor.Authorize(ctx, grants.AuthorizeRequest{
		ResponseType: "token",
		ClientID:     app.ClientID,
		RedirectURI:  "http://localhost/callback",
		Scope:        tokens.ScopeRead,
		State:        "xyz",
		Allow:        true,
		UserID:       user.ID,
	})
	require.NoError(t, err)

	base, fragment, found := strings.Cut(result.RedirectURL, "#")
	require.True(t, found)
	require.Equal(t, "http://localhost/callback", base)

	values, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	require.NotEmpty(t, values.Get("access_token"))
	require.Equal(t, "Bearer", values.Get("token_type"))
	require.Equal(t, "3600", values.Get("expires_in"))
	require.Equal(t, "read", values.Get("scope"))
	require.Equal(t, "xyz", values.Get("state"))
	require.Empty(t, values.Get("refresh_token"))

	// implicit issuance never mints a refresh token
	refreshCount, err := f.store.CountRefreshTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, refreshCount)
}

func TestAuthorizeDenied(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantImplicit)

	_, err := f.processor.Authorize(context.Background(), grants.AuthorizeRequest{
		ResponseType: "token",
		ClientID:     app.ClientID,
		RedirectURI:  "http://localhost/callback",
		Allow:        false,
		UserID:       user.ID,
	})
	require.ErrorIs(t, err, grants.ErrAccessDenied)
}

func TestAuthorizeUnregisteredRedirect(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantImplicit)

	_, err := f.processor.Authorize(context.Background(), grants.AuthorizeRequest{
		ResponseType: "token",
		ClientID:     app.ClientID,
		RedirectURI:  "http://evil.example/steal",
		Allow:        true,
		UserID:       user.ID,
	})
	require.ErrorIs(t, err, grants.ErrInvalidRequest)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantAuthorizationCode)
	ctx := context.Background()

	result, err := f.processor.Authorize(ctx, grants.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     app.ClientID,
		RedirectURI:  "http://localhost/callback",
		Scope:        tokens.ScopeRead,
		State:        "abc",
		Allow:        true,
		UserID:       user.ID,
	})
	require.NoError(t, err)

	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "abc", redirect.Query().Get("state"))

	resp, err := f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Code:         code,
		RedirectURI:  "http://localhost/callback",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.RefreshToken)
	require.Equal(t, "read", resp.Scope)

	// codes are single use
	_, err = f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Code:         code,
		RedirectURI:  "http://localhost/callback",
	})
	require.ErrorIs(t, err, grants.ErrInvalidGrant)
}

func TestAuthorizationCodeExpires(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app := f.createApp(t, applications.GrantAuthorizationCode)
	ctx := context.Background()

	result, err := f.processor.Authorize(ctx, grants.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     app.ClientID,
		RedirectURI:  "http://localhost/callback",
		Allow:        true,
		UserID:       user.ID,
	})
	require.NoError(t, err)
	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)

	f.now = f.now.Add(16 * time.Minute)

	_, err = f.processor.Token(ctx, grants.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Code:         redirect.Query().Get("code"),
		RedirectURI:  "http://localhost/callback",
	})
	require.ErrorIs(t, err, grants.ErrInvalidGrant)
}

func TestAuthorizeSkipAuthorization(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t, "alice", "")
	app, err := f.registry.Create(context.Background(), applications.CreateRequest{
		Name:                   "trusted app",
		OrganizationID:         testOrgID,
		ClientType:             applications.ClientTypeConfidential,
		AuthorizationGrantType: applications.GrantImplicit,
		RedirectURIs:           "http://localhost/callback",
		SkipAuthorization:      true,
	})
	require.NoError(t, err)

	// trusted applications bypass the consent step
	result, err := f.processor.Authorize(context.Background(), grants.AuthorizeRequest{
		ResponseType: "token",
		ClientID:     app.ClientID,
		RedirectURI:  "http://localhost/callback",
		Allow:        false,
		UserID:       user.ID,
	})
	require.NoError(t, err)
	require.Contains(t, result.RedirectURL, "access_token=")
}
