package applications

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/organizations"
	"github.com/jrsteele09/go-token-service/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrValidation covers malformed create/update requests: missing
	// organization, illegal client-type/grant-type combination, and the like.
	ErrValidation = errors.New("validation error")
	// ErrInvalidCredentials is returned by Authenticate for unknown client
	// IDs and mismatched secrets, including secrets that fail to decrypt.
	ErrInvalidCredentials = errors.New("invalid client credentials")
	// ErrNotFound is returned when an application ID resolves to nothing.
	ErrNotFound = errors.New("application not found")
)

const (
	clientIDByteLength     = 20 // 40 hex chars
	clientSecretByteLength = 64 // 128 hex chars

	// secretContextKey binds client secret ciphertexts to this column; a
	// value copied into another encrypted field will not decrypt.
	secretContextKey = "application.client_secret"
)

// TokenStore is the slice of the token store the registry needs for its
// cascading delete.
type TokenStore interface {
	DeleteForApplication(ctx context.Context, applicationID string) error
}

// Registry owns the client application records: creation with credential
// generation, updates under the grant-type immutability rule, and deletion
// with token cascade.
type Registry struct {
	repo    Repo
	orgs    OrgDirectory
	tokens  TokenStore
	secrets *secrets.Service
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// OrgDirectory is the slice of the organization store the registry needs.
type OrgDirectory interface {
	Get(orgID string) (*organizations.Organization, error)
}

type RegistryOption func(*Registry)

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(repo Repo, orgs OrgDirectory, tokenStore TokenStore, secretService *secrets.Service, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] application repo is required")
	}
	if orgs == nil {
		return nil, errors.New("[NewRegistry] organization directory is required")
	}
	if tokenStore == nil {
		return nil, errors.New("[NewRegistry] token store is required")
	}
	if secretService == nil {
		return nil, errors.New("[NewRegistry] secret service is required")
	}

	r := &Registry{
		repo:    repo,
		orgs:    orgs,
		tokens:  tokenStore,
		secrets: secretService,
		logger:  zerolog.Nop(),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// CreateRequest carries the caller-settable fields for a new application.
type CreateRequest struct {
	Name                   string
	OrganizationID         string
	ClientType             ClientType
	AuthorizationGrantType GrantType
	RedirectURIs           string
	SkipAuthorization      bool
}

// Create registers a new client application. The returned Application is the
// only place the plaintext client secret ever appears; the stored record
// holds the encrypted form.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Application, error) {
	if err := r.validateCreate(req); err != nil {
		return nil, err
	}

	clientID, err := randomHex(clientIDByteLength)
	if err != nil {
		return nil, errors.Wrap(err, "Registry.Create client id")
	}
	clientSecret, err := randomHex(clientSecretByteLength)
	if err != nil {
		return nil, errors.Wrap(err, "Registry.Create client secret")
	}

	encryptedSecret, err := r.secrets.Encrypt(clientSecret, secretContextKey)
	if err != nil {
		return nil, errors.Wrap(err, "Registry.Create encrypt secret")
	}

	now := r.nowFunc()
	app := &Application{
		ID:                     uuid.New().String(),
		ClientID:               clientID,
		ClientSecret:           encryptedSecret,
		Name:                   req.Name,
		OrganizationID:         req.OrganizationID,
		ClientType:             req.ClientType,
		AuthorizationGrantType: req.AuthorizationGrantType,
		RedirectURIs:           req.RedirectURIs,
		SkipAuthorization:      req.SkipAuthorization,
		Created:                now,
		Modified:               now,
	}
	if err := r.repo.Upsert(app); err != nil {
		return nil, errors.Wrap(err, "Registry.Create Upsert")
	}

	created := *app
	created.ClientSecret = clientSecret
	return &created, nil
}

// UpdateRequest patches an application. A nil field is left unchanged. The
// grant type is deliberately absent: it is immutable after creation and any
// attempt to change it is dropped before the patch is built.
type UpdateRequest struct {
	Name              *string
	OrganizationID    *string
	RedirectURIs      *string
	SkipAuthorization *bool
	ClientType        *ClientType
}

// Update applies the patch. Callers that decode a grant-type change from the
// wire must not forward it here; handler code maps only the mutable fields,
// making the immutability a silent no-op rather than an error.
func (r *Registry) Update(ctx context.Context, id string, req UpdateRequest) (*Application, error) {
	app, err := r.repo.Get(id)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, id)
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.OrganizationID != nil {
		if _, err := r.orgs.Get(*req.OrganizationID); err != nil {
			return nil, errors.Wrap(ErrValidation, "organization does not exist")
		}
		app.OrganizationID = *req.OrganizationID
	}
	if req.RedirectURIs != nil {
		app.RedirectURIs = *req.RedirectURIs
	}
	if req.SkipAuthorization != nil {
		app.SkipAuthorization = *req.SkipAuthorization
	}
	if req.ClientType != nil {
		if !req.ClientType.valid() {
			return nil, errors.Wrapf(ErrValidation, "unknown client type %q", *req.ClientType)
		}
		app.ClientType = *req.ClientType
	}
	app.Modified = r.nowFunc()

	if err := r.repo.Upsert(app); err != nil {
		return nil, errors.Wrap(err, "Registry.Update Upsert")
	}
	return app, nil
}

// Delete removes the application and cascades deletion of every access and
// refresh token bound to it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	app, err := r.repo.Get(id)
	if err != nil {
		return errors.Wrap(ErrNotFound, id)
	}
	if err := r.tokens.DeleteForApplication(ctx, app.ID); err != nil {
		return errors.Wrap(err, "Registry.Delete token cascade")
	}
	if err := r.repo.Delete(app.ID); err != nil {
		return errors.Wrap(err, "Registry.Delete")
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (*Application, error) {
	app, err := r.repo.Get(id)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return app, nil
}

func (r *Registry) GetByClientID(ctx context.Context, clientID string) (*Application, error) {
	app, err := r.repo.GetByClientID(clientID)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, clientID)
	}
	return app, nil
}

func (r *Registry) List(ctx context.Context, offset, limit int) ([]*Application, error) {
	return r.repo.List(offset, limit)
}

// Authenticate resolves inbound Basic-auth client credentials by
// decrypt-and-compare against the stored secret. A stored secret that fails
// to decrypt is reported to the caller as plain invalid credentials but
// logged as a security-relevant event.
func (r *Registry) Authenticate(ctx context.Context, clientID, clientSecret string) (*Application, error) {
	app, err := r.repo.GetByClientID(clientID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCredentials, "unknown client id")
	}

	plaintext, err := r.secrets.Decrypt(app.ClientSecret, secretContextKey)
	if err != nil {
		r.logger.Warn().Str("client_id", clientID).Err(err).Msg("client secret failed to decrypt")
		return nil, errors.Wrap(ErrInvalidCredentials, "secret unavailable")
	}

	if subtle.ConstantTimeCompare([]byte(plaintext), []byte(clientSecret)) != 1 {
		return nil, errors.Wrap(ErrInvalidCredentials, "secret mismatch")
	}
	return app, nil
}

func (r *Registry) validateCreate(req CreateRequest) error {
	if req.Name == "" {
		return errors.Wrap(ErrValidation, "name is required")
	}
	if req.OrganizationID == "" {
		return errors.Wrap(ErrValidation, "organization is required")
	}
	if _, err := r.orgs.Get(req.OrganizationID); err != nil {
		return errors.Wrap(ErrValidation, "organization does not exist")
	}
	if !req.ClientType.valid() {
		return errors.Wrapf(ErrValidation, "unknown client type %q", req.ClientType)
	}
	if !req.AuthorizationGrantType.valid() {
		return errors.Wrapf(ErrValidation, "unknown grant type %q", req.AuthorizationGrantType)
	}
	if req.AuthorizationGrantType.RequiresConfidential() && req.ClientType != ClientTypeConfidential {
		return errors.Wrapf(ErrValidation, "%s grant requires a confidential client", req.AuthorizationGrantType)
	}
	if req.AuthorizationGrantType.RequiresRedirect() && req.RedirectURIs == "" {
		return errors.Wrapf(ErrValidation, "%s grant requires redirect uris", req.AuthorizationGrantType)
	}
	return nil
}

func randomHex(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
