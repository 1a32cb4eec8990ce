// Package memstore is the in-memory tokens.Store. Every public operation is
// one critical section, which gives it the same all-or-nothing semantics the
// SQL store gets from transactions.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/pkg/errors"
)

var _ tokens.Store = (*Store)(nil)

const maxGenerationAttempts = 10

type Store struct {
	lock       sync.Mutex
	access     map[string]*tokens.AccessToken // keyed by token string
	accessIDs  map[string]string              // id to token string
	refresh    map[string]*tokens.RefreshToken
	refreshIDs map[string]string
	nowFunc    func() time.Time
}

type Option func(*Store)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(options ...Option) *Store {
	s := &Store{
		access:     make(map[string]*tokens.AccessToken),
		accessIDs:  make(map[string]string),
		refresh:    make(map[string]*tokens.RefreshToken),
		refreshIDs: make(map[string]string),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Issue(ctx context.Context, req tokens.IssueRequest) (*tokens.AccessToken, *tokens.RefreshToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	scope := req.Scope
	if scope == "" {
		scope = tokens.ScopeWrite
	}

	applicationID := ""
	if req.Application != nil {
		applicationID = req.Application.ID
	}

	now := s.nowFunc()
	at, err := s.mintAccessToken(applicationID, req.UserID, scope, req.Description, req.Expires, now)
	if err != nil {
		return nil, nil, err
	}

	if !req.RefreshWanted() {
		return copyAccess(at), nil, nil
	}

	rt, err := s.mintRefreshToken(applicationID, req.UserID, scope, at.ID, now)
	if err != nil {
		delete(s.access, at.Token)
		delete(s.accessIDs, at.ID)
		return nil, nil, err
	}
	return copyAccess(at), copyRefresh(rt), nil
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*tokens.AccessToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	at, ok := s.access[token]
	if !ok {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token")
	}
	return copyAccess(at), nil
}

func (s *Store) GetAccessTokenByID(ctx context.Context, id string) (*tokens.AccessToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	token, ok := s.accessIDs[id]
	if !ok {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token id")
	}
	return copyAccess(s.access[token]), nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*tokens.RefreshToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rt, ok := s.refresh[token]
	if !ok {
		return nil, errors.Wrap(tokens.ErrNotFound, "refresh token")
	}
	return copyRefresh(rt), nil
}

// RevokeAccessToken hard-deletes the row. The linked refresh token stays
// live: revoking access must not retroactively invalidate the refresh
// credential.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	at, ok := s.access[token]
	if !ok {
		return errors.Wrap(tokens.ErrNotFound, "access token")
	}
	delete(s.access, token)
	delete(s.accessIDs, at.ID)
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rt, ok := s.refresh[token]
	if !ok {
		return errors.Wrap(tokens.ErrNotFound, "refresh token")
	}
	if rt.Revoked {
		return nil
	}

	// With no rotation lineage the row is recycled: flagged in place so the
	// surviving row keeps the token identity the caller knows. Once a
	// rotation exists the lineage already has its replacement row, so the old
	// row is likewise just flagged. Either way nothing is deleted and the
	// linked access token is untouched.
	now := s.nowFunc()
	rt.Revoked = true
	rt.RevokedAt = &now
	return nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, expires time.Time) (*tokens.AccessToken, *tokens.RefreshToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rt, ok := s.refresh[oldToken]
	if !ok {
		return nil, nil, errors.Wrap(tokens.ErrNotFound, "refresh token")
	}
	if rt.Revoked {
		return nil, nil, errors.Wrap(tokens.ErrRevoked, "already rotated or revoked")
	}

	now := s.nowFunc()
	rt.Revoked = true
	rt.RevokedAt = &now
	rt.Rotations++

	if rt.AccessTokenID != "" {
		if token, ok := s.accessIDs[rt.AccessTokenID]; ok {
			delete(s.access, token)
			delete(s.accessIDs, rt.AccessTokenID)
		}
		rt.AccessTokenID = ""
	}

	at, err := s.mintAccessToken(rt.ApplicationID, rt.UserID, rt.Scope, "", expires, now)
	if err != nil {
		return nil, nil, err
	}
	newRT, err := s.mintRefreshToken(rt.ApplicationID, rt.UserID, rt.Scope, at.ID, now)
	if err != nil {
		delete(s.access, at.Token)
		delete(s.accessIDs, at.ID)
		return nil, nil, err
	}
	return copyAccess(at), copyRefresh(newRT), nil
}

func (s *Store) UpdateAccessToken(ctx context.Context, id string, patch tokens.AccessTokenPatch) (*tokens.AccessToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	token, ok := s.accessIDs[id]
	if !ok {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token id")
	}
	at := s.access[token]
	if patch.Scope != nil {
		at.Scope = *patch.Scope
	}
	if patch.Description != nil {
		at.Description = *patch.Description
	}
	at.Modified = s.nowFunc()
	return copyAccess(at), nil
}

func (s *Store) ListAccessTokens(ctx context.Context, filter tokens.AccessTokenFilter) ([]*tokens.AccessToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	list := make([]*tokens.AccessToken, 0)
	for _, at := range s.access {
		if filter.ApplicationID != "" && at.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.UserID != "" && at.UserID != filter.UserID {
			continue
		}
		if filter.PersonalOnly && at.ApplicationID != "" {
			continue
		}
		list = append(list, copyAccess(at))
	}
	sortAccessTokens(list)
	return list, nil
}

func (s *Store) DeleteForApplication(ctx context.Context, applicationID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for token, at := range s.access {
		if at.ApplicationID == applicationID {
			delete(s.access, token)
			delete(s.accessIDs, at.ID)
		}
	}
	for token, rt := range s.refresh {
		if rt.ApplicationID == applicationID {
			delete(s.refresh, token)
			delete(s.refreshIDs, rt.ID)
		}
	}
	return nil
}

func (s *Store) CountAccessTokens(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.access), nil
}

func (s *Store) CountRefreshTokens(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.refresh), nil
}

// mintAccessToken generates a unique token string, retrying on collision
// rather than trusting a pre-check. Caller holds the lock.
func (s *Store) mintAccessToken(applicationID, userID string, scope tokens.Scope, description string, expires, now time.Time) (*tokens.AccessToken, error) {
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		token, err := tokens.GenerateTokenString()
		if err != nil {
			return nil, err
		}
		if _, exists := s.access[token]; exists {
			continue
		}
		at := &tokens.AccessToken{
			ID:            uuid.New().String(),
			Token:         token,
			ApplicationID: applicationID,
			UserID:        userID,
			Scope:         scope,
			Description:   description,
			Expires:       expires,
			Created:       now,
			Modified:      now,
		}
		s.access[token] = at
		s.accessIDs[at.ID] = token
		return at, nil
	}
	return nil, errors.New("memstore: exhausted access token generation attempts")
}

func (s *Store) mintRefreshToken(applicationID, userID string, scope tokens.Scope, accessTokenID string, now time.Time) (*tokens.RefreshToken, error) {
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		token, err := tokens.GenerateTokenString()
		if err != nil {
			return nil, err
		}
		if _, exists := s.refresh[token]; exists {
			continue
		}
		rt := &tokens.RefreshToken{
			ID:            uuid.New().String(),
			Token:         token,
			ApplicationID: applicationID,
			UserID:        userID,
			Scope:         scope,
			AccessTokenID: accessTokenID,
			Created:       now,
		}
		s.refresh[token] = rt
		s.refreshIDs[rt.ID] = token
		return rt, nil
	}
	return nil, errors.New("memstore: exhausted refresh token generation attempts")
}

func copyAccess(at *tokens.AccessToken) *tokens.AccessToken {
	copied := *at
	return &copied
}

func copyRefresh(rt *tokens.RefreshToken) *tokens.RefreshToken {
	copied := *rt
	return &copied
}

func sortAccessTokens(list []*tokens.AccessToken) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].Created.Before(list[j].Created)
	})
}
