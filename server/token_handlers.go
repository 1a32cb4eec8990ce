package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/pkg/errors"
)

type tokenCreateRequest struct {
	Description   string       `json:"description"`
	Scope         tokens.Scope `json:"scope"`
	ApplicationID string       `json:"application,omitempty"`
}

type tokenUpdateRequest struct {
	Description *string       `json:"description"`
	Scope       *tokens.Scope `json:"scope"`
}

// TokenCreateHandler mints a token for the authenticated user: a personal
// access token when no application is named, an application-bound one
// otherwise. The raw token value appears only in this response; every later
// read shows the placeholder.
func (s *Server) TokenCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed json body")
			return
		}

		if err := req.Scope.Validate(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_scope", err.Error())
			return
		}

		user, err := s.services.Users.GetByID(authenticatedUserID(r))
		if err != nil {
			writeOAuthError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		}
		if user.IsExternal() && !s.config.GetAllowExternalUserTokenCreation() {
			writeOAuthError(w, http.StatusForbidden, "access_denied",
				"OAuth2 Tokens cannot be created by users associated with an external authentication provider")
			return
		}

		var app *applications.Application
		if req.ApplicationID != "" {
			app, err = s.services.Registry.Get(r.Context(), req.ApplicationID)
			if err != nil {
				s.writeRegistryError(w, err)
				return
			}
		}

		at, _, err := s.services.Store.Issue(r.Context(), tokens.IssueRequest{
			Application:  app,
			UserID:       user.ID,
			Scope:        req.Scope,
			Description:  req.Description,
			WantsRefresh: app != nil,
			Expires:      time.Now().Add(s.config.GetAccessTokenExpiry()),
		})
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, at)
	}
}

func (s *Server) TokenGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := s.services.Store.GetAccessTokenByID(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskToken(at))
	}
}

func (s *Server) TokenListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.listTokens(w, r, tokens.AccessTokenFilter{UserID: authenticatedUserID(r)})
	}
}

// PersonalTokenListHandler lists only tokens issued outside any application.
func (s *Server) PersonalTokenListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.listTokens(w, r, tokens.AccessTokenFilter{UserID: authenticatedUserID(r), PersonalOnly: true})
	}
}

func (s *Server) ApplicationTokenListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.listTokens(w, r, tokens.AccessTokenFilter{ApplicationID: r.PathValue("id")})
	}
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request, filter tokens.AccessTokenFilter) {
	list, err := s.services.Store.ListAccessTokens(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	masked := make([]*tokens.AccessToken, 0, len(list))
	for _, at := range list {
		masked = append(masked, maskToken(at))
	}
	writeJSON(w, http.StatusOK, masked)
}

func (s *Server) TokenUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed json body")
			return
		}

		if req.Scope != nil {
			if err := req.Scope.Validate(); err != nil {
				writeOAuthError(w, http.StatusBadRequest, "invalid_scope", err.Error())
				return
			}
		}

		at, err := s.services.Store.UpdateAccessToken(r.Context(), r.PathValue("id"), tokens.AccessTokenPatch{
			Scope:       req.Scope,
			Description: req.Description,
		})
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskToken(at))
	}
}

// TokenDeleteHandler revokes an access token. The linked refresh token, if
// any, stays live.
func (s *Server) TokenDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := s.services.Store.GetAccessTokenByID(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if err := s.services.Store.RevokeAccessToken(r.Context(), at.Token); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type refreshRevokeRequest struct {
	Token string `json:"token"`
}

// RefreshTokenRevokeHandler flags a refresh token revoked in place. Revoking
// is idempotent: re-revoking an already revoked token succeeds quietly.
func (s *Server) RefreshTokenRevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRevokeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed json body")
			return
		}
		if err := s.services.Store.RevokeRefreshToken(r.Context(), req.Token); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tokens.ErrNotFound):
		writeOAuthError(w, http.StatusNotFound, "not_found", "token not found")
	case errors.Is(err, tokens.ErrRevoked):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token revoked")
	case errors.Is(err, applications.ErrNotFound):
		writeOAuthError(w, http.StatusNotFound, "not_found", "application not found")
	default:
		s.logger.Error().Err(err).Msg("token operation failed")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func maskToken(at *tokens.AccessToken) *tokens.AccessToken {
	masked := *at
	masked.Token = tokens.Mask
	return &masked
}
