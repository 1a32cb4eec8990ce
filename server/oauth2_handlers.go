package server

import (
	"net/http"

	"github.com/jrsteele09/go-token-service/grants"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/users"
	"github.com/pkg/errors"
)

// TokenHandler serves the OAuth2 token endpoint. Client credentials are taken
// from HTTP Basic auth, falling back to the form body.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}

		clientID, clientSecret, ok := r.BasicAuth()
		if !ok {
			clientID = r.PostFormValue("client_id")
			clientSecret = r.PostFormValue("client_secret")
		}

		resp, err := s.services.Processor.Token(r.Context(), grants.TokenRequest{
			GrantType:    r.PostFormValue("grant_type"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Username:     r.PostFormValue("username"),
			Password:     r.PostFormValue("password"),
			RefreshToken: r.PostFormValue("refresh_token"),
			Code:         r.PostFormValue("code"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
			Scope:        tokens.Scope(r.PostFormValue("scope")),
		})
		if err != nil {
			s.writeGrantError(w, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, resp)
	}
}

// AuthorizeHandler serves the authorization endpoint for the implicit and
// authorization_code response types. The end user is identified by the signed
// login-session cookie; consent arrives as the "allow" form value.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.sessions.UserIDFromRequest(r)
		if err != nil {
			writeOAuthError(w, http.StatusUnauthorized, "access_denied", "login required")
			return
		}

		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request")
			return
		}

		result, err := s.services.Processor.Authorize(r.Context(), grants.AuthorizeRequest{
			ResponseType: r.FormValue("response_type"),
			ClientID:     r.FormValue("client_id"),
			RedirectURI:  r.FormValue("redirect_uri"),
			Scope:        tokens.Scope(r.FormValue("scope")),
			State:        r.FormValue("state"),
			Allow:        r.FormValue("allow") == "true",
			UserID:       userID,
		})
		if err != nil {
			s.writeGrantError(w, err)
			return
		}

		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

// LoginHandler establishes the login session used by the authorize endpoint.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}

		user, err := s.services.Users.GetByUsername(r.PostFormValue("username"))
		if err != nil || !users.CheckPasswordHash(r.PostFormValue("password"), user.PasswordHash) {
			writeOAuthError(w, http.StatusUnauthorized, "access_denied", "invalid username or password")
			return
		}

		session, err := s.sessions.Mint(user.ID)
		if err != nil {
			s.logger.Error().Err(err).Msg("session mint failed")
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "could not establish session")
			return
		}
		s.sessions.SetCookie(w, session)
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeGrantError maps grant rejections onto HTTP statuses: unknown clients
// get 401, policy denials 403, everything else the processor rejects 400.
func (s *Server) writeGrantError(w http.ResponseWriter, err error) {
	var grantErr *grants.Error
	if !errors.As(err, &grantErr) {
		s.logger.Error().Err(err).Msg("grant processing failed")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(grantErr, grants.ErrInvalidClient):
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
		status = http.StatusUnauthorized
	case errors.Is(grantErr, grants.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(grantErr, grants.ErrServerError):
		status = http.StatusInternalServerError
	}
	writeOAuthError(w, status, grantErr.Code, grantErr.Description)
}
