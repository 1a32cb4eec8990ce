package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-service/legacy"
	"github.com/pkg/errors"
)

type legacyAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type legacyAuthResponse struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// LegacyAuthTokenHandler preserves the retired authtoken wire contract:
// username/password in, a bare token string out. The old endpoint accepted
// JSON, form-encoded, and multipart bodies, so this one does too.
func (s *Server) LegacyAuthTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, err := legacyCredentials(r)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
			return
		}

		at, err := s.services.Bridge.Exchange(r.Context(), username, password)
		if err != nil {
			if errors.Is(err, legacy.ErrUnauthorized) {
				writeOAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
				return
			}
			s.logger.Error().Err(err).Msg("legacy exchange failed")
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal server error")
			return
		}

		writeJSON(w, http.StatusOK, legacyAuthResponse{
			Token:   at.Token,
			Expires: at.Expires.UTC().Format("2006-01-02T15:04:05.000000Z"),
		})
	}
}

func legacyCredentials(r *http.Request) (string, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req legacyAuthRequest
		if err := decodeJSON(r, &req); err != nil {
			return "", "", err
		}
		return req.Username, req.Password, nil
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", "", err
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}
