package server

import (
	"net/http"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/jrsteele09/go-token-service/internal/utils"
	"github.com/jrsteele09/go-token-service/secrets"
	"github.com/pkg/errors"
)

type applicationRequest struct {
	Name              *string                  `json:"name"`
	OrganizationID    *string                  `json:"organization"`
	ClientType        *applications.ClientType `json:"client_type"`
	GrantType         *applications.GrantType  `json:"authorization_grant_type"`
	RedirectURIs      *string                  `json:"redirect_uris"`
	SkipAuthorization *bool                    `json:"skip_authorization"`
}

// ApplicationCreateHandler registers a new client application. The response
// is the only place the plaintext client secret ever appears.
func (s *Server) ApplicationCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applicationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed json body")
			return
		}

		app, err := s.services.Registry.Create(r.Context(), applications.CreateRequest{
			Name:                   utils.Value(req.Name),
			OrganizationID:         utils.Value(req.OrganizationID),
			ClientType:             utils.Value(req.ClientType),
			AuthorizationGrantType: utils.Value(req.GrantType),
			RedirectURIs:           utils.Value(req.RedirectURIs),
			SkipAuthorization:      utils.Value(req.SkipAuthorization),
		})
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, app)
	}
}

func (s *Server) ApplicationGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := s.services.Registry.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, redactApplication(app))
	}
}

func (s *Server) ApplicationListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apps, err := s.services.Registry.List(r.Context(), 0, 0)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		redacted := make([]*applications.Application, 0, len(apps))
		for _, app := range apps {
			redacted = append(redacted, redactApplication(app))
		}
		writeJSON(w, http.StatusOK, redacted)
	}
}

// ApplicationUpdateHandler patches an application. The grant type is not
// mapped from the request body: it is immutable after creation, and attempts
// to change it are dropped here without error.
func (s *Server) ApplicationUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applicationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed json body")
			return
		}

		app, err := s.services.Registry.Update(r.Context(), r.PathValue("id"), applications.UpdateRequest{
			Name:              req.Name,
			OrganizationID:    req.OrganizationID,
			RedirectURIs:      req.RedirectURIs,
			SkipAuthorization: req.SkipAuthorization,
			ClientType:        req.ClientType,
		})
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, redactApplication(app))
	}
}

func (s *Server) ApplicationDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Registry.Delete(r.Context(), r.PathValue("id")); err != nil {
			s.writeRegistryError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, applications.ErrNotFound):
		writeOAuthError(w, http.StatusNotFound, "not_found", "application not found")
	case errors.Is(err, applications.ErrValidation):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error().Err(err).Msg("application operation failed")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// redactApplication replaces the stored ciphertext with the bare marker so
// responses reveal neither the plaintext nor the ciphertext.
func redactApplication(app *applications.Application) *applications.Application {
	redacted := *app
	redacted.ClientSecret = secrets.Redacted
	return &redacted
}
