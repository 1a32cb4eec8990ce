package server

import "net/http"

func (s *Server) initRoutes() {
	// OAuth2 protocol endpoints
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))

	// Login session for the authorize flow
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))

	// Application management
	s.RegisterRouteHandler("GET "+RouteAPIApplications, s.authenticated(s.ApplicationListHandler()))
	s.RegisterRouteHandler("POST "+RouteAPIApplications, s.authenticated(s.ApplicationCreateHandler()))
	s.RegisterRouteHandler("GET "+RouteAPIApplication, s.authenticated(s.ApplicationGetHandler()))
	s.RegisterRouteHandler("PATCH "+RouteAPIApplication, s.authenticated(s.ApplicationUpdateHandler()))
	s.RegisterRouteHandler("DELETE "+RouteAPIApplication, s.authenticated(s.ApplicationDeleteHandler()))

	// Token management
	s.RegisterRouteHandler("GET "+RouteAPIApplicationTokens, s.authenticated(s.ApplicationTokenListHandler()))
	s.RegisterRouteHandler("GET "+RouteAPITokens, s.authenticated(s.TokenListHandler()))
	s.RegisterRouteHandler("POST "+RouteAPITokens, s.authenticated(s.TokenCreateHandler()))
	s.RegisterRouteHandler("GET "+RouteAPIToken, s.authenticated(s.TokenGetHandler()))
	s.RegisterRouteHandler("PATCH "+RouteAPIToken, s.authenticated(s.TokenUpdateHandler()))
	s.RegisterRouteHandler("DELETE "+RouteAPIToken, s.authenticated(s.TokenDeleteHandler()))
	s.RegisterRouteHandler("GET "+RouteAPIPersonalTokens, s.authenticated(s.PersonalTokenListHandler()))
	s.RegisterRouteHandler("POST "+RouteAPIRevokeRefreshToken, s.authenticated(s.RefreshTokenRevokeHandler()))

	// Legacy authtoken bridge
	s.RegisterRouteHandler("POST "+RouteAPIAuthToken, ChainMiddleware(s.LegacyAuthTokenHandler(), s.APIMiddleware()...))
}

func (s *Server) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return ChainMiddleware(handler, append(s.APIMiddleware(), s.RequireAuth())...)
}
