package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 protocol routes
	RouteOAuth2Token     = "/oauth2/token/"
	RouteOAuth2Authorize = "/oauth2/authorize/"

	// Session routes for the authorize flow
	RouteLogin = "/login/"

	// Management API routes
	RouteAPIApplications       = "/api/applications/"
	RouteAPIApplication        = "/api/applications/{id}/"
	RouteAPIApplicationTokens  = "/api/applications/{id}/tokens/"
	RouteAPITokens             = "/api/tokens/"
	RouteAPIToken              = "/api/tokens/{id}/"
	RouteAPIPersonalTokens     = "/api/users/me/personal-tokens/"
	RouteAPIRevokeRefreshToken = "/api/refresh-tokens/revoke/"

	// Legacy routes
	RouteAPIAuthToken = "/api/authtoken/"
)
