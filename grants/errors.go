package grants

// Error is a terminal rejection of an authorization attempt, carrying the
// OAuth2 reason code surfaced verbatim in the response body.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Is matches on the reason code so errors.Is(err, ErrInvalidGrant) holds for
// any rejection carrying that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidClient       = &Error{Code: "invalid_client"}
	ErrInvalidGrant        = &Error{Code: "invalid_grant"}
	ErrInvalidRequest      = &Error{Code: "invalid_request"}
	ErrInvalidScope        = &Error{Code: "invalid_scope"}
	ErrUnauthorizedClient  = &Error{Code: "unauthorized_client"}
	ErrUnsupportedGrant    = &Error{Code: "unsupported_grant_type"}
	ErrUnsupportedResponse = &Error{Code: "unsupported_response_type"}
	ErrAccessDenied        = &Error{Code: "access_denied"}
	ErrServerError         = &Error{Code: "server_error"}
)

// ExternalUserMessage is the user-facing text for the policy gate blocking
// token creation for externally-authenticated accounts.
const ExternalUserMessage = "OAuth2 Tokens cannot be created by users associated with an external authentication provider"

func rejected(base *Error, description string) *Error {
	return &Error{Code: base.Code, Description: description}
}
