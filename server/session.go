package server

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const sessionCookieName = "token_service_session"

// SessionIssuer mints and verifies the signed login-session cookies used by
// the authorize endpoint. Sessions are stateless: the cookie is an HMAC
// signed claim set, nothing is stored server side.
type SessionIssuer struct {
	secret []byte
	maxAge time.Duration
}

func NewSessionIssuer(secret string, maxAge time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), maxAge: maxAge}
}

func (si *SessionIssuer) Mint(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(si.maxAge)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(si.secret)
	if err != nil {
		return "", errors.Wrap(err, "SessionIssuer.Mint")
	}
	return signed, nil
}

// Verify returns the user ID carried by a session token, or an error for
// anything unsigned, tampered with, or expired.
func (si *SessionIssuer) Verify(sessionToken string) (string, error) {
	parsed, err := jwt.ParseWithClaims(sessionToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return si.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(err, "SessionIssuer.Verify")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("SessionIssuer.Verify: missing subject")
	}
	return claims.Subject, nil
}

func (si *SessionIssuer) SetCookie(w http.ResponseWriter, sessionToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(si.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserIDFromRequest resolves the session cookie to a user ID.
func (si *SessionIssuer) UserIDFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", errors.Wrap(err, "SessionIssuer.UserIDFromRequest")
	}
	return si.Verify(cookie.Value)
}
