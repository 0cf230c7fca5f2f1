package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// userIDKey is the echo context key holding the authenticated user id.
const userIDKey = "user_id"

// SubjectVerifier checks a bearer token and returns its subject.
// Implemented by auth.Verifier.
type SubjectVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

// requireUser returns middleware that resolves the requesting user.
//
// External clients present a bearer token whose signature is verified
// against the auth provider's JWKS; the subject claim becomes the user id.
// Sidecar service invocation (the recurring materializer) carries an
// X-User-ID header instead; the sidecar shares the pod, so the header is
// honored only for connections arriving over loopback.
func requireUser(verifier SubjectVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
				subject, err := verifier.VerifySubject(c.Request().Context(), token)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				c.Set(userIDKey, subject)
				return next(c)
			}

			if userID := c.Request().Header.Get("X-User-ID"); userID != "" && isLoopback(c.Request().RemoteAddr) {
				c.Set(userIDKey, userID)
				return next(c)
			}

			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
	}
}

// isLoopback reports whether remoteAddr is a loopback peer.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// currentUser returns the authenticated user id set by requireUser.
func currentUser(c *echo.Context) string {
	userID, _ := c.Get(userIDKey).(string)
	return userID
}
