package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// authTimeout bounds token verification (which may refresh the JWKS cache).
const authTimeout = 5 * time.Second

// SubjectVerifier checks a bearer token and returns its subject.
// Implemented by auth.Verifier.
type SubjectVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

// Handler serves GET /ws/:user_id?token=<jwt>. The upgrade is accepted
// first so an auth failure can be reported with a proper close code: the
// token must verify and its subject must equal the path user id, otherwise
// the socket is closed with a policy-violation status.
func Handler(manager *Manager, verifier SubjectVerifier) echo.HandlerFunc {
	return func(c *echo.Context) error {
		userID := c.Param("user_id")
		if userID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
		}
		token := c.QueryParam("token")

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // origin allowlisting is handled at the ingress
		})
		if err != nil {
			return err
		}

		authCtx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
		subject, err := verifier.VerifySubject(authCtx, token)
		cancel()
		if err != nil {
			slog.Info("Rejected WebSocket connection",
				"user_id", userID, "error", err)
			_ = conn.Close(websocket.StatusPolicyViolation, "authentication required")
			return nil
		}
		if subject != userID {
			slog.Warn("WebSocket subject mismatch",
				"path_user", userID, "token_subject", subject)
			_ = conn.Close(websocket.StatusPolicyViolation, "token subject does not match user")
			return nil
		}

		manager.HandleConnection(c.Request().Context(), userID, conn)
		return nil
	}
}
