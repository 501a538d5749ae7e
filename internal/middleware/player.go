package middleware // package middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-lobby/internal/policy"
	"github.com/iliyamo/room-lobby/internal/utils"
)

// ContextPlayerID is the echo context key holding the authenticated
// player id.
const ContextPlayerID = "player_id"

// PlayerAuth parses an optional "Bearer <player token>" header.  A
// valid token attaches a policy.Actor to the request context so the
// store's policy can see who is calling.  Requests without a header
// pass through anonymously; a malformed or expired token is rejected
// with 401 rather than silently downgraded.
func PlayerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if auth == "" {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "malformed authorization header", "code": "unauthorized"})
			}
			claims, err := utils.ParsePlayerToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid player token", "code": "unauthorized"})
			}
			actor := policy.Actor{PlayerID: claims.Subject, RoomID: claims.RoomID, IsHost: claims.IsHost}
			req := c.Request()
			c.SetRequest(req.WithContext(policy.WithActor(req.Context(), actor)))
			c.Set(ContextPlayerID, claims.Subject)
			return next(c)
		}
	}
}
