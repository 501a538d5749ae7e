package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-lobby/internal/handler"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterLobby registers the table API under /v1.  auth runs on every
// route so the policy can see the caller; limit only guards the routes
// that write rows.
func RegisterLobby(e *echo.Echo, h *handler.LobbyHandler, auth, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", auth)

	g.POST("/rooms", h.CreateRoom, limit)
	g.GET("/rooms/by-code/:code", h.GetRoomByCode)
	g.GET("/rooms/:id", h.GetRoom)
	g.DELETE("/rooms/:id", h.DeleteRoom, limit)
	g.POST("/rooms/:id/start", h.StartGame, limit)

	g.POST("/rooms/:id/players", h.AddPlayer, limit)
	g.GET("/rooms/:id/players", h.ListPlayers)
	g.DELETE("/players/:id", h.RemovePlayer, limit)

	g.GET("/rooms/:id/changes", h.Changes)
}
