// Package handler exposes the room/player store as an HTTP table API
// plus a websocket change feed.  Each handler bounds its store calls by
// the handler timeout and translates store errors with apierror.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/store"
)

// GameEvents receives the start hand-off once a host starts a game.
type GameEvents interface {
	GameStarted(ctx context.Context, room model.Room, roster []model.Player) error
}

// LobbyHandler bundles the store and the collaborators of the table API.
type LobbyHandler struct {
	Store     *store.Store
	Games     GameEvents // optional
	JWTSecret string
	TokenTTL  time.Duration
	Timeout   time.Duration
	log       *logrus.Entry
}

// NewLobbyHandler constructs a LobbyHandler and panics if the store is nil.
func NewLobbyHandler(s *store.Store, games GameEvents, jwtSecret string, tokenTTL time.Duration) *LobbyHandler {
	if s == nil {
		panic("nil store passed to NewLobbyHandler")
	}
	if tokenTTL <= 0 {
		tokenTTL = 4 * time.Hour
	}
	return &LobbyHandler{
		Store:     s,
		Games:     games,
		JWTSecret: jwtSecret,
		TokenTTL:  tokenTTL,
		Timeout:   5 * time.Second,
		log:       logrus.WithField("component", "http"),
	}
}

func (h *LobbyHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

// fail writes the JSON error envelope for err.  Unexpected errors are
// logged with the route; the client only sees a generic message.
func (h *LobbyHandler) fail(c echo.Context, err error) error {
	status, body := apierror.FromError(err)
	if status >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).WithError(err).Error("request failed")
	}
	return c.JSON(status, body)
}
