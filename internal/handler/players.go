package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/utils"
)

type addPlayerRequest struct {
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

// AddPlayer handles POST /v1/rooms/:id/players.  The response carries
// a player token that authorizes later removal of this player and, for
// hosts, deletion of the room.
func (h *LobbyHandler) AddPlayer(c echo.Context) error {
	var req addPlayerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.Body{Error: "invalid body", Code: apierror.CodeInvalidInput})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	p, err := h.Store.AddPlayer(ctx, c.Param("id"), req.Name, req.IsHost)
	if err != nil {
		return h.fail(c, err)
	}
	tok, err := utils.NewPlayerToken(h.JWTSecret, p, h.TokenTTL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, model.PlayerGrant{Player: p, Token: tok.Token, ExpiresAt: tok.Exp})
}

// ListPlayers handles GET /v1/rooms/:id/players.  An unknown room yields
// an empty roster.
func (h *LobbyHandler) ListPlayers(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	roster, err := h.Store.ListPlayers(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, roster)
}

// RemovePlayer handles DELETE /v1/players/:id.
func (h *LobbyHandler) RemovePlayer(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Store.RemovePlayer(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
