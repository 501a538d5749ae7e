package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/lobby"
	"github.com/iliyamo/room-lobby/internal/policy"
)

type createRoomRequest struct {
	Code       string `json:"code"`
	HostName   string `json:"host_name"`
	MaxPlayers int    `json:"max_players"`
}

// CreateRoom handles POST /v1/rooms.  max_players may be omitted to use
// the storage default.  A duplicate code answers 409 code_taken.
func (h *LobbyHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.Body{Error: "invalid body", Code: apierror.CodeInvalidInput})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.Store.CreateRoom(ctx, req.Code, req.HostName, req.MaxPlayers)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

// GetRoom handles GET /v1/rooms/:id.
func (h *LobbyHandler) GetRoom(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.Store.FindRoom(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// GetRoomByCode handles GET /v1/rooms/by-code/:code.  The code is
// matched case insensitively.
func (h *LobbyHandler) GetRoomByCode(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.Store.FindRoomByCode(ctx, c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// DeleteRoom handles DELETE /v1/rooms/:id and cascades to the players.
func (h *LobbyHandler) DeleteRoom(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Store.DeleteRoom(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StartGame handles POST /v1/rooms/:id/start.  The roster is re-read
// from the store so the minimum is checked against committed rows.  The
// hand-off is best effort: a failed publish is logged and the request
// still succeeds.
func (h *LobbyHandler) StartGame(c echo.Context) error {
	roomID := c.Param("id")
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Store.Authorize(ctx, policy.Request{Op: policy.OpStartGame, RoomID: roomID}); err != nil {
		return h.fail(c, err)
	}
	room, err := h.Store.FindRoom(ctx, roomID)
	if err != nil {
		return h.fail(c, err)
	}
	roster, err := h.Store.ListPlayers(ctx, roomID)
	if err != nil {
		return h.fail(c, err)
	}
	if n := len(roster); n < lobby.MinPlayersToStart {
		short := &lobby.NotEnoughPlayersError{Need: lobby.MinPlayersToStart - n}
		return c.JSON(http.StatusConflict, apierror.Body{
			Error: short.Error(),
			Code:  apierror.CodeNotEnoughPlayers,
			Need:  short.Need,
		})
	}
	if h.Games != nil {
		if err := h.Games.GameStarted(ctx, room, roster); err != nil {
			h.log.WithField("room_id", roomID).WithError(err).Warn("game start event not published")
		}
	}
	return c.JSON(http.StatusAccepted, echo.Map{"room_id": room.ID, "players": len(roster)})
}
