package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// The feed is server to client; client frames are only control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Changes handles GET /v1/rooms/:id/changes.  It streams the room's
// change events as JSON text frames and closes the socket with a normal
// closure after the room DELETE event.
func (h *LobbyHandler) Changes(c echo.Context) error {
	roomID := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Subscribe before checking the room so a delete racing the
	// handshake is still delivered.
	sub, err := h.Store.Subscribe(ctx, roomID)
	if err != nil {
		return h.fail(c, err)
	}
	defer sub.Close()
	lookupCtx, lookupCancel := context.WithTimeout(ctx, h.Timeout)
	_, err = h.Store.FindRoom(lookupCtx, roomID)
	lookupCancel()
	if err != nil {
		return h.fail(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		return nil
	}
	defer conn.Close()
	log := h.log.WithField("room_id", roomID)
	log.Debug("change feed opened")

	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				closeFeed(conn, websocket.CloseGoingAway, "feed closed")
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("change feed write failed")
				return nil
			}
			if ev.IsRoomDeleted() {
				closeFeed(conn, websocket.CloseNormalClosure, "room closed")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-ctx.Done():
			log.Debug("change feed closed by peer")
			return nil
		}
	}
}

func closeFeed(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	logrus.WithFields(logrus.Fields{"component": "http", "close_code": code}).Debug(reason)
}
