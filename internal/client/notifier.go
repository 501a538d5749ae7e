package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/notifier"
)

const (
	writeWait = 10 * time.Second
	// events buffered between the socket and the consumer
	eventBuffer = 64
)

// Notifier subscribes to a room's change feed over websocket.
type Notifier struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewNotifier returns a Notifier for the server at baseURL.  http and
// https schemes are mapped to ws and wss.
func NewNotifier(baseURL string) *Notifier {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &Notifier{
		baseURL: u,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Subscribe opens the change feed of roomID.  The subscription ends
// when Close is called, ctx is cancelled or the server closes the feed,
// which it does after delivering the room DELETE.
func (n *Notifier) Subscribe(ctx context.Context, roomID string) (notifier.Subscription, error) {
	endpoint := n.baseURL + "/v1/rooms/" + url.PathEscape(roomID) + "/changes"
	conn, resp, err := n.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			var body apierror.Body
			if json.NewDecoder(resp.Body).Decode(&body) == nil {
				if sentinel := apierror.ToError(body.Code); sentinel != nil {
					return nil, fmt.Errorf("subscribe %s: %w", roomID, sentinel)
				}
			}
			return nil, fmt.Errorf("subscribe %s: status %d: %w", roomID, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", roomID, err)
	}

	sub := &wsSub{
		conn: conn,
		ch:   make(chan notifier.Event, eventBuffer),
		done: make(chan struct{}),
		log:  logrus.WithFields(logrus.Fields{"component": "feed-client", "room_id": roomID}),
	}
	go sub.read()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type wsSub struct {
	conn *websocket.Conn
	ch   chan notifier.Event
	done chan struct{}
	once sync.Once
	log  *logrus.Entry
}

func (s *wsSub) Events() <-chan notifier.Event { return s.ch }

// read is the only writer of ch and closes it when the socket ends.
// Pings from the server are answered by the default ping handler while
// reading.
func (s *wsSub) read() {
	defer close(s.ch)
	for {
		var ev notifier.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				select {
				case <-s.done:
				default:
					s.log.WithError(err).Debug("change feed read ended")
				}
			}
			return
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *wsSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}
