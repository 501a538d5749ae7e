// Package client talks to the lobby server.  Store implements the room
// and player store over the HTTP table API and Notifier implements the
// change feed over websocket, so a lobby.Controller can run against a
// remote server exactly as it does in process.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/lobby"
	"github.com/iliyamo/room-lobby/internal/model"
)

// HTTPError is returned for failures without a known error code.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("lobby server: status %d: %s", e.Status, e.Body)
}

// Store is a remote store for one client.  It remembers the player
// tokens it was granted and presents them when removing its players,
// deleting a room it hosts or starting its game.
type Store struct {
	http *resty.Client

	mu         sync.Mutex
	tokens     map[string]string // player id -> token
	hostTokens map[string]string // room id -> host token
}

// New returns a Store for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string) *Store {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	return &Store{
		http:       c,
		tokens:     make(map[string]string),
		hostTokens: make(map[string]string),
	}
}

func (s *Store) request(ctx context.Context) *resty.Request {
	return s.http.R().SetContext(ctx).SetError(&apierror.Body{})
}

func (s *Store) CreateRoom(ctx context.Context, code, hostName string, maxPlayers int) (model.Room, error) {
	var room model.Room
	resp, err := s.request(ctx).
		SetBody(map[string]any{"code": code, "host_name": hostName, "max_players": maxPlayers}).
		SetResult(&room).
		Post("/v1/rooms")
	if err := check(resp, err); err != nil {
		return model.Room{}, err
	}
	return room, nil
}

func (s *Store) FindRoomByCode(ctx context.Context, code string) (model.Room, error) {
	var room model.Room
	resp, err := s.request(ctx).
		SetPathParam("code", code).
		SetResult(&room).
		Get("/v1/rooms/by-code/{code}")
	if err := check(resp, err); err != nil {
		return model.Room{}, err
	}
	return room, nil
}

func (s *Store) FindRoom(ctx context.Context, roomID string) (model.Room, error) {
	var room model.Room
	resp, err := s.request(ctx).
		SetPathParam("id", roomID).
		SetResult(&room).
		Get("/v1/rooms/{id}")
	if err := check(resp, err); err != nil {
		return model.Room{}, err
	}
	return room, nil
}

func (s *Store) AddPlayer(ctx context.Context, roomID, name string, isHost bool) (model.Player, error) {
	var grant model.PlayerGrant
	resp, err := s.request(ctx).
		SetPathParam("id", roomID).
		SetBody(map[string]any{"name": name, "is_host": isHost}).
		SetResult(&grant).
		Post("/v1/rooms/{id}/players")
	if err := check(resp, err); err != nil {
		return model.Player{}, err
	}
	s.mu.Lock()
	s.tokens[grant.Player.ID] = grant.Token
	if grant.Player.IsHost {
		s.hostTokens[roomID] = grant.Token
	}
	s.mu.Unlock()
	return grant.Player, nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]model.Player, error) {
	var roster []model.Player
	resp, err := s.request(ctx).
		SetPathParam("id", roomID).
		SetResult(&roster).
		Get("/v1/rooms/{id}/players")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if roster == nil {
		roster = []model.Player{}
	}
	return roster, nil
}

func (s *Store) RemovePlayer(ctx context.Context, playerID string) error {
	s.mu.Lock()
	token := s.tokens[playerID]
	s.mu.Unlock()
	resp, err := s.authorized(ctx, token).
		SetPathParam("id", playerID).
		Delete("/v1/players/{id}")
	if err := check(resp, err); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tokens, playerID)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	token := s.hostTokens[roomID]
	s.mu.Unlock()
	resp, err := s.authorized(ctx, token).
		SetPathParam("id", roomID).
		Delete("/v1/rooms/{id}")
	if err := check(resp, err); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.hostTokens, roomID)
	s.mu.Unlock()
	return nil
}

// StartGame asks the server to hand the room over to the game.  It
// satisfies lobby.GameLauncher.
func (s *Store) StartGame(ctx context.Context, room model.Room, _ []model.Player) error {
	s.mu.Lock()
	token := s.hostTokens[room.ID]
	s.mu.Unlock()
	resp, err := s.authorized(ctx, token).
		SetPathParam("id", room.ID).
		Post("/v1/rooms/{id}/start")
	return check(resp, err)
}

func (s *Store) authorized(ctx context.Context, token string) *resty.Request {
	r := s.request(ctx)
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// check turns a transport error or an error response into a Go error.
// Known codes map back to the store sentinels.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	body, _ := resp.Error().(*apierror.Body)
	if body != nil {
		if body.Code == apierror.CodeNotEnoughPlayers {
			return &lobby.NotEnoughPlayersError{Need: body.Need}
		}
		if sentinel := apierror.ToError(body.Code); sentinel != nil {
			return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL, sentinel)
		}
	}
	return &HTTPError{Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
}
