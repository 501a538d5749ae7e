package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-lobby/internal/apierror"
	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/notifier"
	"github.com/iliyamo/room-lobby/internal/policy"
	"github.com/iliyamo/room-lobby/internal/repository"
	"github.com/iliyamo/room-lobby/internal/store"
	"github.com/iliyamo/room-lobby/internal/utils"
)

type recordedGames struct {
	mu      sync.Mutex
	started []string
}

func (r *recordedGames) GameStarted(_ context.Context, room model.Room, _ []model.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, room.ID)
	return nil
}

type fixture struct {
	e     *echo.Echo
	h     *LobbyHandler
	games *recordedGames
}

func newFixture(t *testing.T, pol policy.Policy) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepo()
	bus := notifier.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	games := &recordedGames{}
	h := NewLobbyHandler(store.New(repo.Rooms(), repo.Players(), bus, pol), games, "secret", 0)

	e := echo.New()
	auth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if raw != "" {
				claims, err := utils.ParsePlayerToken("secret", raw)
				require.NoError(t, err)
				ctx := policy.WithActor(c.Request().Context(), policy.Actor{PlayerID: claims.Subject, RoomID: claims.RoomID, IsHost: claims.IsHost})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
	g := e.Group("/v1", auth)
	g.POST("/rooms", h.CreateRoom)
	g.GET("/rooms/by-code/:code", h.GetRoomByCode)
	g.GET("/rooms/:id", h.GetRoom)
	g.DELETE("/rooms/:id", h.DeleteRoom)
	g.POST("/rooms/:id/start", h.StartGame)
	g.POST("/rooms/:id/players", h.AddPlayer)
	g.GET("/rooms/:id/players", h.ListPlayers)
	g.DELETE("/players/:id", h.RemovePlayer)
	return &fixture{e: e, h: h, games: games}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) createRoom(t *testing.T, code string, max int) model.Room {
	t.Helper()
	body := `{"code":"` + code + `","host_name":"Alice","max_players":` + jsonInt(max) + `}`
	rec := f.do(http.MethodPost, "/v1/rooms", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Room](t, rec)
}

func (f *fixture) addPlayer(t *testing.T, roomID, name string, host bool) model.PlayerGrant {
	t.Helper()
	body := `{"name":"` + name + `","is_host":` + map[bool]string{true: "true", false: "false"}[host] + `}`
	rec := f.do(http.MethodPost, "/v1/rooms/"+roomID+"/players", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.PlayerGrant](t, rec)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateRoom_DuplicateCode(t *testing.T) {
	f := newFixture(t, nil)
	f.createRoom(t, "ABC123", 5)

	rec := f.do(http.MethodPost, "/v1/rooms", `{"code":"ABC123","host_name":"Bob","max_players":5}`, "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeCodeTaken, decode[apierror.Body](t, rec).Code)
}

func TestCreateRoom_ValidationAndDefaults(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/rooms", `{"code":"","host_name":"Bob"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	room := f.createRoom(t, "DEF000", 0)
	assert.Equal(t, model.StorageDefaultMaxPlayers, room.MaxPlayers)
}

func TestRoomLookup(t *testing.T) {
	f := newFixture(t, nil)
	room := f.createRoom(t, "ABC123", 5)

	rec := f.do(http.MethodGet, "/v1/rooms/by-code/ABC123", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, room.ID, decode[model.Room](t, rec).ID)

	rec = f.do(http.MethodGet, "/v1/rooms/by-code/NOPE00", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierror.CodeRoomNotFound, decode[apierror.Body](t, rec).Code)

	rec = f.do(http.MethodGet, "/v1/rooms/"+room.ID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddPlayer_CapacityAndRoster(t *testing.T) {
	f := newFixture(t, nil)
	room := f.createRoom(t, "DUO000", 2)
	host := f.addPlayer(t, room.ID, "Alice", true)
	assert.NotEmpty(t, host.Token)
	f.addPlayer(t, room.ID, "Bob", false)

	rec := f.do(http.MethodPost, "/v1/rooms/"+room.ID+"/players", `{"name":"Carol"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeRoomFull, decode[apierror.Body](t, rec).Code)

	rec = f.do(http.MethodGet, "/v1/rooms/"+room.ID+"/players", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]model.Player](t, rec)
	require.Len(t, roster, 2)
	assert.Equal(t, "Alice", roster[0].Name)
	assert.Equal(t, "Bob", roster[1].Name)
}

func TestAddPlayer_SecondHostRejected(t *testing.T) {
	f := newFixture(t, nil)
	room := f.createRoom(t, "HOST00", 5)
	f.addPlayer(t, room.ID, "Alice", true)

	rec := f.do(http.MethodPost, "/v1/rooms/"+room.ID+"/players", `{"name":"Mallory","is_host":true}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeHostExists, decode[apierror.Body](t, rec).Code)
}

func TestDeleteRoom_OwnerPolicy(t *testing.T) {
	f := newFixture(t, policy.Owner)
	room := f.createRoom(t, "OWN000", 5)
	host := f.addPlayer(t, room.ID, "Alice", true)
	bob := f.addPlayer(t, room.ID, "Bob", false)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/rooms/"+room.ID, "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/rooms/"+room.ID, "", bob.Token).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/players/"+host.Player.ID, "", bob.Token).Code)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/rooms/"+room.ID, "", host.Token).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/rooms/"+room.ID, "", "").Code)

	rec := f.do(http.MethodGet, "/v1/rooms/"+room.ID+"/players", "", "")
	assert.Empty(t, decode[[]model.Player](t, rec))
}

func TestRemovePlayer(t *testing.T) {
	f := newFixture(t, nil)
	room := f.createRoom(t, "REM000", 5)
	bob := f.addPlayer(t, room.ID, "Bob", false)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/players/"+bob.Player.ID, "", "").Code)
	rec := f.do(http.MethodDelete, "/v1/players/"+bob.Player.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierror.CodePlayerNotFound, decode[apierror.Body](t, rec).Code)
}

func TestStartGame(t *testing.T) {
	f := newFixture(t, nil)
	room := f.createRoom(t, "GO0000", 5)
	f.addPlayer(t, room.ID, "Alice", true)

	rec := f.do(http.MethodPost, "/v1/rooms/"+room.ID+"/start", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[apierror.Body](t, rec)
	assert.Equal(t, apierror.CodeNotEnoughPlayers, body.Code)
	assert.Equal(t, 1, body.Need)

	f.addPlayer(t, room.ID, "Bob", false)
	rec = f.do(http.MethodPost, "/v1/rooms/"+room.ID+"/start", "", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{room.ID}, f.games.started)
}
