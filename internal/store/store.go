// Package store is the room/player store seen by lobby clients.  Every
// operation is authorized by the configured policy, executed against
// the repositories and, when it mutated rows, announced on the change
// feed with one event per affected row.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/notifier"
	"github.com/iliyamo/room-lobby/internal/policy"
	"github.com/iliyamo/room-lobby/internal/repository"
)

// ErrInvalidInput is returned for empty names, codes or ids.
var ErrInvalidInput = errors.New("invalid input")

// Hooks are optional callbacks run after a committed lifecycle change.
// They run synchronously on the caller goroutine and must not block.
type Hooks struct {
	RoomCreated func(ctx context.Context, room model.Room)
	RoomClosed  func(ctx context.Context, room model.Room, players []model.Player)
}

// Store composes the repositories, the change feed and the policy.
type Store struct {
	rooms   repository.Rooms
	players repository.Players
	bus     notifier.Bus
	policy  policy.Policy
	hooks   Hooks
	log     *logrus.Entry
}

// New builds a Store.  A nil policy means policy.Open.
func New(rooms repository.Rooms, players repository.Players, bus notifier.Bus, pol policy.Policy) *Store {
	if rooms == nil || players == nil || bus == nil {
		panic("nil dependency passed to store.New")
	}
	if pol == nil {
		pol = policy.Open
	}
	return &Store{
		rooms:   rooms,
		players: players,
		bus:     bus,
		policy:  pol,
		log:     logrus.WithField("component", "store"),
	}
}

// SetHooks installs lifecycle hooks.  It must be called before the
// store is shared between goroutines.
func (s *Store) SetHooks(h Hooks) { s.hooks = h }

// CreateRoom inserts a room.  Codes are stored uppercase so lookups
// match the same way on every driver.  A duplicate code surfaces as
// repository.ErrCodeTaken; the store never retries with another code.
func (s *Store) CreateRoom(ctx context.Context, code, hostName string, maxPlayers int) (model.Room, error) {
	code = normalizeCode(code)
	hostName = strings.TrimSpace(hostName)
	if code == "" || hostName == "" || maxPlayers < 0 {
		return model.Room{}, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpCreateRoom}); err != nil {
		return model.Room{}, err
	}
	room := model.Room{Code: code, HostName: hostName, MaxPlayers: maxPlayers}
	if err := s.rooms.Create(ctx, &room); err != nil {
		return model.Room{}, err
	}
	s.publish(ctx, notifier.RoomInserted(room))
	s.log.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code}).Info("room created")
	if s.hooks.RoomCreated != nil {
		s.hooks.RoomCreated(ctx, room)
	}
	return room, nil
}

// FindRoomByCode looks a room up by code, ignoring case.
func (s *Store) FindRoomByCode(ctx context.Context, code string) (model.Room, error) {
	code = normalizeCode(code)
	if code == "" {
		return model.Room{}, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpFindRoom}); err != nil {
		return model.Room{}, err
	}
	return s.rooms.GetByCode(ctx, code)
}

// FindRoom looks a room up by id.
func (s *Store) FindRoom(ctx context.Context, roomID string) (model.Room, error) {
	if roomID == "" {
		return model.Room{}, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpFindRoom, RoomID: roomID}); err != nil {
		return model.Room{}, err
	}
	return s.rooms.GetByID(ctx, roomID)
}

// AddPlayer inserts a player into a room if it is under capacity.
func (s *Store) AddPlayer(ctx context.Context, roomID, name string, isHost bool) (model.Player, error) {
	name = strings.TrimSpace(name)
	if roomID == "" || name == "" {
		return model.Player{}, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpAddPlayer, RoomID: roomID}); err != nil {
		return model.Player{}, err
	}
	p := model.Player{RoomID: roomID, Name: name, IsHost: isHost}
	if err := s.players.Create(ctx, &p); err != nil {
		return model.Player{}, err
	}
	s.publish(ctx, notifier.PlayerInserted(p))
	s.log.WithFields(logrus.Fields{"room_id": roomID, "player_id": p.ID, "is_host": isHost}).Info("player added")
	return p, nil
}

// ListPlayers returns the roster ordered by join time.
func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]model.Player, error) {
	if roomID == "" {
		return nil, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpListPlayers, RoomID: roomID}); err != nil {
		return nil, err
	}
	players, err := s.players.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	model.SortRoster(players)
	return players, nil
}

// RemovePlayer deletes one player row.  It never deletes the room, even
// for hosts; the host's client deletes the room explicitly.
func (s *Store) RemovePlayer(ctx context.Context, playerID string) error {
	if playerID == "" {
		return ErrInvalidInput
	}
	p, err := s.players.GetByID(ctx, playerID)
	if err != nil {
		return err
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpRemove, RoomID: p.RoomID, PlayerID: playerID}); err != nil {
		return err
	}
	removed, err := s.players.Delete(ctx, playerID)
	if err != nil {
		return err
	}
	s.publish(ctx, notifier.PlayerDeleted(removed))
	s.log.WithFields(logrus.Fields{"room_id": removed.RoomID, "player_id": playerID}).Info("player removed")
	return nil
}

// DeleteRoom deletes a room and, by cascade, its players.  Subscribers
// receive a player DELETE per removed player followed by the room
// DELETE.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpDeleteRoom, RoomID: roomID}); err != nil {
		return err
	}
	room, players, err := s.rooms.Delete(ctx, roomID)
	if err != nil {
		return err
	}
	s.closed(ctx, room, players)
	return nil
}

// ReapIfEmpty deletes the room when nobody is in it.  It bypasses the
// policy because it is only invoked by the server's own worker.
func (s *Store) ReapIfEmpty(ctx context.Context, roomID string) (bool, error) {
	room, deleted, err := s.rooms.DeleteIfEmpty(ctx, roomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil || !deleted {
		return false, err
	}
	s.closed(ctx, room, nil)
	return true, nil
}

// Subscribe opens a change feed subscription for a room.
func (s *Store) Subscribe(ctx context.Context, roomID string) (notifier.Subscription, error) {
	if roomID == "" {
		return nil, ErrInvalidInput
	}
	if err := s.policy.Allow(ctx, policy.Request{Op: policy.OpSubscribe, RoomID: roomID}); err != nil {
		return nil, err
	}
	return s.bus.Subscribe(ctx, roomID)
}

// Authorize exposes the policy to operations implemented outside the
// store, such as the game start hand-off.
func (s *Store) Authorize(ctx context.Context, req policy.Request) error {
	return s.policy.Allow(ctx, req)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Store) closed(ctx context.Context, room model.Room, players []model.Player) {
	for _, p := range players {
		s.publish(ctx, notifier.PlayerDeleted(p))
	}
	s.publish(ctx, notifier.RoomDeleted(room))
	s.log.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code, "players": len(players)}).Info("room deleted")
	if s.hooks.RoomClosed != nil {
		s.hooks.RoomClosed(ctx, room, players)
	}
}

// publish announces a committed change.  The mutation already
// happened, so a failed publish is logged rather than returned;
// subscribers recover on their next roster read.
func (s *Store) publish(ctx context.Context, ev notifier.Event) {
	if err := s.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.WithFields(logrus.Fields{
			"room_id": ev.RoomID,
			"table":   ev.Table,
			"type":    ev.Type,
		}).WithError(err).Warn("change event not published")
	}
}
