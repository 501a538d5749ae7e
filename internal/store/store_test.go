package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/notifier"
	"github.com/iliyamo/room-lobby/internal/policy"
	"github.com/iliyamo/room-lobby/internal/repository"
)

func newTestStore(t *testing.T, pol policy.Policy) (*Store, *notifier.MemoryBus) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	bus := notifier.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	return New(repo.Rooms(), repo.Players(), bus, pol), bus
}

func next(t *testing.T, sub notifier.Subscription) notifier.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return notifier.Event{}
	}
}

func TestStore_CreateRoomAndAddPlayerPublish(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "ABC123", "Alice", 5)
	require.NoError(t, err)
	sub, err := s.Subscribe(ctx, room.ID)
	require.NoError(t, err)
	defer sub.Close()

	host, err := s.AddPlayer(ctx, room.ID, "Alice", true)
	require.NoError(t, err)

	ev := next(t, sub)
	assert.Equal(t, notifier.TablePlayers, ev.Table)
	assert.Equal(t, notifier.OpInsert, ev.Type)
	p, err := ev.Player()
	require.NoError(t, err)
	assert.Equal(t, host.ID, p.ID)
	assert.True(t, p.IsHost)
}

func TestStore_DeleteRoomPublishesCascadeThenRoom(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, "ABC123", "Alice", 5)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, room.ID, "Alice", true)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, room.ID, "Bob", false)
	require.NoError(t, err)

	var closed []model.Player
	s.SetHooks(Hooks{RoomClosed: func(_ context.Context, _ model.Room, players []model.Player) {
		closed = players
	}})

	sub, err := s.Subscribe(ctx, room.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.DeleteRoom(ctx, room.ID))

	first, second, third := next(t, sub), next(t, sub), next(t, sub)
	assert.Equal(t, notifier.OpDelete, first.Type)
	assert.Equal(t, notifier.TablePlayers, first.Table)
	assert.NotEmpty(t, first.Old)
	assert.Equal(t, notifier.TablePlayers, second.Table)
	assert.True(t, third.IsRoomDeleted())
	assert.Len(t, closed, 2)

	roster, err := s.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, roster)
}

func TestStore_RemovePlayerKeepsRoom(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, "ABC123", "Alice", 5)
	require.NoError(t, err)
	host, err := s.AddPlayer(ctx, room.ID, "Alice", true)
	require.NoError(t, err)

	require.NoError(t, s.RemovePlayer(ctx, host.ID))

	_, err = s.FindRoom(ctx, room.ID)
	assert.NoError(t, err)
	assert.ErrorIs(t, s.RemovePlayer(ctx, host.ID), repository.ErrPlayerNotFound)
}

func TestStore_ValidatesInput(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, " ", "Alice", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.AddPlayer(ctx, "room", "", false)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.FindRoomByCode(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_CodesIgnoreCase(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, " abc123", "Alice", 5)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.Code)

	found, err := s.FindRoomByCode(ctx, "Abc123")
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)

	_, err = s.CreateRoom(ctx, "ABC123", "Bob", 5)
	assert.ErrorIs(t, err, repository.ErrCodeTaken)
}

func TestStore_OwnerPolicyGatesDeletes(t *testing.T) {
	s, _ := newTestStore(t, policy.Owner)
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, "ABC123", "Alice", 5)
	require.NoError(t, err)
	host, err := s.AddPlayer(ctx, room.ID, "Alice", true)
	require.NoError(t, err)
	bob, err := s.AddPlayer(ctx, room.ID, "Bob", false)
	require.NoError(t, err)

	asBob := policy.WithActor(ctx, policy.Actor{PlayerID: bob.ID, RoomID: room.ID})
	assert.ErrorIs(t, s.DeleteRoom(asBob, room.ID), repository.ErrForbidden)
	assert.ErrorIs(t, s.RemovePlayer(asBob, host.ID), repository.ErrForbidden)
	assert.NoError(t, s.RemovePlayer(asBob, bob.ID))

	asHost := policy.WithActor(ctx, policy.Actor{PlayerID: host.ID, RoomID: room.ID, IsHost: true})
	assert.NoError(t, s.DeleteRoom(asHost, room.ID))
}

func TestStore_ReapIfEmpty(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	occupied, err := s.CreateRoom(ctx, "FULL00", "Alice", 5)
	require.NoError(t, err)
	_, err = s.AddPlayer(ctx, occupied.ID, "Alice", true)
	require.NoError(t, err)
	orphan, err := s.CreateRoom(ctx, "ORPH00", "Ghost", 5)
	require.NoError(t, err)

	reaped, err := s.ReapIfEmpty(ctx, occupied.ID)
	require.NoError(t, err)
	assert.False(t, reaped)

	reaped, err = s.ReapIfEmpty(ctx, orphan.ID)
	require.NoError(t, err)
	assert.True(t, reaped)

	reaped, err = s.ReapIfEmpty(ctx, orphan.ID)
	require.NoError(t, err)
	assert.False(t, reaped)
}

func TestStore_PublishFailureDoesNotFailMutation(t *testing.T) {
	s, bus := newTestStore(t, nil)
	require.NoError(t, bus.Close())

	room, err := s.CreateRoom(context.Background(), "ABC123", "Alice", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
}
