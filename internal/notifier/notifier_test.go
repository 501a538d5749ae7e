package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-lobby/internal/model"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return Event{}
}

func TestEvent_CarriesPreviousRowImageOnDelete(t *testing.T) {
	p := model.Player{ID: "p1", RoomID: "r1", Name: "Bob"}

	ev := PlayerDeleted(p)

	assert.Empty(t, ev.New)
	decoded, err := ev.Player()
	require.NoError(t, err)
	assert.Equal(t, p.Name, decoded.Name)
	assert.Equal(t, "r1", ev.RoomID)
	assert.False(t, ev.IsRoomDeleted())
	assert.True(t, RoomDeleted(model.Room{ID: "r1"}).IsRoomDeleted())
}

func TestMemoryBus_FiltersByRoom(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	subA, err := bus.Subscribe(ctx, "room-a")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := bus.Subscribe(ctx, "room-b")
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, bus.Publish(ctx, PlayerInserted(model.Player{ID: "p1", RoomID: "room-a"})))

	ev := receive(t, subA)
	assert.Equal(t, TablePlayers, ev.Table)
	assert.Equal(t, OpInsert, ev.Type)
	select {
	case ev := <-subB.Events():
		t.Fatalf("room-b received foreign event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CloseReleasesSubscription(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(context.Background(), "room-a")
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("room-a"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.Equal(t, 0, bus.Subscribers("room-a"))
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.NoError(t, bus.Publish(context.Background(), RoomDeleted(model.Room{ID: "room-a"})))
}

func TestMemoryBus_ContextCancelReleasesSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "room-a")
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool { return bus.Subscribers("room-a") == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestRedisBus_DeliversRoomScopedEvents(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	bus := NewRedisBus(client, "test:")
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, PlayerInserted(model.Player{ID: "p9", RoomID: "room-2"})))
	require.NoError(t, bus.Publish(ctx, RoomDeleted(model.Room{ID: "room-1", Code: "ABC123"})))

	ev := receive(t, sub)
	assert.True(t, ev.IsRoomDeleted())
	room, err := ev.Room()
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.Code)
}

func TestRedisBus_CloseEndsEventStream(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	bus := NewRedisBus(client, "")

	sub, err := bus.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
}
