// Package notifier delivers row-level change events for the rooms and
// players tables.  Every event is scoped to a room id and subscribers
// only ever see events of the room they subscribed to.  Delivery is
// at-most-once and ordered as published; consumers treat an event as a
// signal to re-read authoritative state, never as a delta to apply.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/room-lobby/internal/model"
)

// Table names a source table of change events.
type Table string

const (
	TableRooms   Table = "rooms"
	TablePlayers Table = "players"
)

// Op is the kind of row mutation.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is one committed row mutation.  New carries the row after an
// insert or update; Old carries the full previous row image for
// updates and deletes.
type Event struct {
	Table       Table           `json:"table"`
	Type        Op              `json:"type"`
	RoomID      string          `json:"room_id"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"commit_timestamp"`
}

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("notifier: closed")

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber opens room-scoped subscriptions.  The subscription is
// released when Close is called or when ctx is cancelled, whichever
// happens first.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Bus is both ends of the change feed.
type Bus interface {
	Publisher
	Subscriber
}

// Subscription is a live room-scoped event stream.  Events is closed
// once the subscription is released.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// RoomInserted builds the event for a newly created room.
func RoomInserted(r model.Room) Event { return rowEvent(TableRooms, OpInsert, r.ID, r, nil) }

// RoomDeleted builds the event for a deleted room.
func RoomDeleted(r model.Room) Event { return rowEvent(TableRooms, OpDelete, r.ID, nil, r) }

// PlayerInserted builds the event for a player joining a room.
func PlayerInserted(p model.Player) Event {
	return rowEvent(TablePlayers, OpInsert, p.RoomID, p, nil)
}

// PlayerDeleted builds the event for a player leaving or being cascaded.
func PlayerDeleted(p model.Player) Event { return rowEvent(TablePlayers, OpDelete, p.RoomID, nil, p) }

func rowEvent(t Table, op Op, roomID string, newRow, oldRow any) Event {
	ev := Event{Table: t, Type: op, RoomID: roomID, CommittedAt: time.Now().UTC()}
	if newRow != nil {
		ev.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		ev.Old, _ = json.Marshal(oldRow)
	}
	return ev
}

// Player decodes the player row carried by the event, preferring the
// new image.
func (e Event) Player() (model.Player, error) {
	var p model.Player
	err := json.Unmarshal(e.row(), &p)
	return p, err
}

// Room decodes the room row carried by the event, preferring the new
// image.
func (e Event) Room() (model.Room, error) {
	var r model.Room
	err := json.Unmarshal(e.row(), &r)
	return r, err
}

func (e Event) row() json.RawMessage {
	if len(e.New) > 0 {
		return e.New
	}
	return e.Old
}

// IsRoomDeleted reports whether the event tears down its room.
func (e Event) IsRoomDeleted() bool { return e.Table == TableRooms && e.Type == OpDelete }
