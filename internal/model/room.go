package model

import "time"

// DefaultMaxPlayers is the capacity clients request when hosting a room.
// The rooms table itself defaults to StorageDefaultMaxPlayers when the
// column is omitted from an insert.
const (
	DefaultMaxPlayers        = 5
	StorageDefaultMaxPlayers = 4
)

// Room represents a joinable lobby identified by a short code.  The
// host name is denormalized from the creating player and is not a
// foreign key.  Rooms own their players: deleting a room removes
// every player row that references it.
//
// Fields:
//  ID         – opaque unique identifier (UUID string).
//  Code       – short human-enterable code, unique across rooms.
//  HostName   – display name of the player that created the room.
//  MaxPlayers – capacity fixed at creation.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – refreshed by the database on every row mutation.
type Room struct {
	ID         string    `json:"id"`          // rooms.id
	Code       string    `json:"code"`        // rooms.code
	HostName   string    `json:"host_name"`   // rooms.host_name
	MaxPlayers int       `json:"max_players"` // rooms.max_players
	CreatedAt  time.Time `json:"created_at"`  // rooms.created_at
	UpdatedAt  time.Time `json:"updated_at"`  // rooms.updated_at
}
