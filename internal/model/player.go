package model

import (
	"sort"
	"time"
)

// Player is a named participant of exactly one room.  Exactly one
// player per room carries IsHost; the store refuses a second host at
// insert time.  JoinedAt defines roster order.
type Player struct {
	ID       string    `json:"id"`        // players.id
	RoomID   string    `json:"room_id"`   // players.room_id
	Name     string    `json:"name"`      // players.name
	IsHost   bool      `json:"is_host"`   // players.is_host
	JoinedAt time.Time `json:"joined_at"` // players.joined_at
}

// SortRoster orders players ascending by JoinedAt.  Players that
// joined within the same instant are ordered by ID so that every
// client renders the same roster.
func SortRoster(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
}

// HostOf returns the host player of a roster, if present.
func HostOf(players []Player) (Player, bool) {
	for _, p := range players {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}

// PlayerGrant is returned when a player row is created over the API.
// Token is a capability for acting as that player.
type PlayerGrant struct {
	Player    Player    `json:"player"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"token_expires_at"`
}
