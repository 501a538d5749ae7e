// Package queue defines the lobby lifecycle messages exchanged over
// RabbitMQ and the consumer that records them.
package queue

// GameStartedEvent is published when a host starts the game.
type GameStartedEvent struct {
	RoomID    string   `json:"room_id"`
	Code      string   `json:"code"`
	HostName  string   `json:"host_name"`
	Players   []string `json:"players"`
	StartedAt string   `json:"started_at"`
}

// RoomClosedEvent is published after a room row is deleted, whether by
// its host leaving or by the orphan reaper.
type RoomClosedEvent struct {
	RoomID   string   `json:"room_id"`
	Code     string   `json:"code"`
	HostName string   `json:"host_name"`
	Players  []string `json:"players"`
	ClosedAt string   `json:"closed_at"`
}
