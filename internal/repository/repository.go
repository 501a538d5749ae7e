package repository

import (
	"context"

	"github.com/iliyamo/room-lobby/internal/model"
)

// Rooms is the persistence contract for the rooms table.
type Rooms interface {
	// Create inserts the room, generating its ID when empty, and
	// populates the database defaults (timestamps, max_players).
	// A duplicate code yields ErrCodeTaken.
	Create(ctx context.Context, room *model.Room) error
	// GetByID returns ErrRoomNotFound when absent.
	GetByID(ctx context.Context, id string) (model.Room, error)
	// GetByCode matches the stored code exactly; callers normalize.
	GetByCode(ctx context.Context, code string) (model.Room, error)
	// Delete removes the room and, through the cascade, its players.
	// It returns the deleted row images so callers can publish them.
	Delete(ctx context.Context, id string) (model.Room, []model.Player, error)
	// DeleteIfEmpty removes the room only when no player references
	// it. The boolean reports whether a row was deleted.
	DeleteIfEmpty(ctx context.Context, id string) (model.Room, bool, error)
}

// Players is the persistence contract for the players table.
type Players interface {
	// Create inserts the player if the room exists, is under capacity
	// and, for hosts, has no host yet. The checks and the insert run
	// atomically. ID and JoinedAt are populated on success.
	Create(ctx context.Context, player *model.Player) error
	// GetByID returns ErrPlayerNotFound when absent.
	GetByID(ctx context.Context, id string) (model.Player, error)
	// ListByRoom returns the roster ordered by joined_at ascending.
	ListByRoom(ctx context.Context, roomID string) ([]model.Player, error)
	// Delete removes the player and returns the deleted row image.
	Delete(ctx context.Context, id string) (model.Player, error)
}
