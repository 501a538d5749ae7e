package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/room-lobby/internal/model"
)

// PlayerRepo provides data access to the players table.  Inserts are
// serialized per room by locking the owning rooms row, which makes the
// capacity and single-host checks atomic with the insert.
type PlayerRepo struct {
	db *sql.DB
}

// NewPlayerRepo returns a new PlayerRepo bound to the provided database.
func NewPlayerRepo(db *sql.DB) *PlayerRepo { return &PlayerRepo{db: db} }

const playerColumns = "id, room_id, name, is_host, joined_at"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Create inserts a player after checking, under a row lock on the room,
// that the room exists, that it holds fewer than max_players rows and,
// for hosts, that no other host exists.
func (r *PlayerRepo) Create(ctx context.Context, p *model.Player) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var maxPlayers int
	err = tx.QueryRowContext(ctx,
		"SELECT max_players FROM rooms WHERE id = ? FOR UPDATE", p.RoomID).Scan(&maxPlayers)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	var count, hosts int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_host), 0) FROM players WHERE room_id = ?",
		p.RoomID).Scan(&count, &hosts); err != nil {
		return err
	}
	if p.IsHost && hosts > 0 {
		return ErrHostExists
	}
	if count >= maxPlayers {
		return ErrRoomFull
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO players (id, room_id, name, is_host) VALUES (?, ?, ?, ?)",
		p.ID, p.RoomID, p.Name, p.IsHost); err != nil {
		return err
	}
	// Query back joined_at which defaults to the insert time.
	if err := tx.QueryRowContext(ctx,
		"SELECT joined_at FROM players WHERE id = ?", p.ID).Scan(&p.JoinedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID fetches a player by id.
func (r *PlayerRepo) GetByID(ctx context.Context, id string) (model.Player, error) {
	var p model.Player
	err := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ? LIMIT 1", id).
		Scan(&p.ID, &p.RoomID, &p.Name, &p.IsHost, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrPlayerNotFound
	}
	return p, err
}

// ListByRoom returns the roster of a room ordered by join time.  An
// unknown room simply yields an empty roster.
func (r *PlayerRepo) ListByRoom(ctx context.Context, roomID string) ([]model.Player, error) {
	return listPlayers(ctx, r.db, roomID)
}

// Delete removes a player and returns the row as it was before the
// delete.
func (r *PlayerRepo) Delete(ctx context.Context, id string) (model.Player, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Player{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var p model.Player
	err = tx.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ? FOR UPDATE", id).
		Scan(&p.ID, &p.RoomID, &p.Name, &p.IsHost, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return model.Player{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM players WHERE id = ?", id); err != nil {
		return model.Player{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Player{}, err
	}
	committed = true
	return p, nil
}

func listPlayers(ctx context.Context, q queryer, roomID string) ([]model.Player, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE room_id = ? ORDER BY joined_at ASC, id ASC", roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	players := []model.Player{}
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.IsHost, &p.JoinedAt); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return players, nil
}
