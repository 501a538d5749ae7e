package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/room-lobby/internal/model"
)

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

// RoomRepo encapsulates all database queries related to rooms.  It
// depends on a sql.DB connection which is configured by the database
// package.  All timestamps are stored in UTC.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo constructs a RoomRepo with the provided DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = "id, code, host_name, max_players, created_at, updated_at"

// Create inserts a new room.  When MaxPlayers is zero the column is
// omitted so the table default applies.  After the insert, a SELECT is
// executed to populate the defaulted fields so that callers receive a
// fully populated record.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	var err error
	if room.MaxPlayers > 0 {
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO rooms (id, code, host_name, max_players) VALUES (?, ?, ?, ?)",
			room.ID, room.Code, room.HostName, room.MaxPlayers)
	} else {
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO rooms (id, code, host_name) VALUES (?, ?, ?)",
			room.ID, room.Code, room.HostName)
	}
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrCodeTaken
		}
		return err
	}
	created, err := r.GetByID(ctx, room.ID)
	if err != nil {
		return err
	}
	*room = created
	return nil
}

// GetByID fetches a room by its primary key.
func (r *RoomRepo) GetByID(ctx context.Context, id string) (model.Room, error) {
	return scanRoom(r.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = ? LIMIT 1", id))
}

// GetByCode fetches a room by its unique join code.
func (r *RoomRepo) GetByCode(ctx context.Context, code string) (model.Room, error) {
	return scanRoom(r.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE code = ? LIMIT 1", code))
}

// Delete removes a room.  The room row is locked first and the roster
// is read inside the same transaction so the returned images match
// exactly what the ON DELETE CASCADE removed.
func (r *RoomRepo) Delete(ctx context.Context, id string) (model.Room, []model.Player, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Room{}, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	room, err := scanRoom(tx.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = ? FOR UPDATE", id))
	if err != nil {
		return model.Room{}, nil, err
	}
	players, err := listPlayers(ctx, tx, id)
	if err != nil {
		return model.Room{}, nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id); err != nil {
		return model.Room{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return model.Room{}, nil, err
	}
	committed = true
	return room, players, nil
}

// DeleteIfEmpty removes the room when it has no players.  It is used
// to reap rooms orphaned by a failure between room and host creation.
func (r *RoomRepo) DeleteIfEmpty(ctx context.Context, id string) (model.Room, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Room{}, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	room, err := scanRoom(tx.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = ? FOR UPDATE", id))
	if err != nil {
		return model.Room{}, false, err
	}
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM players WHERE room_id = ?", id).Scan(&count); err != nil {
		return model.Room{}, false, err
	}
	if count > 0 {
		return room, false, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id); err != nil {
		return model.Room{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Room{}, false, err
	}
	committed = true
	return room, true, nil
}

func scanRoom(row *sql.Row) (model.Room, error) {
	var room model.Room
	err := row.Scan(&room.ID, &room.Code, &room.HostName, &room.MaxPlayers, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, ErrRoomNotFound
	}
	return room, err
}

// isDuplicateEntry reports whether err is a MySQL unique key violation.
func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
