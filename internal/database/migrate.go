package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the rooms and players tables.  Statements are
// idempotent so Migrate can run on every start.  joined_at keeps
// microseconds because it is the roster order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id          CHAR(36)     NOT NULL,
		code        VARCHAR(16)  NOT NULL,
		host_name   VARCHAR(64)  NOT NULL,
		max_players INT          NOT NULL DEFAULT 4,
		created_at  DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at  DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		UNIQUE KEY uq_rooms_code (code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS players (
		id        CHAR(36)    NOT NULL,
		room_id   CHAR(36)    NOT NULL,
		name      VARCHAR(64) NOT NULL,
		is_host   BOOLEAN     NOT NULL DEFAULT FALSE,
		joined_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		KEY idx_players_room_joined (room_id, joined_at),
		CONSTRAINT fk_players_room FOREIGN KEY (room_id) REFERENCES rooms (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
