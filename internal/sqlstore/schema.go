// Package sqlstore is the SQLite storage backend.
package sqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/almanac/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS windows (
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	color      TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS memos (
	user_id    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	window_id  TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, year, window_id)
);

CREATE TABLE IF NOT EXISTS plans (
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	window_id  TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	date       DATETIME NOT NULL,
	end_date   DATETIME,
	all_day    INTEGER NOT NULL DEFAULT 0,
	done       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_plans_date ON plans(user_id, date);
CREATE INDEX IF NOT EXISTS idx_memos_window ON memos(user_id, window_id);
`

// DB is a per-user SQLite backend.
type DB struct {
	conn   *sql.DB
	userID string
}

var (
	_ storage.Backend  = (*DB)(nil)
	_ storage.PlanRepo = (*DB)(nil)
)

// Open opens (or creates) the SQLite database and applies the schema.
// Every query is scoped to userID.
func Open(dsn, userID string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}
	return &DB{conn: conn, userID: userID}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
