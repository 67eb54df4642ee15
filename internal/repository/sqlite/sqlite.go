// Package sqlite implements the repository interfaces on top of SQLite.
//
// DRIVER:
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. It registers itself with database/sql as "sqlite".
//
// SQLX:
// Queries go through jmoiron/sqlx, which scans rows straight into structs
// using their `db` tags and expands IN (?) clauses for slice arguments. Every
// SELECT names its columns explicitly: sqlx refuses to scan a column that has
// no matching struct field.
//
// ONE CONNECTION:
// The pool is capped at a single connection. SQLite allows one writer at a
// time anyway, and ":memory:" databases exist per connection, so a larger
// pool would hand tests several unrelated empty databases. Code running
// inside a transaction must therefore only use the *sqlx.Tx; touching db.conn
// there would wait forever for the connection the transaction holds.
//
// TIMESTAMPS:
// All times are written in UTC. The driver stores them as text in a fixed
// layout, so comparisons in SQL (expires_at < ?) sort correctly.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/convoy/internal/repository"
)

// DB is the SQLite-backed store. A single value implements every repository
// interface in package repository.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
//
//   - "data/convoy.db" persists to disk
//   - ":memory:" lives until Close, which is what the tests use
func New(dbPath string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, now: func() time.Time { return time.Now().UTC() }}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. The health endpoint calls it.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                  TEXT PRIMARY KEY,
				unique_id           INTEGER NOT NULL UNIQUE,
				username            TEXT NOT NULL,
				username_normalized TEXT NOT NULL UNIQUE,
				email               TEXT UNIQUE,
				phone               TEXT UNIQUE,
				password_hash       TEXT,
				profile_picture_url TEXT,
				status              TEXT NOT NULL DEFAULT 'offline'
				                    CHECK (status IN ('online', 'driving', 'offline')),
				is_active           INTEGER NOT NULL DEFAULT 1,
				role                TEXT NOT NULL DEFAULT 'user',
				created_at          DATETIME NOT NULL,
				updated_at          DATETIME NOT NULL
			);`},
		{"otp_challenges", `
			CREATE TABLE IF NOT EXISTS otp_challenges (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				email      TEXT NOT NULL,
				phone      TEXT,
				code       TEXT NOT NULL,
				expires_at DATETIME NOT NULL,
				is_used    INTEGER NOT NULL DEFAULT 0,
				attempts   INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_otp_email_unused ON otp_challenges(email, is_used);
			CREATE INDEX IF NOT EXISTS idx_otp_expires_at ON otp_challenges(expires_at);`},
		{"friend_requests", `
			CREATE TABLE IF NOT EXISTS friend_requests (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				sender_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				receiver_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				pair_one_id  TEXT NOT NULL,
				pair_two_id  TEXT NOT NULL,
				status       TEXT NOT NULL DEFAULT 'pending'
				             CHECK (status IN ('pending', 'accepted', 'rejected')),
				created_at   DATETIME NOT NULL,
				responded_at DATETIME,
				CHECK (sender_id <> receiver_id)
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pending_pair
				ON friend_requests(pair_one_id, pair_two_id) WHERE status = 'pending';
			CREATE INDEX IF NOT EXISTS idx_friend_requests_receiver ON friend_requests(receiver_id, status);
			CREATE INDEX IF NOT EXISTS idx_friend_requests_sender ON friend_requests(sender_id, status);`},
		{"friendships", `
			CREATE TABLE IF NOT EXISTS friendships (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				user_one_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				user_two_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at  DATETIME NOT NULL,
				UNIQUE (user_one_id, user_two_id),
				CHECK (user_one_id < user_two_id)
			);
			CREATE INDEX IF NOT EXISTS idx_friendships_two ON friendships(user_two_id);`},
		{"conversations", `
			CREATE TABLE IF NOT EXISTS conversations (
				id                 INTEGER PRIMARY KEY AUTOINCREMENT,
				kind               TEXT NOT NULL DEFAULT 'direct',
				created_by         TEXT NOT NULL REFERENCES users(id),
				direct_user_one_id TEXT NOT NULL REFERENCES users(id),
				direct_user_two_id TEXT NOT NULL REFERENCES users(id),
				created_at         DATETIME NOT NULL,
				UNIQUE (kind, direct_user_one_id, direct_user_two_id)
			);
			CREATE TABLE IF NOT EXISTS conversation_members (
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				joined_at       DATETIME NOT NULL,
				last_read_at    DATETIME,
				PRIMARY KEY (conversation_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members(user_id);`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				sender_id       TEXT NOT NULL REFERENCES users(id),
				type            TEXT NOT NULL DEFAULT 'text'
				                CHECK (type IN ('text', 'image', 'system')),
				content         TEXT NOT NULL,
				metadata        TEXT,
				created_at      DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);`},
		{"vehicles", `
			CREATE TABLE IF NOT EXISTS vehicles (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				model         TEXT NOT NULL,
				power         TEXT NOT NULL DEFAULT '',
				fuel_type     TEXT NOT NULL DEFAULT '',
				modifications TEXT NOT NULL DEFAULT '',
				image_url     TEXT,
				is_primary    INTEGER NOT NULL DEFAULT 0,
				created_at    DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_primary ON vehicles(user_id) WHERE is_primary = 1;`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.ddl); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes disabled: fall back to the message.
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

// userDuplicate names the users column behind a UNIQUE failure. SQLite reports
// it as "UNIQUE constraint failed: users.<column>".
func userDuplicate(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return repository.ErrDuplicateEmail
	case strings.Contains(msg, "users.phone"):
		return repository.ErrDuplicatePhone
	case strings.Contains(msg, "users.username_normalized"):
		return repository.ErrDuplicateUsername
	}
	return repository.ErrDuplicate
}
