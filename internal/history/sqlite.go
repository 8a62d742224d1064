// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/groundchat/internal/model"
)

// sqliteSchema stores conversations and their messages. Message IDs are
// globally unique, which makes repeated updates idempotent upserts.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL, -- Unix milliseconds
    updated_at INTEGER NOT NULL  -- Unix milliseconds
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, position);
`

// =============================================================================
// SQLITE SERVICE
// =============================================================================

// SQLite is a local history service for running without the remote history
// backend. Conversation IDs and titles are minted on the client.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// MintsConversations implements Minter.
func (s *SQLite) MintsConversations() bool {
	return true
}

// Ensure implements Service.
func (s *SQLite) Ensure(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List implements Service.
func (s *SQLite) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, PageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var (
			id, title        string
			created, updated int64
		)
		if err := rows.Scan(&id, &title, &created, &updated); err != nil {
			return nil, err
		}
		conv := model.NewConversation(id, title, time.UnixMilli(created).UTC())
		conv.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Read implements Service.
func (s *SQLite) Read(ctx context.Context, conversationID string) ([]model.Message, error) {
	if err := s.exists(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Date = time.UnixMilli(created).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Update implements Service. The conversation row and every message are
// upserted, so writing the same conversation twice leaves the same state.
// Client-side error notices are not stored.
func (s *SQLite) Update(ctx context.Context, conv *model.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updated := conv.UpdatedAt
	if updated.IsZero() {
		updated = conv.CreatedAt
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.CreatedAt.UnixMilli(), updated.UnixMilli()); err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, conversation_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET position = excluded.position, role = excluded.role, content = excluded.content`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	position := 0
	for _, m := range conv.Messages {
		if m.IsError() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, m.ID, conv.ID, position, string(m.Role), m.Content, m.Date.UnixMilli()); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
		}
		position++
	}

	return tx.Commit()
}

// Rename implements Service.
func (s *SQLite) Rename(ctx context.Context, conversationID, title string) error {
	return s.execOne(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, conversationID)
}

// Delete implements Service.
func (s *SQLite) Delete(ctx context.Context, conversationID string) error {
	return s.execOne(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
}

// DeleteAll implements Service.
func (s *SQLite) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations`)
	return err
}

// Clear implements Service.
func (s *SQLite) Clear(ctx context.Context, conversationID string) error {
	if err := s.exists(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return err
}

func (s *SQLite) exists(ctx context.Context, conversationID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	return err
}

func (s *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}
