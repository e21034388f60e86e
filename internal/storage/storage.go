// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("conversation not found")
	ErrDatabaseError = errors.New("database error")
	ErrSchemaNewer   = errors.New("database schema is newer than this version")
)

// =============================================================================
// STORE
// =============================================================================

// Store persists conversations to a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the default history database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".forgechat", "history.db"), nil
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
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
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates tables and verifies the schema version.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	if _, err := s.db.Exec(InitMetadata); err != nil {
		return err
	}

	var raw string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("corrupt schema_version %q: %w", raw, err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: found v%d, supported v%d", ErrSchemaNewer, version, SchemaVersion)
	}
	// Future migrations run here when version < SchemaVersion.
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE AND LOAD
// =============================================================================

// Save persists a conversation, replacing any prior version. Streaming
// state and undo stacks are not persisted.
func (s *Store) Save(ctx context.Context, conv *chat.Conversation) error {
	if conv == nil {
		return errors.New("conversation cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, system_prompt, tokens_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			tokens_used = excluded.tokens_used,
			updated_at = excluded.updated_at`,
		conv.ID, conv.GetTitle(), conv.Model, conv.SystemPrompt, conv.TokensUsed,
		conv.CreatedAt.Unix(), conv.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	// Replace messages wholesale. Undo can shorten the list, so a
	// pure append would leave stale rows behind.
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, reasoning, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		_, err := stmt.ExecContext(ctx, msg.ID, conv.ID, i, string(msg.Role),
			msg.Content, msg.Reasoning, msg.TokenCount, msg.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("failed to save message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Load retrieves a conversation by ID.
func (s *Store) Load(ctx context.Context, id string) (*chat.Conversation, error) {
	conv := &chat.Conversation{ID: id}

	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT title, model, system_prompt, tokens_used, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&conv.Title, &conv.Model, &conv.SystemPrompt, &conv.TokensUsed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, reasoning, token_count, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg chat.Message
		var role string
		var ts int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Reasoning, &msg.TokenCount, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		msg.Role = chat.Role(role)
		msg.Timestamp = time.Unix(ts, 0)
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return conv, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// =============================================================================
// LISTING AND SEARCH
// =============================================================================

// List returns conversation metadata, most recently updated first.
func (s *Store) List(ctx context.Context) ([]chat.ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       COALESCE((SELECT m.content FROM messages m
		                 WHERE m.conversation_id = c.id AND m.role = 'user'
		                 ORDER BY m.seq DESC LIMIT 1), '')
		FROM conversations c
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// Search returns metadata for conversations whose title or message
// content matches the query substring, most recently updated first.
func (s *Store) Search(ctx context.Context, query string) ([]chat.ConversationMeta, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       COALESCE((SELECT m.content FROM messages m
		                 WHERE m.conversation_id = c.id AND m.role = 'user'
		                 ORDER BY m.seq DESC LIMIT 1), '')
		FROM conversations c
		WHERE c.title LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM messages m
		              WHERE m.conversation_id = c.id
		                AND m.content LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// Count returns the number of stored conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return n, nil
}

func scanMetas(rows *sql.Rows) ([]chat.ConversationMeta, error) {
	var metas []chat.ConversationMeta
	for rows.Next() {
		var m chat.ConversationMeta
		var createdAt, updatedAt int64
		var preview string
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &createdAt, &updatedAt, &m.MessageCount, &preview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		m.UpdatedAt = time.Unix(updatedAt, 0)
		m.Preview = util.TruncateRunes(preview, 100)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return metas, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
