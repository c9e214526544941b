// Package history appends an audit trail of conversation turns to its
// own SQLite table. The log is write-mostly: the conversation layer
// never reads it back, it exists for moderation and debugging.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entry is one logged turn: the user's message and the companion's
// reply, tagged with the deployment environment.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CheckpointID string    `json:"checkpoint_id"`
	UserMessage  string    `json:"user_message"`
	BotMessage   string    `json:"bot_message"`
	Env          string    `json:"env"`
	CreatedAt    time.Time `json:"created_at"`
}

// Log writes conversation turns to the conversation_history table.
type Log struct {
	db     *sql.DB
	env    string
	logger *slog.Logger
}

// NewLog creates the audit log, migrating the table if needed. env
// tags every row so one table can hold staging and production traffic.
func NewLog(db *sql.DB, env string, logger *slog.Logger) (*Log, error) {
	l := &Log{db: db, env: env, logger: logger}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_history (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			user_message  TEXT NOT NULL,
			bot_message   TEXT NOT NULL,
			env           TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_user
			ON conversation_history(user_id, created_at);
	`)
	return err
}

// Record appends one turn. Failures are logged and swallowed: the
// audit trail must never cost a user their reply.
func (l *Log) Record(ctx context.Context, userID, checkpointID, userMessage, botMessage string) {
	id, err := uuid.NewV7()
	if err != nil {
		l.logger.Error("history id generation failed", "error", err)
		return
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO conversation_history
			(id, user_id, checkpoint_id, user_message, bot_message, env, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), userID, checkpointID, userMessage, botMessage, l.env,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		l.logger.Error("history append failed", "user", userID, "error", err)
	}
}

// Recent returns the newest entries for a user, newest first.
func (l *Log) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, checkpoint_id, user_message, bot_message, env, created_at
		FROM conversation_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.CheckpointID,
			&e.UserMessage, &e.BotMessage, &e.Env, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
