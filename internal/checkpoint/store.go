package checkpoint

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Store persists companion checkpoints in SQLite. All public methods
// are safe for concurrent use (SQLite serializes writes).
//
// Transport-level failures are retried exactly once after pinging the
// connection back to life; any further failure surfaces to the caller.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a checkpoint store using the given database
// connection. The schema is created automatically on first use.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS companions (
			checkpoint_id       TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			created_at          INTEGER NOT NULL,
			model               TEXT NOT NULL,
			max_tokens          INTEGER NOT NULL,
			temperature         REAL NOT NULL,
			top_p               REAL NOT NULL,
			frequency_penalty   REAL NOT NULL,
			presence_penalty    REAL NOT NULL,
			best_of             INTEGER NOT NULL,
			tone                TEXT NOT NULL,
			memory_token_budget INTEGER NOT NULL,
			prompt_template     TEXT NOT NULL,
			prompt_user_name    TEXT NOT NULL,
			prompt_bot_name     TEXT NOT NULL,
			memory_buffer       TEXT NOT NULL,
			memory_summary      TEXT NOT NULL,
			description         TEXT NOT NULL,
			selfie_url          TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_companions_user
			ON companions(user_id, created_at);
	`)
	return err
}

// isTransient reports whether an error looks like a transport-level
// persistence failure worth one blind retry, as opposed to a rejected
// statement.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "database is locked")
}

// withRetry runs op, and on a transport failure reestablishes the
// connection and retries exactly once.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}

	s.logger.Warn("persistence transport failure, retrying once", "error", err)
	if pingErr := s.db.PingContext(ctx); pingErr != nil {
		return fmt.Errorf("reconnect: %w", pingErr)
	}
	return op()
}

const insertColumns = `(
	checkpoint_id, user_id, created_at,
	model, max_tokens, temperature, top_p,
	frequency_penalty, presence_penalty, best_of,
	tone, memory_token_budget,
	prompt_template, prompt_user_name, prompt_bot_name,
	memory_buffer, memory_summary, description, selfie_url
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (rec *Record) insertArgs(buffer []byte) []any {
	return []any{
		rec.ID, rec.UserID, rec.CreatedAt.Unix(),
		rec.Params.Model, rec.Params.MaxTokens, rec.Params.Temperature, rec.Params.TopP,
		rec.Params.FrequencyPenalty, rec.Params.PresencePenalty, rec.Params.BestOf,
		rec.Params.Tone, rec.Params.MemoryTokenBudget,
		rec.PromptTemplate, rec.PromptUserName, rec.PromptBotName,
		string(buffer), rec.MemorySummary, rec.Description, rec.SelfieURL,
	}
}

// Insert persists a brand-new checkpoint. An id that is already taken
// is ErrExists; checkpoint ids are immutable, so colliding creations
// must pick a new id rather than overwrite.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	buffer, err := json.Marshal(rec.MemoryBuffer)
	if err != nil {
		return fmt.Errorf("marshal memory buffer: %w", err)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO companions `+insertColumns, rec.insertArgs(buffer)...)
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrExists, rec.ID)
		}
		if err != nil {
			return fmt.Errorf("insert checkpoint %s: %w", rec.ID, err)
		}
		return nil
	})
}

// Save upserts a checkpoint. The memory buffer is stored as a JSON
// array of strings.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	buffer, err := json.Marshal(rec.MemoryBuffer)
	if err != nil {
		return fmt.Errorf("marshal memory buffer: %w", err)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO companions `+insertColumns+`
			ON CONFLICT (checkpoint_id) DO UPDATE SET
				tone = excluded.tone,
				memory_buffer = excluded.memory_buffer,
				memory_summary = excluded.memory_summary,
				description = excluded.description,
				selfie_url = excluded.selfie_url
		`, rec.insertArgs(buffer)...)
		if err != nil {
			return fmt.Errorf("save checkpoint %s: %w", rec.ID, err)
		}
		return nil
	})
}

const recordColumns = `checkpoint_id, user_id, created_at,
	model, max_tokens, temperature, top_p,
	frequency_penalty, presence_penalty, best_of,
	tone, memory_token_budget,
	prompt_template, prompt_user_name, prompt_bot_name,
	memory_buffer, memory_summary, description, selfie_url`

// Get returns a checkpoint by id, scoped to the owning user. A
// checkpoint owned by someone else is ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, id string) (*Record, error) {
	var rec *Record
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM companions WHERE checkpoint_id = ? AND user_id = ?
		`, id, userID)

		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// ListByUser returns every checkpoint owned by a user, ordered by
// creation time ascending. An empty slice is a valid result.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	var records []*Record
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+recordColumns+`
			FROM companions WHERE user_id = ?
			ORDER BY created_at ASC, checkpoint_id ASC
		`, userID)
		if err != nil {
			return fmt.Errorf("list checkpoints for %s: %w", userID, err)
		}
		defer rows.Close()

		records = nil
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return fmt.Errorf("scan checkpoint: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LatestByUser returns the most recently created checkpoint for a
// user, or ErrNotFound if the user has none.
func (s *Store) LatestByUser(ctx context.Context, userID string) (*Record, error) {
	var rec *Record
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM companions WHERE user_id = ?
			ORDER BY created_at DESC, checkpoint_id DESC
			LIMIT 1
		`, userID)

		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no companions for user %s", ErrNotFound, userID)
		}
		return nil, err
	}
	return rec, nil
}

// Delete removes a checkpoint. Deleting a checkpoint that does not
// exist (or belongs to another user) returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	return s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM companions WHERE checkpoint_id = ? AND user_id = ?
		`, id, userID)
		if err != nil {
			return fmt.Errorf("delete checkpoint %s: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// DeleteAllByUser removes every checkpoint owned by a user and returns
// how many were removed. Zero is not an error.
func (s *Store) DeleteAllByUser(ctx context.Context, userID string) (int, error) {
	var deleted int
	err := s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM companions WHERE user_id = ?
		`, userID)
		if err != nil {
			return fmt.Errorf("delete companions for %s: %w", userID, err)
		}
		n, _ := result.RowsAffected()
		deleted = int(n)
		return nil
	})
	return deleted, err
}

// ClearHistory resets both memory tiers of a checkpoint while leaving
// config, prompt, and description untouched.
func (s *Store) ClearHistory(ctx context.Context, userID, id string) error {
	return s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE companions SET memory_buffer = '[]', memory_summary = ''
			WHERE checkpoint_id = ? AND user_id = ?
		`, id, userID)
		if err != nil {
			return fmt.Errorf("clear history %s: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// SetSelfieURL records the stored avatar location for a checkpoint.
func (s *Store) SetSelfieURL(ctx context.Context, userID, id, url string) error {
	return s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE companions SET selfie_url = ?
			WHERE checkpoint_id = ? AND user_id = ?
		`, url, id, userID)
		if err != nil {
			return fmt.Errorf("set selfie url %s: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Users returns every user id that owns at least one checkpoint.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT user_id FROM companions ORDER BY user_id
		`)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		defer rows.Close()

		users = nil
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var createdAt int64
	var buffer string

	err := row.Scan(
		&rec.ID, &rec.UserID, &createdAt,
		&rec.Params.Model, &rec.Params.MaxTokens, &rec.Params.Temperature, &rec.Params.TopP,
		&rec.Params.FrequencyPenalty, &rec.Params.PresencePenalty, &rec.Params.BestOf,
		&rec.Params.Tone, &rec.Params.MemoryTokenBudget,
		&rec.PromptTemplate, &rec.PromptUserName, &rec.PromptBotName,
		&buffer, &rec.MemorySummary, &rec.Description, &rec.SelfieURL,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = timeFromUnix(createdAt)
	if err := json.Unmarshal([]byte(buffer), &rec.MemoryBuffer); err != nil {
		return nil, fmt.Errorf("unmarshal memory buffer for %s: %w", rec.ID, err)
	}
	return &rec, nil
}
