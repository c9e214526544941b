// Package store manages the set of live companion conversations across
// users, backed by the checkpoint store. It owns the concurrency
// policy: all operations for one user are serialized, operations for
// different users run independently.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/conversation"
	"github.com/verdant-labs/companiond/internal/prompt"
)

// Store tracks one active conversation per user and persists every
// mutation back to the checkpoint store.
type Store struct {
	checkpoints *checkpoint.Store
	deps        conversation.Deps
	logger      *slog.Logger

	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	mu     sync.Mutex
	active *conversation.Conversation
}

// New creates a conversation store.
func New(checkpoints *checkpoint.Store, deps conversation.Deps, logger *slog.Logger) *Store {
	return &Store{
		checkpoints: checkpoints,
		deps:        deps,
		logger:      logger,
		users:       make(map[string]*userState),
	}
}

func (s *Store) user(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &userState{}
		s.users[userID] = u
	}
	return u
}

// Create starts a new companion for a user, persists its initial
// checkpoint, and makes it the user's active conversation.
func (s *Store) Create(ctx context.Context, userID string, params checkpoint.ModelParams, promptText, userName, botName, description string) (*checkpoint.Record, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	// Checkpoint ids have one-second resolution, so a second creation
	// in the same second collides with the first. The insert rejects
	// the taken id and the creation time is bumped until it is free.
	now := time.Now()
	for {
		c := conversation.New(s.deps, userID,
			params,
			prompt.New(promptText, userName, botName),
			description, now)

		rec := c.Snapshot()
		err := s.checkpoints.Insert(ctx, rec)
		if errors.Is(err, checkpoint.ErrExists) {
			now = now.Add(time.Second)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist new companion: %w", err)
		}

		u.active = c
		s.logger.Info("companion created", "user", userID, "checkpoint", rec.ID)
		return rec, nil
	}
}

// Message runs one turn against the user's active conversation and
// persists the updated memory state.
func (s *Store) Message(ctx context.Context, userID, input string) (string, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	c, err := activeOf(u, userID)
	if err != nil {
		return "", err
	}

	reply, err := c.Ask(ctx, input)
	if err != nil {
		return "", err
	}

	if err := s.checkpoints.Save(ctx, c.Snapshot()); err != nil {
		s.logger.Error("persist after turn failed", "user", userID, "error", err)
		return "", fmt.Errorf("persist conversation: %w", err)
	}
	return reply, nil
}

// Active returns the user's active conversation. It is a pure lookup:
// sessions only become active through Create, SwitchTo, or the startup
// LoadAll, never as a side effect of reading.
func (s *Store) Active(userID string) (*conversation.Conversation, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return activeOf(u, userID)
}

func activeOf(u *userState, userID string) (*conversation.Conversation, error) {
	if u.active == nil {
		return nil, fmt.Errorf("%w: no active companion for user %s", checkpoint.ErrNotFound, userID)
	}
	return u.active, nil
}

// List returns every companion checkpoint a user owns, oldest first.
func (s *Store) List(ctx context.Context, userID string) ([]*checkpoint.Record, error) {
	return s.checkpoints.ListByUser(ctx, userID)
}

// SwitchTo persists the current active conversation and replaces it
// with the checkpoint identified by id.
func (s *Store) SwitchTo(ctx context.Context, userID, id string) (*checkpoint.Record, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	rec, err := s.checkpoints.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if u.active != nil && u.active.ID() != id {
		if err := s.checkpoints.Save(ctx, u.active.Snapshot()); err != nil {
			return nil, fmt.Errorf("persist before switch: %w", err)
		}
	}

	u.active = conversation.Restore(s.deps, rec)
	s.logger.Info("companion switched", "user", userID, "checkpoint", id)
	return rec, nil
}

// Delete removes one companion checkpoint. If it was the active
// conversation, the user is left with no active session until they
// create a new companion or switch to a remaining one.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.checkpoints.Delete(ctx, userID, id); err != nil {
		return err
	}
	if u.active != nil && u.active.ID() == id {
		u.active = nil
	}
	return nil
}

// DeleteAll removes every companion a user owns and returns the count.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	n, err := s.checkpoints.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	u.active = nil
	return n, nil
}

// ClearHistory wipes both memory tiers of a companion. For the active
// conversation this resets the live session too.
func (s *Store) ClearHistory(ctx context.Context, userID, id string) error {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active != nil && u.active.ID() == id {
		u.active.ClearHistory()
		if err := s.checkpoints.Save(ctx, u.active.Snapshot()); err != nil {
			return fmt.Errorf("persist cleared history: %w", err)
		}
		return nil
	}
	return s.checkpoints.ClearHistory(ctx, userID, id)
}

// SetTone normalizes and applies a new tone on the active conversation,
// then persists it.
func (s *Store) SetTone(ctx context.Context, userID, text string) (string, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	c, err := activeOf(u, userID)
	if err != nil {
		return "", err
	}

	tone, err := c.SetTone(ctx, text)
	if err != nil {
		return "", err
	}
	if err := s.checkpoints.Save(ctx, c.Snapshot()); err != nil {
		return "", fmt.Errorf("persist tone: %w", err)
	}
	return tone, nil
}

// ToggleDebug flips debug mode on the active conversation. Debug state
// is ephemeral and not persisted.
func (s *Store) ToggleDebug(userID string) (bool, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	c, err := activeOf(u, userID)
	if err != nil {
		return false, err
	}
	return c.ToggleDebug(), nil
}

// SetSelfieURL records an avatar location on the active session (when
// it matches) and in the checkpoint store.
func (s *Store) SetSelfieURL(ctx context.Context, userID, id, url string) error {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.checkpoints.SetSelfieURL(ctx, userID, id, url); err != nil {
		return err
	}
	if u.active != nil && u.active.ID() == id {
		u.active.SetSelfieURL(url)
	}
	return nil
}

// LoadAll restores the latest companion of every known user into
// memory. Called once at startup so long-running deployments resume
// where they left off; it is the only path that rehydrates sessions
// from disk besides an explicit SwitchTo.
func (s *Store) LoadAll(ctx context.Context) error {
	users, err := s.checkpoints.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, userID := range users {
		rec, err := s.checkpoints.LatestByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("restore user %s: %w", userID, err)
		}
		u := s.user(userID)
		u.mu.Lock()
		u.active = conversation.Restore(s.deps, rec)
		u.mu.Unlock()
		s.logger.Debug("companion restored", "user", userID, "checkpoint", rec.ID)
	}
	s.logger.Info("companions loaded", "users", len(users))
	return nil
}

// FlushAll persists every live conversation. Called on shutdown.
func (s *Store) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	users := make(map[string]*userState, len(s.users))
	for id, u := range s.users {
		users[id] = u
	}
	s.mu.Unlock()

	var firstErr error
	for userID, u := range users {
		u.mu.Lock()
		if u.active != nil {
			if err := s.checkpoints.Save(ctx, u.active.Snapshot()); err != nil {
				s.logger.Error("flush failed", "user", userID, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		u.mu.Unlock()
	}
	return firstErr
}
