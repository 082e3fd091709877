package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pstu-cpl/cpl/internal/session"
)

// SnapshotKey is the fixed storage key of the serialized current user.
const SnapshotKey = "cpl_auth"

// SnapshotStore persists the current User in durable storage.
type SnapshotStore struct {
	store session.Store
}

// NewSnapshotStore wraps store.
func NewSnapshotStore(store session.Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

// Load returns the stored user, or nil when none is stored. An unreadable
// snapshot is discarded and treated as absent.
func (s *SnapshotStore) Load(ctx context.Context) (*User, error) {
	raw, err := s.store.Get(ctx, SnapshotKey)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading auth snapshot: %w", err)
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil || u.Email == "" {
		slog.Warn("auth: discarding unreadable snapshot", "error", err)
		if err := s.store.Delete(ctx, SnapshotKey); err != nil {
			slog.Warn("auth: deleting unreadable snapshot", "error", err)
		}
		return nil, nil
	}
	return &u, nil
}

// Save stores u, or clears the snapshot when u is nil.
func (s *SnapshotStore) Save(ctx context.Context, u *User) error {
	if u == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling auth snapshot: %w", err)
	}
	if err := s.store.Set(ctx, SnapshotKey, raw); err != nil {
		return fmt.Errorf("writing auth snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, SnapshotKey); err != nil {
		return fmt.Errorf("clearing auth snapshot: %w", err)
	}
	return nil
}
