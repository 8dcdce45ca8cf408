// Package snapshot persists the full process state (trees and sessions) as
// one versioned JSON document, written at every mutating commit and loaded
// once at startup. Backends implement the Store interface.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/session"
)

// SchemaVersion is bumped on additive schema changes. Loading rejects
// versions newer than the binary understands.
const SchemaVersion = 1

var (
	// ErrNotFound means no snapshot exists yet; callers start fresh.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrCorrupt means a snapshot exists but cannot be decoded. It is a
	// fatal startup condition, never silently treated as empty state.
	ErrCorrupt = errors.New("snapshot: corrupt")
)

// Snapshot is the persisted form of all process state.
type Snapshot struct {
	SchemaVersion int                            `json:"schema_version"`
	SavedAt       time.Time                      `json:"saved_at"`
	Trees         map[fs.ChatID]*fs.Tree         `json:"trees"`
	Sessions      map[fs.ChatID]*session.Session `json:"sessions"`
}

// New captures the current state of the given stores.
func New(trees *fs.Store, sessions *session.Store) *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Trees:         trees.All(),
		Sessions:      sessions.All(),
	}
}

// Store persists and restores snapshots.
type Store interface {
	// Save writes the snapshot, replacing any previous one atomically.
	Save(snap *Snapshot) error
	// Load returns the latest snapshot, ErrNotFound when none exists, or
	// ErrCorrupt when one exists but cannot be decoded.
	Load() (*Snapshot, error)
	// Close releases backend resources.
	Close() error
}

// encode serializes a snapshot for storage.
func encode(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return data, nil
}

// decode parses stored bytes, mapping every failure mode onto ErrCorrupt.
func decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.SchemaVersion <= 0 || snap.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, snap.SchemaVersion)
	}
	if snap.Trees == nil {
		snap.Trees = make(map[fs.ChatID]*fs.Tree)
	}
	if snap.Sessions == nil {
		snap.Sessions = make(map[fs.ChatID]*session.Session)
	}
	return &snap, nil
}
