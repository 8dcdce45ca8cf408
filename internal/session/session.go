// Package session tracks per-conversation interactive state: the current
// directory and the in-progress multi-step command. Sessions survive
// restarts via the snapshot and are evicted least-recently-active under
// memory pressure.
package session

import (
	"time"

	"github.com/infinitecloud/infinitecloud/internal/fs"
)

// Pending is an in-progress multi-argument command: the recognized keyword
// plus the arguments collected so far. It is the persisted form of the
// interpreter's AwaitingArgument state.
type Pending struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Session is the interactive state of one conversation.
type Session struct {
	CurrentPath string   `json:"current_path"`
	Pending     *Pending `json:"pending,omitempty"`
	// ListToken resumes the conversation's last paginated listing. Inline
	// keyboard callback data is capped at 64 bytes, too small for a signed
	// token, so the token lives here and the button carries a keyword.
	ListToken  string    `json:"list_token,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

func newSession(now time.Time) *Session {
	return &Session{
		CurrentPath: fs.RootPath,
		CreatedAt:   now,
		LastActive:  now,
	}
}

// IsIdle reports whether no command is awaiting arguments.
func (s *Session) IsIdle() bool { return s.Pending == nil }

// Reset clears any pending command, returning the session to Idle.
func (s *Session) Reset() { s.Pending = nil }

// EnsurePath resets the session to the root when its current path no longer
// resolves to a directory in the given tree.
func (s *Session) EnsurePath(tree *fs.Tree) {
	node, err := tree.Resolve(s.CurrentPath)
	if err != nil || !node.IsDirectory() {
		s.CurrentPath = fs.RootPath
	}
}

// Store holds all sessions, keyed by conversation. Like fs.Store it relies
// on the gateway's request serialization instead of internal locking.
type Store struct {
	sessions map[fs.ChatID]*Session
	max      int // 0 = unbounded
}

// NewStore returns an empty store. max bounds the number of live sessions;
// exceeding it evicts the least-recently-active one.
func NewStore(max int) *Store {
	return &Store{sessions: make(map[fs.ChatID]*Session), max: max}
}

// Restore rebuilds a store from snapshot data.
func Restore(sessions map[fs.ChatID]*Session, max int) *Store {
	if sessions == nil {
		sessions = make(map[fs.ChatID]*Session)
	}
	return &Store{sessions: sessions, max: max}
}

// GetOrCreate returns the session for a conversation, creating it on first
// interaction and bumping its last-active time.
func (s *Store) GetOrCreate(id fs.ChatID) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession(time.Now().UTC())
		s.sessions[id] = sess
		s.evict()
	}
	sess.LastActive = time.Now().UTC()
	return sess
}

// Get returns the session for a conversation, or nil.
func (s *Store) Get(id fs.ChatID) *Session {
	return s.sessions[id]
}

// evict drops least-recently-active sessions until the cap is respected.
// Trees are never touched: eviction only forgets interactive state.
func (s *Store) evict() {
	if s.max <= 0 {
		return
	}
	for len(s.sessions) > s.max {
		var oldest fs.ChatID
		var oldestAt time.Time
		first := true
		for id, sess := range s.sessions {
			if first || sess.LastActive.Before(oldestAt) {
				oldest, oldestAt, first = id, sess.LastActive, false
			}
		}
		delete(s.sessions, oldest)
	}
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	return len(s.sessions)
}

// All exposes the underlying map for snapshotting.
func (s *Store) All() map[fs.ChatID]*Session {
	return s.sessions
}
