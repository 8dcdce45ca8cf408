package fs

// Store holds one tree per conversation. It is plain process-wide state:
// callers serialize access through the gateway's request discipline, so the
// store itself carries no locking.
type Store struct {
	trees map[ChatID]*Tree
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{trees: make(map[ChatID]*Tree)}
}

// RestoreStore rebuilds a store from snapshot data, relinking parent
// pointers on every tree.
func RestoreStore(trees map[ChatID]*Tree) *Store {
	if trees == nil {
		trees = make(map[ChatID]*Tree)
	}
	for _, t := range trees {
		t.Relink()
	}
	return &Store{trees: trees}
}

// GetOrCreate returns the tree for a conversation, seeding a fresh one with
// the default directories on first use.
func (s *Store) GetOrCreate(id ChatID) *Tree {
	t, ok := s.trees[id]
	if !ok {
		t = New()
		s.trees[id] = t
	}
	return t
}

// Get returns the tree for a conversation, or nil if none exists yet.
func (s *Store) Get(id ChatID) *Tree {
	return s.trees[id]
}

// All exposes the underlying map for snapshotting.
func (s *Store) All() map[ChatID]*Tree {
	return s.trees
}

// Len returns the number of conversations with a tree.
func (s *Store) Len() int {
	return len(s.trees)
}
