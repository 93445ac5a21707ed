package session

import (
	"fmt"
	"sort"
	"sync"
)

// Store manages opened sessions by ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   Config
}

// NewStore creates a store whose sessions use cfg.
func NewStore(cfg Config) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		config:   cfg,
	}
}

// Open opens path and registers the session.
func (st *Store) Open(path string) (*Session, error) {
	s, err := Open(path, st.config)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return s, nil
}

// Get retrieves a session by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	return s, ok
}

// List returns the open sessions ordered by path.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close closes a session and removes it from the store.
func (st *Store) Close(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return fmt.Errorf("no session %s", id)
	}
	return s.Close()
}

// CloseAll closes every session.
func (st *Store) CloseAll() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			log.Warningf("closing %s: %v", s.ID, err)
		}
	}
}
