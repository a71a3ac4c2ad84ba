package conversation

import (
	"sync"
	"time"
)

// Store keeps the live State for every active conversation, keyed by
// (project, conversation). Expired sessions are dropped lazily on access.
//
// Store is safe for concurrent use from multiple goroutines.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	maxTurns int
	now      func() time.Time
}

type session struct {
	state     *State
	expiresAt time.Time
}

// NewStore returns a Store evicting conversations after ttl of inactivity
// and capping each at maxTurns retained turns.
//
// If ttl ≤ 0 it defaults to DefaultTTL.
// If maxTurns ≤ 0 it defaults to DefaultMaxTurns.
func NewStore(ttl time.Duration, maxTurns int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

func sessionKey(projectID, conversationID string) string {
	return projectID + ":" + conversationID
}

// Session returns the State for the given conversation, creating a fresh one
// when none exists or the previous one has expired. Each access extends the
// session's life by the store's TTL.
func (st *Store) Session(projectID, conversationID string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	key := sessionKey(projectID, conversationID)

	s, ok := st.sessions[key]
	if !ok || now.After(s.expiresAt) {
		s = &session{state: newState(st.maxTurns, st.now)}
		st.sessions[key] = s
	}
	s.expiresAt = now.Add(st.ttl)
	return s.state
}

// Reset discards the State for the given conversation, if any.
func (st *Store) Reset(projectID, conversationID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionKey(projectID, conversationID))
}

// Active returns the number of live (non-expired) sessions.
func (st *Store) Active() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	count := 0
	for key, s := range st.sessions {
		if now.After(s.expiresAt) {
			delete(st.sessions, key)
			continue
		}
		count++
	}
	return count
}
