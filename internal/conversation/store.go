package conversation

import "sync"

// Store maps a client conversation id to the provider thread id returned by
// the last successful turn.
//
// Concurrent turns on the same conversation id are not ordered: whichever
// SetLastThreadID runs last wins. Entries live for the process lifetime.
type Store struct {
	mu      sync.RWMutex
	threads map[string]string
}

func NewStore() *Store {
	return &Store{threads: make(map[string]string)}
}

// LastThreadID returns the stored thread id, or "" when the conversation has
// not completed a turn yet.
func (s *Store) LastThreadID(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[conversationID]
}

func (s *Store) SetLastThreadID(conversationID, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[conversationID] = threadID
}
