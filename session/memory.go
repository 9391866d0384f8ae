package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	clock    func() time.Time
	newToken func() (string, error)
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:    time.Now,
		newToken: NewToken,
		sessions: make(map[string]Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, creds Credentials, user json.RawMessage) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessions[token] = Session{
		Credentials: creds,
		User:        cloneRaw(user),
		CreatedAt:   s.clock(),
	}
	s.mu.Unlock()

	return token, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Session, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	sess.User = cloneRaw(sess.User)
	return sess, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return false, nil
	}
	delete(s.sessions, token)
	return true, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
