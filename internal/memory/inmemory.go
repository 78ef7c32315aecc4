package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ledger is one user's ordered history plus the retrieval cursor.
type ledger struct {
	messages []Message
	cursor   int
}

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	ledgers map[string]*ledger
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ledgers: make(map[string]*ledger)}
}

func (s *InMemoryStore) Append(_ context.Context, userID string, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID]
	if !ok {
		// First message from a new user: retrieval starts enabled.
		l = &ledger{cursor: 0}
		s.ledgers[userID] = l
	}
	l.messages = append(l.messages, msg)
	return nil
}

func (s *InMemoryStore) ReadAll(_ context.Context, userID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[userID]
	if !ok || len(l.messages) == 0 {
		return nil, nil
	}
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out, nil
}

func (s *InMemoryStore) Cursor(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[userID]
	if !ok {
		return CursorDisabled, nil
	}
	return l.cursor, nil
}

func (s *InMemoryStore) SetCursor(_ context.Context, userID string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID]
	if !ok {
		l = &ledger{}
		s.ledgers[userID] = l
	}
	l.cursor = value
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
